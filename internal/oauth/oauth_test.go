package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ucext/citizenconnect/config"
	"github.com/ucext/citizenconnect/internal/db/models"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisTicketStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTicketStore(client, ttl), mr
}

func TestTicketStores(t *testing.T) {
	redisStore, _ := newRedisStore(t, time.Minute)
	stores := map[string]TicketStore{
		"memory": NewMemoryTicketStore(time.Minute),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state, err := store.Issue(ctx, Ticket{OwnerID: 7, Platform: models.PlatformX, Verifier: "v"})
			require.NoError(t, err)
			assert.Len(t, state, 32)

			ticket, err := store.Redeem(ctx, state)
			require.NoError(t, err)
			assert.Equal(t, uint(7), ticket.OwnerID)
			assert.Equal(t, models.PlatformX, ticket.Platform)
			assert.Equal(t, "v", ticket.Verifier)
			assert.False(t, ticket.CreatedAt.IsZero())

			_, err = store.Redeem(ctx, state)
			assert.ErrorIs(t, err, ErrTicketNotFound, "tickets are single use")

			_, err = store.Redeem(ctx, "unknown")
			assert.ErrorIs(t, err, ErrTicketNotFound)
		})
	}
}

func TestMemoryTicketExpires(t *testing.T) {
	store := NewMemoryTicketStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	state, err := store.Issue(context.Background(), Ticket{OwnerID: 1, Platform: models.PlatformFacebook})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Redeem(context.Background(), state)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestRedisTicketExpires(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	state, err := store.Issue(context.Background(), Ticket{OwnerID: 1, Platform: models.PlatformFacebook})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(ticketKeyPrefix+state))

	mr.FastForward(2 * time.Minute)
	_, err = store.Redeem(context.Background(), state)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	assert.ErrorIs(t, err, ErrEmptyRedisAddress)

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func testConfig() config.OAuthConfig {
	return config.OAuthConfig{
		Facebook: config.OAuthClient{ClientID: "fb-app", ClientSecret: "fb-secret", RedirectURI: "http://localhost/cb/facebook"},
		X:        config.OAuthClient{ClientID: "x-app", ClientSecret: "x-secret", RedirectURI: "http://localhost/cb/x"},
	}
}

func TestStartBuildsConsentURL(t *testing.T) {
	store := NewMemoryTicketStore(time.Minute)
	flows := NewFlows(testConfig(), DefaultEndpoints("https://graph.example.com/v19.0"), store, nil)

	raw, err := flows.Start(context.Background(), 3, models.PlatformFacebook)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.facebook.com", u.Host)
	q := u.Query()
	assert.Equal(t, "fb-app", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb/facebook", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "instagram_content_publish")
	assert.Empty(t, q.Get("code_challenge"))
	assert.Len(t, q.Get("state"), 32)

	raw, err = flows.Start(context.Background(), 3, models.PlatformX)
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, u.Query().Get("code_challenge"))

	ticket, err := store.Redeem(context.Background(), u.Query().Get("state"))
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.Verifier)
}

func TestStartRejectsUnknownOrDisabled(t *testing.T) {
	flows := NewFlows(testConfig(), DefaultEndpoints("https://graph.example.com"), NewMemoryTicketStore(0), nil)

	_, err := flows.Start(context.Background(), 1, models.PlatformLinkedIn)
	assert.ErrorIs(t, err, ErrProviderDisabled)

	_, err = flows.Start(context.Background(), 1, models.PlatformInstagram)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestScopesOverride(t *testing.T) {
	cfg := testConfig()
	cfg.X.Scopes = []string{"tweet.write"}
	flows := NewFlows(cfg, DefaultEndpoints(""), NewMemoryTicketStore(0), nil)

	provider, err := flows.Provider(models.PlatformX)
	require.NoError(t, err)
	assert.Equal(t, []string{"tweet.write"}, provider.Config.Scopes)
}

func TestFinishExchangesCode(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "user-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	endpoints := DefaultEndpoints(srv.URL)
	endpoints.X = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInHeader}
	store := NewMemoryTicketStore(time.Minute)
	flows := NewFlows(testConfig(), endpoints, store, srv.Client())

	raw, err := flows.Start(context.Background(), 9, models.PlatformX)
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	state := u.Query().Get("state")

	ticket, token, err := flows.Finish(context.Background(), models.PlatformX, state, "the-code")
	require.NoError(t, err)
	assert.Equal(t, uint(9), ticket.OwnerID)
	assert.Equal(t, "user-token", token.AccessToken)
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, ticket.Verifier, form.Get("code_verifier"))

	_, _, err = flows.Finish(context.Background(), models.PlatformX, state, "the-code")
	assert.ErrorIs(t, err, ErrTicketNotFound, "a state cannot be replayed")
}

func TestFinishValidatesTicket(t *testing.T) {
	store := NewMemoryTicketStore(time.Minute)
	flows := NewFlows(testConfig(), DefaultEndpoints("https://graph.example.com"), store, nil)
	ctx := context.Background()

	state, err := store.Issue(ctx, Ticket{OwnerID: 1, Platform: models.PlatformFacebook})
	require.NoError(t, err)
	_, _, err = flows.Finish(ctx, models.PlatformX, state, "code")
	assert.ErrorIs(t, err, ErrPlatformMismatch)

	state, err = store.Issue(ctx, Ticket{OwnerID: 1, Platform: models.PlatformFacebook})
	require.NoError(t, err)
	_, _, err = flows.Finish(ctx, models.PlatformFacebook, state, "")
	assert.ErrorIs(t, err, ErrMissingCode)
}
