package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ucext/citizenconnect/config"
	"github.com/ucext/citizenconnect/internal/db/models"
)

// Errors returned when a flow cannot start or finish
var (
	ErrUnsupportedPlatform = errors.New("platform has no oauth flow")
	ErrProviderDisabled    = errors.New("oauth client is not configured")
	ErrMissingCode         = errors.New("authorization code is missing")
	ErrPlatformMismatch    = errors.New("oauth state belongs to another platform")
)

// Default scopes per platform
var (
	FacebookScopes = []string{
		"pages_show_list",
		"pages_read_engagement",
		"pages_manage_posts",
		"instagram_basic",
		"instagram_content_publish",
	}
	LinkedInScopes = []string{"openid", "profile", "w_member_social"}
	XScopes        = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}
)

// Endpoints are the consent and token URLs of every provider
type Endpoints struct {
	Facebook oauth2.Endpoint
	LinkedIn oauth2.Endpoint
	X        oauth2.Endpoint
}

// DefaultEndpoints returns the production endpoints. The facebook token URL
// lives on the graph API so it follows graphAPIURL.
func DefaultEndpoints(graphAPIURL string) Endpoints {
	return Endpoints{
		Facebook: oauth2.Endpoint{
			AuthURL:   "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL:  strings.TrimRight(graphAPIURL, "/") + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		LinkedIn: oauth2.Endpoint{
			AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		X: oauth2.Endpoint{
			AuthURL:   "https://twitter.com/i/oauth2/authorize",
			TokenURL:  "https://api.twitter.com/2/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Provider is the oauth2 configuration of one platform
type Provider struct {
	Platform models.Platform
	Config   oauth2.Config
	// PKCE adds an S256 code challenge to the flow
	PKCE bool
}

// Flows starts and finishes the OAuth flows of every configured platform
type Flows struct {
	providers map[models.Platform]*Provider
	tickets   TicketStore
	client    *http.Client
}

// NewFlows builds the providers that have a client configured. The http
// client is used for token exchanges; nil means http.DefaultClient.
func NewFlows(cfg config.OAuthConfig, endpoints Endpoints, tickets TicketStore, client *http.Client) *Flows {
	f := &Flows{
		providers: make(map[models.Platform]*Provider),
		tickets:   tickets,
		client:    client,
	}
	f.add(models.PlatformFacebook, cfg.Facebook, endpoints.Facebook, FacebookScopes, false)
	f.add(models.PlatformLinkedIn, cfg.LinkedIn, endpoints.LinkedIn, LinkedInScopes, false)
	f.add(models.PlatformX, cfg.X, endpoints.X, XScopes, true)
	return f
}

func (f *Flows) add(p models.Platform, c config.OAuthClient, endpoint oauth2.Endpoint, scopes []string, pkce bool) {
	if !c.Enabled() {
		return
	}
	if len(c.Scopes) > 0 {
		scopes = c.Scopes
	}
	f.providers[p] = &Provider{
		Platform: p,
		PKCE:     pkce,
		Config: oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}
}

// Provider returns the provider of p
func (f *Flows) Provider(p models.Platform) (*Provider, error) {
	switch p {
	case models.PlatformFacebook, models.PlatformLinkedIn, models.PlatformX:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p)
	}
	provider, ok := f.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}
	return provider, nil
}

// Start issues a ticket for ownerID and returns the consent URL to send the
// user to
func (f *Flows) Start(ctx context.Context, ownerID uint, p models.Platform) (string, error) {
	provider, err := f.Provider(p)
	if err != nil {
		return "", err
	}

	ticket := Ticket{OwnerID: ownerID, Platform: p}
	var opts []oauth2.AuthCodeOption
	if provider.PKCE {
		ticket.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(ticket.Verifier))
	}

	state, err := f.tickets.Issue(ctx, ticket)
	if err != nil {
		return "", err
	}
	return provider.Config.AuthCodeURL(state, opts...), nil
}

// Finish redeems the state and exchanges the code for a token
func (f *Flows) Finish(ctx context.Context, p models.Platform, state, code string) (Ticket, *oauth2.Token, error) {
	provider, err := f.Provider(p)
	if err != nil {
		return Ticket{}, nil, err
	}
	ticket, err := f.tickets.Redeem(ctx, state)
	if err != nil {
		return Ticket{}, nil, err
	}
	if ticket.Platform != p {
		return Ticket{}, nil, ErrPlatformMismatch
	}
	if code == "" {
		return Ticket{}, nil, ErrMissingCode
	}

	var opts []oauth2.AuthCodeOption
	if provider.PKCE {
		opts = append(opts, oauth2.VerifierOption(ticket.Verifier))
	}
	if f.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	}
	token, err := provider.Config.Exchange(ctx, code, opts...)
	if err != nil {
		return Ticket{}, nil, fmt.Errorf("failed to exchange %s authorization code: %w", p, err)
	}
	return ticket, token, nil
}
