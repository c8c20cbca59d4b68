package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/types"
)

// Connection connects social accounts through the platform OAuth flows
type Connection struct {
	flows    *oauth.Flows
	repo     *repos.AccountRepository
	registry *platform.Registry
	now      func() time.Time
}

// NewConnectionService creates a new connection service instance
func NewConnectionService(flows *oauth.Flows, repo *repos.AccountRepository, registry *platform.Registry) *Connection {
	return &Connection{flows: flows, repo: repo, registry: registry, now: time.Now}
}

// Start returns the consent URL that begins connecting platform p
func (s *Connection) Start(ctx context.Context, ownerID uint, p models.Platform) (string, error) {
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return "", err
	}
	return s.flows.Start(ctx, ownerID, p)
}

// Callback finishes a flow: it exchanges the code, resolves the platform
// user and stores the account. Facebook also stores the managed pages and
// the Instagram business accounts linked to them.
func (s *Connection) Callback(ctx context.Context, p models.Platform, state, code string) (*types.ConnectCallbackResponse, error) {
	ticket, token, err := s.flows.Finish(ctx, p, state, code)
	if err != nil {
		return nil, err
	}

	var resp *types.ConnectCallbackResponse
	switch p {
	case models.PlatformFacebook:
		resp, err = s.connectFacebook(ctx, ticket.OwnerID, token)
	case models.PlatformLinkedIn:
		resp, err = s.connectLinkedIn(ctx, ticket.OwnerID, token)
	case models.PlatformX:
		resp, err = s.connectX(ctx, ticket.OwnerID, token)
	default:
		err = fmt.Errorf("%w: %s", oauth.ErrUnsupportedPlatform, p)
	}
	if err != nil {
		return nil, err
	}

	logger.InfoWithFields("Connected platform account", map[string]interface{}{
		"owner_id":     ticket.OwnerID,
		"platform":     p,
		"sub_accounts": resp.SubAccounts,
	})
	return resp, nil
}

func (s *Connection) connectFacebook(ctx context.Context, ownerID uint, token *oauth2.Token) (*types.ConnectCallbackResponse, error) {
	provider, err := s.flows.Provider(models.PlatformFacebook)
	if err != nil {
		return nil, err
	}
	long, err := platform.ExchangeLongLivedToken(ctx, s.registry.Graph,
		provider.Config.ClientID, provider.Config.ClientSecret, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived facebook token: %w", err)
	}
	me, err := platform.FacebookMe(ctx, s.registry.Graph, long.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get facebook user: %w", err)
	}

	account := &models.SocialAccount{
		OwnerID:        ownerID,
		Platform:       models.PlatformFacebook,
		ExternalUserID: me.ID,
		DisplayName:    me.Name,
		AccessToken:    long.AccessToken,
	}
	if long.ExpiresIn > 0 {
		expires := s.now().Add(time.Duration(long.ExpiresIn) * time.Second)
		account.TokenExpiresAt = &expires
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store facebook account: %w", err)
	}

	pages, err := platform.FacebookPages(ctx, s.registry.Graph, long.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to list facebook pages: %w", err)
	}
	var subs []models.SubAccount
	for _, page := range pages {
		subs = append(subs, models.SubAccount{
			SubID:    page.ID,
			Name:     page.Name,
			Token:    page.AccessToken,
			Type:     models.SubAccountFacebookPage,
			ImageURL: page.PictureURL,
		})
		ig, err := platform.LinkedInstagramAccount(ctx, s.registry.Graph, page.ID, page.AccessToken)
		if err != nil {
			// One page failing should not hide the others
			logger.Warnf("failed to resolve instagram account of page %s: %v", page.ID, err)
			continue
		}
		if ig == nil {
			continue
		}
		subs = append(subs, models.SubAccount{
			SubID:       ig.ID,
			Name:        ig.Username,
			Token:       page.AccessToken,
			Type:        models.SubAccountInstagramAccount,
			ImageURL:    ig.PictureURL,
			ParentSubID: page.ID,
		})
	}

	subTypes := []models.SubAccountType{models.SubAccountFacebookPage, models.SubAccountInstagramAccount}
	if err := s.repo.ReplaceSubAccounts(ctx, account.ID, subTypes, subs); err != nil {
		return nil, fmt.Errorf("failed to store facebook pages: %w", err)
	}
	return &types.ConnectCallbackResponse{
		Platform:    models.PlatformFacebook,
		Connected:   true,
		DisplayName: me.Name,
		SubAccounts: len(subs),
	}, nil
}

func (s *Connection) connectLinkedIn(ctx context.Context, ownerID uint, token *oauth2.Token) (*types.ConnectCallbackResponse, error) {
	profile, err := platform.LinkedInUserInfo(ctx, s.registry.LinkedIn, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get linkedin profile: %w", err)
	}
	return s.store(ctx, ownerID, models.PlatformLinkedIn, profile.Sub, profile.Name, token)
}

func (s *Connection) connectX(ctx context.Context, ownerID uint, token *oauth2.Token) (*types.ConnectCallbackResponse, error) {
	user, err := platform.XMe(ctx, s.registry.X, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get x user: %w", err)
	}
	name := user.Name
	if name == "" {
		name = user.Username
	}
	return s.store(ctx, ownerID, models.PlatformX, user.ID, name, token)
}

func (s *Connection) store(ctx context.Context, ownerID uint, p models.Platform, externalID, name string, token *oauth2.Token) (*types.ConnectCallbackResponse, error) {
	account := &models.SocialAccount{
		OwnerID:        ownerID,
		Platform:       p,
		ExternalUserID: externalID,
		DisplayName:    name,
		AccessToken:    token.AccessToken,
	}
	if !token.Expiry.IsZero() {
		expires := token.Expiry
		account.TokenExpiresAt = &expires
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store %s account: %w", p, err)
	}
	return &types.ConnectCallbackResponse{Platform: p, Connected: true, DisplayName: name}, nil
}
