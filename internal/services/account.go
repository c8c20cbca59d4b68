package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/types"
)

// ErrAccountNotFound is returned when the owner has not connected the account
var ErrAccountNotFound = errors.New("account not found")

// Account types shown by the account listing besides the sub-account types
const (
	AccountTypeUser = "user"
)

// Account is the token store: it resolves the credentials of the accounts a
// user connected, and posts text on their behalf
type Account struct {
	repo     *repos.AccountRepository
	registry *platform.Registry
	metrics  *metrics.Metrics
}

// NewAccountService creates a new account service instance
func NewAccountService(repo *repos.AccountRepository, registry *platform.Registry, m *metrics.Metrics) *Account {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Account{repo: repo, registry: registry, metrics: m}
}

// Lookup returns the credential to act as accountRef on platform p. Pages
// and Instagram accounts use their page token; LinkedIn and X use the user
// token, and an empty accountRef selects the connected user.
func (s *Account) Lookup(ctx context.Context, ownerID uint, p models.Platform, accountRef string) (platform.Credential, error) {
	if subType, err := models.SubAccountTypeFor(p); err == nil {
		if accountRef == "" {
			return platform.Credential{}, ErrAccountNotFound
		}
		sub, err := s.repo.GetSubAccount(ctx, ownerID, accountRef, subType)
		if err != nil {
			return platform.Credential{}, notFound(err, ErrAccountNotFound)
		}
		return platform.Credential{AccountRef: sub.SubID, Token: sub.Token}, nil
	}

	account, err := s.repo.Get(ctx, ownerID, p)
	if err != nil {
		return platform.Credential{}, notFound(err, ErrAccountNotFound)
	}
	if accountRef != "" && accountRef != account.ExternalUserID {
		return platform.Credential{}, ErrAccountNotFound
	}
	return platform.Credential{AccountRef: account.ExternalUserID, Token: account.AccessToken}, nil
}

// List returns the connected accounts, pages and Instagram accounts of an
// owner. Empty filters match everything.
func (s *Account) List(ctx context.Context, ownerID uint, p models.Platform, accountType string) ([]types.AccountResponse, error) {
	accounts, err := s.repo.List(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var out []types.AccountResponse
	add := func(r types.AccountResponse) {
		if p != "" && r.Platform != p {
			return
		}
		if accountType != "" && r.Type != accountType {
			return
		}
		out = append(out, r)
	}

	for _, a := range accounts {
		add(types.AccountResponse{
			ID:       a.ExternalUserID,
			Platform: a.Platform,
			Type:     AccountTypeUser,
			Name:     a.DisplayName,
		})
		for _, sub := range a.SubAccounts {
			add(types.AccountResponse{
				ID:       sub.SubID,
				Platform: sub.Type.Platform(),
				Type:     string(sub.Type),
				Name:     sub.Name,
				ImageURL: sub.ImageURL,
				ParentID: sub.ParentSubID,
			})
		}
	}
	if out == nil {
		out = []types.AccountResponse{}
	}
	return out, nil
}

// Status reports whether the owner has connected platform p
func (s *Account) Status(ctx context.Context, ownerID uint, p models.Platform) (*types.ConnectionStatusResponse, error) {
	resp := &types.ConnectionStatusResponse{Platform: p}
	if p == models.PlatformInstagram {
		subs, err := s.repo.ListSubAccounts(ctx, ownerID, models.SubAccountInstagramAccount)
		if err != nil {
			return nil, fmt.Errorf("failed to list instagram accounts: %w", err)
		}
		resp.Connected = len(subs) > 0
		return resp, nil
	}

	_, err := s.repo.Get(ctx, ownerID, p)
	switch {
	case err == nil:
		resp.Connected = true
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("failed to get %s account: %w", p, err)
	}
	return resp, nil
}

// Disconnect removes the stored tokens of platform p. Disconnecting facebook
// drops its pages and Instagram accounts as well; disconnecting instagram
// drops only the Instagram accounts.
func (s *Account) Disconnect(ctx context.Context, ownerID uint, p models.Platform) (*types.DisconnectResponse, error) {
	var (
		removed int64
		err     error
	)
	if p == models.PlatformInstagram {
		removed, err = s.repo.DeleteSubAccounts(ctx, ownerID, models.SubAccountInstagramAccount)
	} else {
		removed, err = s.repo.Delete(ctx, ownerID, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect %s: %w", p, err)
	}
	logger.InfoWithFields("Disconnected platform", map[string]interface{}{
		"owner_id": ownerID,
		"platform": p,
		"removed":  removed,
	})
	return &types.DisconnectResponse{Platform: p, Removed: removed}, nil
}

// PostText publishes a text post as accountRef
func (s *Account) PostText(ctx context.Context, ownerID uint, p models.Platform, accountRef, message string) (*types.PostResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &pipeline.ValidationError{Field: "message", Message: "message cannot be empty"}
	}
	poster, err := s.registry.Poster(p)
	if err != nil {
		return nil, pipeline.NewValidationError("platform", err)
	}
	if p == models.PlatformX && len([]rune(message)) > platform.MaxTweetLength {
		return nil, &pipeline.ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("posts on x are limited to %d characters", platform.MaxTweetLength),
		}
	}

	cred, err := s.Lookup(ctx, ownerID, p, accountRef)
	if err != nil {
		return nil, err
	}

	id, err := poster.Post(ctx, cred, message)
	if err != nil {
		s.metrics.TextPosts.WithLabelValues(p.String(), metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to post to %s: %w", p, err)
	}
	s.metrics.TextPosts.WithLabelValues(p.String(), metrics.OutcomeSuccess).Inc()
	logger.InfoWithFields("Text post published", map[string]interface{}{
		"owner_id": ownerID,
		"platform": p,
		"post_id":  id,
	})
	return &types.PostResponse{Platform: p, PostID: id}, nil
}

// notFound maps gorm's not-found error to sentinel
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
