package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxTweetLength is the character limit of a post on X
const MaxTweetLength = 280

// XPoster posts tweets through the v2 API with a user context token
type XPoster struct {
	client *Client
}

var _ TextPoster = (*XPoster)(nil)

// NewXPoster creates a poster against the X API base URL
func NewXPoster(client *Client) *XPoster {
	return &XPoster{client: client}
}

// Post publishes message as the token's user
func (p *XPoster) Post(ctx context.Context, cred Credential, message string) (string, error) {
	if n := utf8.RuneCountInString(message); n > MaxTweetLength {
		return "", fmt.Errorf("tweet is %d characters, the limit is %d", n, MaxTweetLength)
	}
	body, err := p.client.PostJSON(ctx, "/2/tweets", map[string]string{"text": message}, bearer(cred.Token))
	if err != nil {
		return "", err
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ResponseError{Err: fmt.Errorf("error unmarshaling response: %w", err), Body: truncate(body)}
	}
	if resp.Data.ID == "" {
		return "", &ResponseError{Err: ErrMissingID, Body: truncate(body)}
	}
	return resp.Data.ID, nil
}

// XUser is the authenticated X user
type XUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// XMe resolves the user behind a token
func XMe(ctx context.Context, client *Client, token string) (*XUser, error) {
	body, err := client.GetQuery(ctx, "/2/users/me", nil, bearer(token))
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data XUser `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling user: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, &ResponseError{Err: ErrMissingID, Body: truncate(body)}
	}
	return &resp.Data, nil
}
