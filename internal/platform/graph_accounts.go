package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// FacebookUser is the Graph /me of a user token
type FacebookUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FacebookPage is a page the user manages, with its own page token
type FacebookPage struct {
	ID          string
	Name        string
	AccessToken string
	PictureURL  string
}

// InstagramAccount is the business account linked to a page
type InstagramAccount struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	PictureURL string `json:"profile_picture_url"`
}

// LongLivedToken is the result of a fb_exchange_token grant
type LongLivedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeLongLivedToken trades a short-lived user token for a long-lived one
func ExchangeLongLivedToken(ctx context.Context, client *Client, appID, appSecret, token string) (*LongLivedToken, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", appID)
	query.Set("client_secret", appSecret)
	query.Set("fb_exchange_token", token)

	body, err := client.GetQuery(ctx, "/oauth/access_token", query, nil)
	if err != nil {
		return nil, err
	}
	var resp LongLivedToken
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, &ResponseError{Err: fmt.Errorf("token exchange returned no access token"), Body: truncate(body)}
	}
	return &resp, nil
}

// FacebookMe resolves the user behind a token
func FacebookMe(ctx context.Context, client *Client, token string) (*FacebookUser, error) {
	query := url.Values{}
	query.Set("fields", "id,name")
	query.Set("access_token", token)

	body, err := client.GetQuery(ctx, "/me", query, nil)
	if err != nil {
		return nil, err
	}
	var user FacebookUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("error unmarshaling user: %w", err)
	}
	if user.ID == "" {
		return nil, &ResponseError{Err: ErrMissingID, Body: truncate(body)}
	}
	return &user, nil
}

// FacebookPages lists the pages the user manages
func FacebookPages(ctx context.Context, client *Client, token string) ([]FacebookPage, error) {
	query := url.Values{}
	query.Set("fields", "id,name,picture{url},access_token")
	query.Set("access_token", token)

	body, err := client.GetQuery(ctx, "/me/accounts", query, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
			Picture     struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling pages: %w", err)
	}

	pages := make([]FacebookPage, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.ID == "" || p.AccessToken == "" {
			continue
		}
		pages = append(pages, FacebookPage{
			ID:          p.ID,
			Name:        p.Name,
			AccessToken: p.AccessToken,
			PictureURL:  p.Picture.Data.URL,
		})
	}
	return pages, nil
}

// LinkedInstagramAccount returns the Instagram business account of a page,
// or nil when the page has none
func LinkedInstagramAccount(ctx context.Context, client *Client, pageID, token string) (*InstagramAccount, error) {
	query := url.Values{}
	query.Set("fields", "instagram_business_account{id,username,profile_picture_url}")
	query.Set("access_token", token)

	body, err := client.GetQuery(ctx, "/"+url.PathEscape(pageID), query, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Account *InstagramAccount `json:"instagram_business_account"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling page: %w", err)
	}
	if resp.Account == nil || resp.Account.ID == "" {
		return nil, nil
	}
	return resp.Account, nil
}
