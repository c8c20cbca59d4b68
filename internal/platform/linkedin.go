package platform

import (
	"context"
	"encoding/json"
	"fmt"
)

// LinkedInPoster shares text posts as the connected member
type LinkedInPoster struct {
	client *Client
}

var _ TextPoster = (*LinkedInPoster)(nil)

// NewLinkedInPoster creates a poster against the LinkedIn API base URL
func NewLinkedInPoster(client *Client) *LinkedInPoster {
	return &LinkedInPoster{client: client}
}

type ugcPost struct {
	Author          string                 `json:"author"`
	LifecycleState  string                 `json:"lifecycleState"`
	SpecificContent map[string]ugcShare    `json:"specificContent"`
	Visibility      map[string]interface{} `json:"visibility"`
}

type ugcShare struct {
	ShareCommentary    ugcText `json:"shareCommentary"`
	ShareMediaCategory string  `json:"shareMediaCategory"`
}

type ugcText struct {
	Text string `json:"text"`
}

// Post publishes message as urn:li:person:{cred.AccountRef}
func (p *LinkedInPoster) Post(ctx context.Context, cred Credential, message string) (string, error) {
	post := ugcPost{
		Author:         "urn:li:person:" + cred.AccountRef,
		LifecycleState: "PUBLISHED",
		SpecificContent: map[string]ugcShare{
			"com.linkedin.ugc.ShareContent": {
				ShareCommentary:    ugcText{Text: message},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: map[string]interface{}{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	headers := bearer(cred.Token)
	headers["X-Restli-Protocol-Version"] = "2.0.0"

	body, err := p.client.PostJSON(ctx, "/v2/ugcPosts", post, headers)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}

// LinkedInProfile is the OpenID userinfo of a member
type LinkedInProfile struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// LinkedInUserInfo resolves the member behind a token
func LinkedInUserInfo(ctx context.Context, client *Client, token string) (*LinkedInProfile, error) {
	body, err := client.GetQuery(ctx, "/v2/userinfo", nil, bearer(token))
	if err != nil {
		return nil, err
	}
	var profile LinkedInProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("error unmarshaling userinfo: %w", err)
	}
	if profile.Sub == "" {
		return nil, &ResponseError{Err: ErrMissingID, Body: truncate(body)}
	}
	return &profile, nil
}
