package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// Instagram container status_code values
const (
	igStatusFinished   = "FINISHED"
	igStatusInProgress = "IN_PROGRESS"
	igStatusError      = "ERROR"
	igStatusExpired    = "EXPIRED"
	igStatusPublished  = "PUBLISHED"
)

// InstagramPublisher publishes to an Instagram business account through
// the Graph API content publishing flow
type InstagramPublisher struct {
	client *Client
}

var _ MediaPublisher = (*InstagramPublisher)(nil)

// NewInstagramPublisher creates a publisher against the Graph API base URL
func NewInstagramPublisher(client *Client) *InstagramPublisher {
	return &InstagramPublisher{client: client}
}

// CreateContainer creates an image container, or a REELS container for video
func (p *InstagramPublisher) CreateContainer(ctx context.Context, cred Credential, req MediaRequest) (string, error) {
	form := url.Values{}
	switch req.Kind {
	case models.MediaKindImage:
		form.Set("image_url", req.MediaURL)
	case models.MediaKindVideo:
		form.Set("media_type", "REELS")
		form.Set("video_url", req.MediaURL)
	default:
		return "", fmt.Errorf("unsupported media kind: %s", req.Kind)
	}
	if req.Caption != "" {
		form.Set("caption", req.Caption)
	}
	form.Set("access_token", cred.Token)

	body, err := p.client.PostForm(ctx, "/"+url.PathEscape(req.AccountRef)+"/media", form, nil)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}

// GetStatus reads the container status_code
func (p *InstagramPublisher) GetStatus(ctx context.Context, cred Credential, handle string, _ models.MediaKind) (StatusReport, error) {
	query := url.Values{}
	query.Set("fields", "status_code,status")
	query.Set("access_token", cred.Token)

	body, err := p.client.GetQuery(ctx, "/"+url.PathEscape(handle), query, nil)
	if err != nil {
		return StatusReport{}, err
	}

	var resp struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusReport{}, &ResponseError{Err: fmt.Errorf("error unmarshaling status: %w", err), Body: truncate(body)}
	}

	report := StatusReport{Raw: resp.StatusCode}
	switch resp.StatusCode {
	case igStatusFinished:
		report.Code = StatusFinished
	case igStatusError:
		report.Code = StatusError
		report.Reason = resp.Status
	case igStatusExpired:
		report.Code = StatusError
		report.Reason = "container expired before it was published"
	case igStatusPublished:
		report.Code = StatusError
		report.Reason = "container was already published"
	case igStatusInProgress:
		report.Code = StatusInProgress
	default:
		// unknown values keep the poller waiting until the ceiling
		report.Code = StatusInProgress
	}
	if report.Code == StatusError && report.Reason == "" {
		report.Reason = "media processing failed"
	}
	return report, nil
}

// Publish publishes a finished container
func (p *InstagramPublisher) Publish(ctx context.Context, cred Credential, req MediaRequest, handle string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", handle)
	form.Set("access_token", cred.Token)

	body, err := p.client.PostForm(ctx, "/"+url.PathEscape(req.AccountRef)+"/media_publish", form, nil)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}
