package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// Facebook video_status values
const (
	fbVideoReady = "ready"
	fbVideoError = "error"
)

// FacebookPublisher publishes media to a Facebook page. Photos and videos
// are uploaded unpublished, then a feed post (photo) or a publish flag
// update (video) makes them visible.
type FacebookPublisher struct {
	client *Client
}

var _ MediaPublisher = (*FacebookPublisher)(nil)

// NewFacebookPublisher creates a publisher against the Graph API base URL
func NewFacebookPublisher(client *Client) *FacebookPublisher {
	return &FacebookPublisher{client: client}
}

// CreateContainer uploads the media by URL as an unpublished page object
func (p *FacebookPublisher) CreateContainer(ctx context.Context, cred Credential, req MediaRequest) (string, error) {
	form := url.Values{}
	form.Set("published", "false")
	form.Set("access_token", cred.Token)

	var endpoint string
	switch req.Kind {
	case models.MediaKindImage:
		endpoint = "/" + url.PathEscape(req.AccountRef) + "/photos"
		form.Set("url", req.MediaURL)
		// unpublished photos only exist to be attached to a feed post
		form.Set("temporary", "true")
	case models.MediaKindVideo:
		endpoint = "/" + url.PathEscape(req.AccountRef) + "/videos"
		form.Set("file_url", req.MediaURL)
		if req.Caption != "" {
			form.Set("description", req.Caption)
		}
	default:
		return "", fmt.Errorf("unsupported media kind: %s", req.Kind)
	}

	body, err := p.client.PostForm(ctx, endpoint, form, nil)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}

// GetStatus reports a photo as finished once it is readable, and maps the
// video_status of a video
func (p *FacebookPublisher) GetStatus(ctx context.Context, cred Credential, handle string, kind models.MediaKind) (StatusReport, error) {
	query := url.Values{}
	query.Set("access_token", cred.Token)
	if kind == models.MediaKindVideo {
		query.Set("fields", "status")
	} else {
		query.Set("fields", "id")
	}

	body, err := p.client.GetQuery(ctx, "/"+url.PathEscape(handle), query, nil)
	if err != nil {
		return StatusReport{}, err
	}

	if kind != models.MediaKindVideo {
		if _, err := decodeID(body); err != nil {
			return StatusReport{}, err
		}
		return StatusReport{Code: StatusFinished, Raw: "ready"}, nil
	}

	var resp struct {
		Status struct {
			VideoStatus     string `json:"video_status"`
			ProcessingPhase struct {
				Status string `json:"status"`
				Errors []struct {
					Message string `json:"message"`
				} `json:"errors"`
			} `json:"processing_phase"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusReport{}, &ResponseError{Err: fmt.Errorf("error unmarshaling status: %w", err), Body: truncate(body)}
	}

	report := StatusReport{Raw: resp.Status.VideoStatus}
	switch resp.Status.VideoStatus {
	case fbVideoReady:
		report.Code = StatusFinished
	case fbVideoError:
		report.Code = StatusError
		report.Reason = "video processing failed"
		if errs := resp.Status.ProcessingPhase.Errors; len(errs) > 0 && errs[0].Message != "" {
			report.Reason = errs[0].Message
		}
	default:
		report.Code = StatusInProgress
	}
	return report, nil
}

// Publish attaches a photo to a new feed post, or flips a video to published
func (p *FacebookPublisher) Publish(ctx context.Context, cred Credential, req MediaRequest, handle string) (string, error) {
	form := url.Values{}
	form.Set("access_token", cred.Token)

	if req.Kind == models.MediaKindVideo {
		form.Set("published", "true")
		body, err := p.client.PostForm(ctx, "/"+url.PathEscape(handle), form, nil)
		if err != nil {
			return "", err
		}
		var resp struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(body, &resp); err != nil || !resp.Success {
			return "", &ResponseError{Err: fmt.Errorf("video publish was not acknowledged"), Body: truncate(body)}
		}
		return handle, nil
	}

	attached, err := json.Marshal(map[string]string{"media_fbid": handle})
	if err != nil {
		return "", fmt.Errorf("error marshaling attached media: %w", err)
	}
	form.Set("attached_media[0]", string(attached))
	if req.Caption != "" {
		form.Set("message", req.Caption)
	}

	body, err := p.client.PostForm(ctx, "/"+url.PathEscape(req.AccountRef)+"/feed", form, nil)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}

// FacebookPoster posts text to a page feed
type FacebookPoster struct {
	client *Client
}

var _ TextPoster = (*FacebookPoster)(nil)

// NewFacebookPoster creates a poster against the Graph API base URL
func NewFacebookPoster(client *Client) *FacebookPoster {
	return &FacebookPoster{client: client}
}

// Post publishes message on the page identified by cred.AccountRef
func (p *FacebookPoster) Post(ctx context.Context, cred Credential, message string) (string, error) {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", cred.Token)

	body, err := p.client.PostForm(ctx, "/"+url.PathEscape(cred.AccountRef)+"/feed", form, nil)
	if err != nil {
		return "", err
	}
	return decodeID(body)
}
