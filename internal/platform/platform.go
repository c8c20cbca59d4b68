// Package platform talks to the social network REST APIs: the Graph API
// container flow for Instagram and Facebook media, and plain text posting
// for Facebook pages, LinkedIn and X.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// maxBodyInError bounds how much of an upstream body is carried in errors
const maxBodyInError = 2048

// ErrMissingID is returned when a platform accepted a call but the response
// carries no object id
var ErrMissingID = errors.New("response did not include an id")

// Credential is the bearer token used for one platform account
type Credential struct {
	// AccountRef is the platform-side id of the account (IG user, page, person)
	AccountRef string
	Token      string
}

// MediaRequest describes the media a job publishes
type MediaRequest struct {
	AccountRef string
	Kind       models.MediaKind
	MediaURL   string
	Caption    string
}

// StatusCode is the processing state of a container as reported by the platform
type StatusCode string

// Container status codes
const (
	StatusInProgress StatusCode = "IN_PROGRESS"
	StatusFinished   StatusCode = "FINISHED"
	StatusError      StatusCode = "ERROR"
)

// StatusReport is one answer of a container status query
type StatusReport struct {
	Code StatusCode
	// Reason is the platform's explanation when Code is StatusError
	Reason string
	// Raw is the platform's own status value
	Raw string
}

// MediaPublisher runs the three remote steps of a media publish
type MediaPublisher interface {
	// CreateContainer hands the media reference to the platform and returns the processing handle
	CreateContainer(ctx context.Context, cred Credential, req MediaRequest) (string, error)
	// GetStatus queries the processing state of a container
	GetStatus(ctx context.Context, cred Credential, handle string, kind models.MediaKind) (StatusReport, error)
	// Publish finalizes a processed container and returns the published media id
	Publish(ctx context.Context, cred Credential, req MediaRequest, handle string) (string, error)
}

// TextPoster publishes a plain text post
type TextPoster interface {
	Post(ctx context.Context, cred Credential, message string) (string, error)
}

// APIError is a non-2xx answer from a platform
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same call could succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ResponseError is a 2xx answer that could not be used
type ResponseError struct {
	Err  error
	Body string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Body)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Body returns the upstream response body carried by err, if any
func Body(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.Body
	}
	return ""
}

func truncate(body []byte) string {
	if len(body) > maxBodyInError {
		return string(body[:maxBodyInError])
	}
	return string(body)
}

// errorMessage extracts the human message from the usual error envelopes:
// Graph {"error":{"message":...}}, LinkedIn {"message":...}, X {"detail":...}
func errorMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	switch {
	case envelope.Error != nil && envelope.Error.Message != "":
		return envelope.Error.Message
	case envelope.Message != "":
		return envelope.Message
	case envelope.Detail != "":
		return envelope.Detail
	default:
		return envelope.Title
	}
}

// decodeID reads {"id": "..."} and fails when the id is absent
func decodeID(body []byte) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ResponseError{Err: fmt.Errorf("error unmarshaling response: %w", err), Body: truncate(body)}
	}
	if resp.ID == "" {
		return "", &ResponseError{Err: ErrMissingID, Body: truncate(body)}
	}
	return resp.ID, nil
}
