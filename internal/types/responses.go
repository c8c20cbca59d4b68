// Package types holds the API request and response shapes shared by the
// handlers and the client
package types

import (
	"time"

	"github.com/ucext/citizenconnect/internal/db/models"
)

// PaginationResponse represents pagination information for list endpoints
// Example: {"total":42,"page":1,"limit":50,"offset":0}
type PaginationResponse struct {
	// Total number of items available across all pages
	Total int `json:"total"`

	// Current page number (1-based)
	Page int `json:"page"`

	// Maximum number of items per page
	Limit int `json:"limit"`

	// Number of items skipped from the beginning of the result set
	Offset int `json:"offset"`
}

// ListResponse defines a generic response structure for listing resources
type ListResponse[T any] struct {
	Rows       []T                `json:"rows"`
	Pagination PaginationResponse `json:"pagination"`
}

// SubmitJobResponse is returned when an upload is accepted
// Example: {"job_id":"0b6f...","state":"staged"}
type SubmitJobResponse struct {
	JobID string          `json:"job_id"`
	State models.JobState `json:"state"`
}

// JobResponse is the observable status of a publish job. Exactly one of
// ResultMediaID and FailureReason is set once the job is terminal.
type JobResponse struct {
	JobID           string             `json:"job_id"`
	Platform        models.Platform    `json:"platform"`
	AccountID       string             `json:"account_id"`
	Kind            models.MediaKind   `json:"kind"`
	State           models.JobState    `json:"state"`
	ContainerHandle string             `json:"container_handle,omitempty"`
	PollCount       int                `json:"poll_count"`
	ResultMediaID   string             `json:"result_media_id,omitempty"`
	FailureKind     models.FailureKind `json:"failure_kind,omitempty"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	FailureDetail   string             `json:"failure_detail,omitempty"`
	CleanedUp       bool               `json:"cleaned_up"`
	CreatedAt       time.Time          `json:"created_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
}

// NewJobResponse builds the API view of a job
func NewJobResponse(job *models.PublishJob) JobResponse {
	return JobResponse{
		JobID:           job.PublicID,
		Platform:        job.Platform,
		AccountID:       job.AccountRef,
		Kind:            job.Kind,
		State:           job.State,
		ContainerHandle: job.ContainerHandle,
		PollCount:       job.PollCount,
		ResultMediaID:   job.ResultMediaID,
		FailureKind:     job.FailureKind,
		FailureReason:   job.FailureReason,
		FailureDetail:   job.FailureDetail,
		CleanedUp:       job.CleanedUp,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
	}
}

// AccountResponse describes one connected account, page or Instagram account
type AccountResponse struct {
	ID       string          `json:"id"`
	Platform models.Platform `json:"platform"`
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	ImageURL string          `json:"image_url,omitempty"`
	ParentID string          `json:"parent_id,omitempty"`
}

// ConnectionStatusResponse reports whether a platform is connected
type ConnectionStatusResponse struct {
	Platform  models.Platform `json:"platform"`
	Connected bool            `json:"connected"`
}

// DisconnectResponse reports what a disconnect removed
type DisconnectResponse struct {
	Platform models.Platform `json:"platform"`
	Removed  int64           `json:"removed"`
}

// PostResponse is returned after a text post
type PostResponse struct {
	Platform models.Platform `json:"platform"`
	PostID   string          `json:"post_id"`
}

// ConnectCallbackResponse is returned once an OAuth callback stored the account
type ConnectCallbackResponse struct {
	Platform    models.Platform `json:"platform"`
	Connected   bool            `json:"connected"`
	DisplayName string          `json:"display_name,omitempty"`
	SubAccounts int             `json:"sub_accounts"`
}
