package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Field names for the publish job model
const (
	JobPublicIDField      = "public_id"
	JobStateField         = "state"
	JobCleanedUpField     = "cleaned_up"
	JobCreatedAtField     = "created_at"
	JobContainerField     = "container_handle"
	JobPollCountField     = "poll_count"
	JobStartedAtField     = "started_at"
	JobFinishedAtField    = "finished_at"
	JobResultField        = "result_media_id"
	JobFailureKindField   = "failure_kind"
	JobFailureReasonField = "failure_reason"
	JobFailureDetailField = "failure_detail"
	JobCleanedUpAtField   = "cleaned_up_at"
)

// ErrInvalidTransition is returned when a job state change breaks the
// staged → container_created → processing → finished|failed ordering
var ErrInvalidTransition = errors.New("invalid job state transition")

// JobState is the lifecycle position of a publish job
type JobState string

// Job states
const (
	JobStateStaged           JobState = "staged"
	JobStateContainerCreated JobState = "container_created"
	JobStateProcessing       JobState = "processing"
	JobStateFinished         JobState = "finished"
	JobStateFailed           JobState = "failed"
)

// ParseJobState converts a string to a JobState
func ParseJobState(str string) (JobState, error) {
	switch JobState(str) {
	case JobStateStaged, JobStateContainerCreated, JobStateProcessing, JobStateFinished, JobStateFailed:
		return JobState(str), nil
	default:
		return "", fmt.Errorf("invalid job state: %s", str)
	}
}

// String returns the string representation of the job state
func (s JobState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed
func (s JobState) IsTerminal() bool {
	return s == JobStateFinished || s == JobStateFailed
}

// HasContainer reports whether a job in this state must carry a container handle
func (s JobState) HasContainer() bool {
	return s == JobStateContainerCreated || s == JobStateProcessing || s == JobStateFinished
}

// CanTransition reports whether next may follow s
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobStateStaged:
		return next == JobStateContainerCreated || next == JobStateFailed
	case JobStateContainerCreated:
		return next == JobStateProcessing || next == JobStateFailed
	case JobStateProcessing:
		return next == JobStateFinished || next == JobStateFailed
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler for JobState
func (s *JobState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	state, err := ParseJobState(str)
	if err != nil {
		return err
	}

	*s = state
	return nil
}

// MediaKind selects container parameters and the polling policy
type MediaKind string

// Media kinds
const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// ParseMediaKind converts a string to a MediaKind
func ParseMediaKind(str string) (MediaKind, error) {
	switch MediaKind(str) {
	case MediaKindImage, MediaKindVideo:
		return MediaKind(str), nil
	default:
		return "", fmt.Errorf("invalid media kind: %s", str)
	}
}

// String returns the media kind name
func (k MediaKind) String() string {
	return string(k)
}

// FailureKind classifies why a job failed
type FailureKind string

// Failure kinds
const (
	FailureValidation       FailureKind = "validation"
	FailureUpstreamRejected FailureKind = "upstream_rejected"
	FailureProcessingFailed FailureKind = "processing_failed"
	FailureTimeout          FailureKind = "timeout"
	FailureCanceled         FailureKind = "canceled"
	FailureInterrupted      FailureKind = "interrupted"
	FailureInternal         FailureKind = "internal"
)

// PublishJob is one media publish attempt to Instagram or a Facebook page
type PublishJob struct {
	gorm.Model
	PublicID        string      `json:"job_id" gorm:"not null;uniqueIndex;size:36"`
	OwnerID         uint        `json:"-" gorm:"not null;index"`
	Platform        Platform    `json:"platform" gorm:"not null;size:32"`
	AccountRef      string      `json:"account_id" gorm:"not null"`
	Kind            MediaKind   `json:"kind" gorm:"not null;size:16"`
	ContentType     string      `json:"content_type"`
	Caption         string      `json:"caption" gorm:"type:text"`
	MediaReference  string      `json:"media_reference" gorm:"type:text"`
	StagedKey       string      `json:"-" gorm:"type:text"`
	ContainerHandle string      `json:"container_handle,omitempty"`
	State           JobState    `json:"state" gorm:"not null;index;size:32"`
	PollCount       int         `json:"poll_count"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	ResultMediaID   string      `json:"result_media_id,omitempty"`
	FailureKind     FailureKind `json:"failure_kind,omitempty" gorm:"size:32"`
	FailureReason   string      `json:"failure_reason,omitempty" gorm:"type:text"`
	FailureDetail   string      `json:"failure_detail,omitempty" gorm:"type:text"`
	CleanedUp       bool        `json:"cleaned_up" gorm:"not null;default:false;index"`
	CleanedUpAt     *time.Time  `json:"cleaned_up_at,omitempty"`
}

// Validate ensures that the job data is valid
func (j *PublishJob) Validate() error {
	if !j.Platform.SupportsMedia() {
		return fmt.Errorf("platform %q does not support media publishing", j.Platform)
	}
	if _, err := ParseMediaKind(string(j.Kind)); err != nil {
		return err
	}
	if j.AccountRef == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if j.MediaReference == "" {
		return fmt.Errorf("media reference cannot be empty")
	}
	if j.State.HasContainer() && j.ContainerHandle == "" {
		return fmt.Errorf("job in state %s must have a container handle", j.State)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *PublishJob) BeforeCreate(_ *gorm.DB) error {
	if j.State == "" {
		j.State = JobStateStaged
	}
	if j.PublicID == "" {
		j.PublicID = uuid.NewString()
	}
	return j.Validate()
}

// Transition moves the job to next, enforcing the state ordering
func (j *PublishJob) Transition(next JobState) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	if next == JobStateContainerCreated && j.ContainerHandle == "" {
		return fmt.Errorf("%w: container handle missing", ErrInvalidTransition)
	}
	j.State = next
	return nil
}
