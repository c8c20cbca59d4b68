package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/platform"
)

// ValidationError is a request problem caught before any platform call
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err as a validation failure of field
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// UpstreamRejected is a refused container create or publish call
type UpstreamRejected struct {
	Step    events.Step
	Message string
	// Body is the platform response, truncated
	Body string
	Err  error
}

func (e *UpstreamRejected) Error() string {
	return fmt.Sprintf("%s rejected by platform: %s", e.Step, e.Message)
}

func (e *UpstreamRejected) Unwrap() error {
	return e.Err
}

func rejected(step events.Step, err error) *UpstreamRejected {
	msg := err.Error()
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &UpstreamRejected{Step: step, Message: msg, Body: platform.Body(err), Err: err}
}

// ProcessingFailed is an ERROR status reported while polling
type ProcessingFailed struct {
	Reason string
	// Status is the platform's own status value
	Status string
}

func (e *ProcessingFailed) Error() string {
	return "media processing failed: " + e.Reason
}

// TimeoutError is raised when processing outlasts the polling ceiling
type TimeoutError struct {
	Elapsed    time.Duration
	Ceiling    time.Duration
	LastStatus string
	Polls      int
}

func (e *TimeoutError) Error() string {
	last := e.LastStatus
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf("media processing did not finish within %s (last status %s after %d polls)", e.Ceiling, last, e.Polls)
}

// TransientFetchError is a failed status query. It never ends a job on its
// own; the ceiling does.
type TransientFetchError struct {
	Poll int
	Err  error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("status query %d failed: %v", e.Poll, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// InternalError is a local failure unrelated to the platform, such as a
// storage or bookkeeping error
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internal(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// Classify maps a terminal error to its failure kind, a human reason and
// the upstream detail when there is one
func Classify(err error) (kind models.FailureKind, reason, detail string) {
	var (
		validation *ValidationError
		upstream   *UpstreamRejected
		processing *ProcessingFailed
		timeout    *TimeoutError
	)
	switch {
	case errors.As(err, &validation):
		return models.FailureValidation, validation.Error(), ""
	case errors.As(err, &upstream):
		return models.FailureUpstreamRejected, upstream.Error(), upstream.Body
	case errors.As(err, &processing):
		return models.FailureProcessingFailed, processing.Error(), processing.Status
	case errors.As(err, &timeout):
		return models.FailureTimeout, timeout.Error(), ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.FailureCanceled, "job was canceled", ""
	default:
		// platform errors arrive as UpstreamRejected, anything else is ours
		return models.FailureInternal, err.Error(), ""
	}
}
