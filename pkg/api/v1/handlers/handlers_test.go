package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/types"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		slug   types.Slug
	}{
		{name: "validation", err: &pipeline.ValidationError{Field: "caption", Message: "too long"}, status: fiber.StatusBadRequest, slug: types.InvalidInputSlug},
		{name: "job not found", err: services.ErrJobNotFound, status: fiber.StatusNotFound, slug: types.NotFoundSlug},
		{name: "wrapped account not found", err: fmt.Errorf("lookup: %w", services.ErrAccountNotFound), status: fiber.StatusNotFound, slug: types.NotFoundSlug},
		{name: "not cancelable", err: services.ErrJobNotCancelable, status: fiber.StatusConflict, slug: types.ConflictSlug},
		{name: "expired state", err: oauth.ErrTicketNotFound, status: fiber.StatusBadRequest, slug: types.InvalidInputSlug},
		{name: "provider disabled", err: oauth.ErrProviderDisabled, status: fiber.StatusNotFound, slug: types.NotFoundSlug},
		{name: "platform rejected", err: fmt.Errorf("post: %w", &platform.APIError{StatusCode: 400, Message: "bad"}), status: fiber.StatusBadGateway, slug: types.UpstreamSlug},
		{name: "pool stopped", err: services.ErrPoolStopped, status: fiber.StatusServiceUnavailable, slug: types.ServerErrorSlug},
		{name: "unknown", err: errors.New("boom"), status: fiber.StatusInternalServerError, slug: types.ServerErrorSlug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body types.SlugResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.slug, body.Slug)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetPaginationOptions(t *testing.T) {
	opts := getPaginationOptions(3)
	assert.Equal(t, models.DefaultLimit, opts.Limit)
	assert.Equal(t, 2*models.DefaultLimit, opts.Offset)

	assert.Equal(t, 0, getPaginationOptions(0).Offset)
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeEvent(w, events.Event{JobID: "j", Step: events.StepPublish, Status: events.StatusSuccess}))

	out := buf.String()
	assert.Contains(t, out, "event: publish\n")
	assert.Contains(t, out, `data: {"job_id":"j","step":"publish","status":"success"`)
	assert.Equal(t, "\n\n", out[len(out)-2:])
}

func TestSnapshotEvent(t *testing.T) {
	cleaned := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := snapshotEvent(&models.PublishJob{
		PublicID:      "job-1",
		State:         models.JobStateFinished,
		ResultMediaID: "media-1",
		CleanedUpAt:   &cleaned,
	})
	assert.True(t, finished.Final())
	assert.Equal(t, "finished", finished.Data["state"])
	assert.Equal(t, "media-1", finished.Data["media_id"])
	assert.Equal(t, cleaned, finished.Time)

	failed := snapshotEvent(&models.PublishJob{
		PublicID:      "job-2",
		State:         models.JobStateFailed,
		FailureKind:   models.FailureTimeout,
		FailureReason: "processing did not finish",
	})
	assert.Equal(t, "timeout", failed.Data["failure_kind"])
	assert.Equal(t, "processing did not finish", failed.Message)
	_, ok := failed.Data["media_id"]
	assert.False(t, ok)

	assert.True(t, hasFinal([]events.Event{{Step: events.StepToken}, finished}))
	assert.False(t, hasFinal([]events.Event{{Step: events.StepCleanup, Status: events.StatusPending}}))
}
