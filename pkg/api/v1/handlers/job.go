package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/types"
)

// SSEKeepAlive is how often an idle event stream sends a comment line
const SSEKeepAlive = 15 * time.Second

// JobHandler handles HTTP requests for publish jobs
type JobHandler struct {
	service        *services.Job
	broker         *events.Broker
	maxUploadBytes int
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(service *services.Job, broker *events.Broker, maxUploadBytes int) *JobHandler {
	return &JobHandler{
		service:        service,
		broker:         broker,
		maxUploadBytes: maxUploadBytes,
	}
}

// SubmitJob accepts a multipart upload and queues it for publishing
func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgFileRequired))
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > int64(h.maxUploadBytes) {
		return c.Status(fiber.StatusRequestEntityTooLarge).
			JSON(types.ErrInvalidInput(fmt.Sprintf("%s: limit is %d bytes", ErrMsgFileTooLarge, h.maxUploadBytes)))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgFileRead))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgFileRead))
	}

	job, err := h.service.Submit(c.UserContext(), middleware.OwnerID(c), services.SubmitRequest{
		Platform:  c.FormValue("platform"),
		AccountID: c.FormValue("account_id"),
		Caption:   c.FormValue("caption"),
		Kind:      c.FormValue("kind"),
		Filename:  fileHeader.Filename,
		Data:      data,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(types.SubmitJobResponse{
		JobID: job.PublicID,
		State: job.State,
	})
}

// GetJob returns the status of a job
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgJobIDRequired))
	}

	job, err := h.service.Get(c.UserContext(), middleware.OwnerID(c), jobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(types.NewJobResponse(job))
}

// ListJobs returns a page of the caller's jobs, newest first
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgNegativePagination))
	}
	opts := getPaginationOptions(page)

	if stateStr := c.Query("state"); stateStr != "" {
		state, err := models.ParseJobState(stateStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).
				JSON(types.ErrInvalidInput(fmt.Sprintf("%s: %v", ErrMsgInvalidJobState, err)))
		}
		opts.State = &state
	}
	if platformStr := c.Query("platform"); platformStr != "" {
		p, err := models.ParsePlatform(platformStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrInvalidInput(ErrMsgInvalidPlatform))
		}
		opts.Platform = p
	}

	jobs, total, err := h.service.List(c.UserContext(), middleware.OwnerID(c), opts)
	if err != nil {
		return respondError(c, err)
	}

	rows := make([]types.JobResponse, 0, len(jobs))
	for i := range jobs {
		rows = append(rows, types.NewJobResponse(&jobs[i]))
	}
	return c.JSON(types.ListResponse[types.JobResponse]{
		Rows: rows,
		Pagination: types.PaginationResponse{
			Total:  int(total),
			Page:   page,
			Limit:  opts.Limit,
			Offset: opts.Offset,
		},
	})
}

// CancelJob stops a job that has not started publishing
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	job, err := h.service.Cancel(c.UserContext(), middleware.OwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(types.Success(types.SubmitJobResponse{
		JobID: job.PublicID,
		State: job.State,
	}))
}

// JobEvents streams the progress of a job as server-sent events. Past
// events are replayed first; the stream ends after the cleanup step.
func (h *JobHandler) JobEvents(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), middleware.OwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	history, updates, cancel := h.broker.Subscribe(job.PublicID)
	if job.CleanedUp && !hasFinal(history) {
		// the history was evicted; report the stored outcome instead
		cancel()
		history = append(history, snapshotEvent(job))
		closed := make(chan events.Event)
		close(closed)
		updates = closed
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for _, e := range history {
			if err := writeEvent(w, e); err != nil {
				return
			}
		}

		keepAlive := time.NewTicker(SSEKeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case e, ok := <-updates:
				if !ok {
					return
				}
				if err := writeEvent(w, e); err != nil {
					logger.Debugf("Event stream of job %s closed by client: %v", e.JobID, err)
					return
				}
			case <-keepAlive.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Step, data); err != nil {
		return err
	}
	return w.Flush()
}

func hasFinal(history []events.Event) bool {
	for _, e := range history {
		if e.Final() {
			return true
		}
	}
	return false
}

func snapshotEvent(job *models.PublishJob) events.Event {
	e := events.Event{
		JobID:  job.PublicID,
		Step:   events.StepCleanup,
		Status: events.StatusSuccess,
		Data:   map[string]string{"state": job.State.String()},
	}
	if job.ResultMediaID != "" {
		e.Data["media_id"] = job.ResultMediaID
	}
	if job.FailureReason != "" {
		e.Data["failure_kind"] = string(job.FailureKind)
		e.Message = job.FailureReason
	}
	if job.CleanedUpAt != nil {
		e.Time = *job.CleanedUpAt
	}
	return e
}
