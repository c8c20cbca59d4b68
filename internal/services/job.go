package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/staging"
)

// MaxCaptionLength is the longest caption Instagram and Facebook accept
const MaxCaptionLength = 2200

// Job errors
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotCancelable = errors.New("job can no longer be canceled")
)

// SubmitRequest is one media upload to publish
type SubmitRequest struct {
	Platform  string
	AccountID string
	Caption   string
	// Kind may be empty, it is then inferred from the content
	Kind     string
	Filename string
	Data     []byte
}

// Job provides business logic for publish jobs
type Job struct {
	repo     *repos.JobRepository
	accounts *Account
	stager   staging.Stager
	pipeline *pipeline.Pipeline
	pool     *WorkerPool
	metrics  *metrics.Metrics
}

// NewJobService creates a new job service instance
func NewJobService(
	repo *repos.JobRepository,
	accounts *Account,
	stager staging.Stager,
	pipe *pipeline.Pipeline,
	pool *WorkerPool,
	m *metrics.Metrics,
) *Job {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Job{
		repo:     repo,
		accounts: accounts,
		stager:   stager,
		pipeline: pipe,
		pool:     pool,
		metrics:  m,
	}
}

// Submit validates and stages the upload, records the job and queues it.
// It returns as soon as the job is queued.
func (s *Job) Submit(ctx context.Context, ownerID uint, req SubmitRequest) (*models.PublishJob, error) {
	p, err := models.ParsePlatform(req.Platform)
	if err != nil {
		return nil, pipeline.NewValidationError("platform", err)
	}
	if !p.SupportsMedia() {
		return nil, &pipeline.ValidationError{Field: "platform", Message: fmt.Sprintf("%s does not support media publishing", p)}
	}
	if req.AccountID == "" {
		return nil, &pipeline.ValidationError{Field: "account_id", Message: "account_id is required"}
	}
	var kind models.MediaKind
	if req.Kind != "" {
		if kind, err = models.ParseMediaKind(req.Kind); err != nil {
			return nil, pipeline.NewValidationError("kind", err)
		}
	}
	if len(req.Data) == 0 {
		return nil, pipeline.NewValidationError("file", staging.ErrEmptyMedia)
	}
	if utf8.RuneCountInString(req.Caption) > MaxCaptionLength {
		return nil, &pipeline.ValidationError{Field: "caption", Message: fmt.Sprintf("caption is limited to %d characters", MaxCaptionLength)}
	}
	if _, err := s.accounts.Lookup(ctx, ownerID, p, req.AccountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, &pipeline.ValidationError{Field: "account_id", Message: fmt.Sprintf("%s account %s is not connected", p, req.AccountID), Err: err}
		}
		return nil, err
	}

	staged, err := s.stager.Put(ctx, staging.StageRequest{Data: req.Data, Filename: req.Filename, Kind: kind})
	if err != nil {
		if staging.IsValidation(err) {
			return nil, pipeline.NewValidationError("file", err)
		}
		return nil, fmt.Errorf("failed to stage media: %w", err)
	}

	job := &models.PublishJob{
		OwnerID:        ownerID,
		Platform:       p,
		AccountRef:     req.AccountID,
		Kind:           staged.Kind,
		ContentType:    staged.ContentType,
		Caption:        req.Caption,
		MediaReference: staged.URL,
		StagedKey:      staged.Key,
		State:          models.JobStateStaged,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if delErr := s.stager.Delete(context.WithoutCancel(ctx), staged.Key); delErr != nil {
			logger.Warnf("failed to remove staged media %s: %v", staged.Key, delErr)
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.metrics.JobsSubmitted.WithLabelValues(p.String(), job.Kind.String()).Inc()

	if err := s.pool.Enqueue(ctx, job.PublicID); err != nil {
		if failErr := s.pipeline.Fail(context.WithoutCancel(ctx), job, models.FailureCanceled, "job could not be queued: "+err.Error()); failErr != nil {
			logger.Errorf("failed to fail unqueued job %s: %v", job.PublicID, failErr)
		}
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	logger.WithJob(job.PublicID, p.String(), job.Kind.String()).
		WithField("owner_id", ownerID).
		Info("Job submitted")
	return job, nil
}

// Get retrieves a job of the owner
func (s *Job) Get(ctx context.Context, ownerID uint, jobID string) (*models.PublishJob, error) {
	job, err := s.repo.GetByPublicID(ctx, ownerID, jobID)
	if err != nil {
		return nil, notFound(err, ErrJobNotFound)
	}
	return job, nil
}

// List retrieves a page of the owner's jobs and the total matching count
func (s *Job) List(ctx context.Context, ownerID uint, opts *models.ListOptions) ([]models.PublishJob, int64, error) {
	jobs, err := s.repo.List(ctx, ownerID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	total, err := s.repo.Count(ctx, ownerID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return jobs, total, nil
}

// Cancel stops a job that has not started publishing
func (s *Job) Cancel(ctx context.Context, ownerID uint, jobID string) (*models.PublishJob, error) {
	job, err := s.Get(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.IsTerminal() || !s.pool.Cancel(job.PublicID) {
		return nil, fmt.Errorf("%w: job is %s", ErrJobNotCancelable, job.State)
	}
	logger.WithJob(job.PublicID, job.Platform.String(), job.Kind.String()).Info("Job cancel requested")
	return job, nil
}

// RecoverStaleJobs settles the jobs a previous process left behind. Staged
// jobs are queued again in the background, so the pool must be started
// first. Jobs that already had a container are failed:
// whether their publish call went out is unknown, and a second publish
// must never happen. Terminal jobs whose cleanup did not run get it now.
func (s *Job) RecoverStaleJobs(ctx context.Context) error {
	interrupted, err := s.repo.ListByStates(ctx, models.JobStateContainerCreated, models.JobStateProcessing)
	if err != nil {
		return fmt.Errorf("failed to list interrupted jobs: %w", err)
	}
	for i := range interrupted {
		job := &interrupted[i]
		if err := s.pipeline.Fail(ctx, job, models.FailureInterrupted, "interrupted by a server restart before publishing"); err != nil {
			logger.ErrorWithFields("Failed to settle interrupted job", map[string]interface{}{
				"job_id": job.PublicID,
				"error":  err.Error(),
			})
		}
	}

	pending, err := s.repo.ListPendingCleanup(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs pending cleanup: %w", err)
	}
	for i := range pending {
		if err := s.pipeline.Cleanup(ctx, &pending[i]); err != nil {
			logger.ErrorWithFields("Failed to clean up job", map[string]interface{}{
				"job_id": pending[i].PublicID,
				"error":  err.Error(),
			})
		}
	}

	staged, err := s.repo.ListByStates(ctx, models.JobStateStaged)
	if err != nil {
		return fmt.Errorf("failed to list staged jobs: %w", err)
	}
	ids := make([]string, 0, len(staged))
	for _, job := range staged {
		ids = append(ids, job.PublicID)
	}
	if len(ids) > 0 {
		if err := s.pool.EnqueueBacklog(ids); err != nil {
			return fmt.Errorf("failed to requeue %d staged jobs: %w", len(ids), err)
		}
	}

	if n := len(interrupted) + len(pending) + len(staged); n > 0 {
		logger.InfoWithFields("Recovered stale jobs", map[string]interface{}{
			"interrupted": len(interrupted),
			"cleaned_up":  len(pending),
			"requeued":    len(staged),
		})
	}
	return nil
}
