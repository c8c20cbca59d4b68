// Package pipeline runs media publish jobs through container creation,
// status polling, publishing and cleanup of the staged media.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/staging"
)

// ErrNotRunnable is returned by Run for a job that is not staged
var ErrNotRunnable = errors.New("job is not in the staged state")

// JobStore persists job transitions
type JobStore interface {
	Save(ctx context.Context, job *models.PublishJob) error
	MarkCleanedUp(ctx context.Context, publicID string, at time.Time) error
}

// CredentialSource resolves the token of a platform account
type CredentialSource interface {
	Lookup(ctx context.Context, ownerID uint, p models.Platform, accountRef string) (platform.Credential, error)
}

// PublisherSource returns the adapter of a platform
type PublisherSource interface {
	Publisher(p models.Platform) (platform.MediaPublisher, error)
}

// Reporter receives progress events
type Reporter interface {
	Publish(event events.Event)
}

// Options tunes a Pipeline
type Options struct {
	Policies     Policies
	CleanupDelay time.Duration
	Clock        Clock
	Metrics      *metrics.Metrics
}

// Pipeline executes publish jobs. One Pipeline serves all jobs; per-job
// state lives in the job itself.
type Pipeline struct {
	store      JobStore
	creds      CredentialSource
	publishers PublisherSource
	stager     staging.Stager
	reporter   Reporter

	clock        Clock
	policies     Policies
	cleanupDelay time.Duration
	metrics      *metrics.Metrics

	mu sync.Mutex
	// jobs that started publishing or already have an outcome
	committed map[string]bool

	pending   sync.WaitGroup
	flush     chan struct{}
	flushOnce sync.Once
}

// New creates a pipeline. reporter may be nil.
func New(store JobStore, creds CredentialSource, publishers PublisherSource, stager staging.Stager, reporter Reporter, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Policies == (Policies{}) {
		opts.Policies = DefaultPolicies
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	return &Pipeline{
		store:        store,
		creds:        creds,
		publishers:   publishers,
		stager:       stager,
		reporter:     reporter,
		clock:        opts.Clock,
		policies:     opts.Policies,
		cleanupDelay: opts.CleanupDelay,
		metrics:      opts.Metrics,
		committed:    make(map[string]bool),
		flush:        make(chan struct{}),
	}
}

// Run executes a staged job to a terminal state and releases its staged
// media. The returned error is the terminal failure, nil when published.
func (p *Pipeline) Run(ctx context.Context, job *models.PublishJob) error {
	if job.State != models.JobStateStaged {
		return fmt.Errorf("%w: %s is %s", ErrNotRunnable, job.PublicID, job.State)
	}

	log := logger.WithJob(job.PublicID, job.Platform.String(), job.Kind.String())
	start := p.clock.Now()
	p.metrics.JobsInProgress.Inc()
	defer p.metrics.JobsInProgress.Dec()

	defer p.release(job, log)

	log.Info("Starting publish job")
	err := p.execute(ctx, job, log)
	p.commit(job.PublicID)
	p.finish(ctx, job, err, log)

	p.metrics.JobDuration.WithLabelValues(job.Platform.String(), job.Kind.String()).
		Observe(p.clock.Now().Sub(start).Seconds())
	return err
}

func (p *Pipeline) execute(ctx context.Context, job *models.PublishJob, log *logrus.Entry) error {
	p.emit(job, events.StepToken, events.StatusPending, "", nil)
	cred, err := p.creds.Lookup(ctx, job.OwnerID, job.Platform, job.AccountRef)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.emit(job, events.StepToken, events.StatusError, err.Error(), nil)
		return &ValidationError{Field: "account_id", Message: "no credential for account " + job.AccountRef, Err: err}
	}
	p.emit(job, events.StepToken, events.StatusSuccess, "", nil)

	// presigned references expire, so resolve one now rather than at submit
	if job.StagedKey != "" {
		url, err := p.stager.URL(ctx, job.StagedKey)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.emit(job, events.StepFile, events.StatusError, err.Error(), nil)
			return internal("resolve staged media", err)
		}
		job.MediaReference = url
	}
	p.emit(job, events.StepFile, events.StatusSuccess, "", map[string]string{"media_url": job.MediaReference})

	pub, err := p.publishers.Publisher(job.Platform)
	if err != nil {
		return NewValidationError("platform", err)
	}
	req := platform.MediaRequest{
		AccountRef: job.AccountRef,
		Kind:       job.Kind,
		MediaURL:   job.MediaReference,
		Caption:    job.Caption,
	}

	// container
	if err := ctx.Err(); err != nil {
		return err
	}
	p.emit(job, events.StepContainer, events.StatusPending, "", nil)
	handle, err := pub.CreateContainer(ctx, cred, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rej := rejected(events.StepContainer, err)
		p.emit(job, events.StepContainer, events.StatusError, rej.Message, nil)
		return rej
	}
	job.ContainerHandle = handle
	if err := job.Transition(models.JobStateContainerCreated); err != nil {
		return internal("record container", err)
	}
	p.save(ctx, job, log)
	p.emit(job, events.StepContainer, events.StatusSuccess, "", map[string]string{"container_id": handle})
	log.WithField("container_id", handle).Info("Container created")

	// processing
	startedAt := p.clock.Now()
	job.StartedAt = &startedAt
	if err := job.Transition(models.JobStateProcessing); err != nil {
		return internal("start processing", err)
	}
	p.save(ctx, job, log)
	p.emit(job, events.StepProcessing, events.StatusPending, "", nil)

	poller := NewPoller(p.clock, p.policies.For(job.Kind), func(n int, report platform.StatusReport, err error) {
		job.PollCount = n
		if err != nil {
			p.metrics.StatusPolls.WithLabelValues(job.Platform.String(), "fetch_error").Inc()
			log.WithField("poll", n).Warnf("Status query failed: %v", err)
			return
		}
		p.metrics.StatusPolls.WithLabelValues(job.Platform.String(), string(report.Code)).Inc()
		log.WithFields(logrus.Fields{"poll": n, "status": report.Raw}).Debug("Container status")
		if report.Code == platform.StatusInProgress {
			p.emit(job, events.StepProcessing, events.StatusPending, "", map[string]string{
				"poll":   strconv.Itoa(n),
				"status": report.Raw,
			})
		}
	})
	polls, err := poller.Wait(ctx, startedAt, func(ctx context.Context) (platform.StatusReport, error) {
		return pub.GetStatus(ctx, cred, handle, job.Kind)
	})
	job.PollCount = polls
	if err != nil {
		p.emit(job, events.StepProcessing, events.StatusError, err.Error(), nil)
		return err
	}
	p.emit(job, events.StepProcessing, events.StatusSuccess, "", map[string]string{"polls": strconv.Itoa(polls)})

	// publish
	if err := p.beginPublishing(ctx, job.PublicID); err != nil {
		return err
	}
	p.emit(job, events.StepPublish, events.StatusPending, "", nil)
	mediaID, err := pub.Publish(context.WithoutCancel(ctx), cred, req, handle)
	if err != nil {
		rej := rejected(events.StepPublish, err)
		p.emit(job, events.StepPublish, events.StatusError, rej.Message, nil)
		return rej
	}
	job.ResultMediaID = mediaID
	p.emit(job, events.StepPublish, events.StatusSuccess, "", map[string]string{"media_id": mediaID})
	return nil
}

// finish records the terminal state
func (p *Pipeline) finish(ctx context.Context, job *models.PublishJob, runErr error, log *logrus.Entry) {
	now := p.clock.Now()
	job.FinishedAt = &now

	var transitionErr error
	if runErr == nil {
		transitionErr = job.Transition(models.JobStateFinished)
		log.WithField("media_id", job.ResultMediaID).Info("Job published")
	} else {
		job.FailureKind, job.FailureReason, job.FailureDetail = Classify(runErr)
		transitionErr = job.Transition(models.JobStateFailed)
		log.WithFields(logrus.Fields{
			"failure_kind": job.FailureKind,
			"polls":        job.PollCount,
		}).Warnf("Job failed: %v", runErr)
	}
	if transitionErr != nil {
		log.Errorf("Failed to record terminal state: %v", transitionErr)
	}

	p.save(context.WithoutCancel(ctx), job, log)
	p.metrics.JobsCompleted.WithLabelValues(job.Platform.String(), job.Kind.String(), job.State.String(), string(job.FailureKind)).Inc()
}

// Fail moves a job that cannot be resumed to failed without touching the
// platform, then releases its media
func (p *Pipeline) Fail(ctx context.Context, job *models.PublishJob, kind models.FailureKind, reason string) error {
	log := logger.WithJob(job.PublicID, job.Platform.String(), job.Kind.String())
	if err := job.Transition(models.JobStateFailed); err != nil {
		return err
	}
	now := p.clock.Now()
	job.FinishedAt = &now
	job.FailureKind = kind
	job.FailureReason = reason
	if err := p.store.Save(ctx, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.PublicID, err)
	}
	p.metrics.JobsCompleted.WithLabelValues(job.Platform.String(), job.Kind.String(), job.State.String(), string(kind)).Inc()
	log.WithField("failure_kind", kind).Warn(reason)
	return p.Cleanup(ctx, job)
}

func (p *Pipeline) save(ctx context.Context, job *models.PublishJob, log *logrus.Entry) {
	if err := p.store.Save(ctx, job); err != nil {
		log.Errorf("Failed to save job state %s: %v", job.State, err)
	}
}

// release deletes the staged media now, or after the cleanup delay
func (p *Pipeline) release(job *models.PublishJob, log *logrus.Entry) {
	if p.cleanupDelay <= 0 {
		if err := p.Cleanup(context.Background(), job); err != nil {
			log.Errorf("Cleanup failed: %v", err)
		}
		return
	}

	snapshot := *job
	p.emit(job, events.StepCleanup, events.StatusPending, "", map[string]string{"delay": p.cleanupDelay.String()})
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		select {
		case <-p.clock.After(p.cleanupDelay):
		case <-p.flush:
		}
		if err := p.Cleanup(context.Background(), &snapshot); err != nil {
			log.Errorf("Delayed cleanup failed: %v", err)
		}
	}()
}

// Cleanup deletes the staged media of a job and records it. Deleting media
// that is already gone succeeds.
func (p *Pipeline) Cleanup(ctx context.Context, job *models.PublishJob) error {
	if job.StagedKey != "" {
		if err := p.stager.Delete(ctx, job.StagedKey); err != nil {
			p.metrics.Cleanups.WithLabelValues(p.stager.Name(), metrics.OutcomeError).Inc()
			p.emit(job, events.StepCleanup, events.StatusError, err.Error(), nil)
			return err
		}
	}
	p.metrics.Cleanups.WithLabelValues(p.stager.Name(), metrics.OutcomeSuccess).Inc()

	if err := p.store.MarkCleanedUp(ctx, job.PublicID, p.clock.Now()); err != nil {
		p.emit(job, events.StepCleanup, events.StatusError, err.Error(), nil)
		return fmt.Errorf("failed to record cleanup of %s: %w", job.PublicID, err)
	}
	p.emit(job, events.StepCleanup, events.StatusSuccess, "", nil)
	return nil
}

// Shutdown runs the delayed cleanups immediately and waits for them
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.flushOnce.Do(func() { close(p.flush) })

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending cleanups did not finish: %w", ctx.Err())
	}
}

// beginPublishing is the point of no return of a job
func (p *Pipeline) beginPublishing(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.committed[jobID] = true
	return nil
}

// commit marks a job whose outcome is decided
func (p *Pipeline) commit(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed[jobID] = true
}

// Forget drops the bookkeeping of a job whose Run returned
func (p *Pipeline) Forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.committed, jobID)
}

// Cancel calls cancel unless the job already started publishing or has an
// outcome
func (p *Pipeline) Cancel(jobID string, cancel context.CancelFunc) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.committed[jobID] {
		return false
	}
	cancel()
	return true
}

func (p *Pipeline) emit(job *models.PublishJob, step events.Step, status events.Status, msg string, data map[string]string) {
	if p.reporter == nil {
		return
	}
	p.reporter.Publish(events.Event{
		JobID:   job.PublicID,
		Step:    step,
		Status:  status,
		Message: msg,
		Data:    data,
		Time:    p.clock.Now(),
	})
}
