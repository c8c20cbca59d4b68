package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/pipeline"
)

var (
	// ErrPoolStopped is returned by Enqueue once the pool shut down
	ErrPoolStopped = errors.New("worker pool is stopped")
	// ErrPoolNotStarted is returned by EnqueueBacklog before Start
	ErrPoolNotStarted = errors.New("worker pool is not started")
)

// WorkerPool runs queued publish jobs on a fixed number of goroutines. Each
// job gets its own cancellable context derived from the pool's.
type WorkerPool struct {
	jobs     *repos.JobRepository
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics

	workers int
	queue   chan string
	stopped chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	queued   map[string]bool
	running  map[string]context.CancelFunc
	canceled map[string]bool

	wg sync.WaitGroup
}

// NewWorkerPool creates a pool of workers consuming a queue of queueSize
func NewWorkerPool(jobs *repos.JobRepository, pipe *pipeline.Pipeline, workers, queueSize int, m *metrics.Metrics) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &WorkerPool{
		jobs:     jobs,
		pipeline: pipe,
		metrics:  m,
		workers:  workers,
		queue:    make(chan string, queueSize),
		stopped:  make(chan struct{}),
		queued:   make(map[string]bool),
		running:  make(map[string]context.CancelFunc),
		canceled: make(map[string]bool),
	}
}

// Start launches the workers. Canceling ctx stops them and cancels every
// running job.
func (w *WorkerPool) Start(ctx context.Context) {
	w.metrics.WorkerPoolSize.Set(float64(w.workers))
	w.started.Store(true)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.launchWorker(ctx, i)
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		<-ctx.Done()
		close(w.stopped)
	}()
	logger.Infof("Started %d publish workers", w.workers)
}

// Wait blocks until the pool stopped and every worker returned
func (w *WorkerPool) Wait() {
	w.wg.Wait()
}

// Enqueue queues a staged job. It blocks while the queue is full.
func (w *WorkerPool) Enqueue(ctx context.Context, jobID string) error {
	w.markQueued(jobID)
	if err := w.send(ctx, jobID); err != nil {
		w.unmarkQueued(jobID)
		return err
	}
	return nil
}

// EnqueueBacklog queues jobs from a background goroutine, so a backlog
// larger than the queue never blocks the caller. The pool must be started.
func (w *WorkerPool) EnqueueBacklog(jobIDs []string) error {
	if !w.started.Load() {
		return ErrPoolNotStarted
	}
	select {
	case <-w.stopped:
		return ErrPoolStopped
	default:
	}
	for _, id := range jobIDs {
		w.markQueued(id)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for i, id := range jobIDs {
			if err := w.send(context.Background(), id); err != nil {
				logger.WarnWithFields("Stopped requeuing staged jobs", map[string]interface{}{
					"remaining": len(jobIDs) - i,
					"error":     err.Error(),
				})
				for _, rest := range jobIDs[i:] {
					w.unmarkQueued(rest)
				}
				return
			}
		}
	}()
	return nil
}

func (w *WorkerPool) send(ctx context.Context, jobID string) error {
	select {
	case <-w.stopped:
		return ErrPoolStopped
	default:
	}
	select {
	case w.queue <- jobID:
		w.metrics.QueueDepth.Set(float64(len(w.queue)))
		return nil
	case <-w.stopped:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorkerPool) markQueued(jobID string) {
	w.mu.Lock()
	w.queued[jobID] = true
	w.mu.Unlock()
}

func (w *WorkerPool) unmarkQueued(jobID string) {
	w.mu.Lock()
	delete(w.queued, jobID)
	delete(w.canceled, jobID)
	w.mu.Unlock()
}

// Cancel stops a queued or running job unless it already started
// publishing. Jobs the pool does not hold are not cancelable.
func (w *WorkerPool) Cancel(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.running[jobID]; ok {
		return w.pipeline.Cancel(jobID, cancel)
	}
	if !w.queued[jobID] {
		return false
	}
	w.canceled[jobID] = true
	return true
}

func (w *WorkerPool) launchWorker(ctx context.Context, id int) {
	defer w.wg.Done()
	logger.Debugf("Worker %d started", id)

	for {
		if ctx.Err() != nil {
			logger.Debugf("Worker %d received shutdown signal, stopping...", id)
			return
		}
		select {
		case <-ctx.Done():
			logger.Debugf("Worker %d received shutdown signal, stopping...", id)
			return
		case jobID := <-w.queue:
			w.metrics.QueueDepth.Set(float64(len(w.queue)))
			w.process(ctx, jobID)
		}
	}
}

func (w *WorkerPool) process(ctx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	delete(w.queued, jobID)
	if w.canceled[jobID] {
		delete(w.canceled, jobID)
		cancel()
	}
	w.running[jobID] = cancel
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.running, jobID)
		w.pipeline.Forget(jobID)
		w.mu.Unlock()
	}()

	job, err := w.jobs.Find(ctx, jobID)
	if err != nil {
		logger.Errorf("Worker failed to load job %s: %v", jobID, err)
		return
	}

	if err := w.pipeline.Run(jobCtx, job); errors.Is(err, pipeline.ErrNotRunnable) {
		logger.Warnf("Worker skipped job %s: %v", jobID, err)
	}
}
