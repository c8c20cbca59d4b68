// Package metrics holds the Prometheus collectors of the publish pipeline
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace of all metrics
	Namespace = "citizenconnect"

	subsystemJobs    = "jobs"
	subsystemWorkers = "workers"
	subsystemPosts   = "posts"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds all collectors
type Metrics struct {
	// Job metrics
	JobsSubmitted  *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	StatusPolls    *prometheus.CounterVec
	Cleanups       *prometheus.CounterVec
	JobsInProgress prometheus.Gauge

	// Worker pool metrics
	WorkerPoolSize prometheus.Gauge
	QueueDepth     prometheus.Gauge

	// Text posts
	TextPosts *prometheus.CounterVec
}

// New creates and registers all collectors. A nil registerer uses a fresh
// registry so tests never collide on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initJobMetrics(factory)
	m.initWorkerMetrics(factory)

	m.TextPosts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemPosts,
			Name:      "text_total",
			Help:      "Total number of text posts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	return m
}

func (m *Metrics) initJobMetrics(factory promauto.Factory) {
	m.JobsSubmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "submitted_total",
			Help:      "Total number of media publish jobs submitted",
		},
		[]string{"platform", "kind"},
	)

	// state is finished or failed, failure_kind is empty on success
	m.JobsCompleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "completed_total",
			Help:      "Total number of media publish jobs that reached a terminal state",
		},
		[]string{"platform", "kind", "state", "failure_kind"},
	)

	m.JobDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "duration_seconds",
			Help:      "Duration of media publish jobs from start to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"platform", "kind"},
	)

	// result is the reported status code, or fetch_error
	m.StatusPolls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "status_polls_total",
			Help:      "Total number of container status queries",
		},
		[]string{"platform", "result"},
	)

	m.Cleanups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "cleanups_total",
			Help:      "Total number of staged media deletions",
		},
		[]string{"backend", "outcome"},
	)

	m.JobsInProgress = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemJobs,
			Name:      "in_progress",
			Help:      "Number of jobs currently running",
		},
	)
}

func (m *Metrics) initWorkerMetrics(factory promauto.Factory) {
	m.WorkerPoolSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "pool_size",
			Help:      "Total size of the worker pool",
		},
	)

	m.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystemWorkers,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting for a worker",
		},
	)
}
