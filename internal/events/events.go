// Package events fans out per-job progress events to stream subscribers
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ucext/citizenconnect/internal/logger"
)

// Step is one stage of a publish job as shown to clients
type Step string

// Steps, in the order a job goes through them
const (
	StepToken      Step = "token"
	StepFile       Step = "file"
	StepContainer  Step = "container"
	StepProcessing Step = "processing"
	StepPublish    Step = "publish"
	StepCleanup    Step = "cleanup"
)

// Status is the state of a step
type Status string

// Step statuses
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	// EventChannelSize is the buffer size of a subscriber channel
	EventChannelSize = 128
	// DefaultRetention is how long the history of a finished job is kept
	DefaultRetention = 10 * time.Minute
	// evictInterval is how often finished streams are evicted
	evictInterval = time.Minute
)

// Event is one progress update of a job
type Event struct {
	JobID   string            `json:"job_id"`
	Step    Step              `json:"step"`
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Time    time.Time         `json:"time"`
}

// Final reports whether e is the last event of a job
func (e Event) Final() bool {
	return e.Step == StepCleanup && e.Status != StatusPending
}

type stream struct {
	history  []Event
	subs     map[chan Event]struct{}
	closedAt time.Time
}

func (s *stream) closed() bool {
	return !s.closedAt.IsZero()
}

// Broker keeps the event history of every job and relays new events to
// subscribers. A stream closes after its final event.
type Broker struct {
	mu        sync.Mutex
	streams   map[string]*stream
	retention time.Duration
	now       func() time.Time
}

// NewBroker creates a broker. A zero retention uses DefaultRetention.
func NewBroker(retention time.Duration) *Broker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Broker{
		streams:   make(map[string]*stream),
		retention: retention,
		now:       time.Now,
	}
}

func (b *Broker) get(jobID string) *stream {
	s, ok := b.streams[jobID]
	if !ok {
		s = &stream{subs: make(map[chan Event]struct{})}
		b.streams[jobID] = s
	}
	return s
}

// Publish records an event and sends it to the job's subscribers
func (b *Broker) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(event.JobID)
	if s.closed() {
		logger.Debugf("Dropping %s/%s event for closed job %s", event.Step, event.Status, event.JobID)
		return
	}
	s.history = append(s.history, event)

	for ch := range s.subs {
		select {
		case ch <- event:
		default:
			logger.Warnf("Subscriber of job %s is too slow, dropping %s event", event.JobID, event.Step)
		}
	}

	if event.Final() {
		for ch := range s.subs {
			close(ch)
		}
		s.subs = nil
		s.closedAt = b.now()
	}
	logger.Debugf("Published %s/%s event for job %s", event.Step, event.Status, event.JobID)
}

// Subscribe returns the events so far and a channel of the following ones.
// The channel is closed after the final event, immediately when the job
// already finished. cancel must be called when the subscriber goes away.
func (b *Broker) Subscribe(jobID string) (history []Event, updates <-chan Event, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(jobID)
	history = append([]Event(nil), s.history...)

	ch := make(chan Event, EventChannelSize)
	if s.closed() {
		close(ch)
		return history, ch, func() {}
	}
	s.subs[ch] = struct{}{}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
	return history, ch, cancel
}

// History returns the events recorded for a job
func (b *Broker) History(jobID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.streams[jobID]; ok {
		return append([]Event(nil), s.history...)
	}
	return nil
}

// Start runs the eviction loop until ctx is done
func (b *Broker) Start(ctx context.Context) {
	go b.evictLoop(ctx)
	logger.Info("🎯 Started event broker")
}

func (b *Broker) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Stopping event broker")
			return
		case <-ticker.C:
			if n := b.evict(); n > 0 {
				logger.Debugf("Evicted %d finished event streams", n)
			}
		}
	}
}

// evict drops finished streams older than the retention and idle streams
// without subscribers that never received an event
func (b *Broker) evict() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.retention)
	n := 0
	for id, s := range b.streams {
		expired := s.closed() && s.closedAt.Before(cutoff)
		empty := !s.closed() && len(s.history) == 0 && len(s.subs) == 0
		if expired || empty {
			delete(b.streams, id)
			n++
		}
	}
	return n
}
