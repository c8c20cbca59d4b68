package pipeline

import (
	"context"
	"time"

	"github.com/ucext/citizenconnect/internal/db/models"
	"github.com/ucext/citizenconnect/internal/platform"
)

// Policy is the polling cadence and ceiling of one media kind
type Policy struct {
	Interval time.Duration
	Ceiling  time.Duration
}

// Policies holds a Policy per media kind
type Policies struct {
	Image Policy
	Video Policy
}

// DefaultPolicies are the cadences the platforms document for containers
var DefaultPolicies = Policies{
	Image: Policy{Interval: 2 * time.Second, Ceiling: 60 * time.Second},
	Video: Policy{Interval: 3 * time.Second, Ceiling: 120 * time.Second},
}

// For returns the policy of kind
func (p Policies) For(kind models.MediaKind) Policy {
	if kind == models.MediaKindVideo {
		return p.Video
	}
	return p.Image
}

// StatusFunc queries the processing state of one container
type StatusFunc func(ctx context.Context) (platform.StatusReport, error)

// PollObserver is told about every poll, including failed ones
type PollObserver func(poll int, report platform.StatusReport, err error)

// Poller waits for a container to leave IN_PROGRESS. Each iteration sleeps
// the interval on a cancellable timer, then checks the ceiling before
// querying.
type Poller struct {
	clock   Clock
	policy  Policy
	observe PollObserver
}

// NewPoller creates a poller. observe may be nil.
func NewPoller(clock Clock, policy Policy, observe PollObserver) *Poller {
	if observe == nil {
		observe = func(int, platform.StatusReport, error) {}
	}
	return &Poller{clock: clock, policy: policy, observe: observe}
}

// Wait polls until FINISHED (nil), ERROR (*ProcessingFailed), the ceiling
// (*TimeoutError) or ctx is done. It returns the number of queries made.
func (p *Poller) Wait(ctx context.Context, startedAt time.Time, fetch StatusFunc) (int, error) {
	polls := 0
	lastStatus := ""

	for {
		select {
		case <-ctx.Done():
			return polls, ctx.Err()
		case <-p.clock.After(p.policy.Interval):
		}

		elapsed := p.clock.Now().Sub(startedAt)
		if elapsed > p.policy.Ceiling {
			return polls, &TimeoutError{
				Elapsed:    elapsed,
				Ceiling:    p.policy.Ceiling,
				LastStatus: lastStatus,
				Polls:      polls,
			}
		}

		polls++
		report, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return polls, ctx.Err()
			}
			p.observe(polls, report, &TransientFetchError{Poll: polls, Err: err})
			continue
		}
		p.observe(polls, report, nil)
		lastStatus = report.Raw
		if lastStatus == "" {
			lastStatus = string(report.Code)
		}

		switch report.Code {
		case platform.StatusFinished:
			return polls, nil
		case platform.StatusError:
			return polls, &ProcessingFailed{Reason: report.Reason, Status: report.Raw}
		}
	}
}
