package test

import (
	"context"
	"time"

	"github.com/ucext/citizenconnect/internal/pipeline"
)

// DefaultTestTimeout is the default timeout for test suites.
const DefaultTestTimeout = 30 * time.Second

// Option represents a configuration option for the test suite.
type Option func(*Suite)

// WithTimeout returns an option that sets the suite timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Suite) {
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		s.ctx, s.cancelFunc = context.WithTimeout(context.Background(), timeout)
	}
}

// WithCleanupFunc returns an option that adds a cleanup function to be
// called when the suite is cleaned up.
func WithCleanupFunc(cleanup func()) Option {
	return func(s *Suite) {
		oldCleanup := s.cleanup
		s.cleanup = func() {
			if cleanup != nil {
				cleanup()
			}
			if oldCleanup != nil {
				oldCleanup()
			}
		}
	}
}

// WithPolicies returns an option that overrides the polling policies of the
// pipeline.
func WithPolicies(policies pipeline.Policies) Option {
	return func(s *Suite) {
		s.policies = policies
	}
}

// WithWorkers returns an option that sets the worker pool size.
func WithWorkers(n int) Option {
	return func(s *Suite) {
		s.workers = n
	}
}
