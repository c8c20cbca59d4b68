package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/staging"
	"github.com/ucext/citizenconnect/pkg/api/v1/client"
	"github.com/ucext/citizenconnect/test/mocks"
)

// DefaultOwnerID is the caller identity of the suite's API client
const DefaultOwnerID uint = 1

// Suite encapsulates all components needed for integration testing.
// It provides a complete test setup with:
//   - File-based SQLite database
//   - Real API server, worker pool and publish pipeline
//   - Real API client
//   - Mocked Graph API
type Suite struct {
	t *testing.T

	// Server components
	App    *fiber.App
	Server *httptest.Server

	// Client components
	APIClient client.Client

	// Database components
	DB          *gorm.DB
	JobRepo     *repos.JobRepository
	AccountRepo *repos.AccountRepository

	// Publishing components
	Stager   *staging.LocalStager
	Broker   *events.Broker
	Pipeline *pipeline.Pipeline
	Pool     *services.WorkerPool
	Clock    *pipeline.FakeClock

	// Mock providers
	MockGraph *mocks.MockGraphAPI

	policies pipeline.Policies
	workers  int

	// Context management
	ctx        context.Context
	cancelFunc context.CancelFunc

	// Cleanup function
	cleanup func()
}

// NewSuite creates a new test suite with the given options.
// The suite must be cleaned up after use by calling Cleanup.
func NewSuite(t *testing.T, opts ...Option) *Suite {
	t.Helper()

	// Create suite with default timeout
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)

	suite := &Suite{
		t:          t,
		ctx:        ctx,
		cancelFunc: cancel,
		workers:    2,
	}

	// Initialize cleanup function
	suite.cleanup = func() {
		if suite.cancelFunc != nil {
			suite.cancelFunc()
		}
	}

	for _, opt := range opts {
		opt(suite)
	}

	// Setup database by default
	SetupTestDB(suite, nil)

	// Setup server by default
	SetupServer(suite)

	return suite
}

// Cleanup tears down the test suite, releasing all resources.
// This should be deferred immediately after creating the suite.
func (s *Suite) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Context returns the suite's context, which is automatically
// canceled when the suite is cleaned up.
func (s *Suite) Context() context.Context {
	return s.ctx
}

// T returns the testing.T instance for this suite
func (s *Suite) T() *testing.T {
	return s.t
}

// Require returns a require.Assertions instance for this suite.
// This is a convenience method to avoid passing t around.
func (s *Suite) Require() *require.Assertions {
	return require.New(s.t)
}

// ClientFor returns an API client acting as another owner
func (s *Suite) ClientFor(ownerID uint) client.Client {
	c, err := client.NewClient(&client.Options{
		BaseURL: s.Server.URL,
		Timeout: testClientTimeout,
		UserID:  ownerID,
	})
	s.Require().NoError(err, "Failed to create API client")
	return c
}

// WaitForCleanup waits until a job is settled and its staged media released
func (s *Suite) WaitForCleanup(jobID string) {
	s.t.Helper()
	s.Require().Eventually(func() bool {
		job, err := s.JobRepo.Find(s.ctx, jobID)
		return err == nil && job.State.IsTerminal() && job.CleanedUp
	}, 10*time.Second, 10*time.Millisecond, "job %s never settled", jobID)
}

// Retry retries a function until it succeeds or the number of retries is reached.
func (s *Suite) Retry(fn func() error, retries int, interval time.Duration) (err error) {
	for i := 0; i < retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return
}
