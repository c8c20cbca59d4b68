package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ucext/citizenconnect/config"
	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/staging"
	"github.com/ucext/citizenconnect/internal/types"
	"github.com/ucext/citizenconnect/pkg/api/v1/client"
	"github.com/ucext/citizenconnect/pkg/api/v1/handlers"
	"github.com/ucext/citizenconnect/pkg/api/v1/routes"
	"github.com/ucext/citizenconnect/test/mocks"
)

// testClientTimeout is the timeout for test API client requests
const testClientTimeout = 5 * time.Second

// testMaxUploadBytes bounds uploads made through the test server
const testMaxUploadBytes = 1 << 20

// SetupServer configures the test suite with a real API server backed by
// the mock Graph API
func SetupServer(suite *Suite) {
	// Create Fiber app with default config
	suite.App = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             2 * testMaxUploadBytes,
	})
	// Add logger
	suite.App.Use(middleware.Logger())

	// The server URL is needed by the stager and the OAuth redirect, so
	// start it before the routes exist
	suite.Server = httptest.NewServer(adaptor.FiberApp(suite.App))
	suite.MockGraph = mocks.NewMockGraphAPI()

	stager, err := staging.NewLocalStager(filepath.Join(suite.t.TempDir(), "media"), suite.Server.URL)
	suite.Require().NoError(err, "Failed to create stager")
	suite.Stager = stager

	registry := platform.NewRegistry(platform.Endpoints{
		GraphAPIURL:    suite.MockGraph.URL(),
		LinkedInAPIURL: suite.MockGraph.URL(),
		XAPIURL:        suite.MockGraph.URL(),
	}, suite.MockGraph.Server.Client())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Create services
	suite.Clock = pipeline.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	suite.Broker = events.NewBroker(time.Minute)
	accountService := services.NewAccountService(suite.AccountRepo, registry, m)
	suite.Pipeline = pipeline.New(suite.JobRepo, accountService, registry, stager, suite.Broker, pipeline.Options{
		Policies: suite.policies,
		Clock:    suite.Clock,
		Metrics:  m,
	})
	suite.Pool = services.NewWorkerPool(suite.JobRepo, suite.Pipeline, suite.workers, 16, m)
	jobService := services.NewJobService(suite.JobRepo, accountService, stager, suite.Pipeline, suite.Pool, m)

	flows := oauth.NewFlows(config.OAuthConfig{
		Facebook: config.OAuthClient{
			ClientID:     "test-app",
			ClientSecret: "test-secret",
			RedirectURI:  suite.Server.URL + routes.OAuthCallbackURL("facebook"),
		},
	}, oauth.DefaultEndpoints(suite.MockGraph.URL()), oauth.NewMemoryTicketStore(time.Minute), suite.MockGraph.Server.Client())
	connectionService := services.NewConnectionService(flows, suite.AccountRepo, registry)

	// Create handlers
	jobHandler := handlers.NewJobHandler(jobService, suite.Broker, testMaxUploadBytes)
	accountHandler := handlers.NewAccountHandler(accountService)
	oauthHandler := handlers.NewOAuthHandler(connectionService)

	// Register routes
	routes.RegisterRoutes(suite.App, jobHandler, accountHandler, oauthHandler, routes.Options{
		MediaDir: stager.Dir(),
		Gatherer: reg,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	suite.Broker.Start(workerCtx)
	suite.Pool.Start(workerCtx)

	// Create API client with test configuration
	apiClient, err := client.NewClient(&client.Options{
		BaseURL: suite.Server.URL,
		Timeout: testClientTimeout,
		UserID:  DefaultOwnerID,
	})
	suite.Require().NoError(err, "Failed to create API client")
	suite.APIClient = apiClient

	// Stop the workers before the database goes away
	originalCleanup := suite.cleanup
	suite.cleanup = func() {
		stopWorkers()
		suite.Pool.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := suite.Pipeline.Shutdown(ctx); err != nil {
			suite.t.Logf("pipeline shutdown: %v", err)
		}
		if suite.Server != nil {
			suite.Server.Close()
		}
		suite.MockGraph.Close()
		if originalCleanup != nil {
			originalCleanup()
		}
	}
}

// ConnectFacebook runs the Facebook OAuth flow through the API for the
// default owner and returns the callback result
func (s *Suite) ConnectFacebook() types.ConnectCallbackResponse {
	s.t.Helper()

	consent, err := s.APIClient.ConnectURL(s.ctx, "facebook")
	s.Require().NoError(err, "Failed to start the OAuth flow")
	u, err := url.Parse(consent)
	s.Require().NoError(err)
	state := u.Query().Get("state")
	s.Require().NotEmpty(state, "consent URL carries no state")

	callback := fmt.Sprintf("%s%s?%s", s.Server.URL, routes.OAuthCallbackURL("facebook"),
		url.Values{"state": {state}, "code": {"auth-code"}}.Encode())
	resp, err := s.Server.Client().Get(callback)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode, "callback failed")

	var body struct {
		Data types.ConnectCallbackResponse `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}
