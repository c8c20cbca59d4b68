// Package client provides the API client for interacting with the publishing API
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/types"
	"github.com/ucext/citizenconnect/pkg/api/v1/handlers"
	"github.com/ucext/citizenconnect/pkg/api/v1/routes"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// WatchTimeout bounds an event stream when the context has no deadline
const WatchTimeout = 10 * time.Minute

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Job Endpoints
	SubmitJob(ctx context.Context, req SubmitJobRequest) (types.SubmitJobResponse, error)
	GetJob(ctx context.Context, id string) (types.JobResponse, error)
	ListJobs(ctx context.Context, opts ListJobsOptions) (types.ListResponse[types.JobResponse], error)
	CancelJob(ctx context.Context, id string) (types.SubmitJobResponse, error)
	WatchJob(ctx context.Context, id string) ([]events.Event, error)

	// Account Endpoints
	ListAccounts(ctx context.Context, platform, accountType string) ([]types.AccountResponse, error)
	AccountStatus(ctx context.Context, platform string) (types.ConnectionStatusResponse, error)
	DisconnectAccount(ctx context.Context, platform string) (types.DisconnectResponse, error)
	ConnectURL(ctx context.Context, platform string) (string, error)

	// Post Endpoints
	CreatePost(ctx context.Context, req handlers.CreatePostRequest) (types.PostResponse, error)
}

var _ Client = &APIClient{}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration

	// UserID is sent as the caller identity
	UserID uint
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// SubmitJobRequest is one media upload
type SubmitJobRequest struct {
	Platform  string
	AccountID string
	Caption   string
	Kind      string
	Filename  string
	Data      []byte
}

// ListJobsOptions filters a job listing
type ListJobsOptions struct {
	Page     int
	State    string
	Platform string
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
	userID  uint
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Validate the base URL
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &APIClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		userID:  opts.UserID,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	// Resolve the endpoint URL
	fullURL := c.baseURL + endpoint

	// Create a new agent based on the HTTP method
	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.userID != 0 {
		agent.Set(middleware.UserIDHeader, strconv.FormatUint(uint64(c.userID), 10))
	}

	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the response into v. Slug
// envelopes are unwrapped to their data.
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		var slug types.SlugResponse
		if err := json.Unmarshal(body, &slug); err == nil && slug.Error != "" {
			return &fiber.Error{Code: statusCode, Message: slug.Error}
		}
		return &fiber.Error{Code: statusCode, Message: string(body)}
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	var slug struct {
		Slug types.Slug      `json:"slug"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &slug); err == nil && slug.Slug != "" {
		if len(slug.Data) == 0 {
			return nil
		}
		body = slug.Data
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return c.doRequest(agent, response)
}

// HealthCheck checks the health of the API
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var response map[string]string
	err := c.executeRequest(ctx, http.MethodGet, routes.HealthCheckURL(), nil, &response)
	return response, err
}

// SubmitJob uploads media and queues it for publishing
func (c *APIClient) SubmitJob(ctx context.Context, req SubmitJobRequest) (types.SubmitJobResponse, error) {
	var response types.SubmitJobResponse
	agent, err := c.createAgent(ctx, http.MethodPost, routes.SubmitJobURL(), nil)
	if err != nil {
		return response, err
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("platform", req.Platform)
	args.Set("account_id", req.AccountID)
	if req.Caption != "" {
		args.Set("caption", req.Caption)
	}
	if req.Kind != "" {
		args.Set("kind", req.Kind)
	}
	filename := req.Filename
	if filename == "" {
		filename = "upload"
	}
	agent.FileData(&fiber.FormFile{Fieldname: "file", Name: filename, Content: req.Data})
	agent.MultipartForm(args)

	err = c.doRequest(agent, &response)
	return response, err
}

// GetJob retrieves the status of a job
func (c *APIClient) GetJob(ctx context.Context, id string) (types.JobResponse, error) {
	var response types.JobResponse
	err := c.executeRequest(ctx, http.MethodGet, routes.GetJobURL(id), nil, &response)
	return response, err
}

// ListJobs lists the caller's jobs
func (c *APIClient) ListJobs(ctx context.Context, opts ListJobsOptions) (types.ListResponse[types.JobResponse], error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.State != "" {
		q.Set("state", opts.State)
	}
	if opts.Platform != "" {
		q.Set("platform", opts.Platform)
	}

	var response types.ListResponse[types.JobResponse]
	err := c.executeRequest(ctx, http.MethodGet, routes.GetJobsURL(q), nil, &response)
	return response, err
}

// CancelJob cancels a job that has not started publishing
func (c *APIClient) CancelJob(ctx context.Context, id string) (types.SubmitJobResponse, error) {
	var response types.SubmitJobResponse
	err := c.executeRequest(ctx, http.MethodPost, routes.CancelJobURL(id), nil, &response)
	return response, err
}

// WatchJob reads the event stream of a job until it ends and returns every event
func (c *APIClient) WatchJob(ctx context.Context, id string) ([]events.Event, error) {
	agent, err := c.createAgent(ctx, http.MethodGet, routes.GetJobEventsURL(id), nil)
	if err != nil {
		return nil, err
	}
	agent.Set(fiber.HeaderAccept, "text/event-stream")
	if _, ok := ctx.Deadline(); !ok {
		agent.Timeout(WatchTimeout)
	}

	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("error sending request: %w", errs[0])
	}
	if statusCode != fiber.StatusOK {
		var slug types.SlugResponse
		if err := json.Unmarshal(body, &slug); err == nil && slug.Error != "" {
			return nil, &fiber.Error{Code: statusCode, Message: slug.Error}
		}
		return nil, &fiber.Error{Code: statusCode, Message: string(body)}
	}
	return ParseEventStream(body)
}

// ParseEventStream decodes the data lines of a server-sent event body
func ParseEventStream(body []byte) ([]events.Event, error) {
	var out []events.Event
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e events.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return out, fmt.Errorf("error decoding event: %w", err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// ListAccounts lists connected accounts; empty filters match everything
func (c *APIClient) ListAccounts(ctx context.Context, platform, accountType string) ([]types.AccountResponse, error) {
	q := url.Values{}
	if platform != "" {
		q.Set("platform", platform)
	}
	if accountType != "" {
		q.Set("type", accountType)
	}

	var response []types.AccountResponse
	err := c.executeRequest(ctx, http.MethodGet, routes.GetAccountsURL(q), nil, &response)
	return response, err
}

// AccountStatus reports whether a platform is connected
func (c *APIClient) AccountStatus(ctx context.Context, platform string) (types.ConnectionStatusResponse, error) {
	var response types.ConnectionStatusResponse
	err := c.executeRequest(ctx, http.MethodGet, routes.GetAccountStatusURL(platform), nil, &response)
	return response, err
}

// DisconnectAccount removes the stored tokens of a platform
func (c *APIClient) DisconnectAccount(ctx context.Context, platform string) (types.DisconnectResponse, error) {
	var response types.DisconnectResponse
	err := c.executeRequest(ctx, http.MethodDelete, routes.DisconnectAccountURL(platform), nil, &response)
	return response, err
}

// ConnectURL returns the consent URL that connects a platform
func (c *APIClient) ConnectURL(ctx context.Context, platform string) (string, error) {
	var response handlers.ConnectResponse
	q := url.Values{"redirect": []string{"false"}}
	err := c.executeRequest(ctx, http.MethodGet, routes.OAuthConnectURL(platform, q), nil, &response)
	return response.URL, err
}

// CreatePost publishes a text post
func (c *APIClient) CreatePost(ctx context.Context, req handlers.CreatePostRequest) (types.PostResponse, error) {
	var response types.PostResponse
	err := c.executeRequest(ctx, http.MethodPost, routes.CreatePostURL(), req, &response)
	return response, err
}
