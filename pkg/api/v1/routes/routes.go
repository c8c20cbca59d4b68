// Package routes defines the API routes and URL structure
package routes

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/staging"
	"github.com/ucext/citizenconnect/pkg/api/v1/handlers"
)

/*

To keep this file organized, routes should be organized in the following way:

1. Smallest scope first (i.e. account routes before job routes)
2. For similar scopes, put the endpoints in alphabetical order
3. Order routes in GET, POST, PUT, DELETE order.
	a. Within this ordering, param urls (ie /:id) should go last, otherwise fiber will interpret the route slug as that param.
	b. After param considerations, order alphabetically.
4. For clarity, naming should match the action (i.e. GetJob, CancelJob)

*/

// API base configuration
const (
	// DefaultPort is the default port for the API
	DefaultPort = "8080"
	// APIv1Prefix is the prefix for all API endpoints
	APIv1Prefix = "/api/v1"
)

// DefaultBaseURL is the default base URL for the API
var DefaultBaseURL = fmt.Sprintf("http://localhost:%s", DefaultPort)

// Route names for lookup
const (
	// Health and metrics
	HealthCheck = "HealthCheck"
	Metrics     = "Metrics"

	// Account routes
	GetAccounts       = "GetAccounts"
	GetAccountStatus  = "GetAccountStatus"
	DisconnectAccount = "DisconnectAccount"

	// Post routes
	CreatePost = "CreatePost"

	// OAuth routes
	OAuthCallback = "OAuthCallback"
	OAuthConnect  = "OAuthConnect"

	// Job routes
	GetJobs      = "GetJobs"
	GetJob       = "GetJob"
	GetJobEvents = "GetJobEvents"
	SubmitJob    = "SubmitJob"
	CancelJob    = "CancelJob"
)

// Options configures the routes that are not API handlers
type Options struct {
	// MediaDir is served under /media when set
	MediaDir string
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
}

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the v1 routes
//
// NOTE: route ordering is important because routes will try and match in the order they are registered.
// For example, if we register GetJob before GetJobEvents, /events would never be reached.
func RegisterRoutes(
	app *fiber.App,
	jobHandler *handlers.JobHandler,
	accountHandler *handlers.AccountHandler,
	oauthHandler *handlers.OAuthHandler,
	opts Options,
) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}).Name(HealthCheck)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))).Name(Metrics)

	// Staged media must stay publicly readable: the platforms fetch it by URL
	if opts.MediaDir != "" {
		app.Static(staging.MediaRoute, opts.MediaDir, fiber.Static{ByteRange: true})
	}

	// API v1 routes
	v1 := app.Group(APIv1Prefix)

	// ---------------------------
	// Account endpoints
	accounts := v1.Group("/accounts", middleware.Owner())
	accounts.Get("/", accountHandler.ListAccounts).Name(GetAccounts)
	accounts.Get("/:platform/status", accountHandler.GetStatus).Name(GetAccountStatus)
	accounts.Delete("/:platform", accountHandler.Disconnect).Name(DisconnectAccount)

	// ---------------------------
	// Post endpoints
	posts := v1.Group("/posts", middleware.Owner())
	posts.Post("/", accountHandler.CreatePost).Name(CreatePost)

	// ---------------------------
	// OAuth endpoints. The callback is authenticated by its state.
	oauth := v1.Group("/oauth")
	oauth.Get("/:platform/callback", oauthHandler.Callback).Name(OAuthCallback)
	oauth.Get("/:platform/connect", middleware.Owner(), oauthHandler.Connect).Name(OAuthConnect)

	// ---------------------------
	// Job endpoints
	jobs := v1.Group("/jobs", middleware.Owner())
	jobs.Get("/", jobHandler.ListJobs).Name(GetJobs)
	jobs.Get("/:id/events", jobHandler.JobEvents).Name(GetJobEvents)
	jobs.Get("/:id", jobHandler.GetJob).Name(GetJob)
	jobs.Post("/", jobHandler.SubmitJob).Name(SubmitJob)
	jobs.Post("/:id/cancel", jobHandler.CancelJob).Name(CancelJob)
}

// initRouteCache initializes the route cache by creating a mock app and extracting routes
func initRouteCache() {
	routeCacheInit.Do(func() {
		routeCache = make(map[string]string)

		// Create a mock app
		app := fiber.New()

		// Register routes with empty handlers
		RegisterRoutes(app, &handlers.JobHandler{}, &handlers.AccountHandler{}, &handlers.OAuthHandler{},
			Options{Gatherer: prometheus.NewRegistry()})

		// Extract routes from the app
		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				routeCache[route.Name] = route.Path
			}
		}
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()

	// Initialize cache if needed
	if routeCache == nil {
		routeCacheMu.RUnlock()
		initRouteCache()
		routeCacheMu.RLock()
	}

	return routeCache[name]
}

// BuildURL builds a URL for the given route name and parameters
func BuildURL(routeName string, params map[string]string, queryParams url.Values) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	// Replace parameters in the route
	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, url.PathEscape(value))
	}

	// Remove trailing slash if it's a base endpoint with no parameters
	if strings.HasSuffix(route, "/") && !strings.Contains(route, ":") {
		route = strings.TrimSuffix(route, "/")
	}

	// Add query parameters if any
	if len(queryParams) > 0 {
		route = fmt.Sprintf("%s?%s", route, queryParams.Encode())
	}

	return route
}

// HealthCheckURL returns the URL for the health check endpoint
func HealthCheckURL() string {
	return BuildURL(HealthCheck, nil, nil)
}

// Account route helpers

// GetAccountsURL returns the URL for listing accounts
func GetAccountsURL(queryParams url.Values) string {
	return BuildURL(GetAccounts, nil, queryParams)
}

// GetAccountStatusURL returns the URL for the connection status of a platform
func GetAccountStatusURL(platform string) string {
	return BuildURL(GetAccountStatus, map[string]string{"platform": platform}, nil)
}

// DisconnectAccountURL returns the URL for disconnecting a platform
func DisconnectAccountURL(platform string) string {
	return BuildURL(DisconnectAccount, map[string]string{"platform": platform}, nil)
}

// CreatePostURL returns the URL for text posts
func CreatePostURL() string {
	return BuildURL(CreatePost, nil, nil)
}

// OAuthConnectURL returns the URL that starts connecting a platform
func OAuthConnectURL(platform string, queryParams url.Values) string {
	return BuildURL(OAuthConnect, map[string]string{"platform": platform}, queryParams)
}

// OAuthCallbackURL returns the redirect URL to register with a platform
func OAuthCallbackURL(platform string) string {
	return BuildURL(OAuthCallback, map[string]string{"platform": platform}, nil)
}

// Job route helpers

// GetJobsURL returns the URL for listing jobs
func GetJobsURL(queryParams url.Values) string {
	return BuildURL(GetJobs, nil, queryParams)
}

// GetJobURL returns the URL for a job
func GetJobURL(id string) string {
	return BuildURL(GetJob, map[string]string{"id": id}, nil)
}

// GetJobEventsURL returns the URL for the event stream of a job
func GetJobEventsURL(id string) string {
	return BuildURL(GetJobEvents, map[string]string{"id": id}, nil)
}

// SubmitJobURL returns the URL for submitting uploads
func SubmitJobURL() string {
	return BuildURL(SubmitJob, nil, nil)
}

// CancelJobURL returns the URL for canceling a job
func CancelJobURL(id string) string {
	return BuildURL(CancelJob, map[string]string{"id": id}, nil)
}
