// Package constants provides centralized definitions of constants used throughout the application
package constants

// Server environment variable names
const (
	// EnvPort is the port the API server listens on
	EnvPort = "PORT"
	// EnvLogLevel is the logrus level name (trace, debug, info, warn, error)
	EnvLogLevel = "LOG_LEVEL"
	// EnvPublicBaseURL is the externally reachable base URL of this server
	EnvPublicBaseURL = "PUBLIC_BASE_URL"
)

// Database environment variable names
const (
	EnvDBHost     = "DB_HOST"
	EnvDBPort     = "DB_PORT"
	EnvDBUser     = "DB_USER"
	EnvDBPassword = "DB_PASSWORD"
	EnvDBName     = "DB_NAME"
	EnvDBSSLMode  = "DB_SSL_MODE"
)

// Media staging environment variable names
const (
	// EnvMediaStorage selects the stager backend: "local" or "s3"
	EnvMediaStorage = "MEDIA_STORAGE"
	// EnvMediaLocalDir is the directory the local stager writes to
	EnvMediaLocalDir = "MEDIA_LOCAL_DIR"
	// EnvMediaPublicBaseURL is the public base URL that serves the local staging directory
	EnvMediaPublicBaseURL = "MEDIA_PUBLIC_BASE_URL"
	// EnvS3Bucket is the bucket used by the S3 stager
	EnvS3Bucket = "S3_BUCKET"
	// EnvS3Region is the region of the S3 bucket
	EnvS3Region = "S3_REGION"
	// EnvS3PublicBaseURL is an optional public base URL in front of the bucket (CDN, website endpoint)
	EnvS3PublicBaseURL = "S3_PUBLIC_BASE_URL"
	// EnvS3Prefix is the key prefix for staged objects
	EnvS3Prefix = "S3_PREFIX"
)

// Platform API environment variable names
const (
	EnvGraphAPIURL    = "GRAPH_API_URL"
	EnvLinkedInAPIURL = "LINKEDIN_API_URL"
	EnvXAPIURL        = "X_API_URL"
)

// Pipeline environment variable names
const (
	EnvPollIntervalImage = "POLL_INTERVAL_IMAGE"
	EnvPollCeilingImage  = "POLL_CEILING_IMAGE"
	EnvPollIntervalVideo = "POLL_INTERVAL_VIDEO"
	EnvPollCeilingVideo  = "POLL_CEILING_VIDEO"
	EnvCleanupDelay      = "CLEANUP_DELAY"
	EnvWorkerCount       = "WORKER_COUNT"
	EnvJobQueueSize      = "JOB_QUEUE_SIZE"
	EnvMaxUploadBytes    = "MAX_UPLOAD_BYTES"
)

// Redis environment variable names
const (
	EnvRedisAddress  = "REDIS_ADDRESS"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"
)

// OAuth environment variable names
const (
	EnvOAuthTicketTTL = "OAUTH_TICKET_TTL"

	EnvFacebookAppID       = "FB_APP_ID"
	EnvFacebookAppSecret   = "FB_APP_SECRET"
	EnvFacebookRedirectURI = "FB_REDIRECT_URI"

	EnvLinkedInClientID     = "LINKEDIN_CLIENT_ID"
	EnvLinkedInClientSecret = "LINKEDIN_CLIENT_SECRET"
	EnvLinkedInRedirectURI  = "LINKEDIN_REDIRECT_URI"
	EnvLinkedInScopes       = "LINKEDIN_SCOPES"

	EnvXClientID     = "X_CLIENT_ID"
	EnvXClientSecret = "X_CLIENT_SECRET"
	EnvXRedirectURI  = "X_REDIRECT_URI"
	EnvXScopes       = "X_SCOPES"
)
