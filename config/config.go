// Package config loads the server configuration from the environment
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ucext/citizenconnect/internal/constants"
)

// Storage backends
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Default values
const (
	DefaultPort              = "8080"
	DefaultGraphAPIURL       = "https://graph.facebook.com/v19.0"
	DefaultLinkedInAPIURL    = "https://api.linkedin.com"
	DefaultXAPIURL           = "https://api.twitter.com"
	DefaultMediaLocalDir     = "./media"
	DefaultWorkerCount       = 4
	DefaultJobQueueSize      = 100
	DefaultMaxUploadBytes    = 100 << 20
	DefaultOAuthTicketTTL    = 10 * time.Minute
	DefaultPollIntervalImage = 2 * time.Second
	DefaultPollCeilingImage  = 60 * time.Second
	DefaultPollIntervalVideo = 3 * time.Second
	DefaultPollCeilingVideo  = 120 * time.Second
)

// Config is the full server configuration
type Config struct {
	Port          string
	PublicBaseURL string

	DB       DBConfig
	Storage  StorageConfig
	Platform PlatformConfig
	Pipeline PipelineConfig
	Redis    RedisConfig
	OAuth    OAuthConfig
}

// DBConfig holds the postgres connection settings
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// StorageConfig selects and configures the media stager
type StorageConfig struct {
	Backend       string
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3BaseURL     string
	S3Prefix      string
}

// PlatformConfig holds the platform REST API base URLs
type PlatformConfig struct {
	GraphAPIURL    string
	LinkedInAPIURL string
	XAPIURL        string
}

// PipelineConfig holds the publish pipeline tuning
type PipelineConfig struct {
	ImageInterval  time.Duration
	ImageCeiling   time.Duration
	VideoInterval  time.Duration
	VideoCeiling   time.Duration
	CleanupDelay   time.Duration
	Workers        int
	QueueSize      int
	MaxUploadBytes int
}

// RedisConfig holds the redis settings for OAuth tickets. An empty address
// selects the in-memory ticket store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// OAuthClient is one platform's OAuth application
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Scopes overrides the provider's default scopes when set
	Scopes []string
}

// Enabled reports whether the client has enough settings to start a flow
func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.RedirectURI != ""
}

// OAuthConfig holds the OAuth applications
type OAuthConfig struct {
	TicketTTL time.Duration
	Facebook  OAuthClient
	LinkedIn  OAuthClient
	X         OAuthClient
}

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvList splits a space or comma separated environment variable
func GetEnvList(key string) []string {
	return strings.FieldsFunc(GetEnv(key, ""), func(r rune) bool {
		return r == ' ' || r == ','
	})
}

// GetEnvInt retrieves an integer environment variable with a fallback value
func GetEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// GetEnvDuration retrieves a duration environment variable (e.g. "2s") with a fallback value
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
	}
	return d, nil
}

// Load builds the configuration from the environment
func Load() (*Config, error) {
	port := GetEnv(constants.EnvPort, DefaultPort)
	cfg := &Config{
		Port:          port,
		PublicBaseURL: GetEnv(constants.EnvPublicBaseURL, "http://localhost:"+port),
		DB: DBConfig{
			Host:     GetEnv(constants.EnvDBHost, ""),
			User:     GetEnv(constants.EnvDBUser, ""),
			Password: GetEnv(constants.EnvDBPassword, ""),
			Name:     GetEnv(constants.EnvDBName, ""),
			SSLMode:  GetEnv(constants.EnvDBSSLMode, "disable"),
		},
		Storage: StorageConfig{
			Backend:   GetEnv(constants.EnvMediaStorage, StorageLocal),
			LocalDir:  GetEnv(constants.EnvMediaLocalDir, DefaultMediaLocalDir),
			S3Bucket:  GetEnv(constants.EnvS3Bucket, ""),
			S3Region:  GetEnv(constants.EnvS3Region, ""),
			S3BaseURL: GetEnv(constants.EnvS3PublicBaseURL, ""),
			S3Prefix:  GetEnv(constants.EnvS3Prefix, "staging/"),
		},
		Platform: PlatformConfig{
			GraphAPIURL:    GetEnv(constants.EnvGraphAPIURL, DefaultGraphAPIURL),
			LinkedInAPIURL: GetEnv(constants.EnvLinkedInAPIURL, DefaultLinkedInAPIURL),
			XAPIURL:        GetEnv(constants.EnvXAPIURL, DefaultXAPIURL),
		},
		Redis: RedisConfig{
			Address:  GetEnv(constants.EnvRedisAddress, ""),
			Password: GetEnv(constants.EnvRedisPassword, ""),
		},
		OAuth: OAuthConfig{
			Facebook: OAuthClient{
				ClientID:     GetEnv(constants.EnvFacebookAppID, ""),
				ClientSecret: GetEnv(constants.EnvFacebookAppSecret, ""),
				RedirectURI:  GetEnv(constants.EnvFacebookRedirectURI, ""),
			},
			LinkedIn: OAuthClient{
				ClientID:     GetEnv(constants.EnvLinkedInClientID, ""),
				ClientSecret: GetEnv(constants.EnvLinkedInClientSecret, ""),
				RedirectURI:  GetEnv(constants.EnvLinkedInRedirectURI, ""),
				Scopes:       GetEnvList(constants.EnvLinkedInScopes),
			},
			X: OAuthClient{
				ClientID:     GetEnv(constants.EnvXClientID, ""),
				ClientSecret: GetEnv(constants.EnvXClientSecret, ""),
				RedirectURI:  GetEnv(constants.EnvXRedirectURI, ""),
				Scopes:       GetEnvList(constants.EnvXScopes),
			},
		},
	}
	cfg.Storage.PublicBaseURL = GetEnv(constants.EnvMediaPublicBaseURL, cfg.PublicBaseURL)

	var err error
	if cfg.DB.Port, err = GetEnvInt(constants.EnvDBPort, 0); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = GetEnvInt(constants.EnvRedisDB, 0); err != nil {
		return nil, err
	}
	if cfg.Pipeline.Workers, err = GetEnvInt(constants.EnvWorkerCount, DefaultWorkerCount); err != nil {
		return nil, err
	}
	if cfg.Pipeline.QueueSize, err = GetEnvInt(constants.EnvJobQueueSize, DefaultJobQueueSize); err != nil {
		return nil, err
	}
	if cfg.Pipeline.MaxUploadBytes, err = GetEnvInt(constants.EnvMaxUploadBytes, DefaultMaxUploadBytes); err != nil {
		return nil, err
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{constants.EnvPollIntervalImage, DefaultPollIntervalImage, &cfg.Pipeline.ImageInterval},
		{constants.EnvPollCeilingImage, DefaultPollCeilingImage, &cfg.Pipeline.ImageCeiling},
		{constants.EnvPollIntervalVideo, DefaultPollIntervalVideo, &cfg.Pipeline.VideoInterval},
		{constants.EnvPollCeilingVideo, DefaultPollCeilingVideo, &cfg.Pipeline.VideoCeiling},
		{constants.EnvCleanupDelay, 0, &cfg.Pipeline.CleanupDelay},
		{constants.EnvOAuthTicketTTL, DefaultOAuthTicketTTL, &cfg.OAuth.TicketTTL},
	}
	for _, d := range durations {
		if *d.dst, err = GetEnvDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the cross-field constraints of the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("%s is required for local media storage", constants.EnvMediaLocalDir)
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("%s is required for s3 media storage", constants.EnvS3Bucket)
		}
	default:
		return fmt.Errorf("unknown %s %q", constants.EnvMediaStorage, c.Storage.Backend)
	}
	if c.Pipeline.ImageInterval <= 0 || c.Pipeline.VideoInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%s must be at least 1", constants.EnvWorkerCount)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("%s must be at least 1", constants.EnvJobQueueSize)
	}
	return nil
}
