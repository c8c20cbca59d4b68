package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ucext/citizenconnect/config"
	"github.com/ucext/citizenconnect/internal/api/middleware"
	"github.com/ucext/citizenconnect/internal/db"
	"github.com/ucext/citizenconnect/internal/db/repos"
	"github.com/ucext/citizenconnect/internal/events"
	"github.com/ucext/citizenconnect/internal/logger"
	"github.com/ucext/citizenconnect/internal/metrics"
	"github.com/ucext/citizenconnect/internal/oauth"
	"github.com/ucext/citizenconnect/internal/pipeline"
	"github.com/ucext/citizenconnect/internal/platform"
	"github.com/ucext/citizenconnect/internal/services"
	"github.com/ucext/citizenconnect/internal/staging"
	"github.com/ucext/citizenconnect/pkg/api/v1/handlers"
	"github.com/ucext/citizenconnect/pkg/api/v1/routes"
)

// platformTimeout bounds one call to a platform API
const platformTimeout = 30 * time.Second

// shutdownTimeout bounds draining the workers and pending cleanups
const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using the environment")
	}
	logger.InitializeAndConfigure()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	database, err := db.New(db.Options{
		Host:     cfg.DB.Host,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		Port:     cfg.DB.Port,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	stager, mediaDir, err := newStager(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: platformTimeout}
	registry := platform.NewRegistry(platform.Endpoints{
		GraphAPIURL:    cfg.Platform.GraphAPIURL,
		LinkedInAPIURL: cfg.Platform.LinkedInAPIURL,
		XAPIURL:        cfg.Platform.XAPIURL,
	}, httpClient)

	tickets, err := newTicketStore(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	jobRepo := repos.NewJobRepository(database)
	accountRepo := repos.NewAccountRepository(database)

	broker := events.NewBroker(events.DefaultRetention)
	accountService := services.NewAccountService(accountRepo, registry, m)
	pipe := pipeline.New(jobRepo, accountService, registry, stager, broker, pipeline.Options{
		Policies: pipeline.Policies{
			Image: pipeline.Policy{Interval: cfg.Pipeline.ImageInterval, Ceiling: cfg.Pipeline.ImageCeiling},
			Video: pipeline.Policy{Interval: cfg.Pipeline.VideoInterval, Ceiling: cfg.Pipeline.VideoCeiling},
		},
		CleanupDelay: cfg.Pipeline.CleanupDelay,
		Metrics:      m,
	})
	pool := services.NewWorkerPool(jobRepo, pipe, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, m)
	jobService := services.NewJobService(jobRepo, accountService, stager, pipe, pool, m)
	flows := oauth.NewFlows(cfg.OAuth, oauth.DefaultEndpoints(cfg.Platform.GraphAPIURL), tickets, httpClient)
	connectionService := services.NewConnectionService(flows, accountRepo, registry)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	broker.Start(workerCtx)
	pool.Start(workerCtx)

	// Settle what a previous process left behind before taking new work
	if err := jobService.RecoverStaleJobs(ctx); err != nil {
		stopWorkers()
		pool.Wait()
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             cfg.Pipeline.MaxUploadBytes + 1<<20,
		// event streams stay open until the job settles
		IdleTimeout: 2 * time.Minute,
	})
	app.Use(middleware.Logger())
	routes.RegisterRoutes(app,
		handlers.NewJobHandler(jobService, broker, cfg.Pipeline.MaxUploadBytes),
		handlers.NewAccountHandler(accountService),
		handlers.NewOAuthHandler(connectionService),
		routes.Options{MediaDir: mediaDir},
	)

	listenErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s (media storage: %s, workers: %d)",
			cfg.Port, stager.Name(), cfg.Pipeline.Workers)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-listenErr:
		stopWorkers()
		pool.Wait()
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}

	// Running jobs fail as canceled. Jobs still queued stay staged and are
	// requeued on the next start.
	stopWorkers()
	pool.Wait()
	if err := pipe.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to flush pending cleanups: %w", err)
	}

	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

// newStager builds the configured stager. The media directory is returned
// for the local stager so the server can serve it.
func newStager(ctx context.Context, cfg config.StorageConfig) (staging.Stager, string, error) {
	switch cfg.Backend {
	case config.StorageS3:
		s, err := staging.NewS3Stager(ctx, staging.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3BaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create s3 stager: %w", err)
		}
		return s, "", nil
	default:
		s, err := staging.NewLocalStager(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

// newTicketStore uses redis when an address is configured so OAuth flows
// survive restarts and work across replicas
func newTicketStore(cfg *config.Config) (oauth.TicketStore, error) {
	if cfg.Redis.Address == "" {
		logger.Info("REDIS_ADDRESS not set, keeping OAuth state in memory")
		return oauth.NewMemoryTicketStore(cfg.OAuth.TicketTTL), nil
	}
	client, err := oauth.NewRedisClient(oauth.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return oauth.NewRedisTicketStore(client, cfg.OAuth.TicketTTL), nil
}
