// This file is used to run database migrations
// How to run:
// go run cmd/migrate/main.go              # Run all pending migrations
// go run cmd/migrate/main.go -down        # Rollback all migrations
// go run cmd/migrate/main.go -steps 1     # Run one migration
// go run cmd/migrate/main.go -steps -1    # Rollback one migration
// go run cmd/migrate/main.go -force 1     # Force version 1
package main

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ucext/citizenconnect/config"
	"github.com/ucext/citizenconnect/internal/constants"
	"github.com/ucext/citizenconnect/internal/db"
	"github.com/ucext/citizenconnect/internal/db/migrations"
	"github.com/ucext/citizenconnect/internal/logger"
)

func main() {
	logger.InitializeAndConfigure()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using the environment")
	}

	port, err := config.GetEnvInt(constants.EnvDBPort, 0)
	if err != nil {
		logger.Fatal(err)
	}

	// Build database URL from env vars
	dbURL := db.Options{
		Host:     config.GetEnv(constants.EnvDBHost, ""),
		User:     config.GetEnv(constants.EnvDBUser, ""),
		Password: config.GetEnv(constants.EnvDBPassword, ""),
		DBName:   config.GetEnv(constants.EnvDBName, ""),
		Port:     port,
		SSLMode:  config.GetEnv(constants.EnvDBSSLMode, ""),
	}.URL()

	defaults := migrations.DefaultConfig()
	var (
		dbURLFlag = flag.String("db", "", "Database URL (optional, defaults to env vars)")
		migPath   = flag.String("path", defaults.MigrationsPath, "Path to migration files")
		down      = flag.Bool("down", false, "Roll back migrations")
		steps     = flag.Int("steps", 0, "Number of migrations to apply (up or down)")
		force     = flag.Int("force", -1, "Force a specific version")
		retries   = flag.Int("retries", defaults.RetryAttempts, "Number of connection retries")
		retryWait = flag.Duration("retry-wait", 3*time.Second, "Wait time between retries")
	)
	flag.Parse()

	// Use command line flag if provided, otherwise use env vars
	if *dbURLFlag != "" {
		dbURL = *dbURLFlag
	}

	service, err := migrations.NewMigrationService(migrations.Config{
		MigrationsPath: *migPath,
		DatabaseURL:    dbURL,
		RetryAttempts:  *retries,
		RetryDelay:     *retryWait,
	})
	if err != nil {
		logger.Fatalf("Failed to create migration service: %v", err)
	}

	// Handle force version
	if *force >= 0 {
		if err := service.Force(*force); err != nil {
			logger.Fatalf("Failed to force version %d: %v", *force, err)
		}
		logger.Infof("Successfully forced version to %d", *force)
		os.Exit(0)
	}

	// Handle steps
	if *steps != 0 {
		if err := service.Steps(*steps); err != nil {
			logger.Fatalf("Failed to apply %d steps: %v", *steps, err)
		}
		logger.Infof("Successfully applied %d steps", *steps)
		os.Exit(0)
	}

	// Handle up/down
	if *down {
		if err := service.Down(); err != nil {
			logger.Fatalf("Migration rollback failed: %v", err)
		}
	} else {
		if err := service.Up(); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
	}

	version, dirty, err := service.Version()
	if err != nil {
		logger.Warnf("Could not get final version: %v", err)
	} else {
		logger.Infof("Current migration version: %d (dirty: %v)", version, dirty)
	}
}
