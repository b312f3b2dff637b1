package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow/automation-api/config"
	"github.com/docuflow/automation-api/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	cfgPtr := &cfg

	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, cfgPtr)

	db, redisClient, err := initInfrastructure(cfgPtr, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close database failed", "error", cerr)
			}
		}()
	}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfgPtr,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfgPtr,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting automation service",
		"services", cfg.Services,
		"uploads_dir", cfg.Automation.UploadsDir,
		"results_dir", cfg.Automation.ResultsDir,
		"scripts_dir", cfg.Automation.ScriptsDir,
		"ledger_db", cfg.Postgres.Enabled,
		"status_events", cfg.Redis.Enabled,
	)
}

// initInfrastructure connects the optional shared dependencies. Both the
// ledger database and the Redis event stream are enabled by config flags;
// disabled ones come back nil and the bootstrap falls back accordingly.
//
//nolint:ireturn // redis.UniversalClient keeps the client topology flexible.
func initInfrastructure(
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	var db *sql.DB
	if cfg.Postgres.Enabled {
		conn, err := bootstrap.ConnectDB(cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
		db = conn
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := bootstrap.ConnectRedis(cfg.Redis, logger)
		if err != nil {
			if db != nil {
				if cerr := db.Close(); cerr != nil {
					logger.Error("close database after redis connect failure", "error", cerr)
				}
			}
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
	}

	return db, redisClient, nil
}
