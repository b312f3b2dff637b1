package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuflow/automation-api/config"
	"github.com/docuflow/automation-api/internal/adapters/jobevents"
	"github.com/docuflow/automation-api/internal/core"
	"github.com/docuflow/automation-api/internal/data"
	"github.com/docuflow/automation-api/internal/domain/model"
	"github.com/docuflow/automation-api/internal/notify"
	"github.com/docuflow/automation-api/internal/notify/webhook"
	"github.com/docuflow/automation-api/internal/observability/statsd"
	"github.com/docuflow/automation-api/internal/orchestrator"
	"github.com/docuflow/automation-api/internal/registry"
	"github.com/docuflow/automation-api/internal/service"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Registry *registry.Registry
	Jobs     *service.JobService
	Sweeper  *service.Sweeper
	Metrics  *statsd.Client
	Notifier *notify.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: nil switches the ledger to in-memory
	RedisClient redis.UniversalClient // Optional: nil disables status events
	Logger      *slog.Logger
}

// NewServices wires the application services from their adapters.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	metrics := buildMetrics(logger, cfg.Observability)
	notifier := buildFailureNotifier(logger, cfg.Notifier)
	ledger := buildLedger(deps.DB, cfg, logger)

	var events core.StatusPublisher
	if deps.RedisClient != nil {
		events = jobevents.NewPublisherWithChannel(deps.RedisClient, cfg.Redis.Channel)
	}

	reg := registry.New(registry.Options{})

	orch, err := orchestrator.New(orchestrator.Options{
		Registry: reg,
		Launcher: &orchestrator.ScriptLauncher{
			PythonBin:  cfg.Automation.PythonBin,
			ScriptsDir: cfg.Automation.ScriptsDir,
		},
		Ledger:     ledger,
		UploadsDir: cfg.Automation.UploadsDir,
		ResultsDir: cfg.Automation.ResultsDir,
		Logger:     logger,
		Metrics:    metrics,
		Events:     events,
		Notifier:   notifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create orchestrator: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Registry:     reg,
		Orchestrator: orch,
		Ledger:       ledger,
		Catalog:      model.DefaultCatalog(),
		ResultsDir:   cfg.Automation.ResultsDir,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	sweeper, err := service.NewSweeper(service.SweeperOptions{
		Registry: reg,
		Interval: cfg.Sweeper.Interval,
		TTL:      cfg.Sweeper.TTL,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create sweeper: %w", err)
	}

	return ServiceContainer{
		Registry: reg,
		Jobs:     jobs,
		Sweeper:  sweeper,
		Metrics:  metrics,
		Notifier: notifier,
	}, nil
}

func buildMetrics(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.StatsdEnabled,
		Address: cfg.StatsdAddr,
		Prefix:  cfg.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

func buildFailureNotifier(logger *slog.Logger, cfg config.NotifierConfig) *notify.Service {
	var sinks []notify.SinkRegistration
	if cfg.WebhookURL != "" {
		client, err := webhook.NewClient(webhook.Config{
			URL:        cfg.WebhookURL,
			FieldsExpr: cfg.FieldsExpr,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise webhook notifier", "error", err)
		} else {
			sinks = append(sinks, notify.SinkRegistration{Name: "webhook", Sink: client})
		}
	}
	return notify.NewService(notify.Options{
		Logger: logger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildLedger picks the Postgres ledger when a DB connection exists,
// otherwise an in-memory ledger (dev mode seeds unknown accounts).
//
//nolint:ireturn // the ledger port is the seam between dev and production wiring.
func buildLedger(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) core.CreditLedger {
	if db != nil {
		return data.NewLedgerRepo(db)
	}
	if cfg.IsDev && cfg.Automation.DevCredits > 0 {
		logger.Warn("using in-memory credit ledger with dev seeding",
			"dev_credits", cfg.Automation.DevCredits)
		return data.NewMemoryLedgerWithSeed(cfg.Automation.DevCredits)
	}
	logger.Warn("using in-memory credit ledger; balances do not survive restarts")
	return data.NewMemoryLedger(nil)
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, len(enabled)+1)

	var server *http.Server
	if enabled[config.ServiceModeHTTP] {
		server = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var sweeperDone <-chan struct{}
	if enabled[config.ServiceModeSweeper] && cfg.Services.Sweeper != nil {
		done := make(chan struct{})
		sweeperDone = done
		go func() {
			defer close(done)
			if runErr := cfg.Services.Sweeper.Run(serviceCtx); runErr != nil {
				select {
				case errCh <- fmt.Errorf("sweeper failed: %w", runErr):
				default:
					logger.Warn("dropping sweeper error", "error", runErr)
				}
			}
		}()
		logger.Info("background service started", "service", "sweeper")
	}

	return waitForShutdown(shutdownDeps{
		cancel:      cancel,
		errCh:       errCh,
		server:      server,
		sweeperDone: sweeperDone,
		metrics:     cfg.Services.Metrics,
		logger:      logger,
	})
}

type shutdownDeps struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	server      *http.Server
	sweeperDone <-chan struct{}
	metrics     *statsd.Client
	logger      *slog.Logger
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(deps shutdownDeps) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		deps.logger.Info("shutting down services...")
		deps.cancel()
		return gracefulStop(deps)
	case err := <-deps.errCh:
		deps.logger.Error("service error", "error", err)
		deps.cancel()
		if stopErr := gracefulStop(deps); stopErr != nil {
			deps.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(deps shutdownDeps) error {
	if deps.server != nil {
		// The service context is already cancelled at this point; the drain
		// deadline needs its own context.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  deps.server,
			Logger:  deps.logger,
		}); err != nil {
			return err
		}
	}

	if deps.sweeperDone != nil {
		select {
		case <-deps.sweeperDone:
			deps.logger.Info("sweeper stopped")
		case <-time.After(shutdownWaitTimeout):
			deps.logger.Warn("timeout waiting for sweeper to stop")
		}
	}

	if deps.metrics != nil {
		if err := deps.metrics.Close(); err != nil {
			deps.logger.Warn("close statsd client", "error", err)
		}
	}
	return nil
}
