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
	"golang.org/x/sync/errgroup"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/adapters/listener"
	"github.com/devLink-Developer/chatbot-camping/internal/adapters/processlock"
	"github.com/devLink-Developer/chatbot-camping/internal/adapters/queueworker"
	schedrunner "github.com/devLink-Developer/chatbot-camping/internal/adapters/scheduler"
	"github.com/devLink-Developer/chatbot-camping/internal/adapters/whatsapp"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/observability/statsd"
	"github.com/devLink-Developer/chatbot-camping/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Messages *data.MessageRepo
	Sessions *data.SessionRepo
	Contacts *data.ContactRepo
	Configs  *data.JobConfigRepo
	Accounts *service.AccountService
	Content  *service.ContentService
	Inbound  *service.InboundService
	Outbound *service.OutboundService
	Registry *service.TaskRegistry
	Engine   *service.JobEngine
	Client   core.MessagingClient
	Metrics  *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB          *sql.DB
	MessageRepo *data.MessageRepo
	SessionRepo *data.SessionRepo
	ContactRepo *data.ContactRepo
	ContentRepo *data.ContentRepo
	AccountRepo *data.AccountRepo
	JobConfigs  *data.JobConfigRepo
	CacheRepo   *data.RedisCacheRepo
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient) *serviceRepositories {
	repos := &serviceRepositories{
		DB:          db,
		MessageRepo: data.NewMessageRepo(db),
		SessionRepo: data.NewSessionRepo(db),
		ContactRepo: data.NewContactRepo(db),
		ContentRepo: data.NewContentRepo(db),
		AccountRepo: data.NewAccountRepo(db),
		JobConfigs:  data.NewJobConfigRepo(db),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

// buildMetrics configures the StatsD sink when metrics are enabled.
func buildMetrics(logger *slog.Logger, cfg config.MetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "chatbot",
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// NewServices wires repositories, domain services, and adapters.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps and config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := deps.Config
	metrics := buildMetrics(logger, cfg.Metrics)
	repos := buildRepositories(deps.DB, deps.RedisClient)

	accounts, err := service.NewAccountService(service.AccountServiceOptions{
		Repo:     repos.AccountRepo,
		Fallback: cfg.WhatsApp,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build account service: %w", err)
	}

	var cache core.CacheRepository
	if repos.CacheRepo != nil {
		cache = repos.CacheRepo
	}
	content, err := service.NewContentService(service.ContentServiceOptions{
		Repo:   repos.ContentRepo,
		Cache:  cache,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build content service: %w", err)
	}

	client, err := whatsapp.NewClient(whatsapp.ClientOptions{
		Accounts: accounts,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build whatsapp client: %w", err)
	}

	inbound, err := service.NewInboundService(service.InboundServiceOptions{
		Messages: repos.MessageRepo,
		Sessions: repos.SessionRepo,
		Contacts: repos.ContactRepo,
		Content:  content,
		Accounts: accounts,
		Client:   client,
		Response: cfg.Response,
		Session:  cfg.Session,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build inbound service: %w", err)
	}

	outbound, err := service.NewOutboundService(service.OutboundServiceOptions{
		Messages: repos.MessageRepo,
		Client:   client,
		Queue:    cfg.Queue,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build outbound service: %w", err)
	}

	registry := service.NewTaskRegistry()
	registerBuiltinTasks(registry, builtinTaskDeps{
		Messages: repos.MessageRepo,
		Sessions: repos.SessionRepo,
		Session:  cfg.Session,
	})

	engine, err := service.NewJobEngine(service.JobEngineOptions{
		Configs:    repos.JobConfigs,
		Registry:   registry,
		Logger:     logger,
		Metrics:    metrics,
		StaleAfter: cfg.Scheduler.StaleAfter,
		NextRun:    nextRunFunc(logger),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job engine: %w", err)
	}

	return ServiceContainer{
		Messages: repos.MessageRepo,
		Sessions: repos.SessionRepo,
		Contacts: repos.ContactRepo,
		Configs:  repos.JobConfigs,
		Accounts: accounts,
		Content:  content,
		Inbound:  inbound,
		Outbound: outbound,
		Registry: registry,
		Engine:   engine,
		Client:   client,
		Metrics:  metrics,
	}, nil
}

// nextRunFunc adapts trigger computation for the engine's post-run reschedule.
func nextRunFunc(logger *slog.Logger) func(cfg *model.JobConfig, after time.Time) *time.Time {
	return func(cfg *model.JobConfig, after time.Time) *time.Time {
		next, err := schedrunner.NextFire(cfg, after)
		if err != nil {
			if logger != nil {
				logger.Warn("compute next run failed", "config_id", cfg.ID, "error", err)
			}
			return nil
		}
		return next
	}
}

// RunQueueWorker starts the message queue worker loop.
func RunQueueWorker(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	runner, err := queueworker.NewRunner(queueworker.RunnerOptions{
		DB:       cfg.DB,
		Messages: cfg.Services.Messages,
		Inbound:  cfg.Services.Inbound,
		Outbound: cfg.Services.Outbound,
		Config:   cfg.Config.Queue,
		Logger:   cfg.Logger,
		Metrics:  cfg.Services.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create queue worker: %w", err)
	}
	return runner.Run(ctx)
}

// RunScheduler starts the job scheduler behind the process lock. When another
// live process already owns the lock this returns nil so the remaining
// services keep running.
func RunScheduler(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lock, err := processlock.New(processlock.Options{
		DB:     cfg.DB,
		Path:   cfg.Config.Scheduler.LockPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create scheduler lock: %w", err)
	}
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, processlock.ErrHeldElsewhere) {
			logger.WarnContext(ctx, "scheduler lock held by another process; scheduler not started")
			return nil
		}
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	defer lock.Release(context.WithoutCancel(ctx))

	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		Configs: cfg.Services.Configs,
		Engine:  cfg.Services.Engine,
		Config:  cfg.Config.Scheduler,
		Logger:  logger,
		Metrics: cfg.Services.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	refresh, err := listener.New(listener.Options{
		Waiter:    cfg.Services.Configs,
		Refresher: runner,
		Config:    cfg.Config.Scheduler,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create refresh listener: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return runner.Run(groupCtx) })
	group.Go(func() error { return refresh.Run(groupCtx) })
	return group.Wait()
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))
	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}
	return handles
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		{
			mode:  config.ServiceModeQueue,
			name:  "queue worker",
			start: func(ctx context.Context) error { return RunQueueWorker(ctx, deps.cfg) },
		},
		{
			mode:  config.ServiceModeScheduler,
			name:  "scheduler",
			start: func(ctx context.Context) error { return RunScheduler(ctx, deps.cfg) },
		},
	}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	httpServer := startHTTPServerIfEnabled(deps)
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		logger:      logger,
		backgrounds: backgrounds,
		metrics:     cfg.Services.Metrics,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
	metrics     *statsd.Client
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(shutdownCtx, cfg.httpServer, cfg.logger); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("close statsd client failed", "error", err)
		}
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
