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
	"github.com/target/mmk-media-jobs/config"
	redisadapter "github.com/target/mmk-media-jobs/internal/adapters/redis"
	"github.com/target/mmk-media-jobs/internal/data"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
	"github.com/target/mmk-media-jobs/internal/observability/notify/slack"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
	"github.com/target/mmk-media-jobs/internal/ports"
	"github.com/target/mmk-media-jobs/internal/service"
	"github.com/target/mmk-media-jobs/internal/service/failurenotifier"
	"github.com/target/mmk-media-jobs/internal/service/notification"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Lifecycle     *service.JobLifecycle
	Webhooks      *service.WebhookService
	Dispatcher    *service.WebhookDispatcher
	Verifier      ports.TokenVerifier
	Progress      *redisadapter.ProgressHub
	JobBroker     *redisadapter.Broker
	WebhookBroker *redisadapter.Broker
	Policies      model.PolicyTable
	Repos         Repositories
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil unless StatsD emission is enabled.
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
	Notifications   *notification.Service
}

// Repositories groups data adapters backing service ports; no business rules here.
type Repositories struct {
	Jobs        *data.JobRepo
	Webhooks    *data.WebhookRepo
	Deliveries  *data.DeliveryRepo
	Idempotency *data.IdempotencyRepo
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
		Notifications:   buildCompletionNotifier(obsLogger, cfg.Completion),
	}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			GlobalTags: cfg.Metrics.Tags,
			Logger:     obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.MetricsSink = client
		}
	}

	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger.With("component", "failure_notifier")

	if !cfg.Enabled || !cfg.Slack.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	client, err := slack.NewClient(slack.Config{
		WebhookURL:     cfg.Slack.WebhookURL,
		Channel:        cfg.Slack.Channel,
		Username:       cfg.Slack.Username,
		Timeout:        cfg.Timeout,
		RetryLimit:     cfg.RetryLimit,
		AssetURLPrefix: cfg.Slack.SiteURLPrefix,
	})
	if err != nil {
		baseLogger.Error("failed to initialise slack notifier", "error", err)
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger,
		Sinks:  []failurenotifier.SinkRegistration{{Name: "slack", Sink: client}},
	})
}

// buildCompletionNotifier sends completion notices to the email collaborator when an
// endpoint is configured, and always to the log.
func buildCompletionNotifier(logger *slog.Logger, cfg config.CompletionNotifyConfig) *notification.Service {
	sinks := []notification.SinkRegistration{
		{Name: "log", Sink: notification.LogSink{Logger: logger}},
	}

	if cfg.Endpoint != "" {
		sink, err := notification.NewHTTPSink(notification.HTTPSinkConfig{
			Endpoint:     cfg.Endpoint,
			Timeout:      cfg.Timeout,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		})
		if err != nil {
			logger.Error("failed to initialise email collaborator sink", "error", err)
		} else {
			sinks = append(sinks, notification.SinkRegistration{Name: "email", Sink: sink})
		}
	}

	return notification.NewService(notification.Options{
		Logger:       logger.With("component", "completion_notifier"),
		Sinks:        sinks,
		AssetBaseURL: cfg.AssetBaseURL,
		DashboardURL: cfg.DashboardURL,
		Timeout:      cfg.Timeout,
	})
}

// BuildBrokers creates the job broker and the webhook delivery broker.
func BuildBrokers(client redis.UniversalClient, logger *slog.Logger) (*redisadapter.Broker, *redisadapter.Broker, error) {
	jobs, err := redisadapter.NewBroker(client, redisadapter.BrokerOptions{
		Namespace: redisadapter.NamespaceJobs,
		Lanes:     laneNames(model.Lanes()),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("job broker: %w", err)
	}
	hooks, err := redisadapter.NewBroker(client, redisadapter.BrokerOptions{
		Namespace: redisadapter.NamespaceWebhooks,
		Lanes:     []string{webhook.Lane},
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("webhook broker: %w", err)
	}
	return jobs, hooks, nil
}

// LoadPolicies returns the policy table from POLICY_FILE, or the built-in defaults.
func LoadPolicies(cfg *config.AppConfig) (model.PolicyTable, error) {
	if cfg == nil || cfg.PolicyFile == "" {
		return model.DefaultPolicies(), nil
	}
	policies, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policies from %s: %w", cfg.PolicyFile, err)
	}
	return policies, nil
}

// BuildRepositories builds the repositories backing service ports.
func BuildRepositories(cfg *config.AppConfig, db *sql.DB, client redis.UniversalClient, logger *slog.Logger) (Repositories, error) {
	sealer, err := CreateSealer(cfg.EncryptionKey, cfg.IsDev, logger)
	if err != nil {
		return Repositories{}, err
	}
	tp := data.RealTimeProvider{}
	return Repositories{
		Jobs:        data.NewJobRepo(db, data.RepoConfig{}),
		Webhooks:    data.NewWebhookRepo(db, sealer, tp),
		Deliveries:  data.NewDeliveryRepo(db, tp),
		Idempotency: data.NewIdempotencyRepo(client, 0),
	}, nil
}

// NewServices wires repositories, brokers, business services and the token verifier.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	svcs, err := NewCoreServices(deps)
	if err != nil {
		return ServiceContainer{}, err
	}
	svcs.Verifier, err = BuildTokenVerifier(ctx, deps.Config.Auth, deps.Logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	return svcs, nil
}

// NewCoreServices wires everything except authentication. Operator tooling uses it directly.
func NewCoreServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	policies, err := LoadPolicies(cfg)
	if err != nil {
		return ServiceContainer{}, err
	}
	repos, err := BuildRepositories(cfg, deps.DB, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	jobBroker, hookBroker, err := BuildBrokers(deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	observability := buildObservability(logger, cfg.Observability)
	progress := redisadapter.NewProgressHub(deps.RedisClient, logger)

	dispatcher, err := service.NewWebhookDispatcher(service.WebhookDispatcherOptions{
		Repo:       repos.Webhooks,
		Deliveries: repos.Deliveries,
		Broker:     hookBroker,
		Metrics:    observability.MetricsSink,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("webhook dispatcher: %w", err)
	}

	lifecycle, err := service.NewJobLifecycle(service.JobLifecycleOptions{
		Repo:            repos.Jobs,
		Broker:          jobBroker,
		Policies:        policies,
		Webhooks:        dispatcher,
		Notifications:   observability.Notifications,
		FailureNotifier: observability.FailureNotifier,
		Progress:        progress,
		Metrics:         observability.MetricsSink,
		Logger:          logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job lifecycle: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:        repos.Jobs,
		Broker:      jobBroker,
		Policies:    policies,
		Idempotency: repos.Idempotency,
		Announcer:   lifecycle,
		Metrics:     observability.MetricsSink,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}

	webhooks, err := service.NewWebhookService(service.WebhookServiceOptions{
		Repo:       repos.Webhooks,
		Deliveries: repos.Deliveries,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("webhook service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Lifecycle:     lifecycle,
		Webhooks:      webhooks,
		Dispatcher:    dispatcher,
		Progress:      progress,
		JobBroker:     jobBroker,
		WebhookBroker: hookBroker,
		Policies:      policies,
		Repos:         repos,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

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
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:      deps.cfg.Config,
		Services:    deps.cfg.Services,
		DB:          deps.cfg.DB,
		RedisClient: deps.cfg.RedisClient,
		Logger:      deps.logger,
		ErrCh:       deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
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

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
		return nil
	}
	appCfg := deps.cfg.Config
	services := deps.cfg.Services
	return []backgroundService{
		{
			mode: config.ServiceModeWorker,
			name: "job worker",
			start: func(ctx context.Context) error {
				return RunWorker(ctx, WorkerConfig{Services: services, Config: appCfg.Worker, Logger: deps.logger})
			},
		},
		{
			mode: config.ServiceModeDispatcher,
			name: "webhook dispatcher",
			start: func(ctx context.Context) error {
				return RunDispatcher(ctx, DispatcherConfig{Services: services, Config: appCfg.Dispatcher, Logger: deps.logger})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{Services: services, Config: appCfg.Reaper, Logger: deps.logger})
			},
		},
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
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

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		notifications:   cfg.Services.Observability.Notifications,
		alerts:          cfg.Services.Observability.FailureNotifier,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	notifications   *notification.Service
	alerts          *failurenotifier.Service
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops accepting requests, then cancels workers and waits for them.
// Workers cancelled mid-job hand their jobs back as RETRYING without spending a retry;
// a worker that dies instead leaves its lease to the reaper.
func gracefulStop(cfg shutdownConfig) error {
	var httpErr error
	if cfg.httpServer != nil {
		timeout := cfg.shutdownTimeout
		if timeout <= 0 {
			timeout = shutdownWaitTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), timeout)
		defer cancel()

		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
	}

	cfg.cancel()
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.notifications != nil {
		cfg.notifications.Wait()
	}
	cfg.alerts.Wait()

	return httpErr
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
