package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/adapters/collaborator"
	"github.com/target/mmk-media-jobs/internal/adapters/jobrunner"
	"github.com/target/mmk-media-jobs/internal/adapters/reaper"
	"github.com/target/mmk-media-jobs/internal/adapters/webhookrunner"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/job"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// WorkerConfig contains configuration for the job worker pool.
type WorkerConfig struct {
	Services ServiceContainer
	Config   config.WorkerConfig
	Logger   *slog.Logger
}

// RunWorker starts the job worker pool and blocks until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	registry, err := collaborator.FromPolicies(cfg.Services.Policies, cfg.Config.Simulate, cfg.Logger)
	if err != nil {
		return fmt.Errorf("build collaborators: %w", err)
	}
	lease, err := job.NewLeasePolicy(cfg.Config.Lease, cfg.Config.Heartbeat)
	if err != nil {
		return fmt.Errorf("lease policy: %w", err)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Broker:        cfg.Services.JobBroker,
		Lifecycle:     cfg.Services.Lifecycle,
		Collaborators: registry,
		LeasePolicy:   lease,
		Lanes:         cfg.Config.Lanes,
		Concurrency:   cfg.Config.Concurrency,
		Logger:        cfg.Logger,
		Metrics:       cfg.Services.Observability.MetricsSink,
	})
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}

	return runner.Run(ctx)
}

// DispatcherConfig contains configuration for the webhook delivery runner.
type DispatcherConfig struct {
	Services ServiceContainer
	Config   config.DispatcherConfig
	// HTTPClient overrides the client used to reach subscribers.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RunDispatcher starts the webhook delivery runner and blocks until ctx is cancelled.
func RunDispatcher(ctx context.Context, cfg DispatcherConfig) error {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Config.RequestTimeout}
	}

	runner, err := webhookrunner.NewRunner(webhookrunner.RunnerOptions{
		Broker:       cfg.Services.WebhookBroker,
		Settler:      cfg.Services.Dispatcher,
		HTTPClient:   client,
		Lease:        cfg.Config.Lease,
		Concurrency:  cfg.Config.Concurrency,
		PerHostRate:  cfg.Config.PerHostRate,
		PerHostBurst: cfg.Config.PerHostBurst,
		Logger:       cfg.Logger,
		Metrics:      cfg.Services.Observability.MetricsSink,
	})
	if err != nil {
		return fmt.Errorf("create webhook runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the reaper.
type ReaperConfig struct {
	Services ServiceContainer
	Config   config.ReaperConfig
	Logger   *slog.Logger
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Jobs:       cfg.Services.Repos.Jobs,
		Deliveries: cfg.Services.Repos.Deliveries,
		Brokers:    []core.Broker{cfg.Services.JobBroker, cfg.Services.WebhookBroker},
		Dispatcher: cfg.Services.Jobs,
		Lifecycle:  cfg.Services.Lifecycle,
		Config:     cfg.Config,
		Logger:     cfg.Logger,
		Metrics:    cfg.Services.Observability.MetricsSink,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}

func laneNames(lanes []model.Priority) []string {
	out := make([]string, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, string(l))
	}
	return out
}
