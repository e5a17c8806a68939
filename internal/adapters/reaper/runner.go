// Package reaper provides adapters for running the job reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
	"github.com/target/mmk-media-jobs/internal/service"
	"golang.org/x/sync/errgroup"
)

// Runner runs the reaper loop and, when metrics are enabled, reports broker queue depth
// on the same interval.
type Runner struct {
	reaper   *service.ReaperService
	brokers  []core.Broker
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs       core.JobRepository
	Deliveries core.DeliveryRepository
	Brokers    []core.Broker
	Dispatcher service.JobDispatcher
	Lifecycle  service.RetryAnnouncer
	Config     config.ReaperConfig
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Use NewReaperService instead of Must to allow error propagation
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:       opts.Jobs,
		Deliveries: opts.Deliveries,
		Brokers:    opts.Brokers,
		Dispatcher: opts.Dispatcher,
		Lifecycle:  opts.Lifecycle,
		Config:     opts.Config,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper:   reaper,
		brokers:  opts.Brokers,
		interval: opts.Config.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner", "brokers", len(r.brokers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := r.reaper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if r.metrics != nil && r.interval > 0 && len(r.brokers) > 0 {
		g.Go(func() error {
			r.reportDepthLoop(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) reportDepthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.ReportQueueDepth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ReportQueueDepth emits ready, delayed, leased and dead-letter gauges for every broker.
func (r *Runner) ReportQueueDepth(ctx context.Context) {
	for _, b := range r.brokers {
		stats, err := b.Stats(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.WarnContext(ctx, "queue stats failed", "queue", b.Name(), "error", err)
			}
			continue
		}
		metrics.EmitQueueDepth(r.metrics, b.Name(), stats.Ready, stats.Delayed, stats.Leased, stats.DeadLetter)
	}
}
