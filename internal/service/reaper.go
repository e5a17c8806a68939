package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	obserrors "github.com/target/mmk-media-jobs/internal/observability/errors"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
)

// JobDispatcher re-enqueues jobs. Implemented by JobService.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *model.Job, delay time.Duration) (*model.Job, error)
}

// RetryAnnouncer decides retry delays and announces terminal jobs. Implemented by JobLifecycle.
type RetryAnnouncer interface {
	Announcer
	RetryDelay(job *model.Job) time.Duration
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Jobs       core.JobRepository      // Required
	Deliveries core.DeliveryRepository // Optional: enables delivery retention
	Brokers    []core.Broker           // Brokers whose expired leases are requeued
	Dispatcher JobDispatcher           // Required
	Lifecycle  RetryAnnouncer          // Required
	Config     config.ReaperConfig     // Required: reaper configuration
	Logger     *slog.Logger            // Optional: structured logger
	Metrics    statsd.Sink             // Optional: metrics sink (StatsD-compatible)
	Now        func() time.Time        // Optional
}

// ReaperService repairs drift between the job store and the brokers and enforces retention.
//
// Each pass:
// - requeues broker items whose worker lease expired,
// - reclassifies PROCESSING jobs whose database lease expired (retry or fail),
// - re-enqueues PENDING jobs that never reached a broker,
// - deletes terminal jobs and delivery attempts past retention.
type ReaperService struct {
	jobs       core.JobRepository
	deliveries core.DeliveryRepository
	brokers    []core.Broker
	dispatcher JobDispatcher
	lifecycle  RetryAnnouncer
	config     config.ReaperConfig
	logger     *slog.Logger
	metrics    statsd.Sink
	now        func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("JobDispatcher is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("RetryAnnouncer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"pending_max_age", opts.Config.PendingMaxAge,
		"job_retention", opts.Config.JobRetention,
		"delivery_retention", opts.Config.DeliveryRetention,
	)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		jobs:       opts.Jobs,
		deliveries: opts.Deliveries,
		brokers:    opts.Brokers,
		dispatcher: opts.Dispatcher,
		lifecycle:  opts.Lifecycle,
		config:     opts.Config,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)

	// Spread passes of instances that started together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	operation string
}

// RunOnce performs a single maintenance pass. Steps run independently; their errors are joined.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := s.now()
	steps := []cleanupStep{
		{fn: s.requeueExpiredLeases, operation: "requeue_leases"},
		{fn: s.reclaimExpiredJobs, operation: "reclaim_jobs"},
		{fn: s.redispatchStalePending, operation: "redispatch_pending"},
		{fn: s.deleteTerminalJobs, operation: "delete_jobs"},
		{fn: s.deleteOldDeliveries, operation: "delete_deliveries"},
	}

	var (
		errs               []error
		total              int64
		allContextCanceled = true
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		total += count
		s.emitCleanupOperationMetric(step.operation, count, suppressContextCancellation(err))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.operation, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	joined := errors.Join(errs...)
	s.emitCleanupMetrics(total, suppressContextCancellation(joined), s.now().Sub(start))

	if joined == nil {
		return nil
	}
	if allContextCanceled {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", joined)
}

func (s *ReaperService) requeueExpiredLeases(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, b := range s.brokers {
		n, err := b.RequeueExpired(ctx, s.config.BatchSize)
		total += int64(n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "requeued expired broker leases", "queue", b.Name(), "count", n)
		}
	}
	return total, errors.Join(errs...)
}

// reclaimExpiredJobs treats expired database leases as transient failures. Jobs with budget left
// go back on their lane after the retry delay; exhausted ones are announced as FAILED.
func (s *ReaperService) reclaimExpiredJobs(ctx context.Context) (int64, error) {
	var total int64
	for {
		jobs, err := s.jobs.ReclaimExpired(ctx, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		if len(jobs) == 0 {
			return total, nil
		}
		total += int64(len(jobs))
		for _, job := range jobs {
			switch job.Status {
			case model.JobStatusRetrying:
				if _, err := s.dispatcher.Dispatch(ctx, job, s.lifecycle.RetryDelay(job)); err != nil {
					// The broker item requeued by requeueExpiredLeases still carries the job.
					s.logger.WarnContext(ctx, "re-enqueue reclaimed job failed", "job_id", job.ID, "error", err)
				}
			case model.JobStatusFailed:
				s.lifecycle.Announce(ctx, job)
			}
		}
		if len(jobs) < s.config.BatchSize {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// redispatchStalePending enqueues PENDING jobs whose submission never reached the broker.
// One batch per pass, so a broker outage is not retried in a tight loop.
func (s *ReaperService) redispatchStalePending(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.PendingMaxAge)
	jobs, err := s.jobs.ListStalePending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	var (
		count int64
		errs  []error
	)
	for _, job := range jobs {
		if _, err := s.dispatcher.Dispatch(ctx, job, 0); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		count++
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "re-enqueued stale pending jobs", "count", count, "max_age", s.config.PendingMaxAge)
	}
	return count, errors.Join(errs...)
}

func (s *ReaperService) deleteTerminalJobs(ctx context.Context) (int64, error) {
	if s.config.JobRetention <= 0 {
		return 0, nil
	}
	total, err := s.deleteInBatches(ctx, s.now().Add(-s.config.JobRetention), s.jobs.DeleteTerminalBefore)
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old terminal jobs", "count", total, "retention", s.config.JobRetention)
	}
	return total, err
}

func (s *ReaperService) deleteOldDeliveries(ctx context.Context) (int64, error) {
	if s.deliveries == nil || s.config.DeliveryRetention <= 0 {
		return 0, nil
	}
	total, err := s.deleteInBatches(ctx, s.now().Add(-s.config.DeliveryRetention), s.deliveries.DeleteBefore)
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old webhook deliveries", "count", total, "retention", s.config.DeliveryRetention)
	}
	return total, err
}

// deleteInBatches loops until a batch deletes nothing.
func (s *ReaperService) deleteInBatches(
	ctx context.Context,
	cutoff time.Time,
	del func(context.Context, time.Time, int) (int64, error),
) (int64, error) {
	var total int64
	for {
		count, err := del(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) emitCleanupMetrics(total int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if total == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.items_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
