// Package jobrunner runs media jobs: it reserves work items from the broker, claims the job,
// executes the collaborator for the job type and records the outcome.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/job"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
	"github.com/target/mmk-media-jobs/internal/service"
)

const (
	defaultLease     = 30 * time.Second
	defaultHeartbeat = 10 * time.Second
	// fallbackTimeout applies to jobs persisted without a timeout.
	fallbackTimeout  = time.Hour
	// finishTimeout bounds outcome recording after the runner context is gone.
	finishTimeout    = 15 * time.Second
	reserveBackoff   = time.Second
)

// Lifecycle is the part of service.JobLifecycle the runner drives.
type Lifecycle interface {
	Begin(ctx context.Context, lease *core.Lease, workerID string, leaseFor time.Duration) (*model.Job, error)
	Heartbeat(ctx context.Context, lease *core.Lease, jobID, workerID string, leaseFor time.Duration) (core.HeartbeatResult, error)
	ReportProgress(ctx context.Context, job *model.Job, percent int, message string)
	Finish(ctx context.Context, lease *core.Lease, job *model.Job, workerID string, out model.Outcome, started time.Time) (*model.Job, error)
	Release(ctx context.Context, lease *core.Lease, job *model.Job, workerID string) error
}

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Broker        core.Broker               // Required
	Lifecycle     Lifecycle                 // Required
	Collaborators core.CollaboratorRegistry // Required

	// Notifier fans broker wakeups out to workers; defaults to one built over Broker.
	Notifier job.Notifier
	// LeasePolicy defaults to a 30s lease renewed every 10s.
	LeasePolicy *job.LeasePolicy

	Lanes       []model.Priority // drain order; defaults to model.Lanes()
	Concurrency int              // number of worker goroutines; defaults to 1
	WorkerID    string           // defaults to <hostname>-<uuid>

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner pulls work items and executes them with the registered collaborators.
type Runner struct {
	broker        core.Broker
	lifecycle     Lifecycle
	collaborators core.CollaboratorRegistry
	notifier      job.Notifier
	ownsNotifier  bool
	lease         *job.LeasePolicy
	lanes         []string
	workers       int
	workerID      string
	logger        *slog.Logger
	metrics       statsd.Sink
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// NewRunner validates options and constructs a job runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("lifecycle is required")
	}
	if opts.Collaborators == nil {
		return nil, errors.New("collaborator registry is required")
	}

	lease := opts.LeasePolicy
	if lease == nil {
		var err error
		if lease, err = job.NewLeasePolicy(defaultLease, defaultHeartbeat); err != nil {
			return nil, err
		}
	}

	lanes := opts.Lanes
	if len(lanes) == 0 {
		lanes = model.Lanes()
	}
	laneNames := make([]string, 0, len(lanes))
	for _, p := range lanes {
		if !p.Valid() {
			return nil, fmt.Errorf("invalid lane %q", p)
		}
		laneNames = append(laneNames, string(p))
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	r := &Runner{
		broker:        opts.Broker,
		lifecycle:     opts.Lifecycle,
		collaborators: opts.Collaborators,
		notifier:      opts.Notifier,
		lease:         lease,
		lanes:         laneNames,
		workers:       workers,
		workerID:      workerID,
		logger:        resolveLogger(opts.Logger).With("component", "job_runner", "worker_id", workerID),
		metrics:       opts.Metrics,
	}
	if r.notifier == nil {
		n, err := job.NewNotifier(job.NotifierOptions{Waiter: opts.Broker})
		if err != nil {
			return nil, fmt.Errorf("build notifier: %w", err)
		}
		r.notifier = n
		r.ownsNotifier = true
	}
	return r, nil
}

// WorkerID identifies this runner in job leases.
func (r *Runner) WorkerID() string { return r.workerID }

// Run starts worker goroutines and processes work until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"lanes", r.lanes,
		"workers", r.workers,
		"lease", r.lease.Lease(),
	)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.notifier.Subscribe(r.broker.Name())
	defer unsub()
	if r.ownsNotifier {
		defer r.notifier.StopAll()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		if err := r.RunOnce(ctx); err != nil {
			if errors.Is(err, core.ErrNoWork) {
				if !r.waitForNotify(ctx, notify) {
					return nil
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			// Broker hiccups are not fatal: back off and try again.
			r.logger.WarnContext(ctx, "reserve work item failed", "error", err)
			if !sleepCtx(ctx, reserveBackoff) {
				return nil
			}
		}
	}
	return nil
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		if !ok {
			// Notifier stopped; fall back to polling.
			return sleepCtx(ctx, reserveBackoff)
		}
		return true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunOnce reserves and processes at most one work item. It returns core.ErrNoWork when
// nothing is due.
func (r *Runner) RunOnce(ctx context.Context) error {
	lease, err := r.broker.Reserve(ctx, r.lanes, r.lease.Lease())
	if err != nil {
		if errors.Is(err, core.ErrNoWork) {
			return err
		}
		return fmt.Errorf("reserve: %w", err)
	}
	r.processItem(ctx, lease)
	return nil
}

func (r *Runner) processItem(ctx context.Context, lease *core.Lease) {
	started := time.Now()
	j, err := r.lifecycle.Begin(ctx, lease, r.workerID, r.lease.Lease())
	if errors.Is(err, service.ErrItemSkipped) {
		return
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "begin job failed", "item_id", lease.ID, "error", err)
		return
	}

	logger := r.logger.With("job_id", j.ID, "job_type", j.Type, "attempt", j.RetryCount+1)
	logger.InfoContext(ctx, "job started")

	out, stopped := r.execute(ctx, j, lease, logger)

	// The outcome is recorded even when the runner is shutting down.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if stopped {
		if err := r.lifecycle.Release(finishCtx, lease, j, r.workerID); err != nil {
			logger.WarnContext(ctx, "release job on shutdown failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "job released on shutdown", "duration", time.Since(started))
		return
	}
	updated, err := r.lifecycle.Finish(finishCtx, lease, j, r.workerID, out, started)
	if err != nil {
		logger.WarnContext(ctx, "record job outcome failed", "outcome", out.Status, "error", err)
		return
	}
	logger.InfoContext(ctx, "job attempt finished",
		"outcome", out.Status,
		"status", updated.Status,
		"duration", time.Since(started),
	)
}

// execute runs the collaborator under the job's timeout while a heartbeat keeps the lease
// alive and watches for cancel requests. stopped reports that the runner shut down before
// the attempt produced an outcome.
func (r *Runner) execute(ctx context.Context, j *model.Job, lease *core.Lease, logger *slog.Logger) (out model.Outcome, stopped bool) {
	collab, ok := r.collaborators.Lookup(j.Type)
	if !ok {
		logger.ErrorContext(ctx, "no collaborator registered for job type")
		return model.PermanentFailure(fmt.Sprintf("no collaborator registered for job type %s", j.Type)), false
	}

	timeout := j.Timeout()
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	execCtx, cancelExec := context.WithTimeout(ctx, timeout)
	defer cancelExec()

	var cancelled, lost atomic.Bool
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		r.heartbeat(execCtx, lease, j.ID, func(res core.HeartbeatResult) {
			switch {
			case !res.Owned:
				lost.Store(true)
				cancelExec()
			case res.CancelRequested:
				cancelled.Store(true)
				cancelExec()
			}
		}, logger)
	}()

	inv := model.Invocation{
		JobID:          j.ID,
		Type:           j.Type,
		InputReference: j.InputReference,
		Metadata:       j.Metadata,
		Attempt:        j.RetryCount + 1,
	}
	raw, execErr := collab.Execute(execCtx, inv, func(percent int, message string) {
		r.lifecycle.ReportProgress(ctx, j, percent, message)
	})
	deadline := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancelExec()
	<-hbDone

	switch {
	case cancelled.Load():
		logger.InfoContext(ctx, "job cancelled during execution")
		return model.Outcome{Status: model.OutcomeCancelled}, false
	case lost.Load():
		// Finish will fail the ownership check and only release the lease.
		return model.TransientFailure("job lease lost during execution"), false
	case deadline && ctx.Err() == nil:
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			Job:        j,
			Transition: "timeout",
			Result:     metrics.ResultError,
			Err:        context.DeadlineExceeded,
		})
		return model.TransientFailure(fmt.Sprintf("execution timed out after %s", timeout)), false
	case ctx.Err() != nil && (execErr != nil || raw.Status == ""):
		return model.Outcome{}, true
	}
	return service.ClassifyOutcome(raw, execErr), false
}

func (r *Runner) heartbeat(
	ctx context.Context,
	lease *core.Lease,
	jobID string,
	onResult func(core.HeartbeatResult),
	logger *slog.Logger,
) {
	ticker := time.NewTicker(r.lease.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.lifecycle.Heartbeat(ctx, lease, jobID, r.workerID, r.lease.Lease())
			if err != nil {
				if ctx.Err() == nil {
					logger.WarnContext(ctx, "heartbeat failed", "error", err)
				}
				continue
			}
			onResult(res)
		}
	}
}
