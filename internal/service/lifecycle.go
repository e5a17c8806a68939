package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
	"github.com/target/mmk-media-jobs/internal/service/failurenotifier"
	"github.com/target/mmk-media-jobs/internal/service/notification"
)

// ErrItemSkipped is returned by Begin when the broker item was settled without running anything.
var ErrItemSkipped = errors.New("work item skipped")

// pendingRecheckDelay is how long an item for a not-yet-queued job waits before it is offered again.
const pendingRecheckDelay = time.Second

// TriggerEvent is one terminal event offered to webhook subscribers.
type TriggerEvent struct {
	Event   model.WebhookEvent
	OwnerID string
	AssetID *string
	Data    any
}

// WebhookTrigger schedules deliveries of an event to matching registrations.
type WebhookTrigger interface {
	Trigger(ctx context.Context, ev TriggerEvent) (int, error)
}

// JobLifecycleOptions groups dependencies for JobLifecycle.
type JobLifecycleOptions struct {
	Repo            core.JobRepository      // Required
	Broker          core.Broker             // Required
	Policies        model.PolicyTable       // Optional: defaults to model.DefaultPolicies()
	Webhooks        WebhookTrigger          // Optional
	Notifications   notification.Trigger    // Optional: completion notices
	FailureNotifier *failurenotifier.Service // Optional: operator alerts on FAILED
	Progress        core.ProgressPublisher  // Optional: stream events
	Metrics         statsd.Sink             // Optional
	Logger          *slog.Logger            // Optional
	Now             func() time.Time        // Optional
}

// JobLifecycle moves claimed jobs through the state machine and announces terminal states.
// Postgres is authoritative: every broker settlement follows the database write.
type JobLifecycle struct {
	repo            core.JobRepository
	broker          core.Broker
	policies        model.PolicyTable
	webhooks        WebhookTrigger
	notifications   notification.Trigger
	failureNotifier *failurenotifier.Service
	progress        core.ProgressPublisher
	metrics         statsd.Sink
	logger          *slog.Logger
	now             func() time.Time
}

var _ Announcer = (*JobLifecycle)(nil)

// NewJobLifecycle constructs a JobLifecycle.
func NewJobLifecycle(opts JobLifecycleOptions) (*JobLifecycle, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("Broker is required")
	}
	policies := opts.Policies
	if policies == nil {
		policies = model.DefaultPolicies()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JobLifecycle{
		repo:            opts.Repo,
		broker:          opts.Broker,
		policies:        policies,
		webhooks:        opts.Webhooks,
		notifications:   opts.Notifications,
		failureNotifier: opts.FailureNotifier,
		progress:        opts.Progress,
		metrics:         opts.Metrics,
		logger:          logger.With("component", "job_lifecycle"),
		now:             now,
	}, nil
}

// MustNewJobLifecycle panics when opts are invalid.
func MustNewJobLifecycle(opts JobLifecycleOptions) *JobLifecycle {
	l, err := NewJobLifecycle(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobLifecycle: %v", err))
	}
	return l
}

// Begin claims the job behind a reserved broker item for workerID. When the item cannot run
// (malformed, job missing, job no longer claimable) the item is settled and ErrItemSkipped returned.
func (l *JobLifecycle) Begin(ctx context.Context, lease *core.Lease, workerID string, leaseFor time.Duration) (*model.Job, error) {
	var item model.WorkItem
	if err := json.Unmarshal(lease.Payload, &item); err != nil || item.JobID == "" {
		l.logger.WarnContext(ctx, "malformed work item", "item_id", lease.ID, "error", err)
		l.deadLetter(ctx, lease, "malformed work item")
		return nil, ErrItemSkipped
	}

	job, err := l.repo.Claim(ctx, core.ClaimParams{
		JobID:          item.JobID,
		WorkerID:       workerID,
		LeaseExpiresAt: l.now().Add(leaseFor),
	})
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		l.logger.WarnContext(ctx, "work item references missing job", "job_id", item.JobID)
		l.deadLetter(ctx, lease, "job record missing")
		return nil, ErrItemSkipped
	case errors.Is(err, core.ErrStatusConflict):
		return nil, l.settleUnclaimable(ctx, lease, item.JobID)
	case err != nil:
		if nackErr := l.broker.Nack(ctx, lease, pendingRecheckDelay); nackErr != nil {
			l.logger.ErrorContext(ctx, "nack after claim error failed", "job_id", item.JobID, "error", nackErr)
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	l.emit(job, "processing", metrics.ResultSuccess, 0, nil)
	l.publish(ctx, job, "")
	return job, nil
}

// settleUnclaimable handles an item whose job exists but is not QUEUED/RETRYING.
func (l *JobLifecycle) settleUnclaimable(ctx context.Context, lease *core.Lease, jobID string) error {
	job, err := l.repo.GetByID(ctx, jobID)
	if err != nil {
		if nackErr := l.broker.Nack(ctx, lease, pendingRecheckDelay); nackErr != nil {
			l.logger.ErrorContext(ctx, "nack unclaimable item failed", "job_id", jobID, "error", nackErr)
		}
		return fmt.Errorf("load unclaimable job: %w", err)
	}
	// A PENDING job was enqueued but not yet marked QUEUED. A claimable job without a
	// cancel request changed status under the claim. Both are looked at again shortly.
	if job.Status == model.JobStatusPending || (job.Status.Claimable() && !job.CancelRequested) {
		if err := l.broker.Nack(ctx, lease, pendingRecheckDelay); err != nil {
			l.logger.ErrorContext(ctx, "nack pending job item failed", "job_id", jobID, "error", err)
		}
		return ErrItemSkipped
	}
	l.logger.InfoContext(ctx, "dropping work item for unclaimable job", "job_id", jobID, "status", job.Status)
	l.ack(ctx, lease, jobID)
	return ErrItemSkipped
}

// Heartbeat renews both the broker lease and the database lease.
func (l *JobLifecycle) Heartbeat(
	ctx context.Context,
	lease *core.Lease,
	jobID, workerID string,
	leaseFor time.Duration,
) (core.HeartbeatResult, error) {
	if ok, err := l.broker.Extend(ctx, lease, leaseFor); err != nil {
		l.logger.WarnContext(ctx, "extend broker lease failed", "job_id", jobID, "error", err)
	} else if !ok {
		l.logger.WarnContext(ctx, "broker lease lost", "job_id", jobID)
	}
	res, err := l.repo.Heartbeat(ctx, core.HeartbeatParams{
		JobID:          jobID,
		WorkerID:       workerID,
		LeaseExpiresAt: l.now().Add(leaseFor),
	})
	if err != nil {
		return core.HeartbeatResult{}, fmt.Errorf("heartbeat: %w", err)
	}
	return res, nil
}

// ReportProgress stores percent when it advances the job and publishes a stream event.
// Regressions and reports for jobs that are no longer PROCESSING are dropped.
func (l *JobLifecycle) ReportProgress(ctx context.Context, job *model.Job, percent int, message string) {
	percent = min(max(percent, 0), 100)
	stored, err := l.repo.UpdateProgress(ctx, job.ID, percent)
	if err != nil {
		l.logger.WarnContext(ctx, "store progress failed", "job_id", job.ID, "error", err)
		return
	}
	if !stored {
		return
	}
	l.publishEvent(ctx, model.ProgressEvent{
		JobID:     job.ID,
		Status:    model.JobStatusProcessing,
		Progress:  percent,
		Message:   message,
		Timestamp: l.now().UTC(),
	})
}

// ClassifyOutcome folds a collaborator error into an Outcome. Errors marked permanent fail the
// job outright; anything else is transient.
func ClassifyOutcome(out model.Outcome, err error) model.Outcome {
	if err == nil {
		if out.Status == "" {
			return model.TransientFailure("collaborator returned no outcome")
		}
		return out
	}
	if apperrors.IsPermanent(err) || apperrors.IsInvalidRequest(err) {
		return model.PermanentFailure(err.Error())
	}
	return model.TransientFailure(err.Error())
}

// Finish records the outcome of an attempt, settles the broker item and announces terminal states.
func (l *JobLifecycle) Finish(
	ctx context.Context,
	lease *core.Lease,
	job *model.Job,
	workerID string,
	out model.Outcome,
	started time.Time,
) (*model.Job, error) {
	if err := model.CheckTransition(job.Status, outcomeStatus(out)); err != nil {
		l.ack(ctx, lease, job.ID)
		l.emit(job, string(out.Status), metrics.ResultError, l.now().Sub(started), err)
		return nil, fmt.Errorf("record outcome %s: %w", out.Status, err)
	}

	var (
		updated *model.Job
		err     error
	)
	switch out.Status {
	case model.OutcomeSuccess:
		if out.OutputReference == "" {
			out = model.PermanentFailure("collaborator reported success without output_reference")
			updated, err = l.fail(ctx, job, workerID, out)
			break
		}
		updated, err = l.repo.Complete(ctx, job.ID, workerID, out.OutputReference)
	case model.OutcomeCancelled:
		updated, err = l.repo.FinishCancel(ctx, job.ID, workerID)
	default:
		updated, err = l.fail(ctx, job, workerID, out)
	}
	if err != nil {
		// Lost ownership (lease reclaimed, or cancelled elsewhere): the item now belongs to
		// someone else, so only release our lease.
		l.ack(ctx, lease, job.ID)
		l.emit(job, string(out.Status), metrics.ResultError, l.now().Sub(started), err)
		return nil, fmt.Errorf("record outcome %s: %w", out.Status, err)
	}

	if updated.Status == model.JobStatusRetrying {
		delay := l.RetryDelay(updated)
		if err := l.broker.Nack(ctx, lease, delay); err != nil {
			l.logger.ErrorContext(ctx, "schedule retry failed", "job_id", updated.ID, "error", err)
		}
		l.logger.InfoContext(ctx, "job retry scheduled",
			"job_id", updated.ID,
			"retry_count", updated.RetryCount,
			"delay", delay,
			"reason", out.Error,
		)
		l.publish(ctx, updated, out.Error)
	} else {
		l.ack(ctx, lease, updated.ID)
	}

	l.emit(updated, string(updated.Status), metrics.ResultSuccess, l.now().Sub(started), nil)
	if updated.Status.IsTerminal() {
		l.Announce(ctx, updated)
	}
	return updated, nil
}

// Release hands a job back when its worker stops before the attempt finished. The job goes
// to RETRYING with its retry count untouched and the item is made due again at once.
func (l *JobLifecycle) Release(ctx context.Context, lease *core.Lease, job *model.Job, workerID string) error {
	if err := model.CheckTransition(job.Status, model.JobStatusRetrying); err != nil {
		l.ack(ctx, lease, job.ID)
		return fmt.Errorf("release job: %w", err)
	}
	released, err := l.repo.Release(ctx, job.ID, workerID)
	if err != nil {
		// Ownership is gone; whoever holds the job now also owns its item.
		l.ack(ctx, lease, job.ID)
		l.emit(job, "released", metrics.ResultError, 0, err)
		return fmt.Errorf("release job: %w", err)
	}
	if err := l.broker.Nack(ctx, lease, 0); err != nil {
		l.logger.ErrorContext(ctx, "requeue released job failed", "job_id", job.ID, "error", err)
	}
	l.emit(released, "released", metrics.ResultSuccess, 0, nil)
	l.publish(ctx, released, "worker stopped")
	return nil
}

// outcomeStatus is the status an outcome moves a running job to. Failures are checked
// against FAILED; every status that can fail can also retry.
func outcomeStatus(out model.Outcome) model.JobStatus {
	switch out.Status {
	case model.OutcomeSuccess:
		return model.JobStatusCompleted
	case model.OutcomeCancelled:
		return model.JobStatusCancelled
	default:
		return model.JobStatusFailed
	}
}

func (l *JobLifecycle) fail(ctx context.Context, job *model.Job, workerID string, out model.Outcome) (*model.Job, error) {
	return l.repo.Fail(ctx, core.FailParams{
		JobID:     job.ID,
		WorkerID:  workerID,
		Error:     out.Error,
		Retryable: out.Status == model.OutcomeTransientFailure,
	})
}

// RetryDelay is the delay before the retry that follows job's latest failure.
func (l *JobLifecycle) RetryDelay(job *model.Job) time.Duration {
	policy, ok := l.policies.Lookup(job.Type)
	if !ok {
		return model.ExponentialDelay(job.RetryCount)
	}
	return policy.RetryDelay(job.RetryCount)
}

// Announce publishes the final stream event, schedules webhooks and sends notices for a terminal job.
func (l *JobLifecycle) Announce(ctx context.Context, job *model.Job) {
	if !job.Status.IsTerminal() {
		return
	}
	msg := ""
	if job.ErrorMessage != nil {
		msg = *job.ErrorMessage
	}
	l.publish(ctx, job, msg)

	if event, ok := model.EventForStatus(job.Status); ok && l.webhooks != nil {
		n, err := l.webhooks.Trigger(ctx, TriggerEvent{
			Event:   event,
			OwnerID: job.OwnerID,
			AssetID: job.AssetID,
			Data:    webhook.JobEventDataFrom(job),
		})
		if err != nil {
			l.logger.ErrorContext(ctx, "trigger webhooks failed", "job_id", job.ID, "event", event, "error", err)
		} else if n > 0 {
			l.logger.DebugContext(ctx, "webhooks scheduled", "job_id", job.ID, "event", event, "count", n)
		}
	}

	switch job.Status {
	case model.JobStatusCompleted:
		if l.notifications != nil {
			req := notification.Request{
				JobID:   job.ID,
				OwnerID: job.OwnerID,
				JobType: job.Type,
				AssetID: job.AssetID,
			}
			if job.OutputReference != nil {
				req.OutputReference = *job.OutputReference
			}
			l.notifications.Notify(ctx, req)
		}
	case model.JobStatusFailed:
		if l.failureNotifier.Enabled() {
			l.failureNotifier.NotifyJobFailure(ctx, failurenotifier.PayloadFromJob(job, errors.New(msg)))
		}
	}
}

func (l *JobLifecycle) publish(ctx context.Context, job *model.Job, message string) {
	l.publishEvent(ctx, model.ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   message,
		Timestamp: l.now().UTC(),
	})
}

func (l *JobLifecycle) publishEvent(ctx context.Context, ev model.ProgressEvent) {
	if l.progress == nil {
		return
	}
	if err := l.progress.Publish(ctx, ev); err != nil {
		l.logger.DebugContext(ctx, "publish progress event failed", "job_id", ev.JobID, "error", err)
	}
}

func (l *JobLifecycle) ack(ctx context.Context, lease *core.Lease, jobID string) {
	if err := l.broker.Ack(ctx, lease); err != nil {
		l.logger.WarnContext(ctx, "ack work item failed", "job_id", jobID, "error", err)
	}
}

func (l *JobLifecycle) deadLetter(ctx context.Context, lease *core.Lease, reason string) {
	if err := l.broker.DeadLetter(ctx, lease, reason); err != nil {
		l.logger.ErrorContext(ctx, "dead-letter work item failed", "item_id", lease.ID, "error", err)
	}
}

func (l *JobLifecycle) emit(job *model.Job, transition, result string, d time.Duration, err error) {
	metrics.EmitJobLifecycle(l.metrics, metrics.JobMetric{
		Job:        job,
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}
