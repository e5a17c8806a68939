package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

const defaultFailureMessage = "execution failed"

// failSetClause applies one failed attempt. Column references read the pre-update row, so
// retry_count + 1 is the count after this failure. $3 is the error text, $4 whether the
// failure may be retried, $5 the current time.
const failSetClause = `
	retry_count = retry_count + 1,
	last_error = $3,
	status = CASE WHEN $4::boolean AND retry_count + 1 < max_retries THEN 'retrying' ELSE 'failed' END,
	error_message = CASE WHEN $4::boolean AND retry_count + 1 < max_retries THEN NULL ELSE $3 END,
	completed_at = CASE WHEN $4::boolean AND retry_count + 1 < max_retries THEN NULL ELSE $5 END,
	worker_id = NULL,
	lease_expires_at = NULL,
	updated_at = $5`

// sourceStatuses lists, as a text[] argument, the statuses from which the job state
// machine reaches every one of targets. Status guards in UPDATEs are built from it so
// the SQL cannot drift from model.CanTransition.
func sourceStatuses(targets ...model.JobStatus) []string {
	var out []string
	for _, from := range model.SourcesFor(targets[0]) {
		ok := true
		for _, to := range targets[1:] {
			ok = ok && model.CanTransition(from, to)
		}
		if ok {
			out = append(out, string(from))
		}
	}
	return out
}

var (
	queueSources    = sourceStatuses(model.JobStatusQueued)
	claimSources    = sourceStatuses(model.JobStatusProcessing)
	completeSources = sourceStatuses(model.JobStatusCompleted)
	failSources     = sourceStatuses(model.JobStatusRetrying, model.JobStatusFailed)
	cancelSources   = sourceStatuses(model.JobStatusCancelled)
	releaseSources  = sourceStatuses(model.JobStatusRetrying)
	// a worker stops a job it runs; only running jobs can both complete and cancel
	stopSources = sourceStatuses(model.JobStatusCompleted, model.JobStatusCancelled)
)

// MarkQueued moves a PENDING job to QUEUED once its work item is on the broker.
func (r *JobRepo) MarkQueued(ctx context.Context, id string) (*model.Job, error) {
	return r.casReturning(ctx, id, `
		UPDATE jobs
		SET status = 'queued', updated_at = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+jobColumns,
		id, r.timeProvider.Now(), queueSources,
	)
}

// Claim moves a QUEUED or RETRYING job to PROCESSING for one worker. Jobs with a pending
// cancel request are not claimable.
func (r *JobRepo) Claim(ctx context.Context, p core.ClaimParams) (*model.Job, error) {
	if strings.TrimSpace(p.WorkerID) == "" {
		return nil, errors.New("worker id is required")
	}
	now := r.timeProvider.Now()
	return r.casReturning(ctx, p.JobID, `
		UPDATE jobs
		SET status = 'processing',
		    worker_id = $2,
		    lease_expires_at = $3,
		    started_at = COALESCE(started_at, $4),
		    updated_at = $4
		WHERE id = $1
		  AND status = ANY($5)
		  AND NOT cancel_requested
		RETURNING `+jobColumns,
		p.JobID, p.WorkerID, p.LeaseExpiresAt.UTC(), now, claimSources,
	)
}

// Heartbeat extends the worker's lease. Owned is false when the job moved on without it.
func (r *JobRepo) Heartbeat(ctx context.Context, p core.HeartbeatParams) (core.HeartbeatResult, error) {
	var res core.HeartbeatResult
	err := r.DB.QueryRowContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $3, updated_at = $4
		WHERE id = $1 AND status = 'processing' AND worker_id = $2
		RETURNING cancel_requested`,
		p.JobID, p.WorkerID, p.LeaseExpiresAt.UTC(), r.timeProvider.Now(),
	).Scan(&res.CancelRequested)
	if errors.Is(err, sql.ErrNoRows) {
		return core.HeartbeatResult{}, nil
	}
	if err != nil {
		return core.HeartbeatResult{}, fmt.Errorf("heartbeat job: %w", err)
	}
	res.Owned = true
	return res, nil
}

// UpdateProgress records progress for a PROCESSING job. Progress never decreases; a
// lower or equal value is ignored and reported as false.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, percent int) (bool, error) {
	if percent < 0 || percent > 100 {
		return false, fmt.Errorf("progress %d out of range", percent)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing' AND progress < $2`,
		id, percent, r.timeProvider.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Complete moves the worker's PROCESSING job to COMPLETED with its output reference.
func (r *JobRepo) Complete(ctx context.Context, id, workerID, outputRef string) (*model.Job, error) {
	if strings.TrimSpace(outputRef) == "" {
		return nil, errors.New("output reference is required")
	}
	return r.casReturning(ctx, id, `
		UPDATE jobs
		SET status = 'completed',
		    output_reference = $3,
		    progress = 100,
		    completed_at = $4,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = ANY($5) AND worker_id = $2
		RETURNING `+jobColumns,
		id, workerID, outputRef, r.timeProvider.Now(), completeSources,
	)
}

// Fail records a failed attempt. The job goes to RETRYING while budget remains and the
// failure is retryable, otherwise to FAILED. An empty WorkerID skips the ownership check.
func (r *JobRepo) Fail(ctx context.Context, p core.FailParams) (*model.Job, error) {
	msg := strings.TrimSpace(p.Error)
	if msg == "" {
		msg = defaultFailureMessage
	}
	return r.casReturning(ctx, p.JobID, `
		UPDATE jobs
		SET `+failSetClause+`
		WHERE id = $1
		  AND status = ANY($6)
		  AND ($2::text = '' OR worker_id = $2::text)
		RETURNING `+jobColumns,
		p.JobID, p.WorkerID, msg, p.Retryable, r.timeProvider.Now(), failSources,
	)
}

// Cancel cancels a job that has not started, or flags a PROCESSING job so its worker stops.
// Cancelling a terminal job is a status conflict.
func (r *JobRepo) Cancel(ctx context.Context, id string) (*model.Job, error) {
	return r.casReturning(ctx, id, `
		UPDATE jobs
		SET cancel_requested = TRUE,
		    status = CASE WHEN status = 'processing' THEN status ELSE 'cancelled' END,
		    completed_at = CASE WHEN status = 'processing' THEN completed_at ELSE $2 END,
		    updated_at = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+jobColumns,
		id, r.timeProvider.Now(), cancelSources,
	)
}

// FinishCancel moves the worker's PROCESSING job to CANCELLED after it stopped executing.
func (r *JobRepo) FinishCancel(ctx context.Context, id, workerID string) (*model.Job, error) {
	return r.casReturning(ctx, id, `
		UPDATE jobs
		SET status = 'cancelled',
		    completed_at = $3,
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = ANY($4) AND worker_id = $2
		RETURNING `+jobColumns,
		id, workerID, r.timeProvider.Now(), stopSources,
	)
}

// Release hands the worker's PROCESSING job back as RETRYING without spending a retry.
// Workers use it when they stop mid-job.
func (r *JobRepo) Release(ctx context.Context, id, workerID string) (*model.Job, error) {
	return r.casReturning(ctx, id, `
		UPDATE jobs
		SET status = 'retrying',
		    worker_id = NULL,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = ANY($4) AND worker_id = $2
		RETURNING `+jobColumns,
		id, workerID, r.timeProvider.Now(), releaseSources,
	)
}
