package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/target/mmk-media-jobs/internal/data/pgxutil"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Advisory lock namespace for reaper operations, using pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReaperMajor   = 1000
	advisoryLockReclaimLeases = 1
	advisoryLockDeleteJobs    = 2
	advisoryLockDeleteDeliv   = 3
)

const leaseExpiredMessage = "worker lease expired"

// tryReaperLock takes a transaction-scoped advisory lock. False means another reaper holds it.
func tryReaperLock(ctx context.Context, tx *sql.Tx, minor int32) (bool, error) {
	return pgxutil.TryXactLock(ctx, tx, advisoryLockReaperMajor, minor)
}

// ReclaimExpired treats every PROCESSING job whose lease expired as a transient failure.
// The jobs it returns are RETRYING (to be re-enqueued) or FAILED (budget exhausted).
func (r *JobRepo) ReclaimExpired(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*model.Job
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryReaperLock(ctx, tx, advisoryLockReclaimLeases)
			if err != nil || !locked {
				return err
			}
			now := r.timeProvider.Now()
			rows, err := tx.QueryContext(ctx, `
				UPDATE jobs
				SET `+failSetClause+`
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = 'processing'
					  AND lease_expires_at IS NOT NULL
					  AND lease_expires_at < $5
					ORDER BY lease_expires_at
					LIMIT $1
					FOR UPDATE SKIP LOCKED
				)
				AND status = ANY($6)
				AND ($2::text = '' OR worker_id = $2::text)
				RETURNING `+jobColumns,
				limit, "", leaseExpiredMessage, true, now, failSources,
			)
			if err != nil {
				return fmt.Errorf("reclaim expired leases: %w", err)
			}
			out, err = scanJobs(rows)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		r.logger.InfoContext(ctx, "reclaimed expired job leases", "count", len(out))
	}
	return out, nil
}

// ListStalePending returns PENDING jobs created before olderThan. Such jobs lost their
// enqueue step (broker outage or crash between insert and enqueue).
func (r *JobRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`,
		olderThan.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending jobs: %w", err)
	}
	return scanJobs(rows)
}

// DeleteTerminalBefore removes terminal jobs finished before cutoff, at most limit rows.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return deleteBatch(ctx, r.DB, advisoryLockDeleteJobs, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN ('completed', 'failed', 'cancelled')
			  AND COALESCE(completed_at, updated_at) < $1
			ORDER BY COALESCE(completed_at, updated_at)
			LIMIT $2
		)`, cutoff.UTC(), limit)
}

func deleteBatch(ctx context.Context, db *sql.DB, minor int32, query string, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	var affected int64
	err := pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryReaperLock(ctx, tx, minor)
			if err != nil || !locked {
				return err
			}
			res, err := tx.ExecContext(ctx, query, cutoff, limit)
			if err != nil {
				return fmt.Errorf("delete batch: %w", err)
			}
			affected, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
