package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/testutil"
)

func TestJobRepo_ReclaimExpired(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		retryable := claimNew(t, repo, testutil.NewJobParams().Build())
		exhausted := claimNew(t, repo, testutil.NewJobParams().WithMaxRetries(1).Build())

		// lease not yet expired
		got, err := repo.ReclaimExpired(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		tp.Advance(2 * time.Minute)
		got, err = repo.ReclaimExpired(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)

		byID := map[string]*model.Job{}
		for _, j := range got {
			byID[j.ID] = j
		}
		assert.Equal(t, model.JobStatusRetrying, byID[retryable.ID].Status)
		assert.Equal(t, 1, byID[retryable.ID].RetryCount)
		assert.Equal(t, model.JobStatusFailed, byID[exhausted.ID].Status)
		assert.Equal(t, leaseExpiredMessage, *byID[exhausted.ID].ErrorMessage)

		// the original worker can no longer finish
		_, err = repo.Complete(ctx, retryable.ID, "w1", "s3://late")
		require.ErrorIs(t, err, ErrStatusConflict)
	})
}

func TestJobRepo_ListStalePending(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		stale, err := repo.Create(ctx, testutil.NewJobParams().Build())
		require.NoError(t, err)
		tp.Advance(10 * time.Minute)
		_, err = repo.Create(ctx, testutil.NewJobParams().Build())
		require.NoError(t, err)

		got, err := repo.ListStalePending(ctx, tp.Now().Add(-5*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, stale.ID, got[0].ID)
	})
}

func TestJobRepo_DeleteTerminalBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo, tp := newTestJobRepo(db)
		ctx := context.Background()

		job := claimNew(t, repo, testutil.NewJobParams().Build())
		_, err := repo.Fail(ctx, core.FailParams{JobID: job.ID, WorkerID: "w1", Error: "bad", Retryable: false})
		require.NoError(t, err)
		live, err := repo.Create(ctx, testutil.NewJobParams().Build())
		require.NoError(t, err)

		n, err := repo.DeleteTerminalBefore(ctx, tp.Now().Add(time.Hour), 100)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = repo.GetByID(ctx, job.ID)
		require.ErrorIs(t, err, ErrJobNotFound)
		_, err = repo.GetByID(ctx, live.ID)
		require.NoError(t, err)
	})
}
