package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/data/cryptoutil"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/testutil"
)

func newTestSealer(t *testing.T) cryptoutil.Sealer {
	t.Helper()
	s, err := cryptoutil.NewGCMSealer(make([]byte, 32))
	require.NoError(t, err)
	return s
}

func createWebhook(t *testing.T, repo *WebhookRepo, owner string, events ...model.WebhookEvent) *model.WebhookRegistration {
	t.Helper()
	w, err := repo.Create(context.Background(), &model.WebhookRegistration{
		OwnerID:       owner,
		TargetURL:     "https://hooks.example.com/media",
		EventTypes:    events,
		SigningSecret: "s3cret",
	})
	require.NoError(t, err)
	return w
}

func TestWebhookRepo_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db, newTestSealer(t), nil)
		ctx := context.Background()

		w := createWebhook(t, repo, "owner-1", model.EventProcessingCompleted, model.EventProcessingFailed)
		assert.NotEmpty(t, w.ID)
		assert.True(t, w.IsActive)
		assert.Equal(t, "s3cret", w.SigningSecret)

		var stored string
		require.NoError(t, db.QueryRowContext(ctx, `SELECT signing_secret FROM webhooks WHERE id = $1`, w.ID).Scan(&stored))
		assert.NotContains(t, stored, "s3cret", "secret is sealed at rest")

		got, err := repo.GetByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.EventTypes, got.EventTypes)
		assert.Equal(t, "s3cret", got.SigningSecret)

		_, err = repo.GetByID(ctx, "00000000-0000-4000-8000-00000000abcd")
		require.ErrorIs(t, err, ErrWebhookNotFound)
	})
}

func TestWebhookRepo_FindActive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db, newTestSealer(t), nil)
		ctx := context.Background()

		completed := createWebhook(t, repo, "owner-1", model.EventProcessingCompleted)
		both := createWebhook(t, repo, "owner-1", model.EventProcessingCompleted, model.EventProcessingFailed)
		createWebhook(t, repo, "owner-2", model.EventProcessingCompleted)

		got, err := repo.FindActive(ctx, "owner-1", model.EventProcessingCompleted)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []string{completed.ID, both.ID}, []string{got[0].ID, got[1].ID})

		got, err = repo.FindActive(ctx, "owner-1", model.EventProcessingCancelled)
		require.NoError(t, err)
		assert.Empty(t, got)

		ok, err := repo.Deactivate(ctx, "owner-1", both.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err = repo.FindActive(ctx, "owner-1", model.EventProcessingFailed)
		require.NoError(t, err)
		assert.Empty(t, got)

		// wrong owner and repeat deactivation both report false
		ok, err = repo.Deactivate(ctx, "owner-2", completed.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = repo.Deactivate(ctx, "owner-1", both.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := repo.ListByOwner(ctx, "owner-1")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestDeliveryRepo_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		hooks := NewWebhookRepo(db, newTestSealer(t), nil)
		repo := NewDeliveryRepo(db, NewFixedTimeProvider(testutil.TestTime()))
		ctx := context.Background()
		w := createWebhook(t, hooks, "owner-1", model.EventProcessingCompleted)

		trigger := "9b2f4c1a-0000-4000-8000-000000000001"
		payload := []byte(`{"event":"processing.completed"}`)
		d, err := repo.CreatePending(ctx, core.NewDeliveryParams{
			WebhookID: w.ID, TriggerID: trigger, Event: model.EventProcessingCompleted, Payload: payload,
		})
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryPending, d.Status)
		assert.Equal(t, payload, []byte(d.Payload))

		code := 503
		excerpt := "unavailable"
		done, err := repo.Finalize(ctx, d.ID, model.DeliveryResult{
			Status: model.DeliveryFailed, HTTPStatusCode: &code, ResponseExcerpt: &excerpt,
		})
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryFailed, done.Status)
		assert.Equal(t, 503, *done.HTTPStatusCode)
		assert.NotNil(t, done.CompletedAt)

		_, err = repo.Finalize(ctx, d.ID, model.DeliveryResult{Status: model.DeliverySuccess})
		require.ErrorIs(t, err, ErrDeliveryFinalized)

		_, err = repo.CreatePending(ctx, core.NewDeliveryParams{
			WebhookID: w.ID, TriggerID: trigger, Event: model.EventProcessingCompleted, Payload: payload, RetryCount: 1,
		})
		require.NoError(t, err)

		attempts, err := repo.ListByTrigger(ctx, trigger)
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, 0, attempts[0].RetryCount)
		assert.Equal(t, 1, attempts[1].RetryCount)

		listed, err := repo.ListByWebhook(ctx, w.ID, 10)
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})
}
