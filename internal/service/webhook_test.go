package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/mocks"
	"github.com/target/mmk-media-jobs/internal/testutil"
	"go.uber.org/mock/gomock"
)

func newWebhookServiceForTest(t *testing.T) (*WebhookService, *mocks.MockWebhookRepository, *mocks.MockDeliveryRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockWebhookRepository(ctrl)
	deliveries := mocks.NewMockDeliveryRepository(ctrl)
	svc, err := NewWebhookService(WebhookServiceOptions{
		Repo:       repo,
		Deliveries: deliveries,
		NewSecret:  func() (string, error) { return "whsec_test", nil },
	})
	require.NoError(t, err)
	return svc, repo, deliveries
}

func TestWebhookService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("registers with a generated secret", func(t *testing.T) {
		svc, repo, _ := newWebhookServiceForTest(t)

		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, w *model.WebhookRegistration) (*model.WebhookRegistration, error) {
				assert.Equal(t, "whsec_test", w.SigningSecret)
				assert.True(t, w.IsActive)
				assert.Equal(t, []model.WebhookEvent{model.EventProcessingCompleted}, w.EventTypes)
				require.NotNil(t, w.Scope.AssetID)
				assert.Equal(t, "asset-1", *w.Scope.AssetID)
				out := *w
				out.ID = "wh-1"
				return &out, nil
			})

		created, err := svc.Create(ctx, &model.CreateWebhookRequest{
			OwnerID:    "owner-1",
			TargetURL:  " https://hooks.example.com/media ",
			EventTypes: []model.WebhookEvent{"processing.completed", "PROCESSING.COMPLETED"},
			AssetID:    testutil.StringPtr("asset-1"),
		})

		require.NoError(t, err)
		assert.Equal(t, "wh-1", created.ID)
		assert.Equal(t, "whsec_test", created.SigningSecret)
	})

	tests := []struct {
		name  string
		req   *model.CreateWebhookRequest
		field string
	}{
		{
			name:  "missing target",
			req:   &model.CreateWebhookRequest{OwnerID: "owner-1", EventTypes: []model.WebhookEvent{model.EventProcessingFailed}},
			field: "target_url",
		},
		{
			name:  "no events",
			req:   &model.CreateWebhookRequest{OwnerID: "owner-1", TargetURL: "https://example.com/hook"},
			field: "event_types",
		},
		{
			name: "unknown event",
			req: &model.CreateWebhookRequest{
				OwnerID: "owner-1", TargetURL: "https://example.com/hook",
				EventTypes: []model.WebhookEvent{"job.started"},
			},
		},
		{
			name: "non-http target",
			req: &model.CreateWebhookRequest{
				OwnerID: "owner-1", TargetURL: "ftp://example.com/hook",
				EventTypes: []model.WebhookEvent{model.EventProcessingFailed},
			},
		},
		{
			name: "bad match expression",
			req: &model.CreateWebhookRequest{
				OwnerID: "owner-1", TargetURL: "https://example.com/hook",
				EventTypes: []model.WebhookEvent{model.EventProcessingFailed},
				Match:      testutil.StringPtr("job_type =="),
			},
			field: "match",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newWebhookServiceForTest(t)

			_, err := svc.Create(ctx, tt.req)

			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidRequest(err), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, apperrors.GetField(err))
			}
		})
	}
}

func TestWebhookService_GetOwnership(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newWebhookServiceForTest(t)

	repo.EXPECT().GetByID(ctx, "wh-1").Return(&model.WebhookRegistration{ID: "wh-1", OwnerID: "owner-1"}, nil)
	_, err := svc.Get(ctx, "owner-2", "wh-1")
	assert.True(t, apperrors.IsUnauthorized(err))

	repo.EXPECT().GetByID(ctx, "missing").Return(nil, core.ErrWebhookNotFound)
	_, err = svc.Get(ctx, "owner-1", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestWebhookService_Deactivate(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newWebhookServiceForTest(t)

	repo.EXPECT().GetByID(ctx, "wh-1").Return(&model.WebhookRegistration{ID: "wh-1", OwnerID: "owner-1", IsActive: true}, nil)
	repo.EXPECT().Deactivate(ctx, "owner-1", "wh-1").Return(true, nil)

	require.NoError(t, svc.Deactivate(ctx, "owner-1", "wh-1"))
}

func TestWebhookService_DeliveriesClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo, deliveries := newWebhookServiceForTest(t)

	repo.EXPECT().GetByID(ctx, "wh-1").Return(&model.WebhookRegistration{ID: "wh-1", OwnerID: "owner-1"}, nil).Times(2)
	deliveries.EXPECT().ListByWebhook(ctx, "wh-1", defaultDeliveryListLimit).Return(nil, nil)
	deliveries.EXPECT().ListByWebhook(ctx, "wh-1", MaxListLimit).Return(nil, nil)

	_, err := svc.Deliveries(ctx, "owner-1", "wh-1", 0)
	require.NoError(t, err)
	_, err = svc.Deliveries(ctx, "owner-1", "wh-1", 10_000)
	require.NoError(t, err)
}
