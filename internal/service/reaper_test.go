package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/mocks"
	"github.com/target/mmk-media-jobs/internal/testutil"
	"go.uber.org/mock/gomock"
)

type stubDispatcher struct {
	calls  []dispatchCall
	failID string
}

type dispatchCall struct {
	jobID string
	delay time.Duration
}

func (s *stubDispatcher) Dispatch(_ context.Context, job *model.Job, delay time.Duration) (*model.Job, error) {
	s.calls = append(s.calls, dispatchCall{jobID: job.ID, delay: delay})
	if job.ID == s.failID {
		return nil, errors.New("broker unavailable")
	}
	return job, nil
}

type stubRetryAnnouncer struct {
	announced []string
}

func (s *stubRetryAnnouncer) Announce(_ context.Context, job *model.Job) {
	s.announced = append(s.announced, job.ID)
}

func (s *stubRetryAnnouncer) RetryDelay(job *model.Job) time.Duration {
	return model.ExponentialDelay(job.RetryCount)
}

type reaperFixture struct {
	svc        *ReaperService
	jobs       *mocks.MockJobRepository
	deliveries *mocks.MockDeliveryRepository
	broker     *mocks.MockBroker
	dispatcher *stubDispatcher
	lifecycle  *stubRetryAnnouncer
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:          time.Minute,
		PendingMaxAge:     5 * time.Minute,
		JobRetention:      30 * 24 * time.Hour,
		DeliveryRetention: 7 * 24 * time.Hour,
		BatchSize:         2,
	}
}

func newReaperFixture(t *testing.T) *reaperFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &reaperFixture{
		jobs:       mocks.NewMockJobRepository(ctrl),
		deliveries: mocks.NewMockDeliveryRepository(ctrl),
		broker:     mocks.NewMockBroker(ctrl),
		dispatcher: &stubDispatcher{},
		lifecycle:  &stubRetryAnnouncer{},
	}
	svc, err := NewReaperService(ReaperServiceOptions{
		Jobs:       f.jobs,
		Deliveries: f.deliveries,
		Brokers:    []core.Broker{f.broker},
		Dispatcher: f.dispatcher,
		Lifecycle:  f.lifecycle,
		Config:     testReaperConfig(),
		Now:        testutil.TestTime,
	})
	require.NoError(t, err)
	f.svc = svc
	f.broker.EXPECT().Name().Return("mediajobs:jobs").AnyTimes()
	return f
}

func TestNewReaperService_Validation(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobRepository is required")
}

func TestReaperService_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	now := testutil.TestTime()

	f.broker.EXPECT().RequeueExpired(ctx, 2).Return(1, nil)

	gomock.InOrder(
		f.jobs.EXPECT().ReclaimExpired(ctx, 2).Return([]*model.Job{
			{ID: "retry-1", Status: model.JobStatusRetrying, RetryCount: 1},
			{ID: "dead-1", Status: model.JobStatusFailed, RetryCount: 3},
		}, nil),
		f.jobs.EXPECT().ReclaimExpired(ctx, 2).Return([]*model.Job{
			{ID: "retry-2", Status: model.JobStatusRetrying, RetryCount: 2},
		}, nil),
	)

	f.jobs.EXPECT().ListStalePending(ctx, now.Add(-5*time.Minute), 2).
		Return([]*model.Job{{ID: "pending-1", Status: model.JobStatusPending}}, nil)

	gomock.InOrder(
		f.jobs.EXPECT().DeleteTerminalBefore(ctx, now.Add(-30*24*time.Hour), 2).Return(int64(2), nil),
		f.jobs.EXPECT().DeleteTerminalBefore(ctx, now.Add(-30*24*time.Hour), 2).Return(int64(0), nil),
	)
	f.deliveries.EXPECT().DeleteBefore(ctx, now.Add(-7*24*time.Hour), 2).Return(int64(0), nil)

	require.NoError(t, f.svc.RunOnce(ctx))

	assert.Equal(t, []dispatchCall{
		{jobID: "retry-1", delay: 2 * time.Second},
		{jobID: "retry-2", delay: 4 * time.Second},
		{jobID: "pending-1", delay: 0},
	}, f.dispatcher.calls)
	assert.Equal(t, []string{"dead-1"}, f.lifecycle.announced)
}

func TestReaperService_RunOnceContinuesOnPartialErrors(t *testing.T) {
	ctx := context.Background()
	f := newReaperFixture(t)
	f.dispatcher.failID = "pending-1"

	f.broker.EXPECT().RequeueExpired(ctx, 2).Return(0, errors.New("redis down"))
	f.jobs.EXPECT().ReclaimExpired(ctx, 2).Return(nil, nil)
	f.jobs.EXPECT().ListStalePending(ctx, gomock.Any(), 2).
		Return([]*model.Job{{ID: "pending-1"}, {ID: "pending-2"}}, nil)
	f.jobs.EXPECT().DeleteTerminalBefore(ctx, gomock.Any(), 2).Return(int64(0), nil)
	f.deliveries.EXPECT().DeleteBefore(ctx, gomock.Any(), 2).Return(int64(0), errors.New("db down"))

	err := f.svc.RunOnce(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requeue_leases")
	assert.Contains(t, err.Error(), "redispatch_pending")
	assert.Contains(t, err.Error(), "delete_deliveries")
	assert.Len(t, f.dispatcher.calls, 2, "one failing job does not stop the batch")
}

func TestReaperService_RunOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newReaperFixture(t)

	f.broker.EXPECT().RequeueExpired(ctx, 2).Return(0, context.Canceled)
	f.jobs.EXPECT().ReclaimExpired(ctx, 2).Return(nil, context.Canceled)
	f.jobs.EXPECT().ListStalePending(ctx, gomock.Any(), 2).Return(nil, context.Canceled)
	f.jobs.EXPECT().DeleteTerminalBefore(ctx, gomock.Any(), 2).Return(int64(0), context.Canceled)
	f.deliveries.EXPECT().DeleteBefore(ctx, gomock.Any(), 2).Return(int64(0), context.Canceled)

	err := f.svc.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperService_RetentionDisabled(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	jobs := mocks.NewMockJobRepository(ctrl)
	cfg := testReaperConfig()
	cfg.JobRetention = 0

	svc, err := NewReaperService(ReaperServiceOptions{
		Jobs:       jobs,
		Dispatcher: &stubDispatcher{},
		Lifecycle:  &stubRetryAnnouncer{},
		Config:     cfg,
	})
	require.NoError(t, err)

	jobs.EXPECT().ReclaimExpired(ctx, 2).Return(nil, nil)
	jobs.EXPECT().ListStalePending(ctx, gomock.Any(), 2).Return(nil, nil)

	require.NoError(t, svc.RunOnce(ctx))
}
