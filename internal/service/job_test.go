package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/mocks"
	"github.com/target/mmk-media-jobs/internal/testutil"
	"go.uber.org/mock/gomock"
)

type jobServiceFixture struct {
	svc         *JobService
	repo        *mocks.MockJobRepository
	broker      *mocks.MockBroker
	idempotency *mocks.MockIdempotencyStore
	announcer   *recordingAnnouncer
}

type recordingAnnouncer struct {
	jobs []*model.Job
}

func (a *recordingAnnouncer) Announce(_ context.Context, job *model.Job) {
	a.jobs = append(a.jobs, job)
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &jobServiceFixture{
		repo:        mocks.NewMockJobRepository(ctrl),
		broker:      mocks.NewMockBroker(ctrl),
		idempotency: mocks.NewMockIdempotencyStore(ctrl),
		announcer:   &recordingAnnouncer{},
	}
	f.svc = MustNewJobService(JobServiceOptions{
		Repo:        f.repo,
		Broker:      f.broker,
		Idempotency: f.idempotency,
		Announcer:   f.announcer,
		Now:         testutil.TestTime,
	})
	return f
}

// createEcho returns a Create stub that materialises the params as a PENDING job.
func createEcho(_ context.Context, p core.NewJobParams) (*model.Job, error) {
	return &model.Job{
		ID:             p.ID,
		Type:           p.Type,
		OwnerID:        p.OwnerID,
		AssetID:        p.AssetID,
		InputReference: p.InputReference,
		Metadata:       json.RawMessage(p.Metadata),
		Priority:       p.Priority,
		MaxRetries:     p.MaxRetries,
		TimeoutSeconds: int(p.Timeout / time.Second),
		Status:         model.JobStatusPending,
	}, nil
}

func markQueuedEcho(job **model.Job) func(context.Context, string) (*model.Job, error) {
	return func(_ context.Context, id string) (*model.Job, error) {
		q := **job
		q.Status = model.JobStatusQueued
		return &q, nil
	}
}

func TestNewJobService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewJobService(JobServiceOptions{Broker: mocks.NewMockBroker(ctrl)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobRepository is required")

	_, err = NewJobService(JobServiceOptions{Repo: mocks.NewMockJobRepository(ctrl)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broker is required")
}

func TestJobService_Submit(t *testing.T) {
	t.Run("persists, enqueues on the policy lane and marks queued", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		var created *model.Job
		f.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(ctx context.Context, p core.NewJobParams) (*model.Job, error) {
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, model.PriorityLow, p.Priority)
			assert.Equal(t, 2, p.MaxRetries)
			assert.Equal(t, 2*time.Hour, p.Timeout)
			created, _ = createEcho(ctx, p)
			return created, nil
		})
		f.broker.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, p core.EnqueueParams) error {
			assert.Equal(t, created.ID, p.ID)
			assert.Equal(t, "low", p.Lane)
			assert.Zero(t, p.Delay)

			var item model.WorkItem
			require.NoError(t, json.Unmarshal(p.Payload, &item))
			assert.Equal(t, created.ID, item.JobID)
			assert.Equal(t, model.JobTypeNovelViewTraining, item.Type)
			assert.Equal(t, 1, item.Attempt)
			return nil
		})
		f.repo.EXPECT().MarkQueued(ctx, gomock.Any()).DoAndReturn(markQueuedEcho(&created))

		req := testutil.NewJobRequest().WithType(model.JobTypeNovelViewTraining).Build()
		job, err := f.svc.Submit(ctx, req)

		require.NoError(t, err)
		assert.Equal(t, model.JobStatusQueued, job.Status)
		assert.Equal(t, model.PriorityLow, job.Priority)
	})

	t.Run("explicit priority wins over the policy default", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		var created *model.Job
		f.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(ctx context.Context, p core.NewJobParams) (*model.Job, error) {
			created, _ = createEcho(ctx, p)
			return created, nil
		})
		f.broker.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, p core.EnqueueParams) error {
			assert.Equal(t, "high", p.Lane)
			return nil
		})
		f.repo.EXPECT().MarkQueued(ctx, gomock.Any()).DoAndReturn(markQueuedEcho(&created))

		req := testutil.NewJobRequest().WithPriority(model.PriorityHigh).Build()
		job, err := f.svc.Submit(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.PriorityHigh, job.Priority)
	})

	t.Run("enqueue failure leaves the job pending", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		f.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(createEcho)
		f.broker.EXPECT().Enqueue(ctx, gomock.Any()).Return(errors.New("redis down"))

		job, err := f.svc.Submit(ctx, testutil.NewJobRequest().Build())

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
		require.NotNil(t, job)
		assert.Equal(t, model.JobStatusPending, job.Status)
	})

	t.Run("create failure is mapped", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		f.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil, context.DeadlineExceeded)

		_, err := f.svc.Submit(ctx, testutil.NewJobRequest().Build())
		require.Error(t, err)
		assert.True(t, apperrors.IsTimeout(err))
	})
}

func TestJobService_SubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   *model.SubmitJobRequest
		field string
	}{
		{
			name:  "nil request",
			req:   nil,
			field: "",
		},
		{
			name:  "unknown job type",
			req:   testutil.NewJobRequest().WithType("transcode").Build(),
			field: "job_type",
		},
		{
			name:  "unknown priority",
			req:   testutil.NewJobRequest().WithPriority("urgent").Build(),
			field: "priority",
		},
		{
			name:  "missing owner",
			req:   testutil.NewJobRequest().WithOwner("  ").Build(),
			field: "owner_id",
		},
		{
			name: "missing input reference",
			req: func() *model.SubmitJobRequest {
				r := testutil.NewJobRequest().Build()
				r.InputReference = ""
				return r
			}(),
			field: "input_reference",
		},
		{
			name:  "metadata is not an object",
			req:   testutil.NewJobRequest().WithMetadata(`["a"]`).Build(),
			field: "metadata",
		},
		{
			name: "generative image without prompt",
			req: func() *model.SubmitJobRequest {
				r := testutil.NewJobRequest().WithType(model.JobTypeGenerativeImage).WithMetadata(`{"style":"photo"}`).Build()
				r.InputReference = ""
				return r
			}(),
			field: "metadata.prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobServiceFixture(t)

			_, err := f.svc.Submit(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidRequest(err), "got %v", err)
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestJobService_SubmitGenerativeImageNeedsNoInputReference(t *testing.T) {
	f := newJobServiceFixture(t)
	ctx := context.Background()

	var created *model.Job
	f.repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(ctx context.Context, p core.NewJobParams) (*model.Job, error) {
		created, _ = createEcho(ctx, p)
		return created, nil
	})
	f.broker.EXPECT().Enqueue(ctx, gomock.Any()).Return(nil)
	f.repo.EXPECT().MarkQueued(ctx, gomock.Any()).DoAndReturn(markQueuedEcho(&created))

	req := testutil.NewJobRequest().WithType(model.JobTypeGenerativeImage).WithMetadata(`{"prompt":"a red chair"}`).Build()
	req.InputReference = ""

	job, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeGenerativeImage, job.Type)
}

func TestJobService_SubmitIdempotency(t *testing.T) {
	t.Run("replay returns the original job", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()
		original := &model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusQueued}

		f.idempotency.EXPECT().Reserve(ctx, "owner-1", "key-1", gomock.Any()).Return("job-1", false, nil)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(original, nil)

		req := testutil.NewJobRequest().Build()
		req.IdempotencyKey = "key-1"
		job, err := f.svc.Submit(ctx, req)

		require.NoError(t, err)
		assert.Same(t, original, job)
	})

	t.Run("binding without a job is a conflict", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		f.idempotency.EXPECT().Reserve(ctx, "owner-1", "key-1", gomock.Any()).Return("job-1", false, nil)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(nil, core.ErrJobNotFound)

		req := testutil.NewJobRequest().Build()
		req.IdempotencyKey = "key-1"
		_, err := f.svc.Submit(ctx, req)

		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("key is released when create fails", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()

		f.idempotency.EXPECT().Reserve(ctx, "owner-1", "key-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, _, jobID string) (string, bool, error) {
				return jobID, true, nil
			})
		f.repo.EXPECT().Create(ctx, gomock.Any()).Return(nil, errors.New("insert failed"))
		f.idempotency.EXPECT().Release(ctx, "owner-1", "key-1").Return(nil)

		req := testutil.NewJobRequest().Build()
		req.IdempotencyKey = "key-1"
		_, err := f.svc.Submit(ctx, req)
		require.Error(t, err)
	})
}

func TestJobService_Dispatch(t *testing.T) {
	t.Run("retrying job keeps its status and is delayed", func(t *testing.T) {
		f := newJobServiceFixture(t)
		ctx := context.Background()
		job := &model.Job{ID: "job-1", Type: model.JobTypeReconstruction, Priority: model.PriorityDefault,
			Status: model.JobStatusRetrying, RetryCount: 2}

		f.broker.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, p core.EnqueueParams) error {
			assert.Equal(t, 4*time.Second, p.Delay)
			var item model.WorkItem
			require.NoError(t, json.Unmarshal(p.Payload, &item))
			assert.Equal(t, 3, item.Attempt)
			return nil
		})

		out, err := f.svc.Dispatch(ctx, job, 4*time.Second)
		require.NoError(t, err)
		assert.Same(t, job, out)
	})
}

func TestJobService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("owner gets the job", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1"}, nil)

		job, err := f.svc.Get(ctx, "owner-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
	})

	t.Run("other owner is unauthorized", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1"}, nil)

		_, err := f.svc.Get(ctx, "owner-2", "job-1")
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("unknown job is not found", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().GetByID(ctx, "missing").Return(nil, core.ErrJobNotFound)

		_, err := f.svc.Get(ctx, "owner-1", "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobService_ListClampsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultListLimit},
		{"negative", -3, DefaultListLimit},
		{"within range", 10, 10},
		{"capped", 5000, MaxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobServiceFixture(t)
			f.repo.EXPECT().
				ListByOwner(gomock.Any(), model.JobListOptions{OwnerID: "owner-1", Limit: tt.want}).
				Return([]*model.Job{}, nil)

			jobs, err := f.svc.List(context.Background(), "owner-1", tt.limit)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	}
}

func TestJobService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job is cancelled, removed and announced", func(t *testing.T) {
		f := newJobServiceFixture(t)
		cancelled := &model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusCancelled}

		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusQueued}, nil)
		f.repo.EXPECT().Cancel(ctx, "job-1").Return(cancelled, nil)
		f.broker.EXPECT().Remove(ctx, "job-1").Return(true, nil)

		job, err := f.svc.Cancel(ctx, "owner-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, job.Status)
		require.Len(t, f.announcer.jobs, 1)
		assert.Equal(t, "job-1", f.announcer.jobs[0].ID)
	})

	t.Run("processing job is only flagged", func(t *testing.T) {
		f := newJobServiceFixture(t)
		flagged := &model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusProcessing, CancelRequested: true}

		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusProcessing}, nil)
		f.repo.EXPECT().Cancel(ctx, "job-1").Return(flagged, nil)

		job, err := f.svc.Cancel(ctx, "owner-1", "job-1")
		require.NoError(t, err)
		assert.True(t, job.CancelRequested)
		assert.Empty(t, f.announcer.jobs)
	})

	t.Run("terminal job conflicts", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusCompleted}, nil)

		_, err := f.svc.Cancel(ctx, "owner-1", "job-1")
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("race with completion conflicts", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{ID: "job-1", OwnerID: "owner-1", Status: model.JobStatusProcessing}, nil)
		f.repo.EXPECT().Cancel(ctx, "job-1").Return(nil, core.ErrStatusConflict)

		_, err := f.svc.Cancel(ctx, "owner-1", "job-1")
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("broker removal failure does not fail the cancel", func(t *testing.T) {
		f := newJobServiceFixture(t)
		f.repo.EXPECT().Cancel(ctx, "job-1").Return(&model.Job{ID: "job-1", Status: model.JobStatusCancelled}, nil)
		f.broker.EXPECT().Remove(ctx, "job-1").Return(false, errors.New("redis down"))

		job, err := f.svc.CancelByID(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, job.Status)
	})
}
