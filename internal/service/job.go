package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
)

const (
	// DefaultListLimit is used when a caller does not pass a limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single page of jobs.
	MaxListLimit = 200
)

// Announcer publishes the side effects of a terminal transition (webhooks, notices, stream events).
type Announcer interface {
	Announce(ctx context.Context, job *model.Job)
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo        core.JobRepository    // Required: job record store
	Broker      core.Broker           // Required: job broker
	Policies    model.PolicyTable     // Optional: defaults to model.DefaultPolicies()
	Idempotency core.IdempotencyStore // Optional: enables Idempotency-Key handling
	Announcer   Announcer             // Optional: told about jobs cancelled before they ran
	Metrics     statsd.Sink           // Optional
	Logger      *slog.Logger          // Optional: structured logger
	Now         func() time.Time      // Optional: clock for tests
}

// JobService accepts, looks up and cancels jobs on behalf of API callers.
type JobService struct {
	repo        core.JobRepository
	broker      core.Broker
	policies    model.PolicyTable
	idempotency core.IdempotencyStore
	announcer   Announcer
	metrics     statsd.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
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
	if err := policies.Validate(); err != nil {
		return nil, fmt.Errorf("validate policies: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &JobService{
		repo:        opts.Repo,
		broker:      opts.Broker,
		policies:    policies,
		idempotency: opts.Idempotency,
		announcer:   opts.Announcer,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "job_service"),
		now:         now,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Policies returns the active policy table.
func (s *JobService) Policies() model.PolicyTable {
	return s.policies
}

// Submit validates req, persists the job and places it on its priority lane.
// The returned job is QUEUED. When the broker rejects the item the job stays PENDING
// (the reaper retries it) and the error is returned.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.InvalidRequest("request body is required")
	}
	policy, err := s.validateSubmit(req)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = policy.DefaultPriority
	}

	jobID := uuid.NewString()
	if req.IdempotencyKey != "" {
		existing, replay, err := s.reserveIdempotency(ctx, req, jobID)
		if err != nil || replay {
			return existing, err
		}
	}

	job, err := s.repo.Create(ctx, core.NewJobParams{
		ID:             jobID,
		Type:           req.Type,
		OwnerID:        req.OwnerID,
		AssetID:        req.AssetID,
		InputReference: req.InputReference,
		Metadata:       req.Metadata,
		Priority:       priority,
		MaxRetries:     policy.MaxRetries,
		Timeout:        policy.Timeout,
	})
	if err != nil {
		s.releaseIdempotency(ctx, req)
		return nil, fmt.Errorf("create job: %w", apperrors.MapDBError(err))
	}

	queued, err := s.Dispatch(ctx, job, 0)
	if err != nil {
		return job, err
	}

	s.logger.InfoContext(ctx, "job submitted",
		"job_id", queued.ID,
		"job_type", queued.Type,
		"owner_id", queued.OwnerID,
		"priority", queued.Priority,
	)
	return queued, nil
}

func (s *JobService) reserveIdempotency(ctx context.Context, req *model.SubmitJobRequest, jobID string) (*model.Job, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}
	bound, fresh, err := s.idempotency.Reserve(ctx, req.OwnerID, req.IdempotencyKey, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if fresh {
		return nil, false, nil
	}
	job, err := s.repo.GetByID(ctx, bound)
	if errors.Is(err, core.ErrJobNotFound) {
		return nil, true, apperrors.Conflict("a submission with this Idempotency-Key is still in progress")
	}
	if err != nil {
		return nil, true, fmt.Errorf("load idempotent job: %w", err)
	}
	s.logger.DebugContext(ctx, "idempotent submission replayed", "job_id", job.ID)
	return job, true, nil
}

func (s *JobService) releaseIdempotency(ctx context.Context, req *model.SubmitJobRequest) {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return
	}
	if err := s.idempotency.Release(ctx, req.OwnerID, req.IdempotencyKey); err != nil {
		s.logger.WarnContext(ctx, "release idempotency key failed", "error", err)
	}
}

func (s *JobService) validateSubmit(req *model.SubmitJobRequest) (model.JobPolicy, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.InputReference = strings.TrimSpace(req.InputReference)

	if !req.Type.Valid() {
		return model.JobPolicy{}, apperrors.InvalidField("job_type", fmt.Sprintf("unknown job type %q", req.Type))
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return model.JobPolicy{}, apperrors.InvalidField("priority", fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if err := ValidateStruct(req); err != nil {
		return model.JobPolicy{}, err
	}

	meta, err := decodeMetadata(req.Metadata)
	if err != nil {
		return model.JobPolicy{}, err
	}
	if req.Type == model.JobTypeGenerativeImage {
		prompt, _ := meta["prompt"].(string)
		if strings.TrimSpace(prompt) == "" {
			return model.JobPolicy{}, apperrors.InvalidField("metadata.prompt", "metadata.prompt is required for generative-image jobs")
		}
	} else if req.InputReference == "" {
		return model.JobPolicy{}, apperrors.InvalidField("input_reference", "input_reference is required")
	}

	policy, ok := s.policies.Lookup(req.Type)
	if !ok {
		return model.JobPolicy{}, apperrors.InvalidField("job_type", fmt.Sprintf("job type %q is not enabled", req.Type))
	}
	return policy, nil
}

func decodeMetadata(raw json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.InvalidField("metadata", "metadata must be a JSON object")
	}
	return out, nil
}

// Dispatch puts job's work item on its lane after delay and, for a PENDING job, marks it QUEUED.
func (s *JobService) Dispatch(ctx context.Context, job *model.Job, delay time.Duration) (*model.Job, error) {
	item := model.WorkItem{
		JobID:      job.ID,
		Type:       job.Type,
		Priority:   job.Priority,
		Attempt:    job.RetryCount + 1,
		Timeout:    job.Timeout(),
		EnqueuedAt: s.now().UTC(),
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode work item: %w", err)
	}
	if err := s.broker.Enqueue(ctx, core.EnqueueParams{
		ID:      job.ID,
		Lane:    string(job.Priority),
		Payload: payload,
		Delay:   delay,
	}); err != nil {
		s.emit(job, "queued", metrics.ResultError, err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "enqueue job")
	}

	if !model.CanTransition(job.Status, model.JobStatusQueued) {
		s.emit(job, "requeued", metrics.ResultSuccess, nil)
		return job, nil
	}

	queued, err := s.repo.MarkQueued(ctx, job.ID)
	if err != nil {
		s.emit(job, "queued", metrics.ResultError, err)
		return nil, fmt.Errorf("mark job queued: %w", err)
	}
	s.emit(queued, "queued", metrics.ResultSuccess, nil)
	return queued, nil
}

// Get returns a job owned by ownerID.
func (s *JobService) Get(ctx context.Context, ownerID, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, core.ErrJobNotFound) {
		return nil, apperrors.NotFound("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.OwnerID != ownerID {
		return nil, apperrors.Unauthorized("job belongs to another owner")
	}
	return job, nil
}

// List returns the caller's most recent jobs. limit is clamped to [1, MaxListLimit].
func (s *JobService) List(ctx context.Context, ownerID string, limit int) ([]*model.Job, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	jobs, err := s.repo.ListByOwner(ctx, model.JobListOptions{OwnerID: ownerID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Cancel stops a job. Jobs that have not started are cancelled immediately and their broker
// item removed; a PROCESSING job is flagged and cancelled by its worker.
func (s *JobService) Cancel(ctx context.Context, ownerID, id string) (*model.Job, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := model.CheckTransition(current.Status, model.JobStatusCancelled); err != nil {
		return nil, apperrors.Conflictf("job is already %s", current.Status)
	}
	return s.cancel(ctx, id)
}

// CancelByID cancels without an ownership check. Used by operator tooling.
func (s *JobService) CancelByID(ctx context.Context, id string) (*model.Job, error) {
	return s.cancel(ctx, id)
}

func (s *JobService) cancel(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.Cancel(ctx, id)
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		return nil, apperrors.NotFound("job not found")
	case errors.Is(err, core.ErrStatusConflict):
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConflict, "job can no longer be cancelled")
	case err != nil:
		return nil, fmt.Errorf("cancel job: %w", err)
	}

	if job.Status != model.JobStatusCancelled {
		s.logger.InfoContext(ctx, "cancel requested for running job", "job_id", job.ID)
		return job, nil
	}

	if _, err := s.broker.Remove(ctx, job.ID); err != nil {
		// A leftover item is harmless: Claim rejects cancelled jobs and the worker drops it.
		s.logger.WarnContext(ctx, "remove cancelled job from broker failed", "job_id", job.ID, "error", err)
	}
	s.emit(job, "cancelled", metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "job cancelled", "job_id", job.ID)
	if s.announcer != nil {
		s.announcer.Announce(ctx, job)
	}
	return job, nil
}

// Stats counts jobs per status.
func (s *JobService) Stats(ctx context.Context) (model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

func (s *JobService) emit(job *model.Job, transition, result string, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Job:        job,
		Transition: transition,
		Result:     result,
		Err:        err,
	})
}
