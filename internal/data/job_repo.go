package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the Postgres-backed job record store.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*JobRepo)(nil)

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  job_type,
  owner_id,
  asset_id,
  input_reference,
  output_reference,
  status,
  progress,
  priority,
  retry_count,
  max_retries,
  error_message,
  metadata,
  timeout_seconds,
  cancel_requested,
  worker_id,
  lease_expires_at,
  created_at,
  updated_at,
  started_at,
  completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	id              string
	jobType         string
	ownerID         string
	assetID         sql.NullString
	inputRef        string
	outputRef       sql.NullString
	status          string
	progress        int
	priority        string
	retryCount      int
	maxRetries      int
	errorMessage    sql.NullString
	metadata        []byte
	timeoutSeconds  int
	cancelRequested bool
	workerID        sql.NullString
	leaseExpiresAt  sql.NullTime
	createdAt       time.Time
	updatedAt       time.Time
	startedAt       sql.NullTime
	completedAt     sql.NullTime
}

func (d *jobRowData) dest() []any {
	return []any{
		&d.id, &d.jobType, &d.ownerID, &d.assetID, &d.inputRef, &d.outputRef,
		&d.status, &d.progress, &d.priority, &d.retryCount, &d.maxRetries,
		&d.errorMessage, &d.metadata, &d.timeoutSeconds, &d.cancelRequested,
		&d.workerID, &d.leaseExpiresAt, &d.createdAt, &d.updatedAt,
		&d.startedAt, &d.completedAt,
	}
}

func (d *jobRowData) toJob() *model.Job {
	return &model.Job{
		ID:              d.id,
		Type:            model.JobType(d.jobType),
		OwnerID:         d.ownerID,
		AssetID:         cloneNullableString(d.assetID),
		InputReference:  d.inputRef,
		OutputReference: cloneNullableString(d.outputRef),
		Status:          model.JobStatus(d.status),
		Progress:        d.progress,
		Priority:        model.Priority(d.priority),
		RetryCount:      d.retryCount,
		MaxRetries:      d.maxRetries,
		ErrorMessage:    cloneNullableString(d.errorMessage),
		Metadata:        cloneJSON(d.metadata),
		TimeoutSeconds:  d.timeoutSeconds,
		CancelRequested: d.cancelRequested,
		WorkerID:        cloneNullableString(d.workerID),
		LeaseExpiresAt:  cloneNullableTime(d.leaseExpiresAt),
		CreatedAt:       d.createdAt.UTC(),
		UpdatedAt:       d.updatedAt.UTC(),
		StartedAt:       cloneNullableTime(d.startedAt),
		CompletedAt:     cloneNullableTime(d.completedAt),
	}
}

func scanJob(row rowScanner) (*model.Job, error) {
	var d jobRowData
	if err := row.Scan(d.dest()...); err != nil {
		return nil, err
	}
	return d.toJob(), nil
}

func scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func cloneJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(`{}`)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create inserts a PENDING job.
func (r *JobRepo) Create(ctx context.Context, p core.NewJobParams) (*model.Job, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("invalid job type: %q", p.Type)
	}
	if !p.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority: %q", p.Priority)
	}
	if p.Timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := p.Metadata
	if len(meta) == 0 {
		meta = []byte(`{}`)
	}
	now := r.timeProvider.Now()

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO jobs (
			id, job_type, owner_id, asset_id, input_reference, status, priority,
			max_retries, metadata, timeout_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9, $10, $10)
		RETURNING `+jobColumns,
		id, p.Type, p.OwnerID, nullString(p.AssetID), p.InputReference, p.Priority,
		p.MaxRetries, meta, timeoutSeconds(p.Timeout), now,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func timeoutSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// GetByID returns the job or ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListByOwner returns the owner's jobs, newest first.
func (r *JobRepo) ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	var status sql.NullString
	if opts.Status != nil {
		status = sql.NullString{String: string(*opts.Status), Valid: true}
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE owner_id = $1
		  AND ($2::text IS NULL OR status = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		opts.OwnerID, status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// Stats counts jobs per status.
func (r *JobRepo) Stats(ctx context.Context) (model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	out := model.JobStats{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		out[model.JobStatus(s)] = n
	}
	return out, rows.Err()
}

// missOrConflict distinguishes a missing row from a failed compare-and-set.
func (r *JobRepo) missOrConflict(ctx context.Context, id string) error {
	var status string
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup job status: %w", err)
	}
	return fmt.Errorf("%w: job %s is %s", ErrStatusConflict, id, status)
}

// casReturning runs an UPDATE ... RETURNING jobColumns and maps an empty result.
func (r *JobRepo) casReturning(ctx context.Context, id, query string, args ...any) (*model.Job, error) {
	job, err := scanJob(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}
