// Package core declares the ports between the service layer and its adapters.
package core

import (
	"context"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Repository and broker interfaces (ports). Services depend on these, not on the
// Postgres or Redis adapters.

// NewJobParams groups the fields persisted when a job is created.
type NewJobParams struct {
	ID             string
	Type           model.JobType
	OwnerID        string
	AssetID        *string
	InputReference string
	Metadata       []byte
	Priority       model.Priority
	MaxRetries     int
	Timeout        time.Duration
}

// ClaimParams identifies the worker taking ownership of a job.
type ClaimParams struct {
	JobID          string
	WorkerID       string
	LeaseExpiresAt time.Time
}

// HeartbeatParams renews a worker's lease.
type HeartbeatParams struct {
	JobID          string
	WorkerID       string
	LeaseExpiresAt time.Time
}

// HeartbeatResult reports whether the worker still owns the job and whether a cancel was requested.
type HeartbeatResult struct {
	Owned           bool
	CancelRequested bool
}

// FailParams records a failed attempt.
type FailParams struct {
	JobID    string
	WorkerID string // empty when the reaper reclassifies an expired lease
	Error    string
	// Retryable selects RETRYING while retry budget remains; otherwise the job fails.
	Retryable bool
}

// JobRepository is the Job Record Store. Every state change is a compare-and-set on status
// and returns ErrStatusConflict-wrapping errors when the expected source status did not match.
type JobRepository interface {
	Create(ctx context.Context, p NewJobParams) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ListByOwner(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	MarkQueued(ctx context.Context, id string) (*model.Job, error)
	Claim(ctx context.Context, p ClaimParams) (*model.Job, error)
	Heartbeat(ctx context.Context, p HeartbeatParams) (HeartbeatResult, error)
	UpdateProgress(ctx context.Context, id string, percent int) (bool, error)
	Complete(ctx context.Context, id, workerID, outputRef string) (*model.Job, error)
	Fail(ctx context.Context, p FailParams) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
	FinishCancel(ctx context.Context, id, workerID string) (*model.Job, error)
	Release(ctx context.Context, id, workerID string) (*model.Job, error)
	ReclaimExpired(ctx context.Context, limit int) ([]*model.Job, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	Stats(ctx context.Context) (model.JobStats, error)
}

// WebhookRepository stores webhook registrations and the (owner, event) index.
type WebhookRepository interface {
	Create(ctx context.Context, w *model.WebhookRegistration) (*model.WebhookRegistration, error)
	GetByID(ctx context.Context, id string) (*model.WebhookRegistration, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error)
	Deactivate(ctx context.Context, ownerID, id string) (bool, error)
	FindActive(ctx context.Context, ownerID string, event model.WebhookEvent) ([]*model.WebhookRegistration, error)
}

// NewDeliveryParams describes a pending delivery attempt.
type NewDeliveryParams struct {
	ID            string
	WebhookID     string
	TriggerID     string
	Event         model.WebhookEvent
	Payload       []byte
	RetryCount    int
	NextAttemptAt *time.Time
}

// DeliveryRepository is the append-only audit trail of delivery attempts.
type DeliveryRepository interface {
	CreatePending(ctx context.Context, p NewDeliveryParams) (*model.WebhookDelivery, error)
	Finalize(ctx context.Context, id string, res model.DeliveryResult) (*model.WebhookDelivery, error)
	GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error)
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]*model.WebhookDelivery, error)
	ListByTrigger(ctx context.Context, triggerID string) ([]*model.WebhookDelivery, error)
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Lease is a reserved broker item. Token proves ownership when acking or extending.
type Lease struct {
	Queue   string
	Lane    string
	ID      string
	Token   string
	Payload []byte
	Attempt int
}

// EnqueueParams places a payload on a lane, optionally delayed.
type EnqueueParams struct {
	ID      string
	Lane    string
	Payload []byte
	Delay   time.Duration
	// IfAbsent leaves an id that is already queued, leased or parked untouched.
	IfAbsent bool
}

// QueueStats counts items per lane.
type QueueStats struct {
	Ready      map[string]int64
	Delayed    map[string]int64
	Leased     int64
	DeadLetter int64
}

// DeadLetter is an item parked on the dead-letter lane.
type DeadLetter struct {
	ID       string
	Lane     string
	Payload  []byte
	Reason   string
	ParkedAt time.Time
}

// Broker is a priority queue with leases. Reserve drains lanes in the order given.
type Broker interface {
	Enqueue(ctx context.Context, p EnqueueParams) error
	Reserve(ctx context.Context, lanes []string, lease time.Duration) (*Lease, error)
	Extend(ctx context.Context, l *Lease, lease time.Duration) (bool, error)
	Ack(ctx context.Context, l *Lease) error
	Nack(ctx context.Context, l *Lease, delay time.Duration) error
	DeadLetter(ctx context.Context, l *Lease, reason string) error
	Remove(ctx context.Context, id string) (bool, error)
	RequeueExpired(ctx context.Context, limit int) (int, error)
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	ReplayDeadLetter(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (QueueStats, error)
	WaitForWork(ctx context.Context, queue string) error
	Name() string
}

// ProgressPublisher broadcasts progress events to stream subscribers.
type ProgressPublisher interface {
	Publish(ctx context.Context, ev model.ProgressEvent) error
}

// ProgressSubscriber opens a live feed of progress events for one job.
type ProgressSubscriber interface {
	Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error)
}

// IdempotencyStore remembers which job a caller's Idempotency-Key produced.
type IdempotencyStore interface {
	// Reserve binds key to jobID unless it is already bound; it returns the bound job ID and
	// whether this call created the binding.
	Reserve(ctx context.Context, ownerID, key, jobID string) (string, bool, error)
	Release(ctx context.Context, ownerID, key string) error
}
