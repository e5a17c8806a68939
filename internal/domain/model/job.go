// Package model defines the core data types shared by the media job orchestration service.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobType identifies which collaborator pipeline processes a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

// Priority selects the broker lane a job is enqueued on.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Priority string

const (
	// JobTypeReconstruction runs structure-from-motion reconstruction.
	JobTypeReconstruction JobType = "reconstruction"
	// JobTypeNovelViewTraining trains a novel-view synthesis model.
	JobTypeNovelViewTraining JobType = "novel-view-training"
	// JobTypeVisionAnalysis runs an image understanding model.
	JobTypeVisionAnalysis JobType = "vision-analysis"
	// JobTypeGenerativeImage renders an image with a generative model.
	JobTypeGenerativeImage JobType = "generative-image"
	// JobTypeMeshOptimization decimates a mesh into LOD levels.
	JobTypeMeshOptimization JobType = "mesh-optimization"
)

const (
	// JobStatusPending indicates the record exists but the work item is not yet enqueued.
	JobStatusPending JobStatus = "pending"
	// JobStatusQueued indicates the work item sits on a broker lane.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates exactly one worker owns the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRetrying indicates a transient failure with retry budget left.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusCompleted is terminal; output_reference is set.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed is terminal; error_message is set.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled is terminal.
	JobStatusCancelled JobStatus = "cancelled"
)

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// AllJobTypes lists every supported job type in a stable order.
func AllJobTypes() []JobType {
	return []JobType{
		JobTypeReconstruction,
		JobTypeNovelViewTraining,
		JobTypeVisionAnalysis,
		JobTypeGenerativeImage,
		JobTypeMeshOptimization,
	}
}

// Valid returns true if the JobType is one of the supported pipelines.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeReconstruction, JobTypeNovelViewTraining, JobTypeVisionAnalysis,
		JobTypeGenerativeImage, JobTypeMeshOptimization:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env and YAML parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := JobType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobType: %q", string(text))
	}
	*t = v
	return nil
}

// Valid returns true if the JobStatus is a known state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusProcessing, JobStatusRetrying,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Lanes returns the priority lanes in drain order.
func Lanes() []Priority {
	return []Priority{PriorityHigh, PriorityDefault, PriorityLow}
}

// Valid returns true if the Priority names a lane.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityDefault || p == PriorityLow
}

// UnmarshalText implements encoding.TextUnmarshaler for Priority.
func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid Priority: %q", string(text))
	}
	*p = v
	return nil
}

// Job is the persisted record of one orchestrated unit of work.
type Job struct {
	ID              string          `json:"job_id"                     db:"id"`
	Type            JobType         `json:"job_type"                   db:"job_type"`
	OwnerID         string          `json:"owner_id"                   db:"owner_id"`
	AssetID         *string         `json:"asset_id,omitempty"         db:"asset_id"`
	InputReference  string          `json:"input_reference"            db:"input_reference"`
	OutputReference *string         `json:"output_reference,omitempty" db:"output_reference"`
	Status          JobStatus       `json:"status"                     db:"status"`
	Progress        int             `json:"progress"                   db:"progress"`
	Priority        Priority        `json:"priority"                   db:"priority"`
	RetryCount      int             `json:"retry_count"                db:"retry_count"`
	MaxRetries      int             `json:"max_retries"                db:"max_retries"`
	ErrorMessage    *string         `json:"error_message,omitempty"    db:"error_message"`
	Metadata        json.RawMessage `json:"metadata"                   db:"metadata"`
	TimeoutSeconds  int             `json:"-"                          db:"timeout_seconds"`
	CancelRequested bool            `json:"cancel_requested,omitempty" db:"cancel_requested"`
	WorkerID        *string         `json:"-"                          db:"worker_id"`
	LeaseExpiresAt  *time.Time      `json:"-"                          db:"lease_expires_at"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
}

// Timeout returns the per-attempt execution timeout captured at submission.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// MetadataMap decodes the metadata object. Empty metadata yields an empty map.
func (j *Job) MetadataMap() (map[string]any, error) {
	out := map[string]any{}
	if len(j.Metadata) == 0 || string(j.Metadata) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(j.Metadata, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

// SubmitJobRequest is the input to job submission.
type SubmitJobRequest struct {
	Type           JobType         `json:"job_type"                  validate:"required"`
	OwnerID        string          `json:"owner_id"                  validate:"required,max=255"`
	AssetID        *string         `json:"asset_id,omitempty"        validate:"omitempty,max=255"`
	InputReference string          `json:"input_reference"           validate:"max=2048"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Priority       Priority        `json:"priority,omitempty"`
	// IdempotencyKey makes retried submissions return the original job.
	IdempotencyKey string `json:"-" validate:"omitempty,max=255"`
}

// JobListOptions filters ListByOwner.
type JobListOptions struct {
	OwnerID string
	Status  *JobStatus
	Limit   int
	Offset  int
}

// WorkItem is the unit placed on a broker lane. The Job Record Store stays authoritative;
// the item only carries what a worker needs to claim and run the job.
type WorkItem struct {
	JobID      string        `json:"job_id"`
	Type       JobType       `json:"job_type"`
	Priority   Priority      `json:"priority"`
	Attempt    int           `json:"attempt"`
	Timeout    time.Duration `json:"timeout"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// JobStats counts jobs per status.
type JobStats map[JobStatus]int

// ProgressEvent is published whenever a job's progress or status changes.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
