// Package httpx provides the HTTP API of the media job service.
package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

// IdempotencyHeader carries the caller's key for safely retried submissions.
const IdempotencyHeader = "Idempotency-Key"

// JobAPI is the job service surface used by the handlers.
type JobAPI interface {
	Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error)
	Get(ctx context.Context, ownerID, id string) (*model.Job, error)
	List(ctx context.Context, ownerID string, limit int) ([]*model.Job, error)
	Cancel(ctx context.Context, ownerID, id string) (*model.Job, error)
}

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc    JobAPI
	Logger *slog.Logger
}

type submitJobBody struct {
	InputReference string          `json:"input_reference"    validate:"max=2048"`
	AssetID        *string         `json:"asset_id,omitempty" validate:"omitempty,max=255"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Priority       string          `json:"priority,omitempty" validate:"omitempty,oneof=high default low"`
}

// SubmitJobResponse acknowledges a submission.
type SubmitJobResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// JobListResponse is the body of GET /jobs.
type JobListResponse struct {
	Jobs  []*model.Job `json:"jobs"`
	Count int          `json:"count"`
}

// SubmitJob handles POST /jobs/{type}.
func (h *JobHandlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	var body submitJobBody
	if !DecodeJSON(w, r, &body) {
		return
	}

	req := &model.SubmitJobRequest{
		Type:           model.JobType(strings.ToLower(chi.URLParam(r, "type"))),
		OwnerID:        owner,
		AssetID:        body.AssetID,
		InputReference: body.InputReference,
		Metadata:       body.Metadata,
		Priority:       model.Priority(body.Priority),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	job, err := h.Svc.Submit(r.Context(), req)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusCreated, SubmitJobResponse{JobID: job.ID, Status: job.Status})
	case job != nil:
		// Persisted but not enqueued; the reaper re-dispatches stale pending jobs.
		h.logger().WarnContext(r.Context(), "job accepted without dispatch", "job_id", job.ID, "error", err)
		WriteJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: job.Status})
	default:
		WriteError(w, r, err)
	}
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	job, err := h.Svc.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /jobs?limit=N.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	jobs, err := h.Svc.List(r.Context(), owner, limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	job, err := h.Svc.Cancel(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
