package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Envelope is the signed JSON document sent to subscribers.
type Envelope struct {
	Event     model.WebhookEvent `json:"event"`
	Timestamp string             `json:"timestamp"`
	Data      any                `json:"data"`
}

// NewEnvelope stamps data with the event name and an ISO-8601 UTC timestamp.
func NewEnvelope(event model.WebhookEvent, data any, at time.Time) Envelope {
	return Envelope{
		Event:     event,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}

// Marshal serialises the envelope. encoding/json emits struct fields in declaration
// order and map keys sorted, so equal inputs produce identical bytes.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook envelope: %w", err)
	}
	return b, nil
}

// JobEventData is the data section for processing.* events.
type JobEventData struct {
	JobID           string          `json:"job_id"`
	JobType         model.JobType   `json:"job_type"`
	Status          model.JobStatus `json:"status"`
	AssetID         *string         `json:"asset_id,omitempty"`
	OutputReference *string         `json:"output_reference,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// JobEventDataFrom snapshots the caller-visible fields of a terminal job.
func JobEventDataFrom(j *model.Job) JobEventData {
	return JobEventData{
		JobID:           j.ID,
		JobType:         j.Type,
		Status:          j.Status,
		AssetID:         j.AssetID,
		OutputReference: j.OutputReference,
		ErrorMessage:    j.ErrorMessage,
		RetryCount:      j.RetryCount,
		CompletedAt:     j.CompletedAt,
	}
}
