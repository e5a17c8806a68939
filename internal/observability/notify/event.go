// Package notify defines the operator alert raised when a job fails terminally
// and the contract alert destinations implement.
package notify

import (
	"context"
	"strconv"
	"time"
)

// Severity values understood by sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// SeverityForPriority pages on high-priority work and warns otherwise.
func SeverityForPriority(priority string) string {
	if priority == "high" {
		return SeverityCritical
	}
	return SeverityWarning
}

// JobFailurePayload describes a job that reached FAILED after exhausting its retries
// or hitting a permanent error.
type JobFailurePayload struct {
	JobID      string
	JobType    string
	OwnerID    string
	AssetID    string
	Priority   string
	Error      string
	ErrorClass string
	RetryCount int
	MaxRetries int
	Severity   string
	OccurredAt time.Time
	// Metadata carries free-form extras rendered after the fixed fields.
	Metadata map[string]string
}

// Attempts renders "retries/budget", e.g. "3/3".
func (p JobFailurePayload) Attempts() string {
	if p.MaxRetries <= 0 {
		return strconv.Itoa(p.RetryCount)
	}
	return strconv.Itoa(p.RetryCount) + "/" + strconv.Itoa(p.MaxRetries)
}

// Sink is an alert destination.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements Sink.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
