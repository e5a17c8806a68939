// Package failurenotifier fans job failure alerts out to operator sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
	obserrors "github.com/target/mmk-media-jobs/internal/observability/errors"
	"github.com/target/mmk-media-jobs/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

const defaultTimeout = 10 * time.Second

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds one fan-out across all sinks. Defaults to 10s.
	Timeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
	}
}

// PayloadFromJob builds the alert payload for a FAILED job.
func PayloadFromJob(job *model.Job, cause error) notify.JobFailurePayload {
	p := notify.JobFailurePayload{
		JobID:      job.ID,
		JobType:    string(job.Type),
		OwnerID:    job.OwnerID,
		Priority:   string(job.Priority),
		RetryCount: job.RetryCount,
		MaxRetries: job.MaxRetries,
		Severity:   notify.SeverityForPriority(string(job.Priority)),
	}
	if job.InputReference != "" {
		p.Metadata = map[string]string{"input_reference": job.InputReference}
	}
	if job.AssetID != nil {
		p.AssetID = *job.AssetID
	}
	if job.ErrorMessage != nil {
		p.Error = *job.ErrorMessage
	}
	if job.CompletedAt != nil {
		p.OccurredAt = *job.CompletedAt
	}
	if cause != nil {
		p.ErrorClass = obserrors.Classify(cause)
	}
	return p
}

// NotifyJobFailure fans the payload out to all sinks in the background and returns
// immediately. Use Wait to drain in-flight alerts.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.fanOut(ctx, payload)
	}()
}

func (s *Service) fanOut(ctx context.Context, payload notify.JobFailurePayload) {
	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"job_type", payload.JobType,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Wait blocks until in-flight alerts finish.
func (s *Service) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
