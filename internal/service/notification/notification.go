// Package notification sends fire-and-forget completion notices to job owners.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Request describes a completed job worth telling its owner about.
type Request struct {
	JobID           string
	OwnerID         string
	JobType         model.JobType
	AssetID         *string
	OutputReference string
}

// Message is the rendered notice handed to sinks.
type Message struct {
	JobID           string    `json:"job_id"`
	OwnerID         string    `json:"owner_id"`
	JobType         string    `json:"job_type"`
	AssetType       string    `json:"asset_type"`
	AssetName       string    `json:"asset_name"`
	AssetURL        string    `json:"asset_url"`
	OutputReference string    `json:"output_reference,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Trigger accepts notification requests without blocking the caller.
type Trigger interface {
	Notify(ctx context.Context, req Request)
}

// Sink delivers a rendered message somewhere.
type Sink interface {
	SendCompletion(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// SendCompletion calls f.
func (f SinkFunc) SendCompletion(ctx context.Context, msg Message) error { return f(ctx, msg) }

// SinkRegistration names a sink for logging.
type SinkRegistration struct {
	Name string
	Sink Sink
}

// Options configures Service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// AssetBaseURL links notices to <AssetBaseURL>/<asset_id>.
	AssetBaseURL string
	// DashboardURL is linked when the job has no asset.
	DashboardURL string
	// Timeout bounds one fan-out. Defaults to 30s.
	Timeout time.Duration
	Now     func() time.Time
}

// Service renders requests and fans them out to sinks on a background goroutine.
type Service struct {
	logger       *slog.Logger
	sinks        []SinkRegistration
	assetBaseURL string
	dashboardURL string
	timeout      time.Duration
	now          func() time.Time
	wg           sync.WaitGroup
}

var _ Trigger = (*Service)(nil)

var assetTypes = map[model.JobType]string{
	model.JobTypeReconstruction:    "3D model",
	model.JobTypeNovelViewTraining: "Gaussian splatting scene",
	model.JobTypeVisionAnalysis:    "Image analysis",
	model.JobTypeGenerativeImage:   "AI generation",
	model.JobTypeMeshOptimization:  "Optimized 3D model",
}

// NewService builds a notification Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var sinks []SinkRegistration
	for _, s := range opts.Sinks {
		if s.Sink == nil {
			continue
		}
		if s.Name == "" {
			s.Name = "sink"
		}
		sinks = append(sinks, s)
	}
	return &Service{
		logger:       logger.With("component", "notification"),
		sinks:        sinks,
		assetBaseURL: strings.TrimRight(strings.TrimSpace(opts.AssetBaseURL), "/"),
		dashboardURL: strings.TrimSpace(opts.DashboardURL),
		timeout:      timeout,
		now:          now,
	}
}

// Render builds the message for req.
func (s *Service) Render(req Request) Message {
	assetType, ok := assetTypes[req.JobType]
	if !ok {
		assetType = "Asset"
	}
	msg := Message{
		JobID:           req.JobID,
		OwnerID:         req.OwnerID,
		JobType:         string(req.JobType),
		AssetType:       assetType,
		AssetName:       assetType,
		OutputReference: req.OutputReference,
		OccurredAt:      s.now().UTC(),
	}

	if req.AssetID != nil && *req.AssetID != "" {
		id := *req.AssetID
		msg.AssetName = fmt.Sprintf("%s #%s", assetType, shortID(id))
		if s.assetBaseURL != "" {
			msg.AssetURL = s.assetBaseURL + "/" + url.PathEscape(id)
		}
	}
	if msg.AssetURL == "" {
		msg.AssetURL = s.dashboardURL
	}
	return msg
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Notify renders req and delivers it in the background. Sink errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, req Request) {
	if len(s.sinks) == 0 {
		return
	}
	msg := s.Render(req)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.fanOut(ctx, msg)
	}()
}

func (s *Service) fanOut(ctx context.Context, msg Message) {
	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendCompletion(ctx, msg); err != nil {
				s.logger.ErrorContext(ctx, "completion notification failed",
					"sink", entry.Name,
					"job_id", msg.JobID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LogSink writes notices to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// SendCompletion logs msg.
func (l LogSink) SendCompletion(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "job completion notice",
		"job_id", msg.JobID,
		"owner_id", msg.OwnerID,
		"asset_name", msg.AssetName,
		"asset_url", msg.AssetURL,
	)
	return nil
}
