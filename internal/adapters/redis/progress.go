package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

const progressChannelPrefix = "mediajobs:progress:"

// ProgressHub fans job progress events out over Redis pub/sub so any API replica can
// stream them.
type ProgressHub struct {
	client redis.UniversalClient
	logger *slog.Logger
	buffer int
}

var (
	_ core.ProgressPublisher  = (*ProgressHub)(nil)
	_ core.ProgressSubscriber = (*ProgressHub)(nil)
)

// NewProgressHub creates a ProgressHub.
func NewProgressHub(client redis.UniversalClient, logger *slog.Logger) *ProgressHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHub{client: client, logger: logger.With("component", "progress_hub"), buffer: 16}
}

func progressChannel(jobID string) string { return progressChannelPrefix + jobID }

// Publish broadcasts ev to subscribers of its job.
func (h *ProgressHub) Publish(ctx context.Context, ev model.ProgressEvent) error {
	if ev.JobID == "" {
		return errors.New("progress event requires a job id")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := h.client.Publish(ctx, progressChannel(ev.JobID), b).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events for jobID. The returned func unsubscribes and
// closes the channel; it is also called when ctx ends.
func (h *ProgressHub) Subscribe(ctx context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	sub := h.client.Subscribe(ctx, progressChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan model.ProgressEvent, h.buffer)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.logger.WarnContext(ctx, "drop malformed progress event", "job_id", jobID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
