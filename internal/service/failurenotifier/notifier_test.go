package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/observability/notify"
)

func TestServiceNotifyJobFailure(t *testing.T) {
	var mu sync.Mutex
	var received []notify.JobFailurePayload
	capture := notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
		return nil
	})
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "a", Sink: capture}, {Name: "b", Sink: capture}}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123", JobType: "reconstruction"})
	svc.Wait()

	require.Len(t, received, 2)
	assert.Equal(t, notify.SeverityCritical, received[0].Severity)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	assert.False(t, NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{})
	nilSvc.Wait()
}

func TestServiceSinkErrorDoesNotStopOthers(t *testing.T) {
	var called atomic.Bool
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			return errors.New("boom")
		})},
		{Name: "ok", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			called.Store(true)
			return nil
		})},
	}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
	svc.Wait()
	assert.True(t, called.Load())
}

func TestServiceNotifyDoesNotBlockOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	var done atomic.Bool
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slow", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			<-release
			done.Store(true)
			return nil
		})},
	}})

	start := time.Now()
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "123"})
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, done.Load())

	close(release)
	svc.Wait()
	assert.True(t, done.Load())
}

func TestServiceTimeoutBoundsSinks(t *testing.T) {
	svc := NewService(Options{
		Timeout: 20 * time.Millisecond,
		Sinks: []SinkRegistration{{Name: "stuck", Sink: notify.SinkFunc(func(ctx context.Context, _ notify.JobFailurePayload) error {
			<-ctx.Done()
			return ctx.Err()
		})}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{JobID: "123"})
	cancel()

	waited := make(chan struct{})
	go func() {
		svc.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("alert fan-out outlived its timeout")
	}
}

func TestPayloadFromJob(t *testing.T) {
	asset := "asset-1"
	msg := "decoder crashed"
	done := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &model.Job{
		ID: "j1", Type: model.JobTypeMeshOptimization, OwnerID: "o1", AssetID: &asset,
		Priority: model.PriorityLow, RetryCount: 2, MaxRetries: 2, ErrorMessage: &msg, CompletedAt: &done,
	}

	p := PayloadFromJob(job, errors.New("x"))
	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, "mesh-optimization", p.JobType)
	assert.Equal(t, "asset-1", p.AssetID)
	assert.Equal(t, msg, p.Error)
	assert.Equal(t, 2, p.RetryCount)
	assert.Equal(t, done, p.OccurredAt)
	assert.Equal(t, "low", p.Priority)
	assert.Equal(t, "2/2", p.Attempts())
	assert.Equal(t, notify.SeverityWarning, p.Severity)
	assert.NotEmpty(t, p.ErrorClass)
}
