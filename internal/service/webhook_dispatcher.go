package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/observability/metrics"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
)

// WebhookDispatcherOptions groups dependencies for WebhookDispatcher.
type WebhookDispatcherOptions struct {
	Repo       core.WebhookRepository  // Required
	Deliveries core.DeliveryRepository // Required
	Broker     core.Broker             // Required: the webhook delivery broker
	Evaluator  JMESPathEvaluator       // Optional
	Metrics    statsd.Sink             // Optional
	Logger     *slog.Logger            // Optional
	Now        func() time.Time        // Optional
}

// WebhookDispatcher turns terminal job events into delivery tasks and records attempt outcomes.
// Each attempt has its own PENDING audit row; retries are new tasks scheduled on the broker's
// delayed set, never sleeps.
type WebhookDispatcher struct {
	repo       core.WebhookRepository
	deliveries core.DeliveryRepository
	broker     core.Broker
	jems       JMESPathEvaluator
	metrics    statsd.Sink
	logger     *slog.Logger
	now        func() time.Time
}

var _ WebhookTrigger = (*WebhookDispatcher)(nil)

// AttemptResult is what the delivery worker observed for one POST.
type AttemptResult struct {
	StatusCode int
	Body       []byte
	Err        error
	Duration   time.Duration
}

// Succeeded reports a 2xx response.
func (r AttemptResult) Succeeded() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Settlement tells the worker what happened after an attempt was recorded.
type Settlement struct {
	Delivery *model.WebhookDelivery
	// Retry is the follow-up task when another attempt was scheduled.
	Retry *webhook.Task
	Delay time.Duration
	// Exhausted is set when the final retry failed; the task belongs on the dead-letter lane.
	Exhausted bool
}

// NewWebhookDispatcher constructs a WebhookDispatcher.
func NewWebhookDispatcher(opts WebhookDispatcherOptions) (*WebhookDispatcher, error) {
	if opts.Repo == nil {
		return nil, errors.New("WebhookRepository is required")
	}
	if opts.Deliveries == nil {
		return nil, errors.New("DeliveryRepository is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("Broker is required")
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &WebhookDispatcher{
		repo:       opts.Repo,
		deliveries: opts.Deliveries,
		broker:     opts.Broker,
		jems:       jems,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "webhook_dispatcher"),
		now:        now,
	}, nil
}

// Trigger schedules the first delivery attempt of ev for every active, matching registration
// of the owner. It returns how many attempts were scheduled.
func (d *WebhookDispatcher) Trigger(ctx context.Context, ev TriggerEvent) (int, error) {
	if !ev.Event.Valid() {
		return 0, fmt.Errorf("unknown webhook event %q", ev.Event)
	}
	hooks, err := d.repo.FindActive(ctx, ev.OwnerID, ev.Event)
	if err != nil {
		return 0, fmt.Errorf("find webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return 0, nil
	}

	now := d.now()
	body, err := webhook.NewEnvelope(ev.Event, ev.Data, now).Marshal()
	if err != nil {
		return 0, err
	}

	var (
		generic   any
		scheduled int
		errs      []error
	)
	for _, hook := range hooks {
		if !hook.IsActive || !hook.Subscribes(ev.Event) {
			continue
		}
		if hook.Scope.Match != nil && generic == nil {
			if generic, err = toGeneric(ev.Data); err != nil {
				return scheduled, err
			}
		}
		if !d.matches(ctx, hook, ev, generic) {
			continue
		}
		task := webhook.Task{
			DeliveryID: uuid.NewString(),
			TriggerID:  uuid.NewString(),
			WebhookID:  hook.ID,
			OwnerID:    hook.OwnerID,
			TargetURL:  hook.TargetURL,
			Event:      ev.Event,
			Payload:    body,
			Signature:  webhook.Sign(body, hook.SigningSecret),
			Attempt:    0,
		}
		if err := d.schedule(ctx, task, 0); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.ID, err))
			continue
		}
		scheduled++
	}
	return scheduled, errors.Join(errs...)
}

func (d *WebhookDispatcher) matches(ctx context.Context, hook *model.WebhookRegistration, ev TriggerEvent, data any) bool {
	if hook.Scope.AssetID != nil {
		if ev.AssetID == nil || *ev.AssetID != *hook.Scope.AssetID {
			return false
		}
	}
	if hook.Scope.Match == nil {
		return true
	}
	res, err := d.jems.Evaluate(*hook.Scope.Match, data)
	if err != nil {
		d.logger.WarnContext(ctx, "webhook match expression failed", "webhook_id", hook.ID, "error", err)
		return false
	}
	return truthy(res)
}

// truthy follows JMESPath truthiness: false, null, empty strings, arrays and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}
	return out, nil
}

// schedule writes the PENDING audit row for task and queues it after delay.
func (d *WebhookDispatcher) schedule(ctx context.Context, task webhook.Task, delay time.Duration) error {
	next := d.now().Add(delay)
	if _, err := d.deliveries.CreatePending(ctx, core.NewDeliveryParams{
		ID:            task.DeliveryID,
		WebhookID:     task.WebhookID,
		TriggerID:     task.TriggerID,
		Event:         task.Event,
		Payload:       task.Payload,
		RetryCount:    task.Attempt,
		NextAttemptAt: &next,
	}); err != nil {
		return fmt.Errorf("record pending delivery: %w", err)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode delivery task: %w", err)
	}
	if err := d.broker.Enqueue(ctx, core.EnqueueParams{
		ID:      task.DeliveryID,
		Lane:    webhook.Lane,
		Payload: payload,
		Delay:   delay,
	}); err != nil {
		msg := "enqueue failed: " + err.Error()
		if _, ferr := d.deliveries.Finalize(ctx, task.DeliveryID, model.DeliveryResult{
			Status: model.DeliveryFailed,
			Error:  &msg,
		}); ferr != nil {
			d.logger.ErrorContext(ctx, "finalize unqueued delivery failed", "delivery_id", task.DeliveryID, "error", ferr)
		}
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// Settle records the outcome of one attempt and, on failure, schedules the next retry
// (2s, 4s, 8s) or reports the trigger as exhausted.
func (d *WebhookDispatcher) Settle(ctx context.Context, task webhook.Task, res AttemptResult) (Settlement, error) {
	result := model.DeliveryResult{Status: model.DeliverySuccess}
	if res.StatusCode > 0 {
		code := res.StatusCode
		result.HTTPStatusCode = &code
	}
	if res.Body != nil {
		excerpt := webhook.Excerpt(res.Body)
		result.ResponseExcerpt = &excerpt
	}

	var (
		delay time.Duration
		more  bool
	)
	if !res.Succeeded() {
		result.Status = model.DeliveryFailed
		msg := failureMessage(res)
		result.Error = &msg
		delay, more = webhook.NextAttempt(task.Attempt)
		if more {
			next := d.now().Add(delay)
			result.NextAttemptAt = &next
		}
	}

	delivery, err := d.deliveries.Finalize(ctx, task.DeliveryID, result)
	if errors.Is(err, core.ErrDeliveryFinalized) {
		// Recorded by an earlier run of this task; make sure its follow-up exists.
		d.logger.InfoContext(ctx, "delivery already finalized", "delivery_id", task.DeliveryID)
		st, _, err := d.Resume(ctx, task)
		return st, err
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("finalize delivery: %w", err)
	}

	outcome := metrics.ResultSuccess
	if result.Status == model.DeliveryFailed {
		outcome = metrics.ResultError
	}
	metrics.EmitWebhookDelivery(d.metrics, metrics.WebhookMetric{
		Event:      string(task.Event),
		Result:     outcome,
		StatusCode: res.StatusCode,
		Attempt:    task.Attempt,
		Duration:   res.Duration,
	})
	return d.followUp(ctx, task, delivery, result.Status, delay)
}

// Resume finishes a task whose broker item was handed out again, for instance after a
// nack because its retry could not be scheduled. done is false while the attempt is still
// pending and has to be sent; otherwise the recorded outcome is settled without sending.
func (d *WebhookDispatcher) Resume(ctx context.Context, task webhook.Task) (st Settlement, done bool, err error) {
	rec, err := d.deliveries.GetByID(ctx, task.DeliveryID)
	if err != nil {
		return Settlement{}, false, fmt.Errorf("load delivery: %w", err)
	}
	if rec.Status == model.DeliveryPending {
		return Settlement{}, false, nil
	}
	delay, _ := webhook.NextAttempt(task.Attempt)
	if rec.NextAttemptAt != nil {
		delay = max(rec.NextAttemptAt.Sub(d.now()), 0)
	}
	st, err = d.followUp(ctx, task, rec, rec.Status, delay)
	return st, true, err
}

// followUp schedules the next attempt after a recorded failure, or reports the trigger
// exhausted. Scheduling is idempotent per (trigger, attempt), so it can be repeated
// until it succeeds.
func (d *WebhookDispatcher) followUp(
	ctx context.Context,
	task webhook.Task,
	rec *model.WebhookDelivery,
	status model.DeliveryStatus,
	delay time.Duration,
) (Settlement, error) {
	st := Settlement{Delivery: rec}
	if status != model.DeliveryFailed {
		return st, nil
	}
	if _, more := webhook.NextAttempt(task.Attempt); !more {
		d.logger.WarnContext(ctx, "webhook delivery exhausted",
			"trigger_id", task.TriggerID,
			"webhook_id", task.WebhookID,
			"attempts", task.Attempt+1,
		)
		st.Exhausted = true
		return st, nil
	}

	retry := task
	retry.Attempt = task.Attempt + 1
	retry.DeliveryID = retryDeliveryID(task.TriggerID, retry.Attempt)
	scheduled, err := d.scheduleRetry(ctx, retry, delay)
	if err != nil {
		return st, fmt.Errorf("schedule retry %d: %w", retry.Attempt, err)
	}
	st.Retry = &scheduled
	st.Delay = delay
	return st, nil
}

// retryDeliveryNamespace seeds the name-based ids of retry attempts.
var retryDeliveryNamespace = uuid.MustParse("8d0f4c2e-5b1a-4f3e-9c6d-2a7e1b9f0c34")

// retryDeliveryID is stable per (trigger, attempt), so a repeated schedule finds its row.
func retryDeliveryID(triggerID string, attempt int) string {
	return uuid.NewSHA1(retryDeliveryNamespace, []byte(triggerID+"/"+strconv.Itoa(attempt))).String()
}

// scheduleRetry records the PENDING row of a retry and queues it unless the broker already
// holds it. A row that is no longer pending was attempted already and is left alone.
func (d *WebhookDispatcher) scheduleRetry(ctx context.Context, task webhook.Task, delay time.Duration) (webhook.Task, error) {
	next := d.now().Add(delay)
	row, err := d.deliveries.CreatePending(ctx, core.NewDeliveryParams{
		ID:            task.DeliveryID,
		WebhookID:     task.WebhookID,
		TriggerID:     task.TriggerID,
		Event:         task.Event,
		Payload:       task.Payload,
		RetryCount:    task.Attempt,
		NextAttemptAt: &next,
	})
	if err != nil {
		return task, fmt.Errorf("record pending delivery: %w", err)
	}
	if row.ID != "" {
		task.DeliveryID = row.ID
	}
	if row.Status != "" && row.Status != model.DeliveryPending {
		return task, nil
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return task, fmt.Errorf("encode delivery task: %w", err)
	}
	if err := d.broker.Enqueue(ctx, core.EnqueueParams{
		ID:       task.DeliveryID,
		Lane:     webhook.Lane,
		Payload:  payload,
		Delay:    delay,
		IfAbsent: true,
	}); err != nil {
		return task, fmt.Errorf("enqueue delivery: %w", err)
	}
	return task, nil
}

func failureMessage(res AttemptResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return fmt.Sprintf("unexpected status %d", res.StatusCode)
}

// Redeliver schedules a fresh attempt of a recorded delivery, reusing its signed payload.
// Operators use it to replay deliveries of exhausted triggers.
func (d *WebhookDispatcher) Redeliver(ctx context.Context, deliveryID string) (*webhook.Task, error) {
	prev, err := d.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("load delivery: %w", err)
	}
	hook, err := d.repo.GetByID(ctx, prev.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("load webhook: %w", err)
	}
	if !hook.IsActive {
		return nil, fmt.Errorf("webhook %s is deactivated", hook.ID)
	}
	attempts, err := d.deliveries.ListByTrigger(ctx, prev.TriggerID)
	if err != nil {
		return nil, fmt.Errorf("load trigger attempts: %w", err)
	}
	next := 0
	for _, a := range attempts {
		if a.Status == model.DeliveryPending {
			return nil, apperrors.Conflict("trigger still has a pending attempt")
		}
		next = max(next, a.RetryCount+1)
	}
	task := webhook.Task{
		DeliveryID: uuid.NewString(),
		TriggerID:  prev.TriggerID,
		WebhookID:  hook.ID,
		OwnerID:    hook.OwnerID,
		TargetURL:  hook.TargetURL,
		Event:      prev.EventType,
		Payload:    prev.Payload,
		Signature:  webhook.Sign(prev.Payload, hook.SigningSecret),
		// Past the retry schedule, so a replay is attempted exactly once.
		Attempt: max(next, webhook.MaxRetries+1),
	}
	if err := d.schedule(ctx, task, 0); err != nil {
		return nil, err
	}
	return &task, nil
}
