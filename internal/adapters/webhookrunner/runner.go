// Package webhookrunner delivers webhook attempts queued by the dispatcher: it POSTs the
// signed envelope to the subscriber and hands the result back for settlement.
package webhookrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/job"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
	"github.com/target/mmk-media-jobs/internal/service"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	maxResponseBodyBytes = 4 * 1024
	defaultLease         = 30 * time.Second
	settleRetryDelay     = 5 * time.Second
	reserveBackoff       = time.Second
	// limiterIdleTTL is how long a per-domain limiter may sit unused before it is dropped.
	limiterIdleTTL = 10 * time.Minute
)

// Settler records attempt results; *service.WebhookDispatcher implements it.
type Settler interface {
	Settle(ctx context.Context, task webhook.Task, res service.AttemptResult) (service.Settlement, error)
	Resume(ctx context.Context, task webhook.Task) (service.Settlement, bool, error)
}

// RunnerOptions configures the delivery runner.
type RunnerOptions struct {
	Broker  core.Broker // Required: the webhook delivery broker
	Settler Settler     // Required

	HTTPClient *http.Client
	Notifier   job.Notifier
	// Lease bounds one delivery attempt including the HTTP round trip.
	Lease       time.Duration
	Concurrency int
	// PerHostRate limits requests per second to one registrable domain; zero disables it.
	PerHostRate  float64
	PerHostBurst int

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner executes delivery tasks.
type Runner struct {
	broker       core.Broker
	settler      Settler
	http         *http.Client
	notifier     job.Notifier
	ownsNotifier bool
	lease        time.Duration
	workers      int
	logger       *slog.Logger
	metrics      statsd.Sink

	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	mu        sync.Mutex
	hosts     map[string]*hostLimiter
	lastSweep time.Time
}

type hostLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

// NewRunner validates options and constructs a delivery runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.Settler == nil {
		return nil, errors.New("settler is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	limit := rate.Inf
	if opts.PerHostRate > 0 {
		limit = rate.Limit(opts.PerHostRate)
	}
	burst := opts.PerHostBurst
	if burst <= 0 {
		burst = 1
	}

	r := &Runner{
		broker:   opts.Broker,
		settler:  opts.Settler,
		http:     hc,
		notifier: opts.Notifier,
		lease:    lease,
		workers:  workers,
		logger:   logger.With("component", "webhook_runner"),
		metrics:  opts.Metrics,
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL(limit, burst),
		now:      time.Now,
		hosts:    make(map[string]*hostLimiter),
	}
	if r.notifier == nil {
		n, err := job.NewNotifier(job.NotifierOptions{Waiter: opts.Broker})
		if err != nil {
			return nil, fmt.Errorf("build notifier: %w", err)
		}
		r.notifier = n
		r.ownsNotifier = true
	}
	return r, nil
}

// Run starts worker goroutines and delivers until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting webhook runner", "workers", r.workers, "lease", r.lease)

	unsub, ch := r.notifier.Subscribe(r.broker.Name())
	defer unsub()
	if r.ownsNotifier {
		defer r.notifier.StopAll()
	}

	var wg sync.WaitGroup
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop(ctx, ch)
		}()
	}
	wg.Wait()
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) {
	for ctx.Err() == nil {
		err := r.RunOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrNoWork):
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notify:
				if !ok && !sleepCtx(ctx, reserveBackoff) {
					return
				}
			}
		default:
			if ctx.Err() != nil {
				return
			}
			r.logger.WarnContext(ctx, "reserve delivery task failed", "error", err)
			if !sleepCtx(ctx, reserveBackoff) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RunOnce reserves and delivers at most one task. It returns core.ErrNoWork when nothing is due.
func (r *Runner) RunOnce(ctx context.Context) error {
	lease, err := r.broker.Reserve(ctx, []string{webhook.Lane}, r.lease)
	if err != nil {
		if errors.Is(err, core.ErrNoWork) {
			return err
		}
		return fmt.Errorf("reserve: %w", err)
	}
	r.deliver(ctx, lease)
	return nil
}

func (r *Runner) deliver(ctx context.Context, lease *core.Lease) {
	var task webhook.Task
	if err := json.Unmarshal(lease.Payload, &task); err != nil || task.DeliveryID == "" || task.TargetURL == "" {
		r.logger.WarnContext(ctx, "malformed delivery task", "item_id", lease.ID, "error", err)
		r.deadLetter(ctx, lease, "malformed delivery task")
		return
	}
	logger := r.logger.With(
		"delivery_id", task.DeliveryID,
		"webhook_id", task.WebhookID,
		"event", task.Event,
		"attempt", task.Attempt,
	)

	// A task seen before may already have its attempt recorded; then only the
	// follow-up is settled and nothing is sent again.
	if lease.Attempt > 1 {
		resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		st, done, err := r.settler.Resume(resumeCtx, task)
		cancel()
		if err != nil {
			logger.ErrorContext(ctx, "resume delivery failed; will retry", "error", err)
			r.nack(context.WithoutCancel(ctx), lease, settleRetryDelay)
			return
		}
		if done {
			logger.InfoContext(ctx, "delivery attempt already recorded", "retry_scheduled", st.Retry != nil)
			r.finish(context.WithoutCancel(ctx), lease, st, logger)
			return
		}
	}

	if err := r.wait(ctx, task.TargetURL); err != nil {
		// Shutting down: put the attempt back untouched.
		r.nack(context.WithoutCancel(ctx), lease, 0)
		return
	}

	res := r.send(ctx, task)

	// The result is recorded even when the runner is shutting down mid-request.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	st, err := r.settler.Settle(settleCtx, task, res)
	if err != nil {
		// Either the attempt or its retry is unrecorded. The task comes back and
		// Resume picks up whatever is missing.
		logger.ErrorContext(ctx, "settle delivery failed; will retry", "error", err, "recorded", st.Delivery != nil)
		r.nack(settleCtx, lease, settleRetryDelay)
		return
	}
	r.finish(settleCtx, lease, st, logger)

	if res.Succeeded() {
		logger.InfoContext(ctx, "webhook delivered", "status_code", res.StatusCode, "duration", res.Duration)
	} else {
		logger.WarnContext(ctx, "webhook attempt failed",
			"status_code", res.StatusCode,
			"error", res.Err,
			"retry_in", st.Delay,
		)
	}
}

func (r *Runner) finish(ctx context.Context, lease *core.Lease, st service.Settlement, logger *slog.Logger) {
	if st.Exhausted {
		r.deadLetter(ctx, lease, "delivery attempts exhausted")
		return
	}
	if err := r.broker.Ack(ctx, lease); err != nil {
		logger.ErrorContext(ctx, "ack delivery task failed", "error", err)
	}
}

func (r *Runner) send(ctx context.Context, task webhook.Task) service.AttemptResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.TargetURL, bytes.NewReader(task.Payload))
	if err != nil {
		return service.AttemptResult{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderSignature, task.Signature)
	req.Header.Set(webhook.HeaderEvent, string(task.Event))
	req.Header.Set(webhook.HeaderDeliveryID, task.DeliveryID)

	resp, err := r.http.Do(req)
	if err != nil {
		return service.AttemptResult{Err: fmt.Errorf("send request: %w", err), Duration: time.Since(start)}
	}
	body, readErr := readResponseBody(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && readErr == nil {
		readErr = closeErr
	}
	res := service.AttemptResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   time.Since(start),
	}
	if readErr != nil && !res.Succeeded() {
		res.Err = fmt.Errorf("read response body: %w", readErr)
	}
	return res
}

func readResponseBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, readErr := io.ReadAll(io.LimitReader(body, maxResponseBodyBytes))
	if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
		readErr = drainErr
	}
	return data, readErr
}

// wait blocks until the per-domain limiter admits a request to target.
func (r *Runner) wait(ctx context.Context, target string) error {
	if r.limit == rate.Inf {
		return nil
	}
	return r.limiter(hostKey(target)).Wait(ctx)
}

func (r *Runner) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) >= r.idleTTL {
		for k, h := range r.hosts {
			if now.Sub(h.lastUsed) >= r.idleTTL {
				delete(r.hosts, k)
			}
		}
		r.lastSweep = now
	}
	h, ok := r.hosts[key]
	if !ok {
		h = &hostLimiter{Limiter: rate.NewLimiter(r.limit, r.burst)}
		r.hosts[key] = h
	}
	h.lastUsed = now
	return h.Limiter
}

// idleTTL never drops a limiter before its bucket has refilled, so a recreated
// limiter grants nothing the old one would not have.
func idleTTL(limit rate.Limit, burst int) time.Duration {
	if limit == rate.Inf || limit <= 0 {
		return limiterIdleTTL
	}
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return max(limiterIdleTTL, refill)
}

// hostKey groups targets by registrable domain so hooks.example.com and api.example.com
// share one budget. IPs and single-label hosts key on the host itself.
func hostKey(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1
	}
	return host
}

func (r *Runner) nack(ctx context.Context, lease *core.Lease, delay time.Duration) {
	if err := r.broker.Nack(ctx, lease, delay); err != nil {
		r.logger.ErrorContext(ctx, "nack delivery task failed", "item_id", lease.ID, "error", err)
	}
}

func (r *Runner) deadLetter(ctx context.Context, lease *core.Lease, reason string) {
	if r.metrics != nil {
		r.metrics.Count("webhook.dead_letter", 1, map[string]string{"reason": reason})
	}
	if err := r.broker.DeadLetter(ctx, lease, reason); err != nil {
		r.logger.ErrorContext(ctx, "dead-letter delivery task failed", "item_id", lease.ID, "error", err)
	}
}
