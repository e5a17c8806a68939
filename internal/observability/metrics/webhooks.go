package metrics

import (
	"strconv"
	"time"

	"github.com/target/mmk-media-jobs/internal/observability/statsd"
)

// WebhookMetric describes one delivery attempt.
type WebhookMetric struct {
	Event      string
	Result     string
	StatusCode int
	Attempt    int
	Duration   time.Duration
}

// EmitWebhookDelivery emits delivery attempt counters and latency.
func EmitWebhookDelivery(sink statsd.Sink, in WebhookMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"event":   in.Event,
		"result":  in.Result,
		"attempt": strconv.Itoa(in.Attempt),
	}
	if in.StatusCode > 0 {
		tags["status_class"] = strconv.Itoa(in.StatusCode/100) + "xx"
	}
	sink.Count("webhook.delivery", 1, tags)
	if in.Duration > 0 {
		sink.Timing("webhook.delivery.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth reports ready and delayed items per lane.
func EmitQueueDepth(sink statsd.Sink, queue string, ready, delayed map[string]int64, leased, dead int64) {
	if sink == nil {
		return
	}
	for lane, n := range ready {
		sink.Gauge("queue.ready", float64(n), map[string]string{"queue": queue, "lane": lane})
	}
	for lane, n := range delayed {
		sink.Gauge("queue.delayed", float64(n), map[string]string{"queue": queue, "lane": lane})
	}
	sink.Gauge("queue.leased", float64(leased), map[string]string{"queue": queue})
	sink.Gauge("queue.dead_letter", float64(dead), map[string]string{"queue": queue})
}
