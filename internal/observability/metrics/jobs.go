// Package metrics names and tags the metrics emitted by the job, webhook and
// reaper services.
package metrics

import (
	"strconv"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
	obserrors "github.com/target/mmk-media-jobs/internal/observability/errors"
	"github.com/target/mmk-media-jobs/internal/observability/statsd"
)

// Result tag values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric describes one job state transition.
type JobMetric struct {
	Job        *model.Job
	Transition string
	Result     string
	// Duration is the attempt's execution time; zero skips the timing.
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle emits job.transition and, where they apply, job.duration,
// job.queue_wait and job.retry.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil || in.Job == nil {
		return
	}
	job := in.Job
	tags := map[string]string{
		"job_type":   string(job.Type),
		"priority":   string(job.Priority),
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
	if in.Result != ResultSuccess {
		return
	}
	switch job.Status {
	case model.JobStatusProcessing:
		if job.StartedAt != nil && job.RetryCount == 0 {
			sink.Timing("job.queue_wait", job.StartedAt.Sub(job.CreatedAt), map[string]string{
				"job_type": string(job.Type),
				"priority": string(job.Priority),
			})
		}
	case model.JobStatusRetrying:
		sink.Count("job.retry", 1, map[string]string{
			"job_type": string(job.Type),
			"attempt":  strconv.Itoa(job.RetryCount),
		})
	}
}

// CloneTags returns a copy of src, or nil when src is empty.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
