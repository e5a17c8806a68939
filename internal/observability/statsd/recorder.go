package statsd

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Recorder is an in-memory Sink. Values are keyed by metric name plus sorted
// tags, e.g. "queue.ready|lane:high,queue:jobs".
type Recorder struct {
	mu      sync.Mutex
	counts  map[string]int64
	gauges  map[string]float64
	timings map[string][]time.Duration
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counts:  map[string]int64{},
		gauges:  map[string]float64{},
		timings: map[string][]time.Duration{},
	}
}

// Count adds value to the counter.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[Key(name, tags)] += value
}

// Gauge keeps the last value.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[Key(name, tags)] = value
}

// Timing appends the observation.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(name, tags)
	r.timings[k] = append(r.timings[k], value)
}

// Counter returns the accumulated count for key.
func (r *Recorder) Counter(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

// GaugeValue returns the last gauge value for key and whether it was set.
func (r *Recorder) GaugeValue(key string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.gauges[key]
	return v, ok
}

// Timings returns a copy of the observations for key.
func (r *Recorder) Timings(key string) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.timings[key]...)
}

// Key builds the lookup key used by Recorder.
func Key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+":"+v)
	}
	sort.Strings(pairs)
	return name + "|" + strings.Join(pairs, ",")
}
