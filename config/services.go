package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the job worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeDispatcher runs the webhook delivery runner.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeDispatcher,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeWorker,
			ServiceModeDispatcher,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, dispatcher, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains job worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// Lanes restricts the pool to a subset of priority lanes, drained in the given order.
	Lanes []model.Priority `env:"LANES" envDefault:"high,default,low" envSeparator:","`

	// Lease is how long a claimed job stays owned without a heartbeat.
	Lease time.Duration `env:"LEASE" envDefault:"30s"`

	// Heartbeat is how often a running job renews its lease. Zero means a third of Lease.
	Heartbeat time.Duration `env:"HEARTBEAT" envDefault:"10s"`

	// Simulate registers simulated collaborators for job types without a configured command.
	Simulate bool `env:"SIMULATE" envDefault:"false"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Lease < 5*time.Second {
		w.Lease = 5 * time.Second
	}
	if w.Heartbeat <= 0 || w.Heartbeat >= w.Lease {
		w.Heartbeat = w.Lease / 3
	}
	if len(w.Lanes) == 0 {
		w.Lanes = model.Lanes()
	}
}

// DispatcherConfig contains webhook delivery runner configuration.
type DispatcherConfig struct {
	// Concurrency is the number of delivery goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`

	// Lease bounds one delivery attempt.
	Lease time.Duration `env:"LEASE" envDefault:"30s"`

	// RequestTimeout bounds the HTTP request to a subscriber.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// PerHostRate is the request rate allowed per registrable domain; zero disables limiting.
	PerHostRate float64 `env:"PER_HOST_RATE" envDefault:"10"`

	// PerHostBurst is the burst allowed per registrable domain.
	PerHostBurst int `env:"PER_HOST_BURST" envDefault:"5"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 10 * time.Second
	}
	if d.Lease <= d.RequestTimeout {
		d.Lease = 3 * d.RequestTimeout
	}
	if d.PerHostRate < 0 {
		d.PerHostRate = 0
	}
	if d.PerHostBurst < 1 {
		d.PerHostBurst = 1
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`

	// PendingMaxAge is how long a job may stay PENDING before the reaper re-enqueues it.
	PendingMaxAge time.Duration `env:"PENDING_MAX_AGE" envDefault:"5m"`

	// JobRetention is how long terminal jobs are kept. Zero disables deletion.
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"720h"` // 30 days

	// DeliveryRetention is how long webhook delivery attempts are kept. Zero disables deletion.
	DeliveryRetention time.Duration `env:"DELIVERY_RETENTION" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.PendingMaxAge < time.Minute {
		r.PendingMaxAge = time.Minute
	}
	if r.JobRetention < 0 {
		r.JobRetention = 0
	} else if r.JobRetention > 0 && r.JobRetention < time.Hour {
		r.JobRetention = time.Hour
	}
	if r.DeliveryRetention < 0 {
		r.DeliveryRetention = 0
	} else if r.DeliveryRetention > 0 && r.DeliveryRetention < time.Hour {
		r.DeliveryRetention = time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
