package model

import (
	"fmt"
	"math"
	"time"
)

// JobPolicy holds the per-type execution limits applied at submission.
type JobPolicy struct {
	MaxRetries      int             `yaml:"max_retries"`
	Timeout         time.Duration   `yaml:"timeout"`
	DefaultPriority Priority        `yaml:"default_priority"`
	RetryDelays     []time.Duration `yaml:"retry_delays"`
	// Command and Args configure the exec collaborator for this type.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// RetryDelay returns the delay before retry n (1-based). Explicit delays win; otherwise 2^n seconds.
func (p JobPolicy) RetryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if len(p.RetryDelays) > 0 {
		if n <= len(p.RetryDelays) {
			return p.RetryDelays[n-1]
		}
		return p.RetryDelays[len(p.RetryDelays)-1]
	}
	return ExponentialDelay(n)
}

// ExponentialDelay returns 2^n seconds, capped at one hour.
func ExponentialDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 11 {
		return time.Hour
	}
	return time.Duration(math.Pow(2, float64(n))) * time.Second
}

// PolicyTable maps job types to their policies.
type PolicyTable map[JobType]JobPolicy

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		JobTypeReconstruction: {
			MaxRetries: 3, Timeout: time.Hour, DefaultPriority: PriorityDefault,
		},
		JobTypeNovelViewTraining: {
			MaxRetries: 2, Timeout: 2 * time.Hour, DefaultPriority: PriorityLow,
		},
		JobTypeVisionAnalysis: {
			MaxRetries: 2, Timeout: 180 * time.Second, DefaultPriority: PriorityHigh,
		},
		JobTypeGenerativeImage: {
			MaxRetries: 2, Timeout: 10 * time.Minute, DefaultPriority: PriorityDefault,
		},
		JobTypeMeshOptimization: {
			MaxRetries: 2, Timeout: 30 * time.Minute, DefaultPriority: PriorityDefault,
		},
	}
}

// Lookup returns the policy for t.
func (pt PolicyTable) Lookup(t JobType) (JobPolicy, bool) {
	p, ok := pt[t]
	return p, ok
}

// PolicyOverride is a partial JobPolicy. Nil fields keep the base value, so an explicit
// zero such as max_retries: 0 still applies.
type PolicyOverride struct {
	MaxRetries      *int            `yaml:"max_retries"`
	Timeout         *time.Duration  `yaml:"timeout"`
	DefaultPriority *Priority       `yaml:"default_priority"`
	RetryDelays     []time.Duration `yaml:"retry_delays"`
	Command         *string         `yaml:"command"`
	Args            []string        `yaml:"args"`
}

// Merge overlays the fields set in overrides onto a copy of pt.
func (pt PolicyTable) Merge(overrides map[JobType]PolicyOverride) PolicyTable {
	out := make(PolicyTable, len(pt))
	for k, v := range pt {
		out[k] = v
	}
	for k, o := range overrides {
		base := out[k]
		if o.MaxRetries != nil {
			base.MaxRetries = *o.MaxRetries
		}
		if o.Timeout != nil {
			base.Timeout = *o.Timeout
		}
		if o.DefaultPriority != nil {
			base.DefaultPriority = *o.DefaultPriority
		}
		if o.RetryDelays != nil {
			base.RetryDelays = o.RetryDelays
		}
		if o.Command != nil {
			base.Command = *o.Command
			base.Args = o.Args
		} else if o.Args != nil {
			base.Args = o.Args
		}
		out[k] = base
	}
	return out
}

// Validate checks every entry is usable.
func (pt PolicyTable) Validate() error {
	for t, p := range pt {
		if !t.Valid() {
			return fmt.Errorf("policy: unknown job type %q", t)
		}
		if p.MaxRetries < 0 {
			return fmt.Errorf("policy %s: max_retries must be >= 0", t)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("policy %s: timeout must be positive", t)
		}
		if !p.DefaultPriority.Valid() {
			return fmt.Errorf("policy %s: invalid default_priority %q", t, p.DefaultPriority)
		}
	}
	return nil
}
