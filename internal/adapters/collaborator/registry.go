// Package collaborator resolves and runs the external media pipelines that execute jobs.
package collaborator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Registry maps job types to collaborators.
type Registry struct {
	mu    sync.RWMutex
	byTyp map[model.JobType]core.Collaborator
}

var _ core.CollaboratorRegistry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byTyp: make(map[model.JobType]core.Collaborator)}
}

// Register binds c to t, replacing any previous binding.
func (r *Registry) Register(t model.JobType, c core.Collaborator) error {
	if !t.Valid() {
		return fmt.Errorf("unknown job type %q", t)
	}
	if c == nil {
		return fmt.Errorf("nil collaborator for %s", t)
	}
	r.mu.Lock()
	r.byTyp[t] = c
	r.mu.Unlock()
	return nil
}

// Lookup returns the collaborator for t.
func (r *Registry) Lookup(t model.JobType) (core.Collaborator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byTyp[t]
	return c, ok
}

// FromPolicies builds a registry with an exec collaborator for every policy that names a
// command. Types without a command get the simulated collaborator when simulate is set.
func FromPolicies(policies model.PolicyTable, simulate bool, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	for _, t := range model.AllJobTypes() {
		p, ok := policies.Lookup(t)
		switch {
		case ok && p.Command != "":
			if err := reg.Register(t, &Exec{Command: p.Command, Args: p.Args, Logger: logger}); err != nil {
				return nil, err
			}
		case simulate:
			if err := reg.Register(t, &Simulated{Steps: 4, StepDelay: 250 * time.Millisecond}); err != nil {
				return nil, err
			}
		default:
			logger.Warn("no collaborator configured for job type", "job_type", t)
		}
	}
	return reg, nil
}
