package core

import (
	"context"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// ProgressFunc receives progress reports from a running collaborator. Values are 0..100.
type ProgressFunc func(percent int, message string)

// Collaborator runs one media pipeline. A returned error is classified by the lifecycle
// (transient unless wrapped as permanent); a nil error means the Outcome is authoritative.
type Collaborator interface {
	Execute(ctx context.Context, inv model.Invocation, progress ProgressFunc) (model.Outcome, error)
}

// CollaboratorFunc adapts a function to Collaborator.
type CollaboratorFunc func(ctx context.Context, inv model.Invocation, progress ProgressFunc) (model.Outcome, error)

// Execute calls f.
func (f CollaboratorFunc) Execute(ctx context.Context, inv model.Invocation, progress ProgressFunc) (model.Outcome, error) {
	return f(ctx, inv, progress)
}

// CollaboratorRegistry resolves the collaborator for a job type.
type CollaboratorRegistry interface {
	Lookup(t model.JobType) (Collaborator, bool)
}
