package collaborator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Simulated stands in for a real pipeline in development: it reports Steps evenly spaced
// progress updates and succeeds with a synthetic output reference.
type Simulated struct {
	Steps     int
	StepDelay time.Duration
	// OutputPrefix defaults to "sim://outputs".
	OutputPrefix string
}

var _ core.Collaborator = (*Simulated)(nil)

// Execute honours ctx between steps.
func (s *Simulated) Execute(ctx context.Context, inv model.Invocation, progress core.ProgressFunc) (model.Outcome, error) {
	steps := max(s.Steps, 1)
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return model.TransientFailure("execution timed out"), nil
			}
			return model.Outcome{Status: model.OutcomeCancelled}, nil
		case <-time.After(s.StepDelay):
		}
		if progress != nil {
			progress(i*100/steps, fmt.Sprintf("step %d/%d", i, steps))
		}
	}
	prefix := s.OutputPrefix
	if prefix == "" {
		prefix = "sim://outputs"
	}
	return model.Succeeded(fmt.Sprintf("%s/%s/%s", prefix, inv.Type, inv.JobID)), nil
}
