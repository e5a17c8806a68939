package model

import "fmt"

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusQueued, JobStatusCancelled},
	JobStatusQueued:     {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusRetrying, JobStatusCancelled},
	JobStatusRetrying:   {JobStatusProcessing, JobStatusCancelled},
}

// IsTerminal reports whether no transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Claimable reports whether a worker may move a job in status s to PROCESSING.
func (s JobStatus) Claimable() bool {
	return CanTransition(s, JobStatusProcessing)
}

// CanTransition reports whether from→to is an edge of the job state machine.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal job transition %s -> %s", e.From, e.To)
}

// CheckTransition returns a *TransitionError when from→to is not allowed.
func CheckTransition(from, to JobStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// SourcesFor returns every status that may transition to the given target.
func SourcesFor(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusPending, JobStatusQueued, JobStatusProcessing, JobStatusRetrying} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
