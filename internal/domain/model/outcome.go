package model

import "encoding/json"

// OutcomeStatus is the result class a collaborator reports for one attempt.
type OutcomeStatus string

const (
	OutcomeSuccess          OutcomeStatus = "success"
	OutcomeTransientFailure OutcomeStatus = "transient_failure"
	OutcomePermanentFailure OutcomeStatus = "permanent_failure"
	// OutcomeCancelled is produced by the runner when a cancel request interrupted execution.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is what a collaborator returns from one execution.
type Outcome struct {
	Status          OutcomeStatus `json:"status"`
	OutputReference string        `json:"output_reference,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Succeeded builds a success outcome.
func Succeeded(outputRef string) Outcome {
	return Outcome{Status: OutcomeSuccess, OutputReference: outputRef}
}

// TransientFailure builds a retryable failure outcome.
func TransientFailure(reason string) Outcome {
	return Outcome{Status: OutcomeTransientFailure, Error: reason}
}

// PermanentFailure builds a non-retryable failure outcome.
func PermanentFailure(reason string) Outcome {
	return Outcome{Status: OutcomePermanentFailure, Error: reason}
}

// Invocation is the input handed to a collaborator.
type Invocation struct {
	JobID          string          `json:"job_id"`
	Type           JobType         `json:"job_type"`
	InputReference string          `json:"input_reference"`
	Metadata       json.RawMessage `json:"metadata"`
	Attempt        int             `json:"attempt"`
}
