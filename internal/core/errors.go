package core

import "errors"

// Sentinel errors returned by repository implementations.
var (
	// ErrJobNotFound is returned when a job row does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrStatusConflict is returned when a compare-and-set on job status matched no row:
	// the job exists but is not in the expected source status (or belongs to another worker).
	ErrStatusConflict = errors.New("job status changed concurrently")
	// ErrWebhookNotFound is returned when a webhook registration does not exist for the owner.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrDeliveryNotFound is returned when a delivery row does not exist.
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
	// ErrDeliveryFinalized is returned when finalising a delivery that is no longer pending.
	ErrDeliveryFinalized = errors.New("webhook delivery already finalized")
	// ErrNoWork is returned by Broker.Reserve when no lane has a due item.
	ErrNoWork = errors.New("no work available")
)
