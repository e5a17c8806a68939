package data

import "github.com/target/mmk-media-jobs/internal/core"

// Repository sentinels live in core so services can match them without importing data.
var (
	ErrJobNotFound       = core.ErrJobNotFound
	ErrStatusConflict    = core.ErrStatusConflict
	ErrWebhookNotFound   = core.ErrWebhookNotFound
	ErrDeliveryNotFound  = core.ErrDeliveryNotFound
	ErrDeliveryFinalized = core.ErrDeliveryFinalized
)
