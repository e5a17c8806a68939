// Package testutil provides testing utilities and helpers for the media job service.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building SubmitJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.SubmitJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.SubmitJobRequest{
			Type:           model.JobTypeReconstruction,
			OwnerID:        "owner-1",
			InputReference: "s3://uploads/scene-1/images.zip",
			Metadata:       json.RawMessage(`{"quality":"high"}`),
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(t model.JobType) *JobRequestBuilder {
	b.req.Type = t
	return b
}

// WithOwner sets the owner.
func (b *JobRequestBuilder) WithOwner(owner string) *JobRequestBuilder {
	b.req.OwnerID = owner
	return b
}

// WithAsset sets the asset id.
func (b *JobRequestBuilder) WithAsset(assetID string) *JobRequestBuilder {
	b.req.AssetID = &assetID
	return b
}

// WithPriority sets an explicit lane.
func (b *JobRequestBuilder) WithPriority(p model.Priority) *JobRequestBuilder {
	b.req.Priority = p
	return b
}

// WithMetadata sets the metadata object.
func (b *JobRequestBuilder) WithMetadata(meta string) *JobRequestBuilder {
	b.req.Metadata = json.RawMessage(meta)
	return b
}

// Build returns the built request.
func (b *JobRequestBuilder) Build() *model.SubmitJobRequest {
	return b.req
}

// NewJobParamsBuilder builds core.NewJobParams for repository tests.
type NewJobParamsBuilder struct {
	p core.NewJobParams
}

// NewJobParams creates a builder with a reconstruction job owned by owner-1.
func NewJobParams() *NewJobParamsBuilder {
	return &NewJobParamsBuilder{p: core.NewJobParams{
		Type:           model.JobTypeReconstruction,
		OwnerID:        "owner-1",
		InputReference: "s3://uploads/scene-1/images.zip",
		Metadata:       []byte(`{}`),
		Priority:       model.PriorityDefault,
		MaxRetries:     3,
		Timeout:        time.Hour,
	}}
}

// WithOwner sets the owner.
func (b *NewJobParamsBuilder) WithOwner(owner string) *NewJobParamsBuilder {
	b.p.OwnerID = owner
	return b
}

// WithType sets the job type.
func (b *NewJobParamsBuilder) WithType(t model.JobType) *NewJobParamsBuilder {
	b.p.Type = t
	return b
}

// WithMaxRetries sets the retry budget.
func (b *NewJobParamsBuilder) WithMaxRetries(n int) *NewJobParamsBuilder {
	b.p.MaxRetries = n
	return b
}

// WithPriority sets the lane.
func (b *NewJobParamsBuilder) WithPriority(p model.Priority) *NewJobParamsBuilder {
	b.p.Priority = p
	return b
}

// WithAsset sets the asset id.
func (b *NewJobParamsBuilder) WithAsset(assetID string) *NewJobParamsBuilder {
	b.p.AssetID = &assetID
	return b
}

// Build returns the params.
func (b *NewJobParamsBuilder) Build() core.NewJobParams {
	return b.p
}
