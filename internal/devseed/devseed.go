// Package devseed loads a demo webhook and one job per media type into a
// development environment. Re-running it is safe: jobs are submitted with
// fixed idempotency keys and an existing webhook for the same target is reused.
package devseed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/service"
)

// DefaultOwnerID owns everything the seeder creates unless overridden.
const DefaultOwnerID = "dev-owner"

// JobSubmitter is the subset of the job service used for seeding.
type JobSubmitter interface {
	Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error)
}

// WebhookRegistrar is the subset of the webhook service used for seeding.
type WebhookRegistrar interface {
	Create(ctx context.Context, req *model.CreateWebhookRequest) (*service.CreatedWebhook, error)
	List(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error)
}

// Options controls what gets seeded.
type Options struct {
	OwnerID string
	// WebhookURL is registered for every event type. Empty skips webhook seeding.
	WebhookURL string
	Types      []model.JobType
	Logger     *slog.Logger
}

// Result lists what Run created or found.
type Result struct {
	// SigningSecret is only set when the webhook was created by this run.
	WebhookID     string
	SigningSecret string
	Jobs          []*model.Job
}

// Run executes the seeding workflow.
func Run(ctx context.Context, jobs JobSubmitter, hooks WebhookRegistrar, opts Options) (*Result, error) {
	opts = withDefaults(opts)
	res := &Result{}
	failures := 0

	if opts.WebhookURL != "" && hooks != nil {
		if err := seedWebhook(ctx, hooks, opts, res); err != nil {
			opts.Logger.ErrorContext(ctx, "failed to seed webhook", "target_url", opts.WebhookURL, "error", err)
			failures++
		}
	}

	for _, jt := range opts.Types {
		job, err := jobs.Submit(ctx, sampleJob(opts.OwnerID, jt))
		if err != nil {
			opts.Logger.ErrorContext(ctx, "failed to submit sample job", "job_type", jt, "error", err)
			failures++
			continue
		}
		opts.Logger.InfoContext(ctx, "seeded job", "job_id", job.ID, "job_type", jt, "status", job.Status)
		res.Jobs = append(res.Jobs, job)
	}

	if failures > 0 {
		return res, fmt.Errorf("%d seed errors; check logs", failures)
	}
	return res, nil
}

func withDefaults(opts Options) Options {
	opts.OwnerID = strings.TrimSpace(opts.OwnerID)
	if opts.OwnerID == "" {
		opts.OwnerID = DefaultOwnerID
	}
	if len(opts.Types) == 0 {
		opts.Types = model.AllJobTypes()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts
}

func seedWebhook(ctx context.Context, hooks WebhookRegistrar, opts Options, res *Result) error {
	existing, err := hooks.List(ctx, opts.OwnerID)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	for _, w := range existing {
		if w.IsActive && w.TargetURL == opts.WebhookURL {
			opts.Logger.InfoContext(ctx, "webhook already exists", "webhook_id", w.ID)
			res.WebhookID = w.ID
			return nil
		}
	}

	created, err := hooks.Create(ctx, &model.CreateWebhookRequest{
		OwnerID:   opts.OwnerID,
		TargetURL: opts.WebhookURL,
		EventTypes: []model.WebhookEvent{
			model.EventProcessingCompleted,
			model.EventProcessingFailed,
			model.EventProcessingCancelled,
		},
	})
	if err != nil {
		return err
	}
	opts.Logger.InfoContext(ctx, "created webhook", "webhook_id", created.ID)
	res.WebhookID = created.ID
	res.SigningSecret = created.SigningSecret
	return nil
}

func sampleJob(ownerID string, jt model.JobType) *model.SubmitJobRequest {
	asset := "dev-asset-" + string(jt)
	meta, _ := json.Marshal(map[string]any{"seeded": true, "label": sampleLabel(jt)})
	return &model.SubmitJobRequest{
		Type:           jt,
		OwnerID:        ownerID,
		AssetID:        &asset,
		InputReference: "s3://dev-media/samples/" + string(jt) + "/input.zip",
		Metadata:       meta,
		IdempotencyKey: "devseed-" + ownerID + "-" + string(jt),
	}
}

func sampleLabel(jt model.JobType) string {
	switch jt {
	case model.JobTypeReconstruction:
		return "turntable capture"
	case model.JobTypeNovelViewTraining:
		return "living room walkthrough"
	case model.JobTypeVisionAnalysis:
		return "shelf photo"
	case model.JobTypeGenerativeImage:
		return "lifestyle render"
	case model.JobTypeMeshOptimization:
		return "sofa mesh"
	default:
		return string(jt)
	}
}
