package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/domain/webhook"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

const defaultDeliveryListLimit = 50

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Repo       core.WebhookRepository  // Required
	Deliveries core.DeliveryRepository // Required
	Evaluator  JMESPathEvaluator       // Optional
	Logger     *slog.Logger            // Optional
	// NewSecret overrides secret generation in tests.
	NewSecret func() (string, error)
}

// WebhookService manages webhook registrations for API callers.
type WebhookService struct {
	repo       core.WebhookRepository
	deliveries core.DeliveryRepository
	jems       JMESPathEvaluator
	logger     *slog.Logger
	newSecret  func() (string, error)
}

// CreatedWebhook is the registration plus its signing secret, which is only ever
// returned from Create.
type CreatedWebhook struct {
	*model.WebhookRegistration
	SigningSecret string `json:"signing_secret"`
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(opts WebhookServiceOptions) (*WebhookService, error) {
	if opts.Repo == nil {
		return nil, errors.New("WebhookRepository is required")
	}
	if opts.Deliveries == nil {
		return nil, errors.New("DeliveryRepository is required")
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newSecret := opts.NewSecret
	if newSecret == nil {
		newSecret = webhook.NewSecret
	}
	return &WebhookService{
		repo:       opts.Repo,
		deliveries: opts.Deliveries,
		jems:       jems,
		logger:     logger.With("component", "webhook_service"),
		newSecret:  newSecret,
	}, nil
}

// Create registers a webhook and generates its signing secret.
func (s *WebhookService) Create(ctx context.Context, req *model.CreateWebhookRequest) (*CreatedWebhook, error) {
	if req == nil {
		return nil, apperrors.InvalidRequest("request body is required")
	}
	req.Normalize()
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.InvalidRequest(err.Error())
	}
	if req.Match != nil {
		if err := s.jems.Validate(*req.Match); err != nil {
			return nil, apperrors.InvalidField("match", "match is not a valid JMESPath expression: "+err.Error())
		}
	}

	secret, err := s.newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	created, err := s.repo.Create(ctx, &model.WebhookRegistration{
		OwnerID:       req.OwnerID,
		TargetURL:     req.TargetURL,
		EventTypes:    req.EventTypes,
		SigningSecret: secret,
		IsActive:      true,
		Scope:         model.ScopeFilter{AssetID: req.AssetID, Match: req.Match},
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", apperrors.MapDBError(err))
	}
	s.logger.InfoContext(ctx, "webhook registered",
		"webhook_id", created.ID,
		"owner_id", created.OwnerID,
		"events", created.EventTypes,
	)
	return &CreatedWebhook{WebhookRegistration: created, SigningSecret: secret}, nil
}

// List returns the owner's registrations, active and deactivated.
func (s *WebhookService) List(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error) {
	hooks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return hooks, nil
}

// Get returns one registration owned by ownerID.
func (s *WebhookService) Get(ctx context.Context, ownerID, id string) (*model.WebhookRegistration, error) {
	hook, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, core.ErrWebhookNotFound) {
		return nil, apperrors.NotFound("webhook not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	if hook.OwnerID != ownerID {
		return nil, apperrors.Unauthorized("webhook belongs to another owner")
	}
	return hook, nil
}

// Deactivate stops future deliveries. Registrations are never deleted so the audit trail stays intact.
func (s *WebhookService) Deactivate(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	ok, err := s.repo.Deactivate(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("deactivate webhook: %w", err)
	}
	if !ok {
		return apperrors.NotFound("webhook not found")
	}
	s.logger.InfoContext(ctx, "webhook deactivated", "webhook_id", id, "owner_id", ownerID)
	return nil
}

// Deliveries returns the newest delivery attempts for a registration owned by ownerID.
func (s *WebhookService) Deliveries(ctx context.Context, ownerID, id string, limit int) ([]*model.WebhookDelivery, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultDeliveryListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	out, err := s.deliveries.ListByWebhook(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return out, nil
}
