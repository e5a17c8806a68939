package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/service"
)

// WebhookAPI is the webhook registry surface used by the handlers.
type WebhookAPI interface {
	Create(ctx context.Context, req *model.CreateWebhookRequest) (*service.CreatedWebhook, error)
	List(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error)
	Deactivate(ctx context.Context, ownerID, id string) error
	Deliveries(ctx context.Context, ownerID, id string, limit int) ([]*model.WebhookDelivery, error)
}

// WebhookHandlers serves the webhook registry.
type WebhookHandlers struct {
	Svc WebhookAPI
}

type createWebhookBody struct {
	TargetURL  string               `json:"target_url"         validate:"required,http_url,max=2048"`
	EventTypes []model.WebhookEvent `json:"event_types"        validate:"required,min=1"`
	AssetID    *string              `json:"asset_id,omitempty" validate:"omitempty,max=255"`
	Match      *string              `json:"match,omitempty"    validate:"omitempty,max=1024"`
}

// WebhookListResponse is the body of GET /webhooks.
type WebhookListResponse struct {
	Webhooks []*model.WebhookRegistration `json:"webhooks"`
	Count    int                          `json:"count"`
}

// DeliveryListResponse is the body of GET /webhooks/{id}/deliveries.
type DeliveryListResponse struct {
	Deliveries []*model.WebhookDelivery `json:"deliveries"`
	Count      int                      `json:"count"`
}

// CreateWebhook handles POST /webhooks. The signing secret is only returned here.
func (h *WebhookHandlers) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	var body createWebhookBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	created, err := h.Svc.Create(r.Context(), &model.CreateWebhookRequest{
		OwnerID:    owner,
		TargetURL:  body.TargetURL,
		EventTypes: body.EventTypes,
		AssetID:    body.AssetID,
		Match:      body.Match,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// ListWebhooks handles GET /webhooks.
func (h *WebhookHandlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	hooks, err := h.Svc.List(r.Context(), owner)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if hooks == nil {
		hooks = []*model.WebhookRegistration{}
	}
	WriteJSON(w, http.StatusOK, WebhookListResponse{Webhooks: hooks, Count: len(hooks)})
}

// DeleteWebhook handles DELETE /webhooks/{id}. The registration is deactivated, not removed,
// so its delivery history stays queryable.
func (h *WebhookHandlers) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	if err := h.Svc.Deactivate(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries handles GET /webhooks/{id}/deliveries?limit=N.
func (h *WebhookHandlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	deliveries, err := h.Svc.Deliveries(r.Context(), owner, chi.URLParam(r, "id"), limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if deliveries == nil {
		deliveries = []*model.WebhookDelivery{}
	}
	WriteJSON(w, http.StatusOK, DeliveryListResponse{Deliveries: deliveries, Count: len(deliveries)})
}
