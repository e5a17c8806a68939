package model

import (
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"
)

// WebhookEvent names an event a subscriber can register for.
type WebhookEvent string

const (
	EventProcessingCompleted WebhookEvent = "processing.completed"
	EventProcessingFailed    WebhookEvent = "processing.failed"
	EventProcessingCancelled WebhookEvent = "processing.cancelled"
)

// Valid reports whether e is a known event.
func (e WebhookEvent) Valid() bool {
	return e == EventProcessingCompleted || e == EventProcessingFailed || e == EventProcessingCancelled
}

// EventForStatus maps a terminal job status to the event announced for it.
func EventForStatus(s JobStatus) (WebhookEvent, bool) {
	switch s {
	case JobStatusCompleted:
		return EventProcessingCompleted, true
	case JobStatusFailed:
		return EventProcessingFailed, true
	case JobStatusCancelled:
		return EventProcessingCancelled, true
	default:
		return "", false
	}
}

// ScopeFilter narrows a registration to a subset of events.
type ScopeFilter struct {
	AssetID *string `json:"asset_id,omitempty"`
	// Match is a JMESPath expression evaluated against the event data; a truthy result matches.
	Match *string `json:"match,omitempty"`
}

// IsZero reports whether no narrowing is configured.
func (f ScopeFilter) IsZero() bool {
	return f.AssetID == nil && f.Match == nil
}

// WebhookRegistration is a subscriber's declared interest in events.
type WebhookRegistration struct {
	ID         string         `json:"webhook_id"`
	OwnerID    string         `json:"owner_id"`
	TargetURL  string         `json:"target_url"`
	EventTypes []WebhookEvent `json:"event_types"`
	// SigningSecret is plaintext only in memory; never serialised.
	SigningSecret string      `json:"-"`
	IsActive      bool        `json:"is_active"`
	Scope         ScopeFilter `json:"scope_filter"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Subscribes reports whether the registration listens for e.
func (w *WebhookRegistration) Subscribes(e WebhookEvent) bool {
	return slices.Contains(w.EventTypes, e)
}

// CreateWebhookRequest is the input to webhook registration.
type CreateWebhookRequest struct {
	OwnerID    string         `json:"owner_id"             validate:"required,max=255"`
	TargetURL  string         `json:"target_url"           validate:"required,url,max=2048"`
	EventTypes []WebhookEvent `json:"event_types"          validate:"required,min=1,dive,required"`
	AssetID    *string        `json:"asset_id,omitempty"   validate:"omitempty,max=255"`
	Match      *string        `json:"match,omitempty"      validate:"omitempty,max=1024"`
}

// Normalize trims fields and de-duplicates event types.
func (r *CreateWebhookRequest) Normalize() {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	r.TargetURL = strings.TrimSpace(r.TargetURL)
	seen := make(map[WebhookEvent]struct{}, len(r.EventTypes))
	out := r.EventTypes[:0]
	for _, e := range r.EventTypes {
		e = WebhookEvent(strings.ToLower(strings.TrimSpace(string(e))))
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	r.EventTypes = out
}

// Validate applies semantic checks the struct tags cannot express.
func (r *CreateWebhookRequest) Validate() error {
	for _, e := range r.EventTypes {
		if !e.Valid() {
			return errors.New("unknown event type: " + string(e))
		}
	}
	return ValidateTargetURL(r.TargetURL)
}

// ValidateTargetURL requires an absolute http(s) URL with a host.
func ValidateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("target_url must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("target_url must use http or https")
	}
	if u.Host == "" {
		return errors.New("target_url must include a host")
	}
	return nil
}

// DeliveryStatus is the state of one delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery records one attempted transmission of one event to one registration.
type WebhookDelivery struct {
	ID              string          `json:"delivery_id"`
	WebhookID       string          `json:"webhook_id"`
	TriggerID       string          `json:"trigger_id"`
	EventType       WebhookEvent    `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	Status          DeliveryStatus  `json:"status"`
	HTTPStatusCode  *int            `json:"http_status_code,omitempty"`
	ResponseExcerpt *string         `json:"response_excerpt,omitempty"`
	Error           *string         `json:"error,omitempty"`
	RetryCount      int             `json:"retry_count"`
	NextAttemptAt   *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// DeliveryResult is the outcome of one HTTP attempt.
type DeliveryResult struct {
	Status          DeliveryStatus
	HTTPStatusCode  *int
	ResponseExcerpt *string
	Error           *string
	NextAttemptAt   *time.Time
}
