package webhook

import (
	"strings"
	"unicode/utf8"

	"github.com/target/mmk-media-jobs/internal/domain/model"
)

// Task is one scheduled delivery attempt. The payload is the signed envelope snapshot,
// so retries resend identical bytes.
type Task struct {
	DeliveryID string             `json:"delivery_id"`
	TriggerID  string             `json:"trigger_id"`
	WebhookID  string             `json:"webhook_id"`
	OwnerID    string             `json:"owner_id"`
	TargetURL  string             `json:"target_url"`
	Event      model.WebhookEvent `json:"event"`
	Payload    []byte             `json:"payload"`
	Signature  string             `json:"signature"`
	Attempt    int                `json:"attempt"`
}

// Lane is the single broker lane delivery tasks are queued on.
const Lane = "deliveries"

// ExcerptLimit caps the stored response excerpt, in bytes.
const ExcerptLimit = 1000

// Excerpt truncates a response body for the audit trail without splitting a UTF-8 sequence.
func Excerpt(body []byte) string {
	if len(body) <= ExcerptLimit {
		return strings.ToValidUTF8(string(body), "")
	}
	cut := ExcerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(body[:cut]), "")
}
