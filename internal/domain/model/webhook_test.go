package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateWebhookRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateWebhookRequest
		wantErr string
	}{
		{
			name: "valid",
			req: CreateWebhookRequest{
				OwnerID:    "u1",
				TargetURL:  "https://hooks.example.com/media",
				EventTypes: []WebhookEvent{EventProcessingCompleted},
			},
		},
		{
			name: "unknown event",
			req: CreateWebhookRequest{
				OwnerID:    "u1",
				TargetURL:  "https://hooks.example.com/media",
				EventTypes: []WebhookEvent{"ar_code.scanned"},
			},
			wantErr: "unknown event type",
		},
		{
			name: "ftp scheme",
			req: CreateWebhookRequest{
				OwnerID:    "u1",
				TargetURL:  "ftp://hooks.example.com",
				EventTypes: []WebhookEvent{EventProcessingFailed},
			},
			wantErr: "http or https",
		},
		{
			name: "missing host",
			req: CreateWebhookRequest{
				OwnerID:    "u1",
				TargetURL:  "https:///path",
				EventTypes: []WebhookEvent{EventProcessingFailed},
			},
			wantErr: "host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCreateWebhookRequest_Normalize(t *testing.T) {
	req := CreateWebhookRequest{
		OwnerID:    " u1 ",
		TargetURL:  " https://x.test/h ",
		EventTypes: []WebhookEvent{"Processing.Completed", "processing.completed", "processing.failed"},
	}
	req.Normalize()
	assert.Equal(t, "u1", req.OwnerID)
	assert.Equal(t, "https://x.test/h", req.TargetURL)
	assert.Equal(t, []WebhookEvent{EventProcessingCompleted, EventProcessingFailed}, req.EventTypes)
}

func TestEventForStatus(t *testing.T) {
	e, ok := EventForStatus(JobStatusCompleted)
	assert.True(t, ok)
	assert.Equal(t, EventProcessingCompleted, e)

	e, ok = EventForStatus(JobStatusFailed)
	assert.True(t, ok)
	assert.Equal(t, EventProcessingFailed, e)

	_, ok = EventForStatus(JobStatusRetrying)
	assert.False(t, ok)
}

func TestWebhookRegistration_Subscribes(t *testing.T) {
	w := WebhookRegistration{EventTypes: []WebhookEvent{EventProcessingFailed}}
	assert.True(t, w.Subscribes(EventProcessingFailed))
	assert.False(t, w.Subscribes(EventProcessingCompleted))
	assert.True(t, ScopeFilter{}.IsZero())
}
