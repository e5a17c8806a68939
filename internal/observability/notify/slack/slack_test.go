package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#media-alerts",
		Username:   "bot",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:      "job-123",
		JobType:    "reconstruction",
		OwnerID:    "owner-1",
		AssetID:    "asset-9",
		Error:      "colmap <exit 3>",
		ErrorClass: "exec_exiterror",
		Priority:   "high",
		RetryCount: 3,
		MaxRetries: 3,
		Metadata:   map[string]string{"worker": "w-1"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#media-alerts", msg["channel"])
	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{"Media job failed", "job-123", "reconstruction", "owner-1", "asset-9",
		"colmap &lt;exit 3&gt;", "exec_exiterror", "Priority: high", "Attempts: 3/3", "worker: w-1", "Severity: critical"} {
		assert.Contains(t, text, want)
	}
}

func TestFormatMessageAssetLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:     "https://hooks.slack.com/services/test",
		AssetURLPrefix: "https://app.example.com/assets",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.JobFailurePayload{AssetID: "asset-123"})
	assert.Contains(t, msg["text"], "<https://app.example.com/assets/asset-123|asset-123>")
}

func TestSendJobFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if calls.Add(1) == 1 {
			http.Error(w, "rate_limited", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1, Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendJobFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}
