package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/testutil"
)

func fixedNow() time.Time { return testutil.TestTime() }

func TestRender(t *testing.T) {
	svc := NewService(Options{
		AssetBaseURL: "https://app.example.com/assets/",
		DashboardURL: "https://app.example.com/dashboard",
		Now:          fixedNow,
	})

	tests := []struct {
		name     string
		req      Request
		wantName string
		wantURL  string
	}{
		{
			name:     "asset link",
			req:      Request{JobType: model.JobTypeReconstruction, AssetID: testutil.StringPtr("0123456789abcdef")},
			wantName: "3D model #01234567",
			wantURL:  "https://app.example.com/assets/0123456789abcdef",
		},
		{
			name:     "dashboard fallback",
			req:      Request{JobType: model.JobTypeGenerativeImage},
			wantName: "AI generation",
			wantURL:  "https://app.example.com/dashboard",
		},
		{
			name:     "short asset id",
			req:      Request{JobType: model.JobTypeMeshOptimization, AssetID: testutil.StringPtr("a1")},
			wantName: "Optimized 3D model #a1",
			wantURL:  "https://app.example.com/assets/a1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := svc.Render(tt.req)
			assert.Equal(t, tt.wantName, msg.AssetName)
			assert.Equal(t, tt.wantURL, msg.AssetURL)
			assert.Equal(t, fixedNow(), msg.OccurredAt)
		})
	}
}

func TestNotifyFansOutAsync(t *testing.T) {
	var mu sync.Mutex
	var got []Message
	capture := SinkFunc(func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
		return nil
	})
	failing := SinkFunc(func(context.Context, Message) error { return errors.New("smtp down") })

	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: capture}, {Name: "failing", Sink: failing}},
		Now:   fixedNow,
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Notify(ctx, Request{JobID: "j1", OwnerID: "o1", JobType: model.JobTypeVisionAnalysis, OutputReference: "txt://r"})
	cancel()
	svc.Wait()

	require.Len(t, got, 1)
	assert.Equal(t, "j1", got[0].JobID)
	assert.Equal(t, "txt://r", got[0].OutputReference)
}

func TestNotifyWithoutSinksIsNoop(t *testing.T) {
	svc := NewService(Options{})
	svc.Notify(context.Background(), Request{JobID: "j1"})
	svc.Wait()
}

func TestHTTPSink(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPSinkConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, sink.SendCompletion(context.Background(), Message{JobID: "j1", AssetName: "3D model"}))
	assert.Equal(t, "j1", received.JobID)
}

func TestHTTPSinkClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPSinkConfig{
		Endpoint:     srv.URL + "/notify",
		ClientID:     "mediajobs",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
	})
	require.NoError(t, err)
	require.NoError(t, sink.SendCompletion(context.Background(), Message{JobID: "j1"}))
}

func TestHTTPSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPSinkConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	err = sink.SendCompletion(context.Background(), Message{JobID: "j1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")

	_, err = NewHTTPSink(HTTPSinkConfig{})
	require.Error(t, err)
}
