package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/testutil"
)

type fakeProgress struct {
	mu           sync.Mutex
	ch           chan model.ProgressEvent
	subscribed   chan string
	unsubscribed bool
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{ch: make(chan model.ProgressEvent, 8), subscribed: make(chan string, 1)}
}

func (f *fakeProgress) Subscribe(_ context.Context, jobID string) (<-chan model.ProgressEvent, func(), error) {
	f.subscribed <- jobID
	return f.ch, func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeProgress) isUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func newStreamServer(t *testing.T, jobs *fakeJobs, progress *fakeProgress) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(RouterServices{
		Jobs:     jobs,
		Webhooks: &fakeWebhooks{},
		Progress: progress,
		Verifier: testVerifier(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func TestStreamJob(t *testing.T) {
	jobs := &fakeJobs{
		get: func(context.Context, string, string) (*model.Job, error) {
			return &model.Job{ID: "job-1", Status: model.JobStatusProcessing, Progress: 40, UpdatedAt: testutil.TestTime()}, nil
		},
	}
	progress := newFakeProgress()
	srv := newStreamServer(t, jobs, progress)

	conn, _, err := dial(t, srv, "/jobs/job-1/stream", "token-owner-1")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot model.ProgressEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "job-1", snapshot.JobID)
	assert.Equal(t, 40, snapshot.Progress)
	assert.Equal(t, "job-1", <-progress.subscribed)

	progress.ch <- model.ProgressEvent{JobID: "job-1", Status: model.JobStatusProcessing, Progress: 20}
	progress.ch <- model.ProgressEvent{JobID: "job-1", Status: model.JobStatusProcessing, Progress: 70, Message: "meshing"}
	progress.ch <- model.ProgressEvent{JobID: "job-1", Status: model.JobStatusCompleted, Progress: 100}

	var ev model.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, 70, ev.Progress, "stale progress is dropped")
	assert.Equal(t, "meshing", ev.Message)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.JobStatusCompleted, ev.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Eventually(t, progress.isUnsubscribed, time.Second, 10*time.Millisecond)
}

func TestStreamJob_TerminalSnapshotCloses(t *testing.T) {
	jobs := &fakeJobs{
		get: func(context.Context, string, string) (*model.Job, error) {
			return &model.Job{ID: "job-1", Status: model.JobStatusFailed, Progress: 60}, nil
		},
	}
	srv := newStreamServer(t, jobs, newFakeProgress())

	conn, _, err := dial(t, srv, "/jobs/job-1/stream", "token-owner-1")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev model.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, model.JobStatusFailed, ev.Status)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamJob_RejectsBeforeUpgrade(t *testing.T) {
	jobs := &fakeJobs{
		get: func(context.Context, string, string) (*model.Job, error) {
			return nil, apperrors.Unauthorized("job belongs to another owner")
		},
	}
	srv := newStreamServer(t, jobs, newFakeProgress())

	_, resp, err := dial(t, srv, "/jobs/job-1/stream", "token-owner-2")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(t, srv, "/jobs/job-1/stream", "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamJob_QueryToken(t *testing.T) {
	jobs := &fakeJobs{
		get: func(_ context.Context, ownerID, _ string) (*model.Job, error) {
			return &model.Job{ID: "job-1", OwnerID: ownerID, Status: model.JobStatusCancelled}, nil
		},
	}
	srv := newStreamServer(t, jobs, newFakeProgress())

	conn, _, err := dial(t, srv, "/jobs/job-1/stream?access_token=token-owner-1", "")
	require.NoError(t, err)
	conn.Close()
}
