package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	"github.com/target/mmk-media-jobs/internal/ports"
	"github.com/target/mmk-media-jobs/internal/service"
)

type fakeJobs struct {
	submit func(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error)
	get    func(ctx context.Context, ownerID, id string) (*model.Job, error)
	list   func(ctx context.Context, ownerID string, limit int) ([]*model.Job, error)
	cancel func(ctx context.Context, ownerID, id string) (*model.Job, error)
}

func (f *fakeJobs) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	return f.submit(ctx, req)
}

func (f *fakeJobs) Get(ctx context.Context, ownerID, id string) (*model.Job, error) {
	return f.get(ctx, ownerID, id)
}

func (f *fakeJobs) List(ctx context.Context, ownerID string, limit int) ([]*model.Job, error) {
	return f.list(ctx, ownerID, limit)
}

func (f *fakeJobs) Cancel(ctx context.Context, ownerID, id string) (*model.Job, error) {
	return f.cancel(ctx, ownerID, id)
}

type fakeWebhooks struct {
	create     func(ctx context.Context, req *model.CreateWebhookRequest) (*service.CreatedWebhook, error)
	list       func(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error)
	deactivate func(ctx context.Context, ownerID, id string) error
	deliveries func(ctx context.Context, ownerID, id string, limit int) ([]*model.WebhookDelivery, error)
}

func (f *fakeWebhooks) Create(ctx context.Context, req *model.CreateWebhookRequest) (*service.CreatedWebhook, error) {
	return f.create(ctx, req)
}

func (f *fakeWebhooks) List(ctx context.Context, ownerID string) ([]*model.WebhookRegistration, error) {
	return f.list(ctx, ownerID)
}

func (f *fakeWebhooks) Deactivate(ctx context.Context, ownerID, id string) error {
	return f.deactivate(ctx, ownerID, id)
}

func (f *fakeWebhooks) Deliveries(ctx context.Context, ownerID, id string, limit int) ([]*model.WebhookDelivery, error) {
	return f.deliveries(ctx, ownerID, id, limit)
}

// testVerifier accepts "token-<owner>".
func testVerifier() ports.TokenVerifier {
	return ports.TokenVerifierFunc(func(_ context.Context, raw string) (domainauth.Identity, error) {
		owner, ok := strings.CutPrefix(raw, "token-")
		if !ok || owner == "" {
			return domainauth.Identity{}, fmt.Errorf("%w: unknown token", domainauth.ErrInvalidToken)
		}
		return domainauth.Identity{OwnerID: owner, Subject: owner}, nil
	})
}

func newTestRouter(jobs *fakeJobs, hooks *fakeWebhooks) http.Handler {
	if jobs == nil {
		jobs = &fakeJobs{}
	}
	if hooks == nil {
		hooks = &fakeWebhooks{}
	}
	return NewRouter(RouterServices{
		Jobs:         jobs,
		Webhooks:     hooks,
		Verifier:     testVerifier(),
		MaxBodyBytes: 4096,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

type request struct {
	method string
	path   string
	body   string
	token  string
	header map[string]string
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = bytes.NewBufferString(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var errBoom = errors.New("connection refused by db-primary:5432")
