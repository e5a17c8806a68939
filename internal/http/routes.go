package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     JobAPI
	Webhooks WebhookAPI
	Progress core.ProgressSubscriber
	Verifier ports.TokenVerifier
	// Readiness checks back GET /readyz.
	Readiness []ReadinessCheck
	// MaxBodyBytes caps request bodies; zero disables the cap.
	MaxBodyBytes int64
	// CheckOrigin overrides the websocket same-origin check.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger // Logger for access logs and panics (optional)
}

// NewRouter creates the API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recover(logger))
	r.Use(Logging(logger))

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	r.Get("/readyz", readyHandler(services.Readiness))

	jobs := &JobHandlers{Svc: services.Jobs, Logger: logger}
	webhooks := &WebhookHandlers{Svc: services.Webhooks}
	stream := &StreamHandlers{
		Jobs:     services.Jobs,
		Progress: services.Progress,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     services.CheckOrigin,
		},
		Logger: logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(services.Verifier))
		r.Use(LimitBody(services.MaxBodyBytes))

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobs.ListJobs)
			r.Post("/{type}", jobs.SubmitJob)
			r.Get("/{id}", jobs.GetJob)
			r.Post("/{id}/cancel", jobs.CancelJob)
			if services.Progress != nil {
				r.Get("/{id}/stream", stream.StreamJob)
			}
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhooks.CreateWebhook)
			r.Get("/", webhooks.ListWebhooks)
			r.Delete("/{id}", webhooks.DeleteWebhook)
			r.Get("/{id}/deliveries", webhooks.ListDeliveries)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed", Code: "INVALID_REQUEST"})
	})
	return r
}
