package httpx

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/ports"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
						Error: "internal server error",
						Code:  string(apperrors.ErrCodeInternal),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate requires a bearer token accepted by verifier and stores the caller's
// identity in the request context. Missing or rejected tokens get a 401.
func Authenticate(verifier ports.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mediajobs"`)
				WriteError(w, r, apperrors.Unauthenticated("bearer token required"))
				return
			}
			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Default().DebugContext(r.Context(), "token rejected", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="mediajobs", error="invalid_token"`)
				WriteError(w, r, apperrors.Unauthenticated("invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(domainauth.WithIdentity(r.Context(), id)))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a websocket
// handshake, so upgrade requests may pass the token as ?access_token= instead.
func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		if h == "" && websocket.IsWebSocketUpgrade(r) {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
			return token, token != ""
		}
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ownerID returns the authenticated caller's owner id. Routes behind Authenticate always
// have one.
func ownerID(r *http.Request) (string, bool) {
	id, ok := domainauth.FromContext(r.Context())
	if !ok {
		return "", false
	}
	return id.OwnerID, true
}
