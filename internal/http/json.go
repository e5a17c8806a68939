package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/target/mmk-media-jobs/internal/errors"
	"github.com/target/mmk-media-jobs/internal/service"
)

// DecodeJSON decodes and validates the request body into dst.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, r, decodeError(err))
		return false
	}
	if dec.More() {
		WriteError(w, r, apperrors.InvalidRequest("request body must contain a single JSON object"))
		return false
	}
	if err := service.ValidateStruct(dst); err != nil {
		WriteError(w, r, err)
		return false
	}
	return true
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		return apperrors.InvalidRequestf("request body exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, io.EOF):
		return apperrors.InvalidRequest("request body is required")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperrors.InvalidField(typeErr.Field, fmt.Sprintf("%s has the wrong type", typeErr.Field))
	default:
		return apperrors.InvalidRequestf("invalid JSON: %v", err)
	}
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// StatusFor maps an application error code to an HTTP status.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {"error","code","field"}. Errors without an application code
// are logged and reported as INTERNAL without their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	status := StatusFor(code)
	body := ErrorResponse{Code: string(code), Field: apperrors.GetField(err)}

	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Code = string(apperrors.ErrCodeInternal)
		body.Error = "internal server error"
		body.Field = ""
	} else {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			body.Error = appErr.Message
		} else {
			body.Error = err.Error()
		}
	}
	WriteJSON(w, status, body)
}
