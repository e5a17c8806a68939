package httpx

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

// queryLimit reads ?limit=. An absent value yields 0 so the service applies
// its default; services clamp the upper bound.
func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidField("limit", "limit must be a non-negative integer")
	}
	return n, nil
}
