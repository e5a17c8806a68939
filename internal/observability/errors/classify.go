// Package errors maps errors to low-cardinality class names for metric tags
// and alert payloads.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/target/mmk-media-jobs/internal/core"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

var sentinelClasses = []struct {
	err   error
	class string
}{
	{context.DeadlineExceeded, "deadline_exceeded"},
	{context.Canceled, "canceled"},
	{core.ErrStatusConflict, "status_conflict"},
	{core.ErrJobNotFound, "job_not_found"},
	{core.ErrWebhookNotFound, "webhook_not_found"},
	{core.ErrDeliveryNotFound, "delivery_not_found"},
	{core.ErrDeliveryFinalized, "delivery_finalized"},
}

// Classify returns a class name for err. Known sentinels win, then the
// application error code, then a network timeout, then the innermost
// concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelClasses {
		if goerrors.Is(err, s.err) {
			return s.class
		}
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return strings.ToLower(string(appErr.Code))
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "network_timeout"
	}

	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
