package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates missing or malformed request fields. Never retried.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeUnauthorized indicates the caller may not access the resource.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeUnauthenticated indicates a missing or invalid bearer token.
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates the resource is not in a state that permits the operation.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeTransient indicates an execution failure that may succeed when retried.
	ErrCodeTransient ErrorCode = "TRANSIENT_EXECUTION_FAILURE"
	// ErrCodePermanent indicates an execution failure that will not succeed on retry.
	ErrCodePermanent ErrorCode = "PERMANENT_EXECUTION_FAILURE"
	// ErrCodeDelivery indicates a webhook delivery attempt failed.
	ErrCodeDelivery ErrorCode = "DELIVERY_FAILURE"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// InvalidRequest creates a new InvalidRequest error.
func InvalidRequest(message string) *AppError { return newf(ErrCodeInvalidRequest, message) }

// InvalidRequestf creates a new InvalidRequest error with formatted message.
func InvalidRequestf(format string, args ...any) *AppError {
	return newf(ErrCodeInvalidRequest, format, args...)
}

// InvalidField creates a new InvalidRequest error for a specific field.
func InvalidField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Field:   field,
	}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError { return newf(ErrCodeUnauthorized, message) }

// Unauthenticated creates a new Unauthenticated error.
func Unauthenticated(message string) *AppError { return newf(ErrCodeUnauthenticated, message) }

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newf(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newf(ErrCodeConflict, message) }

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return newf(ErrCodeConflict, format, args...)
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newf(ErrCodeInternal, message) }

// Transient marks err as a retryable execution failure.
func Transient(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: ErrCodeTransient, Message: "transient execution failure", Cause: err}
}

// Permanent marks err as a non-retryable execution failure.
func Permanent(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: ErrCodePermanent, Message: "permanent execution failure", Cause: err}
}

// DeliveryFailure wraps a failed webhook delivery attempt.
func DeliveryFailure(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: ErrCodeDelivery, Message: "webhook delivery failed", Cause: err}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidRequest checks if an error is an InvalidRequest error.
func IsInvalidRequest(err error) bool { return isCode(err, ErrCodeInvalidRequest) }

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool { return isCode(err, ErrCodeUnauthorized) }

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool { return isCode(err, ErrCodeUnauthenticated) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsTransient checks if an error is a TransientExecutionFailure.
func IsTransient(err error) bool { return isCode(err, ErrCodeTransient) }

// IsPermanent checks if an error is a PermanentExecutionFailure.
func IsPermanent(err error) bool { return isCode(err, ErrCodePermanent) }

// IsDeliveryFailure checks if an error is a DeliveryFailure.
func IsDeliveryFailure(err error) bool { return isCode(err, ErrCodeDelivery) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
