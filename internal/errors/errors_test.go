package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to enqueue",
				Cause:   errors.New("redis down"),
			},
			want: "failed to enqueue: redis down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_UnwrapThroughFmt(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("execute: %w", Transient(cause))

	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  ErrorCode
	}{
		{"invalid request", InvalidRequest("bad"), IsInvalidRequest, ErrCodeInvalidRequest},
		{"invalid field", InvalidField("input_reference", "required"), IsInvalidRequest, ErrCodeInvalidRequest},
		{"unauthorized", Unauthorized("not owner"), IsUnauthorized, ErrCodeUnauthorized},
		{"unauthenticated", Unauthenticated("no token"), IsUnauthenticated, ErrCodeUnauthenticated},
		{"not found", NotFoundf("job %s", "j1"), IsNotFound, ErrCodeNotFound},
		{"conflict", Conflict("terminal"), IsConflict, ErrCodeConflict},
		{"transient", Transient(errors.New("timeout")), IsTransient, ErrCodeTransient},
		{"permanent", Permanent(errors.New("bad input")), IsPermanent, ErrCodePermanent},
		{"delivery", DeliveryFailure(errors.New("500")), IsDeliveryFailure, ErrCodeDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
	assert.Nil(t, DeliveryFailure(nil))
}

func TestGetField(t *testing.T) {
	assert.Equal(t, "priority", GetField(InvalidField("priority", "unknown priority")))
	assert.Empty(t, GetField(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
}
