package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; the HTTP layer depends only on these.

import (
	"context"

	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

// TokenVerifier validates a bearer token and returns the caller it identifies.
// Implementations return an error wrapping domainauth.ErrInvalidToken for rejected tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (domainauth.Identity, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, rawToken string) (domainauth.Identity, error)

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	return f(ctx, rawToken)
}
