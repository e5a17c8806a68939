package auth

// Package auth contains domain-level types for authenticated API callers.
// It is pure and free of framework/adapter concerns.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned by token verifiers for any token that must be rejected.
var ErrInvalidToken = errors.New("invalid bearer token")

// Identity is the authenticated caller. OwnerID scopes every job and webhook the caller
// can see.
type Identity struct {
	OwnerID   string
	Subject   string
	Email     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Valid reports whether the identity names an owner.
func (i Identity) Valid() bool { return i.OwnerID != "" }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.Valid()
}

// IdentityFromClaims builds an identity from decoded token claims, reading the owner from
// ownerClaim (default "sub"). Numeric claim values are accepted.
func IdentityFromClaims(claims map[string]any, ownerClaim string) (Identity, error) {
	if ownerClaim == "" {
		ownerClaim = "sub"
	}
	id := Identity{
		OwnerID: claimString(claims[ownerClaim]),
		Subject: claimString(claims["sub"]),
		Email:   claimString(claims["email"]),
	}
	if exp, ok := claims["exp"].(float64); ok {
		id.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("%w: missing %q claim", ErrInvalidToken, ownerClaim)
	}
	return id, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
