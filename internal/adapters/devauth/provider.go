package devauth

// Package devauth provides a config-driven TokenVerifier for local development.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

// Config controls the dev verifier.
type Config struct {
	// OwnerID is used when the bearer token is empty or "dev".
	OwnerID string
}

// Verifier accepts any token. A token of the form "owner:<id>" impersonates <id>, which lets
// local tests exercise ownership checks; anything else maps to the configured owner.
type Verifier struct {
	ownerID string
}

// NewVerifier constructs a dev verifier from Config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.OwnerID) == "" {
		return nil, errors.New("dev auth: OwnerID is required")
	}
	return &Verifier{ownerID: cfg.OwnerID}, nil
}

// Verify returns the development identity.
func (v *Verifier) Verify(_ context.Context, rawToken string) (domainauth.Identity, error) {
	owner := v.ownerID
	if rest, ok := strings.CutPrefix(rawToken, "owner:"); ok {
		if rest = strings.TrimSpace(rest); rest == "" {
			return domainauth.Identity{}, fmt.Errorf("%w: empty owner", domainauth.ErrInvalidToken)
		}
		owner = rest
	}
	return domainauth.Identity{OwnerID: owner, Subject: owner}, nil
}
