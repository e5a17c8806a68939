// Package jwtauth verifies HS256 bearer tokens signed with a shared secret.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

// Config holds the shared secret and the optional issuer and audience checks.
type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	OwnerClaim string
}

// Verifier implements ports.TokenVerifier for shared-secret tokens.
type Verifier struct {
	secret     []byte
	parser     *jwt.Parser
	ownerClaim string
}

const (
	minSecretBytes = 32
	clockSkew      = 30 * time.Second
)

// NewVerifier validates cfg and builds a verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		secret:     []byte(cfg.Secret),
		parser:     jwt.NewParser(opts...),
		ownerClaim: cfg.OwnerClaim,
	}, nil
}

// Verify parses and validates rawToken.
func (v *Verifier) Verify(_ context.Context, rawToken string) (domainauth.Identity, error) {
	if rawToken == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: empty token", domainauth.ErrInvalidToken)
	}
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domainauth.Identity{}, fmt.Errorf("%w: token expired", domainauth.ErrInvalidToken)
		}
		return domainauth.Identity{}, fmt.Errorf("%w: %w", domainauth.ErrInvalidToken, err)
	}
	return domainauth.IdentityFromClaims(claims, v.ownerClaim)
}
