package oidc

// Package oidc verifies bearer tokens issued by an OpenID Connect provider.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

// Verifier implements ports.TokenVerifier with the issuer's published signing keys.
type Verifier struct {
	verifier   *gooidc.IDTokenVerifier
	ownerClaim string
}

// VerifierConfig holds configuration for the OIDC verifier.
type VerifierConfig struct {
	// IssuerURL is the issuer, or its discovery document URL.
	IssuerURL string
	// ClientID is the expected audience. Empty skips the audience check.
	ClientID   string
	OwnerClaim string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// NewVerifier fetches the issuer's discovery document and builds a verifier.
func NewVerifier(ctx context.Context, config VerifierConfig) (*Verifier, error) {
	if config.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// The remote key set keeps using this context for key refreshes.
	ctx = gooidc.ClientContext(context.WithoutCancel(ctx), httpClient)
	issuer := strings.TrimSuffix(config.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return newVerifier(op.Verifier(&gooidc.Config{
		ClientID:          config.ClientID,
		SkipClientIDCheck: config.ClientID == "",
	}), config.OwnerClaim), nil
}

func newVerifier(v *gooidc.IDTokenVerifier, ownerClaim string) *Verifier {
	return &Verifier{verifier: v, ownerClaim: ownerClaim}
}

// Verify checks the token signature, issuer, audience and expiry and maps its claims.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	if rawToken == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: empty token", domainauth.ErrInvalidToken)
	}
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: %w", domainauth.ErrInvalidToken, err)
	}
	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: decode claims: %w", domainauth.ErrInvalidToken, err)
	}
	return domainauth.IdentityFromClaims(claims, v.ownerClaim)
}
