package config

import (
	"fmt"
	"strings"
)

// AuthMode selects how bearer tokens are verified.
type AuthMode string

const (
	// AuthModeJWT verifies HS256 tokens signed with a shared secret.
	AuthModeJWT AuthMode = "jwt"
	// AuthModeOIDC verifies tokens against an OIDC issuer's published keys.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock accepts any request as a fixed identity (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "jwt", "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: jwt, oidc, mock)", v)
	}
}

// JWTConfig configures shared-secret token verification.
type JWTConfig struct {
	Secret   string `env:"SECRET"`
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE"`
}

// OIDCConfig configures issuer-backed token verification.
type OIDCConfig struct {
	IssuerURL string `env:"ISSUER_URL"`
	// ClientID is the expected audience of access tokens.
	ClientID string `env:"CLIENT_ID"`
}

// DevAuthConfig controls the mock identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	OwnerID string `env:"OWNER_ID" envDefault:"dev-owner"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which token verifier to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"jwt"`

	// OwnerClaim names the claim holding the caller's owner_id.
	OwnerClaim string `env:"AUTH_OWNER_CLAIM" envDefault:"sub"`

	JWT     JWTConfig     `envPrefix:"AUTH_JWT_"`
	OIDC    OIDCConfig    `envPrefix:"AUTH_OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}
