package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/adapters/devauth"
	"github.com/target/mmk-media-jobs/internal/adapters/jwtauth"
	"github.com/target/mmk-media-jobs/internal/adapters/oidc"
	"github.com/target/mmk-media-jobs/internal/ports"
)

// BuildTokenVerifier creates the bearer token verifier for the configured auth mode.
//
//nolint:ireturn // the concrete verifier depends on AUTH_MODE.
func BuildTokenVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (ports.TokenVerifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Mode {
	case config.AuthModeJWT, "":
		v, err := jwtauth.NewVerifier(jwtauth.Config{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			OwnerClaim: cfg.OwnerClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		return v, nil

	case config.AuthModeOIDC:
		if cfg.OIDC.IssuerURL == "" {
			return nil, errors.New("oidc verifier: AUTH_OIDC_ISSUER_URL is required")
		}
		v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
			IssuerURL:  cfg.OIDC.IssuerURL,
			ClientID:   cfg.OIDC.ClientID,
			OwnerClaim: cfg.OwnerClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc verifier: %w", err)
		}
		return v, nil

	case config.AuthModeMock:
		v, err := devauth.NewVerifier(devauth.Config{OwnerID: cfg.DevAuth.OwnerID})
		if err != nil {
			return nil, err
		}
		logger.Warn("mock authentication enabled; every request is trusted", "owner_id", cfg.DevAuth.OwnerID)
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
