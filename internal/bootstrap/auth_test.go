package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/config"
	"github.com/target/mmk-media-jobs/internal/adapters/devauth"
	"github.com/target/mmk-media-jobs/internal/adapters/jwtauth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildTokenVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("jwt", func(t *testing.T) {
		v, err := BuildTokenVerifier(ctx, config.AuthConfig{
			Mode:       config.AuthModeJWT,
			OwnerClaim: "sub",
			JWT:        config.JWTConfig{Secret: strings.Repeat("s", 32)},
		}, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &jwtauth.Verifier{}, v)
	})

	t.Run("jwt with short secret", func(t *testing.T) {
		_, err := BuildTokenVerifier(ctx, config.AuthConfig{
			Mode: config.AuthModeJWT,
			JWT:  config.JWTConfig{Secret: "short"},
		}, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt verifier")
	})

	t.Run("oidc requires issuer", func(t *testing.T) {
		_, err := BuildTokenVerifier(ctx, config.AuthConfig{Mode: config.AuthModeOIDC}, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTH_OIDC_ISSUER_URL")
	})

	t.Run("mock", func(t *testing.T) {
		v, err := BuildTokenVerifier(ctx, config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{OwnerID: "dev-owner"},
		}, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &devauth.Verifier{}, v)

		id, err := v.Verify(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "dev-owner", id.OwnerID)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := BuildTokenVerifier(ctx, config.AuthConfig{Mode: "saml"}, discardLogger())
		require.Error(t, err)
	})
}
