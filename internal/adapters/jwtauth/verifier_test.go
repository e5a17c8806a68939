package jwtauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Secret:     testSecret,
		Issuer:     "mediajobs-test",
		Audience:   "mediajobs-api",
		OwnerClaim: "sub",
	})
	require.NoError(t, err)
	return v
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func claims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "mediajobs-test",
		"aud":   "mediajobs-api",
		"sub":   "owner-1",
		"email": "owner@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestNewVerifier_ShortSecret(t *testing.T) {
	_, err := NewVerifier(Config{Secret: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestVerifier_Verify(t *testing.T) {
	v := testVerifier(t)
	ctx := context.Background()

	id, err := v.Verify(ctx, signHS256(t, testSecret, claims()))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", id.OwnerID)
	assert.Equal(t, "owner@example.com", id.Email)
	assert.True(t, id.Valid())

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		secret string
	}{
		{name: "wrong secret", secret: "fedcba9876543210fedcba9876543210"},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "someone-else" }},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other" }},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "no expiry", mutate: func(c jwt.MapClaims) { delete(c, "exp") }},
		{name: "no subject", mutate: func(c jwt.MapClaims) { delete(c, "sub") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := claims()
			if tt.mutate != nil {
				tt.mutate(c)
			}
			secret := testSecret
			if tt.secret != "" {
				secret = tt.secret
			}
			_, err := v.Verify(ctx, signHS256(t, secret, c))
			assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
		})
	}
}

func TestVerifier_RejectsOtherAlgorithms(t *testing.T) {
	v := testVerifier(t)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims()).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
}
