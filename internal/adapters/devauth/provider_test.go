package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-media-jobs/internal/domain/auth"
)

func TestNewVerifier_RequiresOwner(t *testing.T) {
	_, err := NewVerifier(Config{OwnerID: " "})
	require.Error(t, err)
}

func TestVerifier_Verify(t *testing.T) {
	v, err := NewVerifier(Config{OwnerID: "dev-owner"})
	require.NoError(t, err)
	ctx := context.Background()

	id, err := v.Verify(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, "dev-owner", id.OwnerID)

	id, err = v.Verify(ctx, "owner:owner-2")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", id.OwnerID)

	_, err = v.Verify(ctx, "owner:")
	assert.ErrorIs(t, err, domainauth.ErrInvalidToken)
}
