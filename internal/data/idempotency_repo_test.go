package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdempotencyRepo_Reserve(t *testing.T) {
	_, client := newMiniredisClient(t)
	repo := NewIdempotencyRepo(client, time.Hour)
	ctx := context.Background()

	got, fresh, err := repo.Reserve(ctx, "owner-1", "key-a", "job-1")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "job-1", got)

	got, fresh, err = repo.Reserve(ctx, "owner-1", "key-a", "job-2")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "job-1", got)

	// keys are scoped per owner
	got, fresh, err = repo.Reserve(ctx, "owner-2", "key-a", "job-3")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "job-3", got)
}

func TestIdempotencyRepo_Expiry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	repo := NewIdempotencyRepo(client, time.Minute)
	ctx := context.Background()

	_, _, err := repo.Reserve(ctx, "o", "k", "job-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	got, fresh, err := repo.Reserve(ctx, "o", "k", "job-2")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "job-2", got)
}

func TestIdempotencyRepo_Release(t *testing.T) {
	_, client := newMiniredisClient(t)
	repo := NewIdempotencyRepo(client, 0)
	ctx := context.Background()

	_, _, err := repo.Reserve(ctx, "o", "k", "job-1")
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, "o", "k"))

	_, fresh, err := repo.Reserve(ctx, "o", "k", "job-2")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestIdempotencyRepo_EmptyKey(t *testing.T) {
	_, client := newMiniredisClient(t)
	repo := NewIdempotencyRepo(client, 0)
	_, _, err := repo.Reserve(context.Background(), "o", "", "job-1")
	require.Error(t, err)
}
