package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-media-jobs/internal/core"
)

const idempotencyKeyPrefix = "mediajobs:idem:"

// IdempotencyRepo remembers which job a client-supplied Idempotency-Key produced so a
// retried submission returns the original job instead of creating another.
type IdempotencyRepo struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.IdempotencyStore = (*IdempotencyRepo)(nil)

// NewIdempotencyRepo creates an IdempotencyRepo. Keys expire after ttl (default 24h).
func NewIdempotencyRepo(client redis.UniversalClient, ttl time.Duration) *IdempotencyRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepo{client: client, ttl: ttl}
}

func idempotencyKey(ownerID, key string) string {
	return idempotencyKeyPrefix + ownerID + ":" + key
}

// Reserve claims key for jobID. When the key is already held it returns the job id stored
// under it and false.
func (r *IdempotencyRepo) Reserve(ctx context.Context, ownerID, key, jobID string) (string, bool, error) {
	if key == "" || ownerID == "" {
		return "", false, errors.New("owner and key cannot be empty")
	}
	k := idempotencyKey(ownerID, key)
	ok, err := r.client.SetNX(ctx, k, jobID, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = r.client.SetNX(ctx, k, jobID, r.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return jobID, true, nil
		}
		existing, err = r.client.Get(ctx, k).Result()
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return existing, false, nil
}

// Release forgets key, used when the submission it guarded failed.
func (r *IdempotencyRepo) Release(ctx context.Context, ownerID, key string) error {
	if err := r.client.Del(ctx, idempotencyKey(ownerID, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
