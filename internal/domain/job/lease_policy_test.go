package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	t.Run("defaults heartbeat to a third of the lease", func(t *testing.T) {
		policy, err := NewLeasePolicy(30*time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, policy.Lease())
		assert.Equal(t, 10*time.Second, policy.HeartbeatInterval())
	})

	t.Run("invalid lease", func(t *testing.T) {
		policy, err := NewLeasePolicy(0, 0)
		require.ErrorIs(t, err, ErrInvalidLease)
		assert.Nil(t, policy)
	})

	t.Run("heartbeat must be shorter than lease", func(t *testing.T) {
		_, err := NewLeasePolicy(10*time.Second, 10*time.Second)
		require.ErrorIs(t, err, ErrHeartbeatTooLong)
	})

	t.Run("sub-second lease clamps to one second", func(t *testing.T) {
		policy, err := NewLeasePolicy(100*time.Millisecond, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, time.Second, policy.Lease())
	})
}

func TestLeasePolicy_Expiry(t *testing.T) {
	policy, err := NewLeasePolicy(time.Minute, 20*time.Second)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := policy.ExpiresAt(now)
	assert.Equal(t, now.Add(time.Minute), exp)

	assert.False(t, policy.Expired(&exp, now.Add(59*time.Second)))
	assert.True(t, policy.Expired(&exp, now.Add(time.Minute)))
	assert.True(t, policy.Expired(nil, now))
}

func TestLeasePolicy_Nil(t *testing.T) {
	var p *LeasePolicy
	assert.Zero(t, p.Lease())
	assert.Zero(t, p.HeartbeatInterval())
}
