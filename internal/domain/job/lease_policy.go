package job

import (
	"errors"
	"time"
)

var (
	// ErrInvalidLease indicates the configured lease duration is not positive.
	ErrInvalidLease = errors.New("lease must be positive")
	// ErrHeartbeatTooLong indicates the heartbeat would not renew the lease before it lapses.
	ErrHeartbeatTooLong = errors.New("heartbeat interval must be shorter than the lease")
)

const minLease = time.Second

// LeasePolicy decides how long a claimed job stays owned by a worker between heartbeats.
// A worker that stops heartbeating (crash, partition) loses the claim once the lease lapses
// and the reaper makes the job claimable again.
type LeasePolicy struct {
	lease     time.Duration
	heartbeat time.Duration
}

// NewLeasePolicy builds a policy. A zero heartbeat defaults to a third of the lease.
func NewLeasePolicy(lease, heartbeat time.Duration) (*LeasePolicy, error) {
	if lease <= 0 {
		return nil, ErrInvalidLease
	}
	if lease < minLease {
		lease = minLease
	}
	if heartbeat <= 0 {
		heartbeat = lease / 3
	}
	if heartbeat >= lease {
		return nil, ErrHeartbeatTooLong
	}
	return &LeasePolicy{lease: lease, heartbeat: heartbeat}, nil
}

// Lease returns the lease duration.
func (p *LeasePolicy) Lease() time.Duration {
	if p == nil {
		return 0
	}
	return p.lease
}

// HeartbeatInterval returns how often a worker renews its lease.
func (p *LeasePolicy) HeartbeatInterval() time.Duration {
	if p == nil {
		return 0
	}
	return p.heartbeat
}

// ExpiresAt returns the lease expiry for a claim or heartbeat made at now.
func (p *LeasePolicy) ExpiresAt(now time.Time) time.Time {
	return now.Add(p.Lease())
}

// Expired reports whether a lease that expires at expiresAt has lapsed at now.
func (p *LeasePolicy) Expired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return !now.Before(*expiresAt)
}
