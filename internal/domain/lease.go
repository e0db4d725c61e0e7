package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lease-specific validation errors.
var (
	// ErrLeaseIDEmpty is returned when a lease ID is empty or nil.
	ErrLeaseIDEmpty = errors.New("lease ID cannot be empty")

	// ErrLeaseTaskIDEmpty is returned when a lease's task ID is empty or nil.
	ErrLeaseTaskIDEmpty = errors.New("lease task ID cannot be empty")

	// ErrLeaseTTLInvalid is returned when a lease TTL is zero or negative.
	ErrLeaseTTLInvalid = errors.New("lease TTL must be positive")
)

// Lease release reasons recorded on terminated leases.
const (
	LeaseReleaseOutcome      = "outcome_reported"
	LeaseReleaseStale        = "heartbeat_stale"
	LeaseReleaseExpired      = "ttl_expired"
	LeaseReleaseMissingClaim = "missing_claim"
)

// Lease is a time-boxed claim on a task by a specific worker session.
// A released lease is immutable history and is never reused.
type Lease struct {
	ID              uuid.UUID     `json:"id"`
	TaskID          uuid.UUID     `json:"task_id"`
	SessionID       string        `json:"session_id"`
	AcquiredAt      time.Time     `json:"acquired_at"`
	LastHeartbeatAt time.Time     `json:"last_heartbeat_at"`
	TTL             time.Duration `json:"ttl"`
	ReleasedAt      *time.Time    `json:"released_at,omitempty"`
	ReleaseReason   string        `json:"release_reason,omitempty"`
}

// NewLease creates an active lease for the given task and session.
func NewLease(taskID uuid.UUID, sessionID string, ttl time.Duration) (*Lease, error) {
	now := time.Now().UTC()
	l := &Lease{
		ID:              uuid.New(),
		TaskID:          taskID,
		SessionID:       sessionID,
		AcquiredAt:      now,
		LastHeartbeatAt: now,
		TTL:             ttl,
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks if the Lease has valid data.
func (l *Lease) Validate() error {
	if l.ID == uuid.Nil {
		return ErrLeaseIDEmpty
	}
	if l.TaskID == uuid.Nil {
		return ErrLeaseTaskIDEmpty
	}
	if l.TTL <= 0 {
		return ErrLeaseTTLInvalid
	}
	return nil
}

// Active reports whether the lease has not been released.
func (l *Lease) Active() bool {
	return l.ReleasedAt == nil
}

// ExpiresAt is the soft expiry derived from the last heartbeat.
func (l *Lease) ExpiresAt() time.Time {
	return l.LastHeartbeatAt.Add(l.TTL)
}

// HardExpiresAt is the absolute expiry derived from acquisition time,
// independent of heartbeat recency. It bounds how long a claim can live even
// if heartbeats keep arriving with a skewed or spoofed clock.
func (l *Lease) HardExpiresAt(maxAge time.Duration) time.Time {
	return l.AcquiredAt.Add(maxAge)
}

// HeartbeatStale reports whether the last heartbeat is older than threshold
// as of now.
func (l *Lease) HeartbeatStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(l.LastHeartbeatAt) > threshold
}
