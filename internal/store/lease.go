package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// LeaseStore defines the interface for lease persistence. Leases are
// append/release-only: once released they are immutable history.
type LeaseStore interface {
	// Create persists a new active lease.
	Create(ctx context.Context, lease *domain.Lease) error

	// GetActiveByTaskID returns the active lease for a task.
	// Returns ErrLeaseNotFound if the task has no active lease.
	GetActiveByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Lease, error)

	// ListActiveByTenant returns all active leases whose tasks belong to the
	// tenant.
	ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Lease, error)

	// Heartbeat refreshes last_heartbeat_at on an active lease.
	// Returns ErrLeaseNotFound if the lease does not exist or was released.
	Heartbeat(ctx context.Context, leaseID uuid.UUID, at time.Time) error

	// Release terminates a lease, recording the release time and reason.
	// Releasing an already-released lease is a no-op.
	Release(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) error

	// ReleaseActiveForTask releases the task's active lease, if any.
	// Returns true if a lease was released.
	ReleaseActiveForTask(ctx context.Context, taskID uuid.UUID, reason string, at time.Time) (bool, error)

	// WithTx returns a new LeaseStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LeaseStore
}
