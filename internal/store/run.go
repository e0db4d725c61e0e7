package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// RunStore defines the interface for run-record persistence. Run records are
// strictly append-only and keyed by the caller-supplied run ID.
type RunStore interface {
	// GetByRunID retrieves the run record for the given run ID.
	// Returns ErrRunNotFound if no record exists.
	GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.RunRecord, error)

	// Create persists a new run record. Returns ErrRunExists if a record
	// with the same run ID already exists; the outcome state machine relies
	// on the underlying uniqueness constraint as its race backstop.
	Create(ctx context.Context, run *domain.RunRecord) error

	// WithTx returns a new RunStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) RunStore
}

// ModelLimitStore provides read access to active model rate-limit records.
// The admission selector consults these; nothing in this core mutates them.
type ModelLimitStore interface {
	// ListActiveModels returns the normalized model names with a limit still
	// in force at the given instant.
	ListActiveModels(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]string, error)
}

// OutcomeEventStore appends durable outcome events for async consumers.
type OutcomeEventStore interface {
	// Append persists one outcome event.
	Append(ctx context.Context, event *domain.OutcomeEvent) error
}
