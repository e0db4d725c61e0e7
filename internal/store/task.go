package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// Candidate is a dispatch-eligible task paired with the board position that
// determines its place in the admission order.
type Candidate struct {
	Task          *domain.Task
	BoardPosition int
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUpdate retrieves a task with a row-level lock using
	// SELECT ... FOR UPDATE. Only meaningful inside a transaction; it is the
	// serialization point between the outcome state machine and any
	// concurrent writer touching the same task.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update persists the mutable fields of a task (status, claim fields,
	// run counters, follow-up prompt) and refreshes updated_at.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// ListInProgress returns all in_progress tasks for the tenant.
	ListInProgress(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error)

	// ListDispatchCandidates returns queued tasks eligible for automatic
	// dispatch: status up_next, not blocked, unclaimed, assigned to an agent,
	// on a non-aggregator board, not a recurrence template, not auto-pull
	// blocked, and with any auto_pull_last_error_at older than errorBefore.
	// Results are ordered by (board position ASC, task id ASC) so admission
	// is deterministic.
	ListDispatchCandidates(ctx context.Context, tenantID uuid.UUID, errorBefore time.Time) ([]*Candidate, error)

	// CountInProgress returns the number of in_progress tasks for the tenant.
	CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error)

	// QueueDepthByBoard returns the number of queued (up_next, agent-assigned)
	// tasks per board for the tenant.
	QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error)

	// ListActiveTenants returns the distinct tenants that currently have
	// agent-assigned tasks, used to drive the per-tenant tick loop.
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
