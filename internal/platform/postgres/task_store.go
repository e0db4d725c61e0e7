package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// taskColumns is the column list shared by every task SELECT in this file.
const taskColumns = `
	t.id, t.tenant_id, t.board_id, t.title, t.status, t.blocked,
	t.assigned_to_agent, t.model,
	t.agent_claimed_at, t.agent_session_id, t.agent_session_key,
	t.run_count, t.last_run_id,
	t.nightly, t.nightly_delay_hours, t.recurring_template,
	t.auto_pull_blocked, t.auto_pull_last_error_at,
	t.follow_up_prompt, t.origin_session_id,
	t.created_at, t.updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// It accepts a database connection or transaction managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore.
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks t WHERE t.id = $1`
	return s.getOne(ctx, query, id)
}

// GetForUpdate implements store.TaskStore.GetForUpdate.
// The row lock is only held for the lifetime of the surrounding transaction,
// so this must be called on a TaskStore obtained via WithTx.
func (s *PostgresTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks t WHERE t.id = $1 FOR UPDATE`
	return s.getOne(ctx, query, id)
}

func (s *PostgresTaskStore) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return task, nil
}

// Update implements store.TaskStore.Update.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tasks
		SET status = $1, blocked = $2, assigned_to_agent = $3, model = $4,
		    agent_claimed_at = $5, agent_session_id = $6, agent_session_key = $7,
		    run_count = $8, last_run_id = $9,
		    auto_pull_blocked = $10, auto_pull_last_error_at = $11,
		    follow_up_prompt = $12, updated_at = $13
		WHERE id = $14
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.Blocked,
		task.AssignedToAgent,
		task.Model,
		task.AgentClaimedAt,
		task.AgentSessionID,
		task.AgentSessionKey,
		task.RunCount,
		task.LastRunID,
		task.AutoPullBlocked,
		task.AutoPullLastErrorAt,
		task.FollowUpPrompt,
		time.Now().UTC(),
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return CheckRowsAffected(result, "task")
}

// ListInProgress implements store.TaskStore.ListInProgress.
func (s *PostgresTaskStore) ListInProgress(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT` + taskColumns + `
		FROM tasks t
		WHERE t.tenant_id = $1 AND t.status = $2
		ORDER BY t.id ASC`

	return s.listTasks(ctx, query, tenantID, domain.TaskStatusInProgress)
}

// ListDispatchCandidates implements store.TaskStore.ListDispatchCandidates.
// The eligibility filters mirror the admission rules that are cheap to
// express in SQL; everything state-dependent (busy boards, quotas, time
// windows) stays in the selector.
func (s *PostgresTaskStore) ListDispatchCandidates(
	ctx context.Context,
	tenantID uuid.UUID,
	errorBefore time.Time,
) ([]*store.Candidate, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT` + taskColumns + `, b.position
		FROM tasks t
		JOIN boards b ON b.id = t.board_id
		WHERE t.tenant_id = $1
		  AND t.status = $2
		  AND NOT t.blocked
		  AND t.assigned_to_agent
		  AND NOT t.recurring_template
		  AND NOT t.auto_pull_blocked
		  AND t.agent_claimed_at IS NULL
		  AND t.agent_session_id = ''
		  AND t.agent_session_key = ''
		  AND NOT b.is_aggregator
		  AND (t.auto_pull_last_error_at IS NULL OR t.auto_pull_last_error_at < $3)
		ORDER BY b.position ASC, t.id ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID, domain.TaskStatusUpNext, errorBefore)
	if err != nil {
		log.Error("failed to query dispatch candidates",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []*store.Candidate
	for rows.Next() {
		task, position, err := scanCandidate(rows)
		if err != nil {
			return nil, MapError(err)
		}
		candidates = append(candidates, &store.Candidate{Task: task, BoardPosition: position})
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return candidates, nil
}

// CountInProgress implements store.TaskStore.CountInProgress.
func (s *PostgresTaskStore) CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE tenant_id = $1 AND status = $2`

	var count int
	err := s.db.QueryRowContext(ctx, query, tenantID, domain.TaskStatusInProgress).Scan(&count)
	if err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// QueueDepthByBoard implements store.TaskStore.QueueDepthByBoard.
func (s *PostgresTaskStore) QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT board_id, COUNT(*)
		FROM tasks
		WHERE tenant_id = $1 AND status = $2 AND assigned_to_agent
		GROUP BY board_id
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, domain.TaskStatusUpNext)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[uuid.UUID]int)
	for rows.Next() {
		var boardID uuid.UUID
		var count int
		if err := rows.Scan(&boardID, &count); err != nil {
			return nil, MapError(err)
		}
		depths[boardID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return depths, nil
}

// ListActiveTenants implements store.TaskStore.ListActiveTenants.
func (s *PostgresTaskStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT tenant_id FROM tasks WHERE assigned_to_agent ORDER BY tenant_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tenants, nil
}

func (s *PostgresTaskStore) listTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return tasks, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var claimedAt, lastErrorAt sql.NullTime
	var lastRunID uuid.NullUUID

	err := row.Scan(
		&t.ID, &t.TenantID, &t.BoardID, &t.Title, &t.Status, &t.Blocked,
		&t.AssignedToAgent, &t.Model,
		&claimedAt, &t.AgentSessionID, &t.AgentSessionKey,
		&t.RunCount, &lastRunID,
		&t.Nightly, &t.NightlyDelayHours, &t.RecurringTemplate,
		&t.AutoPullBlocked, &lastErrorAt,
		&t.FollowUpPrompt, &t.OriginSessionID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		t.AgentClaimedAt = &claimedAt.Time
	}
	if lastErrorAt.Valid {
		t.AutoPullLastErrorAt = &lastErrorAt.Time
	}
	if lastRunID.Valid {
		id := lastRunID.UUID
		t.LastRunID = &id
	}

	return &t, nil
}

func scanCandidate(row rowScanner) (*domain.Task, int, error) {
	var t domain.Task
	var claimedAt, lastErrorAt sql.NullTime
	var lastRunID uuid.NullUUID
	var position int

	err := row.Scan(
		&t.ID, &t.TenantID, &t.BoardID, &t.Title, &t.Status, &t.Blocked,
		&t.AssignedToAgent, &t.Model,
		&claimedAt, &t.AgentSessionID, &t.AgentSessionKey,
		&t.RunCount, &lastRunID,
		&t.Nightly, &t.NightlyDelayHours, &t.RecurringTemplate,
		&t.AutoPullBlocked, &lastErrorAt,
		&t.FollowUpPrompt, &t.OriginSessionID,
		&t.CreatedAt, &t.UpdatedAt,
		&position,
	)
	if err != nil {
		return nil, 0, err
	}

	if claimedAt.Valid {
		t.AgentClaimedAt = &claimedAt.Time
	}
	if lastErrorAt.Valid {
		t.AutoPullLastErrorAt = &lastErrorAt.Time
	}
	if lastRunID.Valid {
		id := lastRunID.UUID
		t.LastRunID = &id
	}

	return &t, position, nil
}
