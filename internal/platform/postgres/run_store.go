package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// PostgresRunStore implements the store.RunStore interface using PostgreSQL.
// The runs.run_id primary key is the storage-level idempotency backstop for
// the outcome state machine.
type PostgresRunStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db store.DBTX, logger *slog.Logger) *PostgresRunStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRunStore{
		db:     db,
		logger: logger.With(slog.String("component", "run_store")),
	}
}

// Ensure PostgresRunStore implements store.RunStore.
var _ store.RunStore = (*PostgresRunStore)(nil)

// WithTx implements store.RunStore.WithTx.
func (s *PostgresRunStore) WithTx(tx *sql.Tx) store.RunStore {
	return &PostgresRunStore{db: tx, logger: s.logger}
}

// GetByRunID implements store.RunStore.GetByRunID.
func (s *PostgresRunStore) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.RunRecord, error) {
	query := `
		SELECT run_id, task_id, run_number, ended_at, needs_follow_up,
		       recommended_action, summary, achieved, evidence, remaining,
		       model_used, raw_payload, created_at
		FROM runs
		WHERE run_id = $1
	`

	var r domain.RunRecord
	var endedAt sql.NullTime
	var achieved, evidence, remaining []byte

	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&r.RunID, &r.TaskID, &r.RunNumber, &endedAt, &r.NeedsFollowUp,
		&r.RecommendedAction, &r.Summary, &achieved, &evidence, &remaining,
		&r.ModelUsed, &r.RawPayload, &r.CreatedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrRunNotFound
		}
		return nil, MapError(err)
	}

	if endedAt.Valid {
		r.EndedAt = &endedAt.Time
	}
	for _, pair := range []struct {
		raw  []byte
		dest *[]string
	}{
		{achieved, &r.Achieved},
		{evidence, &r.Evidence},
		{remaining, &r.Remaining},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dest); err != nil {
				return nil, fmt.Errorf("failed to decode run record list field: %w", err)
			}
		}
	}

	return &r, nil
}

// Create implements store.RunStore.Create.
func (s *PostgresRunStore) Create(ctx context.Context, run *domain.RunRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	achieved, err := json.Marshal(run.Achieved)
	if err != nil {
		return fmt.Errorf("failed to encode achieved: %w", err)
	}
	evidence, err := json.Marshal(run.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	remaining, err := json.Marshal(run.Remaining)
	if err != nil {
		return fmt.Errorf("failed to encode remaining: %w", err)
	}

	query := `
		INSERT INTO runs (run_id, task_id, run_number, ended_at, needs_follow_up,
		                  recommended_action, summary, achieved, evidence, remaining,
		                  model_used, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.db.ExecContext(ctx, query,
		run.RunID,
		run.TaskID,
		run.RunNumber,
		run.EndedAt,
		run.NeedsFollowUp,
		run.RecommendedAction,
		run.Summary,
		achieved,
		evidence,
		remaining,
		run.ModelUsed,
		[]byte(run.RawPayload),
		time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrRunExists
		}
		log.Error("failed to create run record",
			slog.String("run_id", run.RunID.String()),
			slog.String("task_id", run.TaskID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}
