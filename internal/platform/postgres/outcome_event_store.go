package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// PostgresOutcomeEventStore implements store.OutcomeEventStore. Events are
// append-only; downstream consumers read and ack them out of band.
type PostgresOutcomeEventStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOutcomeEventStore creates a new PostgresOutcomeEventStore.
func NewPostgresOutcomeEventStore(db store.DBTX, logger *slog.Logger) *PostgresOutcomeEventStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOutcomeEventStore{
		db:     db,
		logger: logger.With(slog.String("component", "outcome_event_store")),
	}
}

// Ensure PostgresOutcomeEventStore implements store.OutcomeEventStore.
var _ store.OutcomeEventStore = (*PostgresOutcomeEventStore)(nil)

// Append implements store.OutcomeEventStore.Append.
func (s *PostgresOutcomeEventStore) Append(ctx context.Context, event *domain.OutcomeEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	validation, err := json.Marshal(event.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation: %w", err)
	}

	query := `
		INSERT INTO outcome_events (id, task_id, run_id, old_status, new_status,
		                            summary, changes, validation, follow_up,
		                            route_channel, route_target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.TaskID,
		event.RunID,
		event.OldStatus,
		event.NewStatus,
		event.Summary,
		changes,
		validation,
		event.FollowUp,
		event.RouteChannel,
		event.RouteTarget,
		time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to append outcome event",
			slog.String("event_id", event.ID.String()),
			slog.String("task_id", event.TaskID.String()),
			slog.String("run_id", event.RunID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}
