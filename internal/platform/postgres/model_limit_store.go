package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// PostgresModelLimitStore implements the store.ModelLimitStore interface.
// Model limits are written by the provider-facing side of the system; this
// core only reads them.
type PostgresModelLimitStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresModelLimitStore creates a new PostgresModelLimitStore.
func NewPostgresModelLimitStore(db store.DBTX, logger *slog.Logger) *PostgresModelLimitStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresModelLimitStore{
		db:     db,
		logger: logger.With(slog.String("component", "model_limit_store")),
	}
}

// Ensure PostgresModelLimitStore implements store.ModelLimitStore.
var _ store.ModelLimitStore = (*PostgresModelLimitStore)(nil)

// ListActiveModels implements store.ModelLimitStore.ListActiveModels.
func (s *PostgresModelLimitStore) ListActiveModels(
	ctx context.Context,
	tenantID uuid.UUID,
	now time.Time,
) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT DISTINCT model
		FROM model_limits
		WHERE tenant_id = $1 AND limited_until > $2
		ORDER BY model
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, now)
	if err != nil {
		log.Error("failed to query active model limits",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var models []string
	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, MapError(err)
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return models, nil
}
