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

const leaseColumns = `
	l.id, l.task_id, l.session_id, l.acquired_at, l.last_heartbeat_at,
	l.ttl_seconds, l.released_at, l.release_reason`

// PostgresLeaseStore implements the store.LeaseStore interface using PostgreSQL.
type PostgresLeaseStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLeaseStore creates a new PostgresLeaseStore.
func NewPostgresLeaseStore(db store.DBTX, logger *slog.Logger) *PostgresLeaseStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLeaseStore{
		db:     db,
		logger: logger.With(slog.String("component", "lease_store")),
	}
}

// Ensure PostgresLeaseStore implements store.LeaseStore.
var _ store.LeaseStore = (*PostgresLeaseStore)(nil)

// WithTx implements store.LeaseStore.WithTx.
func (s *PostgresLeaseStore) WithTx(tx *sql.Tx) store.LeaseStore {
	return &PostgresLeaseStore{db: tx, logger: s.logger}
}

// Create implements store.LeaseStore.Create.
func (s *PostgresLeaseStore) Create(ctx context.Context, lease *domain.Lease) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := lease.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO leases (id, task_id, session_id, acquired_at, last_heartbeat_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		lease.ID,
		lease.TaskID,
		lease.SessionID,
		lease.AcquiredAt,
		lease.LastHeartbeatAt,
		int(lease.TTL.Seconds()),
	)
	if err != nil {
		log.Error("failed to create lease",
			slog.String("lease_id", lease.ID.String()),
			slog.String("task_id", lease.TaskID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

// GetActiveByTaskID implements store.LeaseStore.GetActiveByTaskID.
func (s *PostgresLeaseStore) GetActiveByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Lease, error) {
	query := `SELECT` + leaseColumns + `
		FROM leases l
		WHERE l.task_id = $1 AND l.released_at IS NULL
		ORDER BY l.acquired_at DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, taskID)
	lease, err := scanLease(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrLeaseNotFound
		}
		return nil, MapError(err)
	}
	return lease, nil
}

// ListActiveByTenant implements store.LeaseStore.ListActiveByTenant.
func (s *PostgresLeaseStore) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Lease, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT` + leaseColumns + `
		FROM leases l
		JOIN tasks t ON t.id = l.task_id
		WHERE t.tenant_id = $1 AND l.released_at IS NULL
		ORDER BY l.acquired_at ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		log.Error("failed to query active leases",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var leases []*domain.Lease
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, MapError(err)
		}
		leases = append(leases, lease)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return leases, nil
}

// Heartbeat implements store.LeaseStore.Heartbeat.
func (s *PostgresLeaseStore) Heartbeat(ctx context.Context, leaseID uuid.UUID, at time.Time) error {
	query := `UPDATE leases SET last_heartbeat_at = $1 WHERE id = $2 AND released_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, at, leaseID)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "lease"); err != nil {
		return store.ErrLeaseNotFound
	}
	return nil
}

// Release implements store.LeaseStore.Release.
// The released_at IS NULL guard makes releasing idempotent: a released
// lease is immutable history.
func (s *PostgresLeaseStore) Release(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE leases
		SET released_at = $1, release_reason = $2
		WHERE id = $3 AND released_at IS NULL
	`

	_, err := s.db.ExecContext(ctx, query, at, reason, leaseID)
	if err != nil {
		log.Error("failed to release lease",
			slog.String("lease_id", leaseID.String()),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

// ReleaseActiveForTask implements store.LeaseStore.ReleaseActiveForTask.
func (s *PostgresLeaseStore) ReleaseActiveForTask(
	ctx context.Context,
	taskID uuid.UUID,
	reason string,
	at time.Time,
) (bool, error) {
	query := `
		UPDATE leases
		SET released_at = $1, release_reason = $2
		WHERE task_id = $3 AND released_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, at, reason, taskID)
	if err != nil {
		return false, MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanLease(row rowScanner) (*domain.Lease, error) {
	var l domain.Lease
	var ttlSeconds int
	var releasedAt sql.NullTime
	var releaseReason sql.NullString

	err := row.Scan(
		&l.ID, &l.TaskID, &l.SessionID, &l.AcquiredAt, &l.LastHeartbeatAt,
		&ttlSeconds, &releasedAt, &releaseReason,
	)
	if err != nil {
		return nil, err
	}

	l.TTL = time.Duration(ttlSeconds) * time.Second
	if releasedAt.Valid {
		l.ReleasedAt = &releasedAt.Time
	}
	l.ReleaseReason = releaseReason.String

	return &l, nil
}
