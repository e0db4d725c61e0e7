package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/store"
)

// fakeTaskStore serves canned data to the selector. The selector only
// reads; mutation methods are unreachable from these tests.
type fakeTaskStore struct {
	inProgress []*domain.Task
	candidates []*store.Candidate
	depths     map[uuid.UUID]int

	candidateCalls  int
	lastErrorBefore time.Time
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	return nil
}

func (f *fakeTaskStore) ListInProgress(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	return f.inProgress, nil
}

func (f *fakeTaskStore) ListDispatchCandidates(
	ctx context.Context,
	tenantID uuid.UUID,
	errorBefore time.Time,
) ([]*store.Candidate, error) {
	f.candidateCalls++
	f.lastErrorBefore = errorBefore
	return f.candidates, nil
}

func (f *fakeTaskStore) CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return len(f.inProgress), nil
}

func (f *fakeTaskStore) QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error) {
	return f.depths, nil
}

func (f *fakeTaskStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return f
}

// fakeModelLimitStore returns a fixed set of rate-limited models.
type fakeModelLimitStore struct {
	limited []string
}

var _ store.ModelLimitStore = (*fakeModelLimitStore)(nil)

func (f *fakeModelLimitStore) ListActiveModels(
	ctx context.Context,
	tenantID uuid.UUID,
	now time.Time,
) ([]string, error) {
	return f.limited, nil
}
