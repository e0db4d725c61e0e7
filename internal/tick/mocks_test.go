package tick

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/store"
)

// fakeTaskStore serves both the liveness sweep and the admission pass with
// canned data.
type fakeTaskStore struct {
	mu         sync.Mutex
	tenants    []uuid.UUID
	inProgress map[uuid.UUID][]*domain.Task
	candidates map[uuid.UUID][]*store.Candidate
	depths     map[uuid.UUID]map[uuid.UUID]int
	updated    []*domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		inProgress: make(map[uuid.UUID][]*domain.Task),
		candidates: make(map[uuid.UUID][]*store.Candidate),
		depths:     make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) Update(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, task)
	return nil
}

func (f *fakeTaskStore) ListInProgress(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgress[tenantID], nil
}

func (f *fakeTaskStore) ListDispatchCandidates(ctx context.Context, tenantID uuid.UUID, errorBefore time.Time) ([]*store.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates[tenantID], nil
}

func (f *fakeTaskStore) CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inProgress[tenantID]), nil
}

func (f *fakeTaskStore) QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depths[tenantID], nil
}

func (f *fakeTaskStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenants, nil
}

func (f *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return f }

type fakeLeaseStore struct {
	leases []*domain.Lease
}

func (f *fakeLeaseStore) Create(ctx context.Context, lease *domain.Lease) error { return nil }

func (f *fakeLeaseStore) GetActiveByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Lease, error) {
	for _, l := range f.leases {
		if l.TaskID == taskID && l.Active() {
			return l, nil
		}
	}
	return nil, store.ErrLeaseNotFound
}

func (f *fakeLeaseStore) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Lease, error) {
	return f.leases, nil
}

func (f *fakeLeaseStore) Heartbeat(ctx context.Context, leaseID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeLeaseStore) Release(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) error {
	return nil
}

func (f *fakeLeaseStore) ReleaseActiveForTask(ctx context.Context, taskID uuid.UUID, reason string, at time.Time) (bool, error) {
	return false, nil
}

func (f *fakeLeaseStore) WithTx(tx *sql.Tx) store.LeaseStore { return f }

type fakeModelLimitStore struct{}

func (f *fakeModelLimitStore) ListActiveModels(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]string, error) {
	return nil, nil
}

// passthroughTransactor runs the function without a real transaction.
type passthroughTransactor struct{}

func (p *passthroughTransactor) InTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

// recordingNotifier captures wake calls and optionally fails for selected
// tasks.
type recordingNotifier struct {
	mu      sync.Mutex
	woken   []uuid.UUID
	failFor map[uuid.UUID]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: make(map[uuid.UUID]bool)}
}

func (r *recordingNotifier) NotifyTaskReady(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[task.ID] {
		return errors.New("wake channel unavailable")
	}
	r.woken = append(r.woken, task.ID)
	return nil
}

type recordingAlerter struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (r *recordingAlerter) CreateNotification(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

type recordingAnnotator struct {
	mu    sync.Mutex
	notes []string
}

func (r *recordingAnnotator) AddSystemNote(ctx context.Context, taskID uuid.UUID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}
