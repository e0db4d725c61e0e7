package liveness

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/store"
)

// memTaskStore is a mutable in-memory TaskStore. WithTx returns the same
// store; the sweep's transactions run against shared state, which is exactly
// what the re-check-under-lock tests need.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

var _ store.TaskStore = (*memTaskStore)(nil)

func newMemTaskStore(tasks ...*domain.Task) *memTaskStore {
	s := &memTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
	for _, t := range tasks {
		copied := *t
		s.tasks[t.ID] = &copied
	}
	return s
}

func (s *memTaskStore) get(id uuid.UUID) (*domain.Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *memTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memTaskStore) Update(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	copied := *task
	copied.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = &copied
	return nil
}

func (s *memTaskStore) ListInProgress(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Task
	for _, t := range s.tasks {
		if t.TenantID == tenantID && t.Status == domain.TaskStatusInProgress {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memTaskStore) ListDispatchCandidates(
	ctx context.Context,
	tenantID uuid.UUID,
	errorBefore time.Time,
) ([]*store.Candidate, error) {
	return nil, nil
}

func (s *memTaskStore) CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tasks, _ := s.ListInProgress(ctx, tenantID)
	return len(tasks), nil
}

func (s *memTaskStore) QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error) {
	return nil, nil
}

func (s *memTaskStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *memTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

// memLeaseStore is a mutable in-memory LeaseStore.
type memLeaseStore struct {
	mu     sync.Mutex
	leases map[uuid.UUID]*domain.Lease
	// tenantOf maps task IDs to tenants for ListActiveByTenant.
	tenantOf map[uuid.UUID]uuid.UUID
}

var _ store.LeaseStore = (*memLeaseStore)(nil)

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{
		leases:   make(map[uuid.UUID]*domain.Lease),
		tenantOf: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *memLeaseStore) add(tenantID uuid.UUID, lease *domain.Lease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lease
	s.leases[lease.ID] = &copied
	s.tenantOf[lease.TaskID] = tenantID
}

func (s *memLeaseStore) Create(ctx context.Context, lease *domain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lease
	s.leases[lease.ID] = &copied
	return nil
}

func (s *memLeaseStore) GetActiveByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leases {
		if l.TaskID == taskID && l.Active() {
			copied := *l
			return &copied, nil
		}
	}
	return nil, store.ErrLeaseNotFound
}

func (s *memLeaseStore) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Lease
	for _, l := range s.leases {
		if l.Active() && s.tenantOf[l.TaskID] == tenantID {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memLeaseStore) Heartbeat(ctx context.Context, leaseID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[leaseID]
	if !ok || !l.Active() {
		return store.ErrLeaseNotFound
	}
	l.LastHeartbeatAt = at
	return nil
}

func (s *memLeaseStore) Release(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return store.ErrLeaseNotFound
	}
	if !l.Active() {
		return nil
	}
	released := at
	l.ReleasedAt = &released
	l.ReleaseReason = reason
	return nil
}

func (s *memLeaseStore) ReleaseActiveForTask(
	ctx context.Context,
	taskID uuid.UUID,
	reason string,
	at time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leases {
		if l.TaskID == taskID && l.Active() {
			released := at
			l.ReleasedAt = &released
			l.ReleaseReason = reason
			return true, nil
		}
	}
	return false, nil
}

func (s *memLeaseStore) WithTx(tx *sql.Tx) store.LeaseStore { return s }

// passthroughTransactor invokes the function directly with a nil *sql.Tx;
// the in-memory stores ignore the transaction handle.
type passthroughTransactor struct{}

var _ store.Transactor = (*passthroughTransactor)(nil)

func (passthroughTransactor) InTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

type recordingAlerter struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (a *recordingAlerter) CreateNotification(ctx context.Context, n notify.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifications = append(a.notifications, n)
	return nil
}

func (a *recordingAlerter) byType(eventType string) []notify.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []notify.Notification
	for _, n := range a.notifications {
		if n.EventType == eventType {
			out = append(out, n)
		}
	}
	return out
}

type recordingAnnotator struct {
	mu    sync.Mutex
	notes map[uuid.UUID][]string
}

func newRecordingAnnotator() *recordingAnnotator {
	return &recordingAnnotator{notes: make(map[uuid.UUID][]string)}
}

func (a *recordingAnnotator) AddSystemNote(ctx context.Context, taskID uuid.UUID, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notes[taskID] = append(a.notes[taskID], note)
	return nil
}
