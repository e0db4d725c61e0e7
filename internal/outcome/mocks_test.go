package outcome

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
	return nil, nil
}

func (s *memTaskStore) ListDispatchCandidates(
	ctx context.Context,
	tenantID uuid.UUID,
	errorBefore time.Time,
) ([]*store.Candidate, error) {
	return nil, nil
}

func (s *memTaskStore) CountInProgress(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return 0, nil
}

func (s *memTaskStore) QueueDepthByBoard(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]int, error) {
	return nil, nil
}

func (s *memTaskStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *memTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

type memLeaseStore struct {
	mu     sync.Mutex
	leases map[uuid.UUID]*domain.Lease
}

var _ store.LeaseStore = (*memLeaseStore)(nil)

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{leases: make(map[uuid.UUID]*domain.Lease)}
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
	return nil, nil
}

func (s *memLeaseStore) Heartbeat(ctx context.Context, leaseID uuid.UUID, at time.Time) error {
	return nil
}

func (s *memLeaseStore) Release(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return store.ErrLeaseNotFound
	}
	if l.Active() {
		released := at
		l.ReleasedAt = &released
		l.ReleaseReason = reason
	}
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

// memRunStore enforces run ID uniqueness the way the database constraint
// does, which is what the race backstop tests lean on.
type memRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.RunRecord
}

var _ store.RunStore = (*memRunStore)(nil)

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[uuid.UUID]*domain.RunRecord)}
}

func (s *memRunStore) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *memRunStore) Create(ctx context.Context, run *domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; ok {
		return store.ErrRunExists
	}
	copied := *run
	s.runs[run.RunID] = &copied
	return nil
}

func (s *memRunStore) WithTx(tx *sql.Tx) store.RunStore { return s }

type memOutcomeEventStore struct {
	mu     sync.Mutex
	events []*domain.OutcomeEvent
}

var _ store.OutcomeEventStore = (*memOutcomeEventStore)(nil)

func (s *memOutcomeEventStore) Append(ctx context.Context, event *domain.OutcomeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

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

type recordingMessenger struct {
	mu        sync.Mutex
	summaries map[string][]string
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{summaries: make(map[string][]string)}
}

func (m *recordingMessenger) DeliverOutcomeSummary(ctx context.Context, sessionID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[sessionID] = append(m.summaries[sessionID], summary)
	return nil
}

type staticRouteResolver struct {
	route notify.Route
}

func (r *staticRouteResolver) Resolve(ctx context.Context, task *domain.Task) (notify.Route, error) {
	return r.route, nil
}
