package tick

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/config"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/liveness"
	"github.com/skritek/overseer/internal/scheduler"
	"github.com/skritek/overseer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noon is comfortably outside the 22->6 night window.
var noon = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

type loopFixture struct {
	tasks    *fakeTaskStore
	leases   *fakeLeaseStore
	notifier *recordingNotifier
	alerter  *recordingAlerter
	loop     *Loop
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()

	tasks := newFakeTaskStore()
	leases := &fakeLeaseStore{}
	notifier := newRecordingNotifier()
	alerter := &recordingAlerter{}
	g := guard.NewMemoryGuard()

	tracker := liveness.NewTracker(
		tasks, leases, &passthroughTransactor{},
		g, alerter, &recordingAnnotator{}, nil,
		config.LivenessConfig{
			HeartbeatStaleness:  30 * time.Minute,
			MaxLeaseAge:         4 * time.Hour,
			MissingLeaseGrace:   10 * time.Minute,
			ZombieAge:           2 * time.Hour,
			AlertTTL:            time.Hour,
			ZombieAlarmCooldown: time.Hour,
		},
		nil)

	selector := scheduler.NewSelector(
		tasks, &fakeModelLimitStore{}, scheduler.DefaultProviderTable(),
		config.SchedulerConfig{
			DayMaxConcurrent:   3,
			NightMaxConcurrent: 5,
			NightStartHour:     22,
			NightEndHour:       6,
			ErrorCooldown:      15 * time.Minute,
			DefaultModelCap:    3,
			SummaryInterval:    time.Hour,
		},
		nil)

	return &loopFixture{
		tasks:    tasks,
		leases:   leases,
		notifier: notifier,
		alerter:  alerter,
		loop:     NewLoop(tasks, tracker, selector, notifier, g, alerter, time.Minute, nil),
	}
}

func queuedCandidate(tenantID uuid.UUID, position int) *store.Candidate {
	return &store.Candidate{
		Task: &domain.Task{
			ID:              uuid.New(),
			TenantID:        tenantID,
			BoardID:         uuid.New(),
			Title:           "queued task",
			Status:          domain.TaskStatusUpNext,
			AssignedToAgent: true,
			Model:           "sonnet-4",
		},
		BoardPosition: position,
	}
}

func runningTask(tenantID uuid.UUID, lastActivity time.Time) *domain.Task {
	claimed := lastActivity
	return &domain.Task{
		ID:              uuid.New(),
		TenantID:        tenantID,
		BoardID:         uuid.New(),
		Title:           "running task",
		Status:          domain.TaskStatusInProgress,
		AssignedToAgent: true,
		Model:           "sonnet-4",
		AgentClaimedAt:  &claimed,
		AgentSessionID:  "session-1",
		UpdatedAt:       lastActivity,
	}
}

func TestTickTenantWakesSelected(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	tenantID := uuid.New()
	f.tasks.candidates[tenantID] = []*store.Candidate{
		queuedCandidate(tenantID, 1),
		queuedCandidate(tenantID, 2),
	}

	stats := f.loop.TickTenant(context.Background(), tenantID, noon)

	assert.Equal(t, tenantID, stats.TenantID)
	assert.Equal(t, 2, stats.Woken)
	assert.Equal(t, 0, stats.NotifyFailures)
	assert.Equal(t, 3, stats.MaxConcurrent)
	assert.Equal(t, 3, stats.AvailableSlots)
	assert.Len(t, f.notifier.woken, 2)
}

func TestTickTenantNotifyFailureNonFatal(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	tenantID := uuid.New()
	failing := queuedCandidate(tenantID, 1)
	f.tasks.candidates[tenantID] = []*store.Candidate{
		failing,
		queuedCandidate(tenantID, 2),
	}
	f.notifier.failFor[failing.Task.ID] = true

	stats := f.loop.TickTenant(context.Background(), tenantID, noon)

	assert.Equal(t, 1, stats.Woken)
	assert.Equal(t, 1, stats.NotifyFailures)
	require.Len(t, f.notifier.woken, 1)
	assert.NotEqual(t, failing.Task.ID, f.notifier.woken[0])
}

func TestTickTenantCountsRunningAgainstSlots(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	tenantID := uuid.New()

	// A healthy running task: recent activity, active lease with a fresh
	// heartbeat. The sweep must leave it alone and admission must count it.
	running := runningTask(tenantID, noon.Add(-5*time.Minute))
	f.tasks.inProgress[tenantID] = []*domain.Task{running}
	f.leases.leases = []*domain.Lease{{
		ID:              uuid.New(),
		TaskID:          running.ID,
		SessionID:       running.AgentSessionID,
		AcquiredAt:      noon.Add(-10 * time.Minute),
		LastHeartbeatAt: noon.Add(-time.Minute),
		TTL:             30 * time.Minute,
	}}
	f.tasks.candidates[tenantID] = []*store.Candidate{
		queuedCandidate(tenantID, 1),
		queuedCandidate(tenantID, 2),
		queuedCandidate(tenantID, 3),
	}

	stats := f.loop.TickTenant(context.Background(), tenantID, noon)

	assert.Equal(t, 0, stats.Demoted)
	assert.Equal(t, 0, stats.Zombies)
	assert.Equal(t, 2, stats.AvailableSlots)
	assert.Equal(t, 2, stats.Woken)
	assert.Empty(t, f.tasks.updated, "healthy tasks are never mutated")
}

func TestTickTenantCountsZombies(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	tenantID := uuid.New()

	// Active lease with fresh heartbeats but no task activity for hours.
	zombie := runningTask(tenantID, noon.Add(-3*time.Hour))
	f.tasks.inProgress[tenantID] = []*domain.Task{zombie}
	f.leases.leases = []*domain.Lease{{
		ID:              uuid.New(),
		TaskID:          zombie.ID,
		SessionID:       zombie.AgentSessionID,
		AcquiredAt:      noon.Add(-3 * time.Hour),
		LastHeartbeatAt: noon.Add(-time.Minute),
		TTL:             30 * time.Minute,
	}}

	stats := f.loop.TickTenant(context.Background(), tenantID, noon)

	assert.Equal(t, 1, stats.Zombies)
	assert.Equal(t, 0, stats.Demoted)
	assert.Empty(t, f.tasks.updated, "zombies are alarmed, never demoted")
}

func TestBeginEndPreventsOverlappingTenantTicks(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	tenantID := uuid.New()

	require.True(t, f.loop.begin(tenantID))
	assert.False(t, f.loop.begin(tenantID), "second tick for the same tenant must be refused")
	assert.True(t, f.loop.begin(uuid.New()), "other tenants are unaffected")

	f.loop.end(tenantID)
	assert.True(t, f.loop.begin(tenantID), "tenant is claimable again after the tick ends")
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t)
	f.loop.interval = 5 * time.Millisecond

	f.loop.Start()
	time.Sleep(25 * time.Millisecond)
	f.loop.Stop()
}
