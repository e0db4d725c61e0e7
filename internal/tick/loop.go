// Package tick runs the periodic scheduling loop: once per interval, for
// each active tenant, it runs the liveness sweep, then the admission
// selector, then hands the plan to the dispatch notifier. Ticks for the
// same tenant never overlap; tenants run in parallel.
package tick

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/liveness"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/scheduler"
	"github.com/skritek/overseer/internal/store"
)

// TickStats is the audit record produced by one tenant tick.
type TickStats struct {
	TenantID       uuid.UUID
	Demoted        int
	Zombies        int
	Woken          int
	NotifyFailures int
	Skips          map[scheduler.SkipReason]int
	AvailableSlots int
	MaxConcurrent  int
	Duration       time.Duration
}

// Loop drives the periodic tick for all active tenants.
type Loop struct {
	tasks    store.TaskStore
	tracker  *liveness.Tracker
	selector *scheduler.Selector
	notifier notify.Notifier
	guard    guard.Guard
	alerter  notify.Alerter
	interval time.Duration
	logger   *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// inFlight guards against overlapping ticks for the same tenant.
	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

// NewLoop creates a Loop with the given dependencies.
func NewLoop(
	tasks store.TaskStore,
	tracker *liveness.Tracker,
	selector *scheduler.Selector,
	notifier notify.Notifier,
	g guard.Guard,
	alerter notify.Alerter,
	interval time.Duration,
	log *slog.Logger,
) *Loop {
	if tasks == nil {
		panic("tasks cannot be nil")
	}
	if tracker == nil {
		panic("tracker cannot be nil")
	}
	if selector == nil {
		panic("selector cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		tasks:      tasks,
		tracker:    tracker,
		selector:   selector,
		notifier:   notifier,
		guard:      g,
		alerter:    alerter,
		interval:   interval,
		logger:     log.With(slog.String("component", "tick_loop")),
		ctx:        ctx,
		cancelFunc: cancel,
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Start begins the periodic loop. It returns immediately.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop cancels the loop and waits for in-flight ticks to finish.
func (l *Loop) Stop() {
	l.cancelFunc()
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.tickAll(l.ctx)
		}
	}
}

// tickAll runs one tick for every active tenant, tenants in parallel. A
// failing tenant never blocks the others.
func (l *Loop) tickAll(ctx context.Context) {
	tenants, err := l.tasks.ListActiveTenants(ctx)
	if err != nil {
		l.logger.Error("failed to list active tenants", slog.String("error", err.Error()))
		return
	}

	var wg sync.WaitGroup
	for _, tenantID := range tenants {
		if !l.begin(tenantID) {
			l.logger.Warn("previous tick still running, skipping tenant",
				slog.String("tenant_id", tenantID.String()))
			continue
		}
		wg.Add(1)
		go func(tenantID uuid.UUID) {
			defer wg.Done()
			defer l.end(tenantID)
			l.TickTenant(ctx, tenantID, time.Now().UTC())
		}(tenantID)
	}
	wg.Wait()
}

// TickTenant runs one tick for one tenant: liveness sweep, admission pass,
// dispatch notification, operator summary. It returns the audit stats.
func (l *Loop) TickTenant(ctx context.Context, tenantID uuid.UUID, now time.Time) TickStats {
	log := l.logger.With(slog.String("tenant_id", tenantID.String()))
	ctx = logger.WithLogger(ctx, log)
	started := time.Now()

	stats := TickStats{TenantID: tenantID}

	sweep, err := l.tracker.Sweep(ctx, tenantID, now)
	if err != nil {
		// A failed sweep does not stop admission: demotions are recovery,
		// not a precondition.
		log.Error("liveness sweep failed", slog.String("error", err.Error()))
	}
	stats.Demoted = sweep.Demoted
	stats.Zombies = sweep.Zombies

	plan, err := l.selector.SelectBatch(ctx, tenantID, 0, now)
	if err != nil {
		log.Error("admission pass failed", slog.String("error", err.Error()))
		stats.Duration = time.Since(started)
		return stats
	}
	stats.Skips = plan.Skips
	stats.AvailableSlots = plan.AvailableSlots
	stats.MaxConcurrent = plan.MaxConcurrent

	for _, task := range plan.Selected {
		if l.notifier == nil {
			break
		}
		// Notifier failure is non-fatal: the task stays claimable and is
		// retried next tick.
		if err := l.notifier.NotifyTaskReady(ctx, task); err != nil {
			stats.NotifyFailures++
			log.Error("failed to notify worker for task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		stats.Woken++
	}

	if l.guard != nil && l.alerter != nil {
		if err := l.selector.EmitQueueSummary(ctx, tenantID, l.guard, l.alerter, stats.Woken, now); err != nil {
			log.Error("failed to emit queue summary", slog.String("error", err.Error()))
		}
	}

	stats.Duration = time.Since(started)
	log.Info("tick complete",
		slog.Int("demoted", stats.Demoted),
		slog.Int("zombies", stats.Zombies),
		slog.Int("woken", stats.Woken),
		slog.Int("notify_failures", stats.NotifyFailures),
		slog.Int("available_slots", stats.AvailableSlots),
		slog.Int("max_concurrent", stats.MaxConcurrent),
		slog.Duration("duration", stats.Duration))

	return stats
}

func (l *Loop) begin(tenantID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[tenantID] {
		return false
	}
	l.inFlight[tenantID] = true
	return true
}

func (l *Loop) end(tenantID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, tenantID)
}
