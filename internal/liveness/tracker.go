package liveness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/config"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/events"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// zombieNotifyWindow suppresses back-to-back zombie alarms across adjacent
// ticks, independent of the longer configured cooldown.
const zombieNotifyWindow = 5 * time.Minute

// errTaskMoved signals that a task left in_progress between the scan and
// the demotion transaction; the demotion is abandoned, not an error.
var errTaskMoved = errors.New("task no longer in progress")

// Result summarizes one liveness sweep.
type Result struct {
	// Demoted is the number of tasks returned to the queue.
	Demoted int

	// Zombies is the number of tasks stuck in_progress past the zombie
	// threshold. Zombies are alarmed, never demoted.
	Zombies int
}

// Tracker is the lease and liveness tracker. Once per tick per tenant it
// scans in_progress tasks for dead workers: stale heartbeats, leases past
// their absolute TTL, and tasks that claim to be running with no lease at
// all. Each finding demotes the task back to up_next; every mutation and
// alert is individually fault-isolated so one failing task cannot abort
// the sweep.
type Tracker struct {
	tasks      store.TaskStore
	leases     store.LeaseStore
	transactor store.Transactor
	guard      guard.Guard
	alerter    notify.Alerter
	annotator  notify.Annotator
	broadcast  events.EventEmitter
	cfg        config.LivenessConfig
	logger     *slog.Logger
}

// NewTracker creates a Tracker with the given dependencies.
func NewTracker(
	tasks store.TaskStore,
	leases store.LeaseStore,
	transactor store.Transactor,
	g guard.Guard,
	alerter notify.Alerter,
	annotator notify.Annotator,
	broadcast events.EventEmitter,
	cfg config.LivenessConfig,
	log *slog.Logger,
) *Tracker {
	if tasks == nil {
		panic("tasks cannot be nil")
	}
	if leases == nil {
		panic("leases cannot be nil")
	}
	if transactor == nil {
		panic("transactor cannot be nil")
	}
	if g == nil {
		panic("guard cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		tasks:      tasks,
		leases:     leases,
		transactor: transactor,
		guard:      g,
		alerter:    alerter,
		annotator:  annotator,
		broadcast:  broadcast,
		cfg:        cfg,
		logger:     log.With(slog.String("component", "liveness_tracker")),
	}
}

// Sweep runs the three liveness sweeps and the zombie count for one tenant.
func (t *Tracker) Sweep(ctx context.Context, tenantID uuid.UUID, now time.Time) (Result, error) {
	log := logger.FromContextOrDefault(ctx, t.logger)
	var res Result

	inProgress, err := t.tasks.ListInProgress(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("failed to list in-progress tasks: %w", err)
	}

	activeLeases, err := t.leases.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("failed to list active leases: %w", err)
	}

	tasksByID := make(map[uuid.UUID]*domain.Task, len(inProgress))
	for _, task := range inProgress {
		tasksByID[task.ID] = task
	}
	leaseByTask := make(map[uuid.UUID]*domain.Lease, len(activeLeases))
	for _, lease := range activeLeases {
		leaseByTask[lease.TaskID] = lease
	}

	demotedTasks := make(map[uuid.UUID]bool)

	// Sweep 1: leases whose heartbeat went stale.
	for _, lease := range activeLeases {
		task, ok := tasksByID[lease.TaskID]
		if !ok || demotedTasks[task.ID] {
			continue
		}
		if !lease.HeartbeatStale(now, t.cfg.HeartbeatStaleness) {
			continue
		}
		if t.demoteOne(ctx, task, lease, domain.LeaseReleaseStale, now,
			fmt.Sprintf("agent heartbeat stale since %s, task returned to queue",
				lease.LastHeartbeatAt.UTC().Format(time.RFC3339))) {
			demotedTasks[task.ID] = true
			res.Demoted++
			t.alertDemotion(ctx, task, "lease_expired",
				fmt.Sprintf("liveness:lease_stale:%s", task.ID),
				lease.LastHeartbeatAt.UTC().Format(time.RFC3339),
				fmt.Sprintf("lease on task %q expired: no heartbeat since %s",
					task.Title, lease.LastHeartbeatAt.UTC().Format(time.RFC3339)))
		}
	}

	// Sweep 2: leases past their absolute TTL regardless of heartbeat
	// recency. Covers clock skew and heartbeat spoofing the first sweep
	// cannot see.
	for _, lease := range activeLeases {
		task, ok := tasksByID[lease.TaskID]
		if !ok || demotedTasks[task.ID] {
			continue
		}
		if now.Before(lease.HardExpiresAt(t.cfg.MaxLeaseAge)) {
			continue
		}
		if t.demoteOne(ctx, task, lease, domain.LeaseReleaseExpired, now,
			fmt.Sprintf("agent lease exceeded maximum age (acquired %s), task returned to queue",
				lease.AcquiredAt.UTC().Format(time.RFC3339))) {
			demotedTasks[task.ID] = true
			res.Demoted++
			t.alertDemotion(ctx, task, "lease_expired",
				fmt.Sprintf("liveness:lease_hard_expired:%s", task.ID),
				lease.AcquiredAt.UTC().Format(time.RFC3339),
				fmt.Sprintf("lease on task %q exceeded its maximum age", task.Title))
		}
	}

	// Sweep 3: fake in-progress, tasks marked running with no lease at
	// all. The grace period is short since there was never a legitimate
	// claim to wait out.
	for _, task := range inProgress {
		if demotedTasks[task.ID] {
			continue
		}
		if !task.AssignedToAgent || task.AgentSessionID != "" {
			continue
		}
		if _, hasLease := leaseByTask[task.ID]; hasLease {
			continue
		}
		if now.Sub(task.UpdatedAt) <= t.cfg.MissingLeaseGrace {
			continue
		}
		observed := task.UpdatedAt
		if task.AgentClaimedAt != nil {
			observed = *task.AgentClaimedAt
		}
		if t.demoteOne(ctx, task, nil, domain.LeaseReleaseMissingClaim, now,
			"task marked in progress with no active lease, returned to queue") {
			demotedTasks[task.ID] = true
			res.Demoted++
			t.alertDemotion(ctx, task, "lease_missing",
				fmt.Sprintf("liveness:lease_missing:%s", task.ID),
				observed.UTC().Format(time.RFC3339),
				fmt.Sprintf("task %q was in progress with no lease", task.Title))
		}
	}

	// Zombie counting: alarm-only, no mutation. A signal for an operator,
	// distinct from automatic self-healing.
	for _, task := range inProgress {
		if demotedTasks[task.ID] {
			continue
		}
		if task.AgentClaimedAt == nil {
			continue
		}
		if now.Sub(task.UpdatedAt) > t.cfg.ZombieAge {
			res.Zombies++
		}
	}
	if res.Zombies > 0 {
		t.alarmZombies(ctx, tenantID, res.Zombies)
	}

	log.Info("liveness sweep complete",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("in_progress", len(inProgress)),
		slog.Int("demoted", res.Demoted),
		slog.Int("zombies", res.Zombies))

	return res, nil
}

// demoteOne returns a task to the queue: release its lease (if any), clear
// the claim fields, set status back to up_next, annotate, and broadcast.
// Returns true if the demotion committed. All failures are logged and
// swallowed so the sweep continues.
func (t *Tracker) demoteOne(
	ctx context.Context,
	task *domain.Task,
	lease *domain.Lease,
	reason string,
	now time.Time,
	note string,
) bool {
	log := logger.FromContextOrDefault(ctx, t.logger)

	err := t.transactor.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txTasks := t.tasks.WithTx(tx)
		txLeases := t.leases.WithTx(tx)

		// Re-check under the row lock: an outcome racing us may already
		// have moved the task, in which case the demotion loses cleanly.
		current, err := txTasks.GetForUpdate(ctx, task.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.TaskStatusInProgress {
			return errTaskMoved
		}

		if lease != nil {
			if err := txLeases.Release(ctx, lease.ID, reason, now); err != nil {
				return err
			}
		} else if _, err := txLeases.ReleaseActiveForTask(ctx, task.ID, reason, now); err != nil {
			return err
		}

		current.ClearClaim()
		current.Status = domain.TaskStatusUpNext
		return txTasks.Update(ctx, current)
	})
	if err != nil {
		if errors.Is(err, errTaskMoved) {
			log.Debug("demotion skipped, task already moved",
				slog.String("task_id", task.ID.String()))
			return false
		}
		leaseID := ""
		if lease != nil {
			leaseID = lease.ID.String()
		}
		log.Error("failed to demote task",
			slog.String("task_id", task.ID.String()),
			slog.String("lease_id", leaseID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return false
	}

	// Post-commit side effects are best-effort.
	if t.annotator != nil {
		if err := t.annotator.AddSystemNote(ctx, task.ID, note); err != nil {
			log.Error("failed to annotate demoted task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	if t.broadcast != nil {
		ev := events.NewStatusChangeEvent(
			task.ID, task.BoardID,
			domain.TaskStatusInProgress, domain.TaskStatusUpNext,
			events.ActorSystem,
		)
		if err := t.broadcast.EmitEvent(ctx, ev); err != nil {
			log.Error("failed to broadcast demotion",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	return true
}

// alertDemotion raises a demotion alert, gated by the guard so repeated
// ticks observing the same stale value do not re-alert.
func (t *Tracker) alertDemotion(ctx context.Context, task *domain.Task, eventType, key, observed, message string) {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if !t.guard.Allow(ctx, key, observed, t.cfg.AlertTTL) {
		return
	}
	if t.alerter == nil {
		return
	}
	if err := t.alerter.CreateNotification(ctx, notify.Notification{
		EventType: eventType,
		Message:   message,
		DedupKey:  key,
		TTL:       t.cfg.AlertTTL,
	}); err != nil {
		log.Error("failed to create demotion notification",
			slog.String("task_id", task.ID.String()),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}

// alarmZombies raises the zombie-count alarm, on its own cooldown and
// additionally suppressed for a short window across adjacent ticks.
func (t *Tracker) alarmZombies(ctx context.Context, tenantID uuid.UUID, count int) {
	log := logger.FromContextOrDefault(ctx, t.logger)

	cooldownKey := fmt.Sprintf("liveness:zombie_alarm:%s", tenantID)
	if !t.guard.Allow(ctx, cooldownKey, fmt.Sprintf("%d", count), t.cfg.ZombieAlarmCooldown) {
		return
	}
	windowKey := cooldownKey + ":window"
	if !t.guard.Allow(ctx, windowKey, "notified", zombieNotifyWindow) {
		return
	}
	if t.alerter == nil {
		return
	}
	if err := t.alerter.CreateNotification(ctx, notify.Notification{
		EventType: "zombie_tasks",
		Message:   fmt.Sprintf("%d task(s) stuck in progress past the zombie threshold", count),
		DedupKey:  cooldownKey,
		TTL:       t.cfg.ZombieAlarmCooldown,
	}); err != nil {
		log.Error("failed to create zombie alarm",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()))
	}
}
