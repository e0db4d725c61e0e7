package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/events"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// outcomeAlertTTL deduplicates "outcome reported" notifications per run.
const outcomeAlertTTL = time.Hour

// errRaceLost aborts the outcome transaction when the run-record insert
// hits the uniqueness backstop: a concurrent delivery won the race.
var errRaceLost = errors.New("outcome race lost")

// Result is the response to an outcome report. An accepted report, whether
// first-time or replay, always succeeds with the canonical run record;
// callers can only tell the two apart by the Idempotent flag.
type Result struct {
	Accepted   bool              `json:"accepted"`
	Idempotent bool              `json:"idempotent"`
	Run        *domain.RunRecord `json:"run"`
	OldStatus  domain.TaskStatus `json:"old_status,omitempty"`
	NewStatus  domain.TaskStatus `json:"new_status,omitempty"`
}

// Service is the outcome state machine: the single writer of run records
// and of the status transitions coming from the "done" side of the task
// lifecycle. It is safe under duplicate webhook delivery and under two
// concurrent deliveries of the same run_id.
type Service struct {
	tasks      store.TaskStore
	leases     store.LeaseStore
	runs       store.RunStore
	outcomes   store.OutcomeEventStore
	transactor store.Transactor
	guard      guard.Guard
	alerter    notify.Alerter
	broadcast  events.EventEmitter
	messenger  notify.SessionMessenger
	routes     notify.RouteResolver
	logger     *slog.Logger
}

// NewService creates an outcome Service. The side-effect collaborators
// (alerter, broadcast, messenger, routes) may be nil; side effects are
// best-effort and skipped when absent.
func NewService(
	tasks store.TaskStore,
	leases store.LeaseStore,
	runs store.RunStore,
	outcomes store.OutcomeEventStore,
	transactor store.Transactor,
	g guard.Guard,
	alerter notify.Alerter,
	broadcast events.EventEmitter,
	messenger notify.SessionMessenger,
	routes notify.RouteResolver,
	log *slog.Logger,
) *Service {
	if tasks == nil {
		panic("tasks cannot be nil")
	}
	if leases == nil {
		panic("leases cannot be nil")
	}
	if runs == nil {
		panic("runs cannot be nil")
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
	return &Service{
		tasks:      tasks,
		leases:     leases,
		runs:       runs,
		outcomes:   outcomes,
		transactor: transactor,
		guard:      g,
		alerter:    alerter,
		broadcast:  broadcast,
		messenger:  messenger,
		routes:     routes,
		logger:     log.With(slog.String("component", "outcome_service")),
	}
}

// ReportOutcome ingests one worker completion report for the given task and
// applies it exactly once. Rejected payloads return a *ValidationError with
// no side effects; duplicate deliveries return the original result with
// Idempotent set.
func (s *Service) ReportOutcome(ctx context.Context, taskID uuid.UUID, raw json.RawMessage) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}
	runID := uuid.MustParse(payload.RunID)

	log = log.With(
		slog.String("task_id", taskID.String()),
		slog.String("run_id", runID.String()),
	)

	// Fast path for the common retry case: look up the run record before
	// taking any lock.
	existing, err := s.runs.GetByRunID(ctx, runID)
	if err == nil {
		log.Debug("outcome replay, returning existing run record")
		return &Result{Accepted: true, Idempotent: true, Run: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up run record: %w", err)
	}

	// Cheap existence check so unknown tasks fail before the transaction.
	if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	var (
		result *Result
		task   *domain.Task
	)
	err = s.transactor.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txTasks := s.tasks.WithTx(tx)
		txLeases := s.leases.WithTx(tx)
		txRuns := s.runs.WithTx(tx)

		// The row lock is the serialization point for everything that
		// writes this task's status.
		locked, err := txTasks.GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}

		// Re-check under the lock: two validated requests may have raced
		// past the fast path.
		if rec, err := txRuns.GetByRunID(ctx, runID); err == nil {
			result = &Result{Accepted: true, Idempotent: true, Run: rec}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		run := &domain.RunRecord{
			RunID:             runID,
			TaskID:            taskID,
			RunNumber:         locked.RunCount + 1,
			EndedAt:           payload.EndedAt,
			NeedsFollowUp:     payload.NeedsFollowUp,
			RecommendedAction: payload.Action(),
			Summary:           payload.Summary,
			Achieved:          payload.Achieved,
			Evidence:          payload.Evidence,
			Remaining:         payload.Remaining,
			ModelUsed:         payload.ModelUsed,
			RawPayload:        raw,
			CreatedAt:         now,
		}
		if err := txRuns.Create(ctx, run); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Lost the race at the storage layer; resolved outside the
				// transaction as an idempotent replay.
				return errRaceLost
			}
			return err
		}

		if _, err := txLeases.ReleaseActiveForTask(ctx, taskID, domain.LeaseReleaseOutcome, now); err != nil {
			return err
		}

		oldStatus := locked.Status
		newStatus := domain.TaskStatusInReview
		if payload.Requeue() {
			newStatus = domain.TaskStatusUpNext
		}

		locked.ClearClaim()
		locked.Status = newStatus
		locked.RunCount = run.RunNumber
		locked.LastRunID = &run.RunID
		if payload.Requeue() {
			// Re-assign so the admission selector can pick the task back
			// up, and persist the prompt the next run starts from.
			locked.AssignedToAgent = true
			locked.FollowUpPrompt = payload.NextPrompt
		}
		if err := txTasks.Update(ctx, locked); err != nil {
			return err
		}

		task = locked
		result = &Result{
			Accepted:  true,
			Run:       run,
			OldStatus: oldStatus,
			NewStatus: newStatus,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errRaceLost) {
			rec, lookupErr := s.runs.GetByRunID(ctx, runID)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to load run record after losing race: %w", lookupErr)
			}
			log.Debug("lost outcome race, returning existing run record")
			return &Result{Accepted: true, Idempotent: true, Run: rec}, nil
		}
		return nil, fmt.Errorf("failed to apply outcome: %w", err)
	}

	if result.Idempotent {
		return result, nil
	}

	// Post-commit side effects: best-effort, individually fault-isolated.
	// Nothing here may unwind the committed transition.
	s.sideEffects(ctx, task, payload, result)

	log.Info("outcome applied",
		slog.Int("run_number", result.Run.RunNumber),
		slog.String("old_status", string(result.OldStatus)),
		slog.String("new_status", string(result.NewStatus)))

	return result, nil
}

func (s *Service) sideEffects(ctx context.Context, task *domain.Task, payload *Payload, result *Result) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("task_id", task.ID.String()),
		slog.String("run_id", result.Run.RunID.String()),
	)

	if s.broadcast != nil {
		ev := events.NewStatusChangeEvent(
			task.ID, task.BoardID,
			result.OldStatus, result.NewStatus,
			events.ActorWorker,
		)
		if err := s.broadcast.EmitEvent(ctx, ev); err != nil {
			log.Error("failed to broadcast outcome status change",
				slog.String("error", err.Error()))
		}
	}

	if s.alerter != nil {
		dedupKey := "outcome:reported:" + result.Run.RunID.String()
		if s.guard.Allow(ctx, dedupKey, string(result.NewStatus), outcomeAlertTTL) {
			if err := s.alerter.CreateNotification(ctx, notify.Notification{
				EventType: "outcome_reported",
				Message: fmt.Sprintf("run %d of task %q finished: %s",
					result.Run.RunNumber, task.Title, result.Run.RecommendedAction),
				DedupKey: dedupKey,
				TTL:      outcomeAlertTTL,
			}); err != nil {
				log.Error("failed to create outcome notification",
					slog.String("error", err.Error()))
			}
		}

		// When the status did not actually change, the status-change
		// notification path never fires, so completion is signalled
		// explicitly.
		if result.OldStatus == result.NewStatus {
			if err := s.alerter.CreateNotification(ctx, notify.Notification{
				EventType: "task_completed",
				Message:   fmt.Sprintf("task %q completed (status unchanged)", task.Title),
				DedupKey:  "outcome:completed:" + result.Run.RunID.String(),
				TTL:       outcomeAlertTTL,
			}); err != nil {
				log.Error("failed to create completion notification",
					slog.String("error", err.Error()))
			}
		}
	}

	if s.messenger != nil && task.OriginSessionID != "" {
		if err := s.messenger.DeliverOutcomeSummary(ctx, task.OriginSessionID, formatSummary(task, result.Run)); err != nil {
			log.Error("failed to deliver outcome summary to session",
				slog.String("session_id", task.OriginSessionID),
				slog.String("error", err.Error()))
		}
	}

	if s.outcomes != nil {
		var route notify.Route
		if s.routes != nil {
			resolved, err := s.routes.Resolve(ctx, task)
			if err != nil {
				log.Error("failed to resolve outcome event route",
					slog.String("error", err.Error()))
			} else {
				route = resolved
			}
		}
		ev := &domain.OutcomeEvent{
			ID:           uuid.New(),
			TaskID:       task.ID,
			RunID:        result.Run.RunID,
			OldStatus:    result.OldStatus,
			NewStatus:    result.NewStatus,
			Summary:      result.Run.Summary,
			Changes:      payload.Changes,
			Validation:   payload.Validation,
			FollowUp:     payload.NextPrompt,
			RouteChannel: route.Channel,
			RouteTarget:  route.Target,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.outcomes.Append(ctx, ev); err != nil {
			log.Error("failed to append outcome event",
				slog.String("error", err.Error()))
		}
	}
}

// formatSummary renders the outcome summary delivered back to the task's
// originating session.
func formatSummary(task *domain.Task, run *domain.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q finished run %d: %s.", task.Title, run.RunNumber, run.RecommendedAction)
	if run.Summary != "" {
		fmt.Fprintf(&b, "\n\n%s", run.Summary)
	}
	if len(run.Achieved) > 0 {
		b.WriteString("\n\nAchieved:")
		for _, item := range run.Achieved {
			fmt.Fprintf(&b, "\n- %s", item)
		}
	}
	if len(run.Remaining) > 0 {
		b.WriteString("\n\nRemaining:")
		for _, item := range run.Remaining {
			fmt.Fprintf(&b, "\n- %s", item)
		}
	}
	return b.String()
}
