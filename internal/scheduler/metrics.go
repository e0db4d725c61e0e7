package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/notify"
	"github.com/skritek/overseer/internal/platform/logger"
)

// Metrics is a read-only snapshot of the scheduler's view of a tenant's
// queue, used for dashboards and the operator summary.
type Metrics struct {
	QueueDepth         int               `json:"queue_depth"`
	QueueDepthByBoard  map[string]int    `json:"queue_depth_by_board"`
	InFlightTotal      int               `json:"in_flight_total"`
	InFlightByModel    map[string]int    `json:"in_flight_by_model"`
	InFlightByProvider map[string]int    `json:"in_flight_by_provider"`
	RateLimitedModels  []string          `json:"rate_limited_models"`
	MaxConcurrent      int               `json:"max_concurrent"`
	CollectedAt        time.Time         `json:"collected_at"`
}

// Metrics collects the current queue metrics for a tenant. Read-only.
func (s *Selector) Metrics(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Metrics, error) {
	depths, err := s.tasks.QueueDepthByBoard(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue depth: %w", err)
	}

	inProgress, err := s.tasks.ListInProgress(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress tasks: %w", err)
	}

	limited, err := s.limits.ListActiveModels(ctx, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active model limits: %w", err)
	}

	m := &Metrics{
		QueueDepthByBoard:  make(map[string]int, len(depths)),
		InFlightByModel:    make(map[string]int),
		InFlightByProvider: make(map[string]int),
		InFlightTotal:      len(inProgress),
		RateLimitedModels:  limited,
		MaxConcurrent:      s.MaxConcurrent(now),
		CollectedAt:        now,
	}

	for boardID, depth := range depths {
		m.QueueDepthByBoard[boardID.String()] = depth
		m.QueueDepth += depth
	}
	for _, t := range inProgress {
		model := NormalizeModel(t.Model)
		m.InFlightByModel[model]++
		m.InFlightByProvider[s.classify(model)]++
	}

	return m, nil
}

// EmitQueueSummary raises the periodic operator-facing queue summary. It is
// rate-limited through the guard so the summary appears at most once per
// configured interval, and only when there is something to report: a
// nonzero queue, nonzero active work, or at least one task just woken.
func (s *Selector) EmitQueueSummary(
	ctx context.Context,
	tenantID uuid.UUID,
	g guard.Guard,
	alerter notify.Alerter,
	justWoken int,
	now time.Time,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	m, err := s.Metrics(ctx, tenantID, now)
	if err != nil {
		return err
	}

	if m.QueueDepth == 0 && m.InFlightTotal == 0 && justWoken == 0 {
		return nil
	}

	key := "scheduler:queue_summary:" + tenantID.String()
	value := fmt.Sprintf("%d/%d/%d", m.QueueDepth, m.InFlightTotal, justWoken)
	if !g.Allow(ctx, key, value, s.cfg.SummaryInterval) {
		return nil
	}

	message := fmt.Sprintf(
		"queue: %d waiting, %d in flight (cap %d), %d woken this tick, %d models rate-limited",
		m.QueueDepth, m.InFlightTotal, m.MaxConcurrent, justWoken, len(m.RateLimitedModels),
	)

	if err := alerter.CreateNotification(ctx, notify.Notification{
		EventType: "queue_summary",
		Message:   message,
		DedupKey:  key,
		TTL:       s.cfg.SummaryInterval,
	}); err != nil {
		log.Error("failed to emit queue summary",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()))
		return err
	}

	return nil
}
