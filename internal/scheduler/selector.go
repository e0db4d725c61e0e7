package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/config"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/platform/logger"
	"github.com/skritek/overseer/internal/store"
)

// SkipReason explains why a dispatch candidate was passed over this batch.
type SkipReason string

// Skip reasons recorded in the plan histogram.
const (
	SkipBoardBusy            SkipReason = "board_busy"
	SkipOutsideTimeWindow    SkipReason = "outside_time_window"
	SkipModelRateLimited     SkipReason = "model_rate_limited"
	SkipModelQuotaReached    SkipReason = "model_quota_reached"
	SkipProviderQuotaReached SkipReason = "provider_quota_reached"
)

// Plan is the result of one admission pass: the ordered tasks to wake, a
// histogram of everything skipped, and the capacity numbers that produced
// it, for observability.
type Plan struct {
	Selected       []*domain.Task
	Skips          map[SkipReason]int
	AvailableSlots int
	MaxConcurrent  int
}

// SkipTotal returns the total number of skipped candidates.
func (p *Plan) SkipTotal() int {
	total := 0
	for _, n := range p.Skips {
		total += n
	}
	return total
}

// Selector is the admission selector: a deterministic, read-only ranking
// over the task store that decides which queued tasks receive the available
// execution slots this tick. It is a pure function of (state, config, now);
// it mutates nothing.
type Selector struct {
	tasks     store.TaskStore
	limits    store.ModelLimitStore
	providers ProviderTable
	cfg       config.SchedulerConfig
	logger    *slog.Logger

	// unmappedModels flags each model the provider table cannot classify,
	// once per process, so a new naming scheme surfaces in logs instead of
	// silently landing in the "other" bucket.
	unmappedModels sync.Map
}

// NewSelector creates a Selector with the given dependencies.
func NewSelector(
	tasks store.TaskStore,
	limits store.ModelLimitStore,
	providers ProviderTable,
	cfg config.SchedulerConfig,
	log *slog.Logger,
) *Selector {
	if tasks == nil {
		panic("tasks cannot be nil")
	}
	if limits == nil {
		panic("limits cannot be nil")
	}
	if providers == nil {
		providers = DefaultProviderTable()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		tasks:     tasks,
		limits:    limits,
		providers: providers,
		cfg:       cfg,
		logger:    log.With(slog.String("component", "admission_selector")),
	}
}

// InNightWindow reports whether now falls inside the configured night
// window. The window may wrap midnight; equal start and end hours mean no
// night window at all.
func (s *Selector) InNightWindow(now time.Time) bool {
	start, end := s.cfg.NightStartHour, s.cfg.NightEndHour
	if start == end {
		return false
	}
	hour := now.UTC().Hour()
	if start < end {
		return hour >= start && hour < end
	}
	// Wraps midnight, e.g. 22 -> 6.
	return hour >= start || hour < end
}

// nightWindowOpenedAt returns the instant the current night window opened.
// Only meaningful when InNightWindow(now) is true.
func (s *Selector) nightWindowOpenedAt(now time.Time) time.Time {
	now = now.UTC()
	opened := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.NightStartHour, 0, 0, 0, time.UTC)
	if opened.After(now) {
		opened = opened.AddDate(0, 0, -1)
	}
	return opened
}

// MaxConcurrent returns the effective global slot cap at the given instant.
func (s *Selector) MaxConcurrent(now time.Time) int {
	if s.InNightWindow(now) {
		return s.cfg.NightMaxConcurrent
	}
	return s.cfg.DayMaxConcurrent
}

// SelectBatch returns an ordered list of at most requested tasks to
// dispatch for the tenant, bounded by the available execution slots, plus a
// histogram of skip reasons. Candidate evaluation order is deterministic
// (board position, then task ID) so results are reproducible for the same
// input state. requested <= 0 means "as many as capacity allows".
func (s *Selector) SelectBatch(
	ctx context.Context,
	tenantID uuid.UUID,
	requested int,
	now time.Time,
) (*Plan, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	plan := &Plan{
		Skips:         make(map[SkipReason]int),
		MaxConcurrent: s.MaxConcurrent(now),
	}

	inProgress, err := s.tasks.ListInProgress(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress tasks: %w", err)
	}

	plan.AvailableSlots = plan.MaxConcurrent - len(inProgress)
	if plan.AvailableSlots < 0 {
		plan.AvailableSlots = 0
	}

	// Zero slots is the cheap no-op path: no candidate scan at all.
	if plan.AvailableSlots == 0 {
		log.Debug("no available slots, skipping candidate scan",
			slog.String("tenant_id", tenantID.String()),
			slog.Int("active", len(inProgress)),
			slog.Int("max_concurrent", plan.MaxConcurrent))
		return plan, nil
	}

	// Clamp the request to capacity.
	if requested <= 0 || requested > plan.AvailableSlots {
		requested = plan.AvailableSlots
	}

	// Running counters seeded from active work.
	busyBoards := make(map[uuid.UUID]bool)
	modelCounts := make(map[string]int)
	providerCounts := make(map[string]int)
	for _, t := range inProgress {
		busyBoards[t.BoardID] = true
		model := NormalizeModel(t.Model)
		modelCounts[model]++
		providerCounts[s.classify(model)]++
	}

	limitedModels, err := s.limits.ListActiveModels(ctx, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active model limits: %w", err)
	}
	limited := make(map[string]bool, len(limitedModels))
	for _, m := range limitedModels {
		limited[NormalizeModel(m)] = true
	}

	candidates, err := s.tasks.ListDispatchCandidates(ctx, tenantID, now.Add(-s.cfg.ErrorCooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch candidates: %w", err)
	}

	inNight := s.InNightWindow(now)
	var windowOpened time.Time
	if inNight {
		windowOpened = s.nightWindowOpenedAt(now)
	}

	for _, c := range candidates {
		if len(plan.Selected) >= requested {
			break
		}

		task := c.Task
		model := NormalizeModel(task.Model)
		provider := s.classify(model)

		switch {
		case busyBoards[task.BoardID]:
			plan.Skips[SkipBoardBusy]++

		case task.Nightly && !inNight:
			plan.Skips[SkipOutsideTimeWindow]++

		case task.Nightly && now.Before(windowOpened.Add(time.Duration(task.NightlyDelayHours)*time.Hour)):
			plan.Skips[SkipOutsideTimeWindow]++

		case limited[model]:
			plan.Skips[SkipModelRateLimited]++

		case modelCounts[model] >= s.modelCap(model):
			plan.Skips[SkipModelQuotaReached]++

		case providerCounts[provider] >= s.providerCap(provider):
			plan.Skips[SkipProviderQuotaReached]++

		default:
			plan.Selected = append(plan.Selected, task)
			busyBoards[task.BoardID] = true
			modelCounts[model]++
			providerCounts[provider]++
		}
	}

	log.Debug("admission pass complete",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("selected", len(plan.Selected)),
		slog.Int("skipped", plan.SkipTotal()),
		slog.Int("available_slots", plan.AvailableSlots),
		slog.Int("max_concurrent", plan.MaxConcurrent))

	return plan, nil
}

// classify wraps the provider table with flag-once logging for unmapped
// models.
func (s *Selector) classify(model string) string {
	provider, ok := s.providers.Classify(model)
	if !ok && model != "" {
		if _, seen := s.unmappedModels.LoadOrStore(model, struct{}{}); !seen {
			s.logger.Warn("model does not match any provider rule, using fallback bucket",
				slog.String("model", model),
				slog.String("provider", ProviderOther))
		}
	}
	return provider
}

// modelCap returns the in-flight cap for a model: config override first,
// then the built-in table (by exact name, then prefix), then the default.
func (s *Selector) modelCap(model string) int {
	if n, ok := s.cfg.ModelCaps[model]; ok {
		return n
	}
	if n, ok := defaultModelCaps[model]; ok {
		return n
	}
	for prefix, n := range defaultModelCaps {
		if len(model) > len(prefix) && model[:len(prefix)] == prefix {
			return n
		}
	}
	return s.cfg.DefaultModelCap
}

// providerCap returns the in-flight cap for a provider. Providers without a
// configured cap are unbounded.
func (s *Selector) providerCap(provider string) int {
	if n, ok := s.cfg.ProviderCaps[provider]; ok {
		return n
	}
	return int(^uint(0) >> 1)
}
