package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RecommendedAction is what the worker thinks should happen to the task next.
type RecommendedAction string

// The supported recommended-action vocabulary.
const (
	ActionInReview       RecommendedAction = "in_review"
	ActionDone           RecommendedAction = "done"
	ActionRequeueSameTask RecommendedAction = "requeue_same_task"
	ActionArchive        RecommendedAction = "archive"
)

// ValidRecommendedAction reports whether a is in the supported vocabulary.
func ValidRecommendedAction(a RecommendedAction) bool {
	switch a {
	case ActionInReview, ActionDone, ActionRequeueSameTask, ActionArchive:
		return true
	}
	return false
}

// Run-record validation errors.
var (
	// ErrRunIDEmpty is returned when a run record's run ID is empty or nil.
	ErrRunIDEmpty = errors.New("run ID cannot be empty")

	// ErrRunTaskIDEmpty is returned when a run record's task ID is empty or nil.
	ErrRunTaskIDEmpty = errors.New("run task ID cannot be empty")

	// ErrRunNumberInvalid is returned when a run number is not positive.
	ErrRunNumberInvalid = errors.New("run number must be positive")
)

// RunRecord is the immutable record of one accepted outcome report. It is
// keyed by the caller-supplied RunID; exactly one record per RunID ever
// exists, and records are never updated after creation.
type RunRecord struct {
	RunID             uuid.UUID         `json:"run_id"`
	TaskID            uuid.UUID         `json:"task_id"`
	RunNumber         int               `json:"run_number"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
	NeedsFollowUp     bool              `json:"needs_follow_up"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Summary           string            `json:"summary,omitempty"`
	Achieved          []string          `json:"achieved,omitempty"`
	Evidence          []string          `json:"evidence,omitempty"`
	Remaining         []string          `json:"remaining,omitempty"`
	ModelUsed         string            `json:"model_used,omitempty"`
	RawPayload        json.RawMessage   `json:"raw_payload,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Validate checks if the RunRecord has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == uuid.Nil {
		return ErrRunIDEmpty
	}
	if r.TaskID == uuid.Nil {
		return ErrRunTaskIDEmpty
	}
	if r.RunNumber <= 0 {
		return ErrRunNumberInvalid
	}
	if !ValidRecommendedAction(r.RecommendedAction) {
		return ErrInvalidRecommendedAction
	}
	return nil
}

// ModelLimit is an active suppression record naming a model currently
// rate-limited by its upstream provider. The admission selector consults
// these; it never mutates them.
type ModelLimit struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Model        string    `json:"model"`
	LimitedUntil time.Time `json:"limited_until"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveAt reports whether the limit is still in force at the given instant.
func (m *ModelLimit) ActiveAt(now time.Time) bool {
	return m.LimitedUntil.After(now)
}

// OutcomeEvent is the durable record appended once per accepted,
// non-idempotent outcome, consumed asynchronously by downstream systems.
type OutcomeEvent struct {
	ID        uuid.UUID  `json:"id"`
	TaskID    uuid.UUID  `json:"task_id"`
	RunID     uuid.UUID  `json:"run_id"`
	OldStatus TaskStatus `json:"old_status"`
	NewStatus TaskStatus `json:"new_status"`

	Summary    string   `json:"summary,omitempty"`
	Changes    []string `json:"changes,omitempty"`
	Validation []string `json:"validation,omitempty"`
	FollowUp   string   `json:"follow_up,omitempty"`

	// Delivery-routing metadata resolved by an external resolver.
	RouteChannel string `json:"route_channel,omitempty"`
	RouteTarget  string `json:"route_target,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
