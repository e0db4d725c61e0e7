package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents a task's position in its lifecycle.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusInbox      TaskStatus = "inbox"
	TaskStatusUpNext     TaskStatus = "up_next"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusArchived   TaskStatus = "archived"
)

// Task-specific validation errors.
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskTenantIDEmpty is returned when a task's tenant ID is empty or nil.
	ErrTaskTenantIDEmpty = errors.New("task tenant ID cannot be empty")

	// ErrTaskBoardIDEmpty is returned when a task's board ID is empty or nil.
	ErrTaskBoardIDEmpty = errors.New("task board ID cannot be empty")
)

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusInbox, TaskStatusUpNext, TaskStatusInProgress,
		TaskStatusInReview, TaskStatusDone, TaskStatusArchived:
		return true
	}
	return false
}

// Task is the unit of work agents execute. Only three components ever move a
// task's status: the external dispatch step (up_next -> in_progress), the
// liveness tracker (in_progress -> up_next on failure), and the outcome
// state machine (in_progress -> in_review/up_next on completion).
type Task struct {
	ID       uuid.UUID  `json:"id"`
	TenantID uuid.UUID  `json:"tenant_id"`
	BoardID  uuid.UUID  `json:"board_id"`
	Title    string     `json:"title"`
	Status   TaskStatus `json:"status"`
	Blocked  bool       `json:"blocked"`

	// AssignedToAgent opts the task into automatic dispatch.
	AssignedToAgent bool   `json:"assigned_to_agent"`
	Model           string `json:"model"`

	// Claim fields, set while a worker actively holds the task.
	AgentClaimedAt  *time.Time `json:"agent_claimed_at,omitempty"`
	AgentSessionID  string     `json:"agent_session_id,omitempty"`
	AgentSessionKey string     `json:"agent_session_key,omitempty"`

	RunCount  int        `json:"run_count"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// Scheduling hints.
	Nightly           bool `json:"nightly"`
	NightlyDelayHours int  `json:"nightly_delay_hours"`
	RecurringTemplate bool `json:"recurring_template"`

	// Post-failure dispatch cooldown.
	AutoPullBlocked     bool       `json:"auto_pull_blocked"`
	AutoPullLastErrorAt *time.Time `json:"auto_pull_last_error_at,omitempty"`

	// FollowUpPrompt holds the next-step prompt persisted by a requeue
	// outcome, consumed by the next execution attempt.
	FollowUpPrompt string `json:"follow_up_prompt,omitempty"`

	// OriginSessionID records the conversation that created the task, if any.
	// Outcome summaries are delivered back to it.
	OriginSessionID string `json:"origin_session_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}
	if t.TenantID == uuid.Nil {
		return ErrTaskTenantIDEmpty
	}
	if t.BoardID == uuid.Nil {
		return ErrTaskBoardIDEmpty
	}
	if !ValidStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// Claimed reports whether any claim field is set on the task.
func (t *Task) Claimed() bool {
	return t.AgentClaimedAt != nil || t.AgentSessionID != "" || t.AgentSessionKey != ""
}

// ClearClaim resets all claim fields. It does not touch the status; the
// caller decides where the task goes next.
func (t *Task) ClearClaim() {
	t.AgentClaimedAt = nil
	t.AgentSessionID = ""
	t.AgentSessionKey = ""
}

// Board groups tasks and defines their dispatch priority. Lower positions
// dispatch first. Aggregator boards mirror tasks from elsewhere and are
// excluded from automatic dispatch.
type Board struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Name         string    `json:"name"`
	Position     int       `json:"position"`
	IsAggregator bool      `json:"is_aggregator"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
