package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// Actors recorded on status change events.
const (
	ActorSystem = "system"
	ActorWorker = "worker"
)

// StatusChangeEvent is the board-refresh event broadcast whenever a task
// changes status outside normal board editing: liveness demotions and
// accepted outcomes both emit one, carrying the old and new status so board
// views can update incrementally.
type StatusChangeEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	TaskID    uuid.UUID         `json:"task_id"`
	BoardID   uuid.UUID         `json:"board_id"`
	OldStatus domain.TaskStatus `json:"old_status"`
	NewStatus domain.TaskStatus `json:"new_status"`

	// Actor records who moved the task: the system (demotion) or a worker
	// outcome.
	Actor string `json:"actor"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewStatusChangeEvent creates a StatusChangeEvent for the given transition.
func NewStatusChangeEvent(
	taskID, boardID uuid.UUID,
	oldStatus, newStatus domain.TaskStatus,
	actor string,
) *StatusChangeEvent {
	return &StatusChangeEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		BoardID:   boardID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *StatusChangeEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *StatusChangeEvent) error
}
