// Package notify defines the outbound boundary contracts of the
// coordination core: waking workers, raising deduplicated operator
// notifications, annotating tasks with audit notes, delivering outcome
// summaries to originating sessions, and resolving delivery routes for
// durable outcome events. Delivery transports live outside this module;
// the core treats every one of these as best-effort.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// Notifier turns an admission plan into out-of-band wake signals to the
// worker fleet. A notification failure is non-fatal: the task remains
// selected/claimable and is retried on the next tick.
type Notifier interface {
	NotifyTaskReady(ctx context.Context, task *domain.Task) error
}

// Notification is one alert raised by the core, deduplicated by DedupKey.
type Notification struct {
	EventType string
	Message   string
	DedupKey  string
	TTL       time.Duration
}

// Alerter creates operator-facing notifications. Implementations own
// delivery transport and persistence; the core only supplies the event
// type, message, dedup key, and optional TTL.
type Alerter interface {
	CreateNotification(ctx context.Context, n Notification) error
}

// Annotator attaches system-actor audit notes to tasks, used by demotion
// paths to record why a task was returned the queue.
type Annotator interface {
	AddSystemNote(ctx context.Context, taskID uuid.UUID, note string) error
}

// SessionMessenger delivers a formatted outcome summary back to the
// conversation/session that originated a task.
type SessionMessenger interface {
	DeliverOutcomeSummary(ctx context.Context, sessionID string, summary string) error
}

// Route is the delivery-routing metadata attached to durable outcome events.
type Route struct {
	Channel string
	Target  string
}

// RouteResolver resolves where a task's outcome events should be delivered.
type RouteResolver interface {
	Resolve(ctx context.Context, task *domain.Task) (Route, error)
}
