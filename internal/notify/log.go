package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
)

// LogNotifier is a Notifier that records wake signals in the structured
// log. It stands in wherever a real fleet transport is not configured, so
// the coordination loop can run end to end without one.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{logger: log.With(slog.String("component", "log_notifier"))}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) NotifyTaskReady(ctx context.Context, task *domain.Task) error {
	n.logger.Info("task ready for dispatch",
		slog.String("task_id", task.ID.String()),
		slog.String("board_id", task.BoardID.String()),
		slog.String("model", task.Model),
		slog.String("title", task.Title))
	return nil
}

// LogAlerter is an Alerter that records operator notifications in the
// structured log.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(log *slog.Logger) *LogAlerter {
	if log == nil {
		log = slog.Default()
	}
	return &LogAlerter{logger: log.With(slog.String("component", "log_alerter"))}
}

var _ Alerter = (*LogAlerter)(nil)

func (a *LogAlerter) CreateNotification(ctx context.Context, n Notification) error {
	a.logger.Info("operator notification",
		slog.String("event_type", n.EventType),
		slog.String("message", n.Message),
		slog.String("dedup_key", n.DedupKey))
	return nil
}

// LogAnnotator is an Annotator that records audit notes in the structured
// log instead of attaching them to an external task record.
type LogAnnotator struct {
	logger *slog.Logger
}

// NewLogAnnotator creates a LogAnnotator.
func NewLogAnnotator(log *slog.Logger) *LogAnnotator {
	if log == nil {
		log = slog.Default()
	}
	return &LogAnnotator{logger: log.With(slog.String("component", "log_annotator"))}
}

var _ Annotator = (*LogAnnotator)(nil)

func (a *LogAnnotator) AddSystemNote(ctx context.Context, taskID uuid.UUID, note string) error {
	a.logger.Info("system note",
		slog.String("task_id", taskID.String()),
		slog.String("note", note))
	return nil
}
