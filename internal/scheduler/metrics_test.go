package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skritek/overseer/internal/domain"
	"github.com/skritek/overseer/internal/guard"
	"github.com/skritek/overseer/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	notifications []notify.Notification
}

func (a *recordingAlerter) CreateNotification(ctx context.Context, n notify.Notification) error {
	a.notifications = append(a.notifications, n)
	return nil
}

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	b1, b2 := uuid.New(), uuid.New()
	tasks := &fakeTaskStore{
		inProgress: []*domain.Task{
			runningTask(b1, "sonnet"),
			runningTask(b2, "gemini-2.5-pro"),
		},
		depths: map[uuid.UUID]int{b1: 2, b2: 1},
	}
	limits := &fakeModelLimitStore{limited: []string{"opus"}}
	s := NewSelector(tasks, limits, nil, testSchedulerConfig(), nil)

	m, err := s.Metrics(context.Background(), uuid.New(), noon)
	require.NoError(t, err)

	assert.Equal(t, 3, m.QueueDepth)
	assert.Equal(t, 2, m.InFlightTotal)
	assert.Equal(t, 1, m.InFlightByModel["sonnet"])
	assert.Equal(t, 1, m.InFlightByProvider["anthropic"])
	assert.Equal(t, 1, m.InFlightByProvider["google"])
	assert.Equal(t, []string{"opus"}, m.RateLimitedModels)
	assert.Equal(t, 3, m.MaxConcurrent)
}

func TestEmitQueueSummaryGatedByGuard(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskStore{
		depths: map[uuid.UUID]int{uuid.New(): 1},
	}
	s := NewSelector(tasks, &fakeModelLimitStore{}, nil, testSchedulerConfig(), nil)

	g := guard.NewMemoryGuard()
	alerter := &recordingAlerter{}
	tenantID := uuid.New()

	require.NoError(t, s.EmitQueueSummary(context.Background(), tenantID, g, alerter, 0, noon))
	require.Len(t, alerter.notifications, 1)
	assert.Equal(t, "queue_summary", alerter.notifications[0].EventType)

	// Same state within the interval is suppressed.
	require.NoError(t, s.EmitQueueSummary(context.Background(), tenantID, g, alerter, 0, noon))
	assert.Len(t, alerter.notifications, 1)

	// A changed queue state passes the guard immediately.
	require.NoError(t, s.EmitQueueSummary(context.Background(), tenantID, g, alerter, 2, noon))
	assert.Len(t, alerter.notifications, 2)
}

func TestEmitQueueSummaryNothingToReport(t *testing.T) {
	t.Parallel()

	s := NewSelector(&fakeTaskStore{}, &fakeModelLimitStore{}, nil, testSchedulerConfig(), nil)

	g := guard.NewMemoryGuard()
	alerter := &recordingAlerter{}

	require.NoError(t, s.EmitQueueSummary(context.Background(), uuid.New(), g, alerter, 0, time.Time{}))
	assert.Empty(t, alerter.notifications)
}
