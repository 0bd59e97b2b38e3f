package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reminder queues reminders for overdue approval steps
type Reminder interface {
	EnqueueReminders(ctx context.Context) (int, error)
}

// ReminderWorker periodically reminds approvers of overdue steps.
// It never changes step or flow state.
type ReminderWorker struct {
	*poller
	reminder Reminder
	logger   *zap.Logger
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(interval time.Duration, reminder Reminder, logger *zap.Logger) *ReminderWorker {
	w := &ReminderWorker{
		reminder: reminder,
		logger:   logger,
	}
	w.poller = newPoller("ReminderWorker", interval, w.RunOnce, logger)
	return w
}

// RunOnce queues reminders for the currently overdue steps
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, int, error) {
	queued, err := w.reminder.EnqueueReminders(ctx)
	if queued > 0 {
		w.logger.Info("Reminders queued", zap.Int("count", queued))
	}
	if err != nil {
		return queued, 1, err
	}
	return queued, 0, nil
}
