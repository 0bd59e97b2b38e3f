package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService delivers outbox events to people. Failures are recorded
// on the outbox row and never surface to the decision that produced them.
type NotificationService interface {
	// HandleEvent delivers a freshly committed event. It is subscribed to the
	// dispatcher.
	HandleEvent(ctx context.Context, evt *event.Event) error
	// DeliverPending retries a row the async path did not settle.
	DeliverPending(ctx context.Context, msg *entity.OutboxMessage) error
	// EnqueueReminders records reminders for overdue steps and returns how
	// many were queued. It never changes step or flow state.
	EnqueueReminders(ctx context.Context) (int, error)
}

// NotificationConfig tunes retries and reminder batches
type NotificationConfig struct {
	MaxAttempts   int
	RetryBackoff  time.Duration
	ReminderBatch int
}

type notificationServiceImpl struct {
	notifier   port.Notifier
	outboxRepo port.OutboxRepository
	stepRepo   port.StepRepository
	txManager  port.TransactionManager
	publisher  EventPublisher
	cfg        NotificationConfig
	logger     Logger
	now        func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notifier port.Notifier,
	outboxRepo port.OutboxRepository,
	stepRepo port.StepRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	cfg NotificationConfig,
	logger Logger,
) NotificationService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.ReminderBatch <= 0 {
		cfg.ReminderBatch = 100
	}
	return &notificationServiceImpl{
		notifier:   notifier,
		outboxRepo: outboxRepo,
		stepRepo:   stepRepo,
		txManager:  txManager,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	return s.settle(ctx, evt, 0)
}

func (s *notificationServiceImpl) DeliverPending(ctx context.Context, msg *entity.OutboxMessage) error {
	evt, err := fromOutbox(msg)
	if err != nil {
		s.logger.Error("Undeliverable outbox row", "outbox_id", msg.ID, "error", err)
		return s.outboxRepo.MarkFailed(ctx, msg.ID, err.Error())
	}
	return s.settle(ctx, evt, msg.Attempts)
}

// settle delivers evt and records the outcome on its outbox row. attempts is
// the number of earlier failed deliveries.
func (s *notificationServiceImpl) settle(ctx context.Context, evt *event.Event, attempts int) error {
	deliverErr := s.deliver(ctx, evt)
	now := s.now()

	if deliverErr == nil {
		if _, err := s.outboxRepo.MarkSent(ctx, evt.ID, now); err != nil {
			s.logger.Error("Failed to mark notification sent", "outbox_id", evt.ID, "error", err)
			return fmt.Errorf("mark sent: %w", err)
		}
		s.logger.Info("Notification delivered",
			"outbox_id", evt.ID,
			"event_type", evt.Type,
			"recipient_id", evt.RecipientID,
			"flow_id", evt.FlowID,
		)
		return nil
	}

	s.logger.Error("Notification delivery failed",
		"outbox_id", evt.ID,
		"event_type", evt.Type,
		"recipient_id", evt.RecipientID,
		"attempt", attempts+1,
		"error", deliverErr,
	)

	if attempts+1 >= s.cfg.MaxAttempts {
		if err := s.outboxRepo.MarkFailed(ctx, evt.ID, deliverErr.Error()); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		return deliverErr
	}
	if err := s.outboxRepo.MarkAttemptFailed(ctx, evt.ID, deliverErr.Error(), now.Add(s.backoff(attempts))); err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	return deliverErr
}

func (s *notificationServiceImpl) deliver(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.TypeApprovalRequested:
		return s.notifier.NotifyApprovalRequest(ctx, evt.RecipientID, evt.TransactionID, evt.GetPayloadString(event.KeyOrganizationID))
	case event.TypeFlowApproved, event.TypeFlowRejected:
		return s.notifier.NotifyApprovalCompletion(ctx, evt.RecipientID, evt.TransactionID,
			evt.GetPayloadBool(event.KeyApproved), evt.GetPayloadString(event.KeyReason))
	case event.TypeStepReminder:
		return s.notifier.NotifyApprovalReminder(ctx, evt.RecipientID, evt.TransactionID, int(evt.GetPayloadInt(event.KeyOverdueHours)))
	}
	return fmt.Errorf("unknown event type %q", evt.Type)
}

// backoff doubles per failed attempt, capped at one day.
func (s *notificationServiceImpl) backoff(attempts int) time.Duration {
	const maxBackoff = 24 * time.Hour
	d := float64(s.cfg.RetryBackoff) * math.Pow(2, float64(attempts))
	if d > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(d)
}

func (s *notificationServiceImpl) EnqueueReminders(ctx context.Context) (int, error) {
	now := s.now()
	steps, err := s.stepRepo.ListOverdue(ctx, now, s.cfg.ReminderBatch)
	if err != nil {
		return 0, fmt.Errorf("list overdue steps: %w", err)
	}

	queued := 0
	for _, step := range steps {
		deadline, ok := step.Deadline()
		if !ok || step.Flow == nil {
			continue
		}
		evt := event.NewEvent(event.TypeStepReminder, step.FlowID, step.Flow.TransactionID, step.ApproverID,
			map[string]interface{}{
				event.KeyStepID:       step.ID,
				event.KeyOverdueHours: int(now.Sub(deadline).Hours()),
			}, now)
		msgs, err := toOutbox([]*event.Event{evt}, now)
		if err != nil {
			return queued, err
		}

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.outboxRepo.Enqueue(txCtx, msgs); err != nil {
				return err
			}
			return s.stepRepo.MarkReminded(txCtx, step.ID, now)
		})
		if err != nil {
			s.logger.Error("Failed to queue reminder", "step_id", step.ID, "error", err)
			continue
		}

		queued++
		s.logger.Info("Reminder queued",
			"step_id", step.ID,
			"flow_id", step.FlowID,
			"approver_id", step.ApproverID,
			"deadline", deadline,
		)
		if s.publisher != nil {
			s.publisher.DispatchAsync(ctx, evt)
		}
	}
	return queued, nil
}
