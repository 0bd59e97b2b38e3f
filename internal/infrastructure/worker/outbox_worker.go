package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// OutboxWorkerConfig holds configuration for the outbox worker
type OutboxWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// GracePeriod leaves fresh rows to the in-process dispatcher.
	GracePeriod     time.Duration
	DeliveryTimeout time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       50,
		GracePeriod:     30 * time.Second,
		DeliveryTimeout: 15 * time.Second,
	}
}

// Deliverer attempts delivery of one outbox row and records the outcome
type Deliverer interface {
	DeliverPending(ctx context.Context, msg *entity.OutboxMessage) error
}

// OutboxWorker retries notifications the dispatcher did not settle
type OutboxWorker struct {
	*poller
	config     OutboxWorkerConfig
	outboxRepo port.OutboxRepository
	deliverer  Deliverer
	logger     *zap.Logger
	now        func() time.Time
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(config OutboxWorkerConfig, outboxRepo port.OutboxRepository, deliverer Deliverer, logger *zap.Logger) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}

	w := &OutboxWorker{
		config:     config,
		outboxRepo: outboxRepo,
		deliverer:  deliverer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	w.poller = newPoller("OutboxWorker", config.PollInterval, w.RunOnce, logger)
	return w
}

// RunOnce delivers one batch of due rows
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, int, error) {
	now := w.now()
	msgs, err := w.outboxRepo.ListDue(ctx, now, now.Add(-w.config.GracePeriod), w.config.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list due notifications: %w", err)
	}
	if len(msgs) == 0 {
		return 0, 0, nil
	}

	w.logger.Debug("Delivering pending notifications", zap.Int("count", len(msgs)))

	processed, failed := 0, 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}

		deliverCtx, cancel := context.WithTimeout(ctx, w.config.DeliveryTimeout)
		err := w.deliverer.DeliverPending(deliverCtx, msg)
		cancel()

		if err != nil {
			w.logger.Warn("Notification retry failed",
				zap.String("outbox_id", msg.ID),
				zap.String("event_type", msg.EventType),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			failed++
			continue
		}
		processed++
	}

	return processed, failed, nil
}
