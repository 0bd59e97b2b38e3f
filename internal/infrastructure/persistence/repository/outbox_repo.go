package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const outboxColumns = `id, event_type, flow_id, transaction_id, recipient_id, payload,
	status, attempts, last_error, next_attempt_at, sent_at, created_at`

// maxErrorLength bounds the delivery error stored on a row
const maxErrorLength = 1000

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new notification outbox repository
func NewOutboxRepository(db *sqlite.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts notification rows
func (r *OutboxRepository) Enqueue(ctx context.Context, msgs []*entity.OutboxMessage) error {
	query := `INSERT INTO notification_outbox (` + outboxColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	exec := r.db.Executor(ctx)
	for _, msg := range msgs {
		_, err := exec.ExecContext(ctx, query,
			msg.ID,
			msg.EventType,
			msg.FlowID,
			msg.TransactionID,
			msg.RecipientID,
			msg.Payload,
			msg.Status,
			msg.Attempts,
			msg.LastError,
			utc(msg.NextAttemptAt),
			utcPtr(msg.SentAt),
			utc(msg.CreatedAt),
		)
		if err != nil {
			r.logger.Error("Failed to enqueue notification",
				zap.String("outbox_id", msg.ID),
				zap.String("event_type", msg.EventType),
				zap.Error(err))
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an outbox row by ID
func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*entity.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE id = ?`

	msg, err := scanOutbox(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.String("outbox_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return msg, nil
}

// ListDue returns pending rows that are due for a delivery attempt
func (r *OutboxRepository) ListDue(ctx context.Context, now, createdBefore time.Time, limit int) ([]*entity.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM notification_outbox
		WHERE status = ? AND next_attempt_at <= ? AND created_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		entity.NotificationStatusPending, utc(now), utc(createdBefore), limit)
	if err != nil {
		r.logger.Error("Failed to list due notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	defer rows.Close()

	msgs := make([]*entity.OutboxMessage, 0)
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkSent marks a pending row delivered. It reports false when the row was
// already settled by another deliverer.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE notification_outbox
		SET status = ?, sent_at = ?, attempts = attempts + 1, last_error = ''
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.NotificationStatusSent, utc(at), id, entity.NotificationStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark notification sent", zap.String("outbox_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark notification sent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// MarkAttemptFailed records a failed attempt and schedules the next one
func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, id, errMsg string, nextAttempt time.Time) error {
	query := `
		UPDATE notification_outbox
		SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE id = ? AND status = ?
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		truncate(errMsg), utc(nextAttempt), id, entity.NotificationStatusPending)
	if err != nil {
		r.logger.Error("Failed to record notification attempt", zap.String("outbox_id", id), zap.Error(err))
		return fmt.Errorf("failed to record notification attempt: %w", err)
	}
	return nil
}

// MarkFailed gives up on a row
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE notification_outbox
		SET status = ?, attempts = attempts + 1, last_error = ?
		WHERE id = ? AND status = ?
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.NotificationStatusFailed, truncate(errMsg), id, entity.NotificationStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark notification failed", zap.String("outbox_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func scanOutbox(s scanner) (*entity.OutboxMessage, error) {
	var msg entity.OutboxMessage
	var sentAt sql.NullTime

	err := s.Scan(
		&msg.ID,
		&msg.EventType,
		&msg.FlowID,
		&msg.TransactionID,
		&msg.RecipientID,
		&msg.Payload,
		&msg.Status,
		&msg.Attempts,
		&msg.LastError,
		&msg.NextAttemptAt,
		&sentAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.SentAt = timePtr(sentAt)
	msg.NextAttemptAt = msg.NextAttemptAt.UTC()
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func truncate(s string) string {
	if len(s) <= maxErrorLength {
		return s
	}
	return s[:maxErrorLength]
}
