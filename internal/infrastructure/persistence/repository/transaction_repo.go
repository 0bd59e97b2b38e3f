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

// TransactionRepository implements port.TransactionRepository
type TransactionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new expense transaction repository
func NewTransactionRepository(db *sqlite.DB, logger *zap.Logger) port.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *entity.ExpenseTransaction) error {
	query := `
		INSERT INTO expense_transactions (
			id, requester_id, organization_id, amount, category, description,
			status, submitted_at, approved_at, rejected_at, rejection_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		txn.ID,
		txn.RequesterID,
		txn.OrganizationID,
		txn.Amount.StringFixed(2),
		txn.Category,
		txn.Description,
		txn.Status,
		utcPtr(txn.SubmittedAt),
		utcPtr(txn.ApprovedAt),
		utcPtr(txn.RejectedAt),
		txn.RejectionReason,
		utc(txn.CreatedAt),
		utc(txn.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", zap.String("transaction_id", txn.ID), zap.Error(err))
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an expense transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*entity.ExpenseTransaction, error) {
	query := `
		SELECT id, requester_id, organization_id, amount, category, description,
			status, submitted_at, approved_at, rejected_at, rejection_reason,
			created_at, updated_at
		FROM expense_transactions
		WHERE id = ?
	`

	var txn entity.ExpenseTransaction
	var submittedAt, approvedAt, rejectedAt sql.NullTime

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&txn.ID,
		&txn.RequesterID,
		&txn.OrganizationID,
		&txn.Amount,
		&txn.Category,
		&txn.Description,
		&txn.Status,
		&submittedAt,
		&approvedAt,
		&rejectedAt,
		&txn.RejectionReason,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transaction by ID", zap.String("transaction_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	txn.SubmittedAt = timePtr(submittedAt)
	txn.ApprovedAt = timePtr(approvedAt)
	txn.RejectedAt = timePtr(rejectedAt)
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.UpdatedAt = txn.UpdatedAt.UTC()
	return &txn, nil
}

// MarkSubmitted stamps submission and moves the transaction into approval
func (r *TransactionRepository) MarkSubmitted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE expense_transactions
		SET status = ?, submitted_at = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "mark submitted", id, query, entity.TransactionStatusPendingApproval, utc(at), utc(at), id)
}

// MarkApproved stamps the final approval
func (r *TransactionRepository) MarkApproved(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE expense_transactions
		SET status = ?, approved_at = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "mark approved", id, query, entity.TransactionStatusApproved, utc(at), utc(at), id)
}

// MarkRejected stamps the rejection and its reason
func (r *TransactionRepository) MarkRejected(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE expense_transactions
		SET status = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "mark rejected", id, query, entity.TransactionStatusRejected, utc(at), reason, utc(at), id)
}

func (r *TransactionRepository) update(ctx context.Context, op, id, query string, args ...interface{}) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update transaction", zap.String("op", op), zap.String("transaction_id", id), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}
