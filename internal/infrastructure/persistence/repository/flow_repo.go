package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const flowColumns = `id, transaction_id, requester_id, organization_id, amount, category, priority,
	total_steps, current_step, status, completed_at, created_at, updated_at`

// FlowRepository implements port.FlowRepository
type FlowRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *sqlite.DB, logger *zap.Logger) port.FlowRepository {
	return &FlowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new approval flow
func (r *FlowRepository) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	query := `
		INSERT INTO approval_flows (` + flowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		flow.ID,
		flow.TransactionID,
		flow.RequesterID,
		flow.OrganizationID,
		flow.Amount.StringFixed(2),
		flow.Category,
		flow.Priority,
		flow.TotalSteps,
		flow.CurrentStep,
		flow.Status,
		utcPtr(flow.CompletedAt),
		utc(flow.CreatedAt),
		utc(flow.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create flow", zap.String("flow_id", flow.ID), zap.Error(err))
		return fmt.Errorf("failed to create flow: %w", err)
	}

	return nil
}

// GetByID retrieves a flow by ID
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalFlow, error) {
	query := `SELECT ` + flowColumns + ` FROM approval_flows WHERE id = ?`

	flow, err := scanFlow(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow by ID", zap.String("flow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	return flow, nil
}

// GetByTransactionID retrieves the flow gating a transaction
func (r *FlowRepository) GetByTransactionID(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error) {
	query := `SELECT ` + flowColumns + ` FROM approval_flows WHERE transaction_id = ?`

	flow, err := scanFlow(r.db.Executor(ctx).QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get flow by transaction", zap.String("transaction_id", transactionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	return flow, nil
}

// Update writes the mutable progress fields of a flow
func (r *FlowRepository) Update(ctx context.Context, flow *entity.ApprovalFlow) error {
	query := `
		UPDATE approval_flows
		SET status = ?, current_step = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		flow.Status,
		flow.CurrentStep,
		utcPtr(flow.CompletedAt),
		utc(flow.UpdatedAt),
		flow.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update flow", zap.String("flow_id", flow.ID), zap.Error(err))
		return fmt.Errorf("failed to update flow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("flow not found: %s", flow.ID)
	}

	return nil
}

// ListByRequester returns a requester's flows, newest first
func (r *FlowRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*entity.ApprovalFlow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM approval_flows
		WHERE requester_id = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requesterID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list flows", zap.String("requester_id", requesterID), zap.Error(err))
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	flows := make([]*entity.ApprovalFlow, 0)
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, flow)
	}

	return flows, rows.Err()
}

func scanFlow(s scanner) (*entity.ApprovalFlow, error) {
	var flow entity.ApprovalFlow
	var completedAt sql.NullTime

	err := s.Scan(
		&flow.ID,
		&flow.TransactionID,
		&flow.RequesterID,
		&flow.OrganizationID,
		&flow.Amount,
		&flow.Category,
		&flow.Priority,
		&flow.TotalSteps,
		&flow.CurrentStep,
		&flow.Status,
		&completedAt,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.CompletedAt = timePtr(completedAt)
	flow.CreatedAt = flow.CreatedAt.UTC()
	flow.UpdatedAt = flow.UpdatedAt.UTC()
	return &flow, nil
}
