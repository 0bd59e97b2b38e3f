package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const stepColumns = `s.id, s.flow_id, s.step_order, s.approver_id, s.approver_role, s.organization_id,
	s.is_required, s.is_parallel, s.timeout_hours, s.status, s.activated_at, s.processed_at,
	s.comment, s.attachments, s.reminded_at, s.created_at, s.updated_at`

const joinedFlowColumns = `f.id, f.transaction_id, f.requester_id, f.organization_id, f.amount, f.category, f.priority,
	f.total_steps, f.current_step, f.status, f.completed_at, f.created_at, f.updated_at`

// overdueScanFactor bounds how many candidate rows ListOverdue reads per
// requested result.
const overdueScanFactor = 4

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sqlite.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all steps of a flow
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (
			id, flow_id, step_order, approver_id, approver_role, organization_id,
			is_required, is_parallel, timeout_hours, status, activated_at, processed_at,
			comment, attachments, reminded_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	for _, step := range steps {
		attachments, err := encodeAttachments(step.Attachments)
		if err != nil {
			return err
		}

		_, err = exec.ExecContext(ctx, query,
			step.ID,
			step.FlowID,
			step.StepOrder,
			step.ApproverID,
			step.ApproverRole,
			step.OrganizationID,
			step.IsRequired,
			step.IsParallel,
			step.TimeoutHours,
			step.Status,
			utcPtr(step.ActivatedAt),
			utcPtr(step.ProcessedAt),
			step.Comment,
			attachments,
			utcPtr(step.RemindedAt),
			utc(step.CreatedAt),
			utc(step.UpdatedAt),
		)
		if err != nil {
			r.logger.Error("Failed to create step",
				zap.String("flow_id", step.FlowID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create step: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a step by ID
func (r *StepRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps s WHERE s.id = ?`

	step, err := scanStep(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step by ID", zap.String("step_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// GetByFlowID returns the steps of a flow in plan order
func (r *StepRepository) GetByFlowID(ctx context.Context, flowID string) ([]*entity.ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.flow_id = ?
		ORDER BY s.step_order ASC, s.approver_id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, flowID)
	if err != nil {
		r.logger.Error("Failed to get steps by flow", zap.String("flow_id", flowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	return scanSteps(rows)
}

// GetByFlowIDs returns the steps of several flows keyed by flow ID
func (r *StepRepository) GetByFlowIDs(ctx context.Context, flowIDs []string) (map[string][]*entity.ApprovalStep, error) {
	result := make(map[string][]*entity.ApprovalStep, len(flowIDs))
	if len(flowIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps s
		WHERE s.flow_id IN (` + placeholders(len(flowIDs)) + `)
		ORDER BY s.flow_id ASC, s.step_order ASC, s.approver_id ASC
	`
	args := make([]interface{}, len(flowIDs))
	for i, id := range flowIDs {
		args[i] = id
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to get steps by flows", zap.Int("flows", len(flowIDs)), zap.Error(err))
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	steps, err := scanSteps(rows)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		result[step.FlowID] = append(result[step.FlowID], step)
	}
	return result, nil
}

// ApplyDecision records a decision only while the step is still pending.
func (r *StepRepository) ApplyDecision(ctx context.Context, step *entity.ApprovalStep) (bool, error) {
	attachments, err := encodeAttachments(step.Attachments)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE approval_steps
		SET status = ?, processed_at = ?, comment = ?, attachments = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		step.Status,
		utcPtr(step.ProcessedAt),
		step.Comment,
		attachments,
		utc(step.UpdatedAt),
		step.ID,
		entity.StepStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to apply decision", zap.String("step_id", step.ID), zap.Error(err))
		return false, fmt.Errorf("failed to apply decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Activate stamps activated_at on steps whose order became current.
// Steps that were already activated keep their original time.
func (r *StepRepository) Activate(ctx context.Context, stepIDs []string, at time.Time) error {
	if len(stepIDs) == 0 {
		return nil
	}

	query := `
		UPDATE approval_steps
		SET activated_at = ?, updated_at = ?
		WHERE activated_at IS NULL AND id IN (` + placeholders(len(stepIDs)) + `)
	`
	args := []interface{}{utc(at), utc(at)}
	for _, id := range stepIDs {
		args = append(args, id)
	}

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to activate steps", zap.Strings("step_ids", stepIDs), zap.Error(err))
		return fmt.Errorf("failed to activate steps: %w", err)
	}
	return nil
}

// ListPendingForApprover returns the approver's pending steps in active flows
// with their flows attached, high priority first, then oldest first. Steps
// queued behind the flow's current order are listed with Reached unset.
func (r *StepRepository) ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]*entity.ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `, ` + joinedFlowColumns + `
		FROM approval_steps s
		JOIN approval_flows f ON f.id = s.flow_id
		WHERE s.approver_id = ? AND s.status = ? AND f.status IN (?, ?)
		ORDER BY CASE f.priority WHEN 'HIGH' THEN 1 ELSE 0 END DESC, s.created_at ASC, s.id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		approverID,
		entity.StepStatusPending,
		entity.FlowStatusPending,
		entity.FlowStatusInProgress,
		limit,
		offset,
	)
	if err != nil {
		r.logger.Error("Failed to list pending steps", zap.String("approver_id", approverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}
	defer rows.Close()

	return scanStepsWithFlow(rows)
}

// ListOverdue returns reached pending steps whose deadline passed before now
// and that were not reminded after the deadline. Deadlines are computed in Go
// so the query stays portable across dialects.
func (r *StepRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalStep, error) {
	if limit <= 0 {
		return []*entity.ApprovalStep{}, nil
	}

	query := `
		SELECT ` + stepColumns + `, ` + joinedFlowColumns + `
		FROM approval_steps s
		JOIN approval_flows f ON f.id = s.flow_id
		WHERE s.status = ? AND f.status IN (?, ?)
			AND s.step_order <= f.current_step
			AND s.timeout_hours IS NOT NULL AND s.timeout_hours > 0
			AND s.activated_at IS NOT NULL AND s.activated_at <= ?
		ORDER BY s.activated_at ASC, s.id ASC
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		entity.StepStatusPending,
		entity.FlowStatusPending,
		entity.FlowStatusInProgress,
		utc(now),
		limit*overdueScanFactor,
	)
	if err != nil {
		r.logger.Error("Failed to list overdue steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list overdue steps: %w", err)
	}
	defer rows.Close()

	candidates, err := scanStepsWithFlow(rows)
	if err != nil {
		return nil, err
	}

	overdue := make([]*entity.ApprovalStep, 0, len(candidates))
	for _, step := range candidates {
		deadline, ok := step.Deadline()
		if !ok || !deadline.Before(now) {
			continue
		}
		if step.RemindedAt != nil && !step.RemindedAt.Before(deadline) {
			continue
		}
		overdue = append(overdue, step)
		if len(overdue) == limit {
			break
		}
	}
	return overdue, nil
}

// MarkReminded stamps when a reminder was queued for a step
func (r *StepRepository) MarkReminded(ctx context.Context, stepID string, at time.Time) error {
	query := `UPDATE approval_steps SET reminded_at = ?, updated_at = ? WHERE id = ?`

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, utc(at), utc(at), stepID); err != nil {
		r.logger.Error("Failed to mark step reminded", zap.String("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to mark step reminded: %w", err)
	}
	return nil
}

type stepRow struct {
	step        entity.ApprovalStep
	timeout     sql.NullInt64
	activated   sql.NullTime
	processed   sql.NullTime
	reminded    sql.NullTime
	attachments string
}

func (sr *stepRow) dest() []interface{} {
	return []interface{}{
		&sr.step.ID,
		&sr.step.FlowID,
		&sr.step.StepOrder,
		&sr.step.ApproverID,
		&sr.step.ApproverRole,
		&sr.step.OrganizationID,
		&sr.step.IsRequired,
		&sr.step.IsParallel,
		&sr.timeout,
		&sr.step.Status,
		&sr.activated,
		&sr.processed,
		&sr.step.Comment,
		&sr.attachments,
		&sr.reminded,
		&sr.step.CreatedAt,
		&sr.step.UpdatedAt,
	}
}

func (sr *stepRow) build() (*entity.ApprovalStep, error) {
	step := sr.step
	if sr.timeout.Valid {
		hours := int(sr.timeout.Int64)
		step.TimeoutHours = &hours
	}
	step.ActivatedAt = timePtr(sr.activated)
	step.ProcessedAt = timePtr(sr.processed)
	step.RemindedAt = timePtr(sr.reminded)
	step.CreatedAt = step.CreatedAt.UTC()
	step.UpdatedAt = step.UpdatedAt.UTC()

	attachments, err := decodeAttachments(sr.attachments)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, err)
	}
	step.Attachments = attachments
	return &step, nil
}

func scanStep(s scanner) (*entity.ApprovalStep, error) {
	var row stepRow
	if err := s.Scan(row.dest()...); err != nil {
		return nil, err
	}
	return row.build()
}

func scanSteps(rows *sql.Rows) ([]*entity.ApprovalStep, error) {
	steps := make([]*entity.ApprovalStep, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStepsWithFlow(rows *sql.Rows) ([]*entity.ApprovalStep, error) {
	steps := make([]*entity.ApprovalStep, 0)
	for rows.Next() {
		var row stepRow
		var flow entity.ApprovalFlow
		var completedAt sql.NullTime

		dest := append(row.dest(),
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
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		step, err := row.build()
		if err != nil {
			return nil, err
		}
		flow.CompletedAt = timePtr(completedAt)
		flow.CreatedAt = flow.CreatedAt.UTC()
		flow.UpdatedAt = flow.UpdatedAt.UTC()
		step.Flow = &flow
		step.Reached = step.StepOrder <= flow.CurrentStep
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func encodeAttachments(attachments []string) (string, error) {
	if len(attachments) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("failed to encode attachments: %w", err)
	}
	return string(data), nil
}

func decodeAttachments(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var attachments []string
	if err := json.Unmarshal([]byte(raw), &attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}
	return attachments, nil
}
