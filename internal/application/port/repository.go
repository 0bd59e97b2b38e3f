package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Get methods return (nil, nil) when the record does not exist.

// FlowRepository defines persistence operations for ApprovalFlow
type FlowRepository interface {
	Create(ctx context.Context, flow *entity.ApprovalFlow) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalFlow, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error)
	// Update writes status, current step and completion time.
	Update(ctx context.Context, flow *entity.ApprovalFlow) error
	// ListByRequester returns the requester's flows, newest first.
	ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*entity.ApprovalFlow, error)
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error)
	// GetByFlowID returns the flow's steps in plan order.
	GetByFlowID(ctx context.Context, flowID string) ([]*entity.ApprovalStep, error)
	GetByFlowIDs(ctx context.Context, flowIDs []string) (map[string][]*entity.ApprovalStep, error)
	// ApplyDecision records the step's decision only if it is still pending.
	// It reports false when another decision got there first.
	ApplyDecision(ctx context.Context, step *entity.ApprovalStep) (bool, error)
	Activate(ctx context.Context, stepIDs []string, at time.Time) error
	// ListPendingForApprover returns the approver's pending steps in
	// non-terminal flows, high priority first, then oldest first. Each step
	// carries its flow.
	ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]*entity.ApprovalStep, error)
	// ListOverdue returns reached pending steps whose deadline passed before
	// now and that have not been reminded since.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalStep, error)
	MarkReminded(ctx context.Context, stepID string, at time.Time) error
}

// TransactionRepository defines the operations the engine may perform on
// expense transactions
type TransactionRepository interface {
	Create(ctx context.Context, txn *entity.ExpenseTransaction) error
	GetByID(ctx context.Context, id string) (*entity.ExpenseTransaction, error)
	MarkSubmitted(ctx context.Context, id string, at time.Time) error
	MarkApproved(ctx context.Context, id string, at time.Time) error
	MarkRejected(ctx context.Context, id, reason string, at time.Time) error
}

// OutboxRepository defines persistence operations for notification outbox rows
type OutboxRepository interface {
	Enqueue(ctx context.Context, msgs []*entity.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*entity.OutboxMessage, error)
	// ListDue returns pending rows created before createdBefore whose next
	// attempt is due at now.
	ListDue(ctx context.Context, now, createdBefore time.Time, limit int) ([]*entity.OutboxMessage, error)
	// MarkSent reports false if the row was no longer pending.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	MarkAttemptFailed(ctx context.Context, id, errMsg string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// TransactionManager scopes repository calls to one database transaction.
// Repositories called with the ctx passed to fn join that transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// WithFlowTransaction additionally takes the flow's write lock before
	// running fn, so decisions on one flow are linearized.
	WithFlowTransaction(ctx context.Context, flowID string, fn func(ctx context.Context) error) error
}
