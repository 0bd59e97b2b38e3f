package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

type mockPlanner struct {
	planFunc func(ctx context.Context, req port.PlanRequest) (*port.Plan, error)
	calls    int
}

func (m *mockPlanner) Plan(ctx context.Context, req port.PlanRequest) (*port.Plan, error) {
	m.calls++
	if m.planFunc != nil {
		return m.planFunc(ctx, req)
	}
	return &port.Plan{}, nil
}

type mockFlowRepo struct {
	createFunc             func(ctx context.Context, flow *entity.ApprovalFlow) error
	getByIDFunc            func(ctx context.Context, id string) (*entity.ApprovalFlow, error)
	getByTransactionIDFunc func(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error)
	updateFunc             func(ctx context.Context, flow *entity.ApprovalFlow) error
	listByRequesterFunc    func(ctx context.Context, requesterID string, limit, offset int) ([]*entity.ApprovalFlow, error)
}

func (m *mockFlowRepo) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, flow)
	}
	return nil
}

func (m *mockFlowRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalFlow, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockFlowRepo) GetByTransactionID(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error) {
	if m.getByTransactionIDFunc != nil {
		return m.getByTransactionIDFunc(ctx, transactionID)
	}
	return nil, nil
}

func (m *mockFlowRepo) Update(ctx context.Context, flow *entity.ApprovalFlow) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, flow)
	}
	return nil
}

func (m *mockFlowRepo) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*entity.ApprovalFlow, error) {
	if m.listByRequesterFunc != nil {
		return m.listByRequesterFunc(ctx, requesterID, limit, offset)
	}
	return []*entity.ApprovalFlow{}, nil
}

type mockStepRepo struct {
	createBatchFunc            func(ctx context.Context, steps []*entity.ApprovalStep) error
	getByIDFunc                func(ctx context.Context, id string) (*entity.ApprovalStep, error)
	getByFlowIDFunc            func(ctx context.Context, flowID string) ([]*entity.ApprovalStep, error)
	getByFlowIDsFunc           func(ctx context.Context, flowIDs []string) (map[string][]*entity.ApprovalStep, error)
	applyDecisionFunc          func(ctx context.Context, step *entity.ApprovalStep) (bool, error)
	activateFunc               func(ctx context.Context, stepIDs []string, at time.Time) error
	listPendingForApproverFunc func(ctx context.Context, approverID string, limit, offset int) ([]*entity.ApprovalStep, error)
	listOverdueFunc            func(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalStep, error)
	markRemindedFunc           func(ctx context.Context, stepID string, at time.Time) error
}

func (m *mockStepRepo) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	if m.createBatchFunc != nil {
		return m.createBatchFunc(ctx, steps)
	}
	return nil
}

func (m *mockStepRepo) GetByID(ctx context.Context, id string) (*entity.ApprovalStep, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockStepRepo) GetByFlowID(ctx context.Context, flowID string) ([]*entity.ApprovalStep, error) {
	if m.getByFlowIDFunc != nil {
		return m.getByFlowIDFunc(ctx, flowID)
	}
	return []*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) GetByFlowIDs(ctx context.Context, flowIDs []string) (map[string][]*entity.ApprovalStep, error) {
	if m.getByFlowIDsFunc != nil {
		return m.getByFlowIDsFunc(ctx, flowIDs)
	}
	return map[string][]*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) ApplyDecision(ctx context.Context, step *entity.ApprovalStep) (bool, error) {
	if m.applyDecisionFunc != nil {
		return m.applyDecisionFunc(ctx, step)
	}
	return true, nil
}

func (m *mockStepRepo) Activate(ctx context.Context, stepIDs []string, at time.Time) error {
	if m.activateFunc != nil {
		return m.activateFunc(ctx, stepIDs, at)
	}
	return nil
}

func (m *mockStepRepo) ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]*entity.ApprovalStep, error) {
	if m.listPendingForApproverFunc != nil {
		return m.listPendingForApproverFunc(ctx, approverID, limit, offset)
	}
	return []*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalStep, error) {
	if m.listOverdueFunc != nil {
		return m.listOverdueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockStepRepo) MarkReminded(ctx context.Context, stepID string, at time.Time) error {
	if m.markRemindedFunc != nil {
		return m.markRemindedFunc(ctx, stepID, at)
	}
	return nil
}

type mockTxnRepo struct {
	createFunc        func(ctx context.Context, txn *entity.ExpenseTransaction) error
	getByIDFunc       func(ctx context.Context, id string) (*entity.ExpenseTransaction, error)
	markSubmittedFunc func(ctx context.Context, id string, at time.Time) error
	markApprovedFunc  func(ctx context.Context, id string, at time.Time) error
	markRejectedFunc  func(ctx context.Context, id, reason string, at time.Time) error
}

func (m *mockTxnRepo) Create(ctx context.Context, txn *entity.ExpenseTransaction) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, txn)
	}
	return nil
}

func (m *mockTxnRepo) GetByID(ctx context.Context, id string) (*entity.ExpenseTransaction, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTxnRepo) MarkSubmitted(ctx context.Context, id string, at time.Time) error {
	if m.markSubmittedFunc != nil {
		return m.markSubmittedFunc(ctx, id, at)
	}
	return nil
}

func (m *mockTxnRepo) MarkApproved(ctx context.Context, id string, at time.Time) error {
	if m.markApprovedFunc != nil {
		return m.markApprovedFunc(ctx, id, at)
	}
	return nil
}

func (m *mockTxnRepo) MarkRejected(ctx context.Context, id, reason string, at time.Time) error {
	if m.markRejectedFunc != nil {
		return m.markRejectedFunc(ctx, id, reason, at)
	}
	return nil
}

type mockOutboxRepo struct {
	mu                    sync.Mutex
	enqueued              []*entity.OutboxMessage
	enqueueFunc           func(ctx context.Context, msgs []*entity.OutboxMessage) error
	markSentFunc          func(ctx context.Context, id string, at time.Time) (bool, error)
	markAttemptFailedFunc func(ctx context.Context, id, errMsg string, next time.Time) error
	markFailedFunc        func(ctx context.Context, id, errMsg string) error
}

func (m *mockOutboxRepo) Enqueue(ctx context.Context, msgs []*entity.OutboxMessage) error {
	if m.enqueueFunc != nil {
		return m.enqueueFunc(ctx, msgs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, msgs...)
	return nil
}

func (m *mockOutboxRepo) GetByID(ctx context.Context, id string) (*entity.OutboxMessage, error) {
	return nil, nil
}

func (m *mockOutboxRepo) ListDue(ctx context.Context, now, createdBefore time.Time, limit int) ([]*entity.OutboxMessage, error) {
	return nil, nil
}

func (m *mockOutboxRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	if m.markSentFunc != nil {
		return m.markSentFunc(ctx, id, at)
	}
	return true, nil
}

func (m *mockOutboxRepo) MarkAttemptFailed(ctx context.Context, id, errMsg string, next time.Time) error {
	if m.markAttemptFailedFunc != nil {
		return m.markAttemptFailedFunc(ctx, id, errMsg, next)
	}
	return nil
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	if m.markFailedFunc != nil {
		return m.markFailedFunc(ctx, id, errMsg)
	}
	return nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func (m *mockTxManager) WithFlowTransaction(ctx context.Context, flowID string, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

type mockNotifier struct {
	requestFunc    func(ctx context.Context, approverID, transactionID, organizationID string) error
	completionFunc func(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error
	reminderFunc   func(ctx context.Context, approverID, transactionID string, overdueHours int) error
}

func (m *mockNotifier) Name() string { return "mock" }

func (m *mockNotifier) NotifyApprovalRequest(ctx context.Context, approverID, transactionID, organizationID string) error {
	if m.requestFunc != nil {
		return m.requestFunc(ctx, approverID, transactionID, organizationID)
	}
	return nil
}

func (m *mockNotifier) NotifyApprovalCompletion(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
	if m.completionFunc != nil {
		return m.completionFunc(ctx, requesterID, transactionID, approved, reason)
	}
	return nil
}

func (m *mockNotifier) NotifyApprovalReminder(ctx context.Context, approverID, transactionID string, overdueHours int) error {
	if m.reminderFunc != nil {
		return m.reminderFunc(ctx, approverID, transactionID, overdueHours)
	}
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
