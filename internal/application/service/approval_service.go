package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/metrics"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher hands committed events to asynchronous delivery
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// SubmitRequest is the input of SubmitExpenseRequest
type SubmitRequest struct {
	TransactionID  string          `json:"transaction_id"`
	RequesterID    string          `json:"requester_id"`
	OrganizationID string          `json:"organization_id"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority,omitempty"`
	Description    string          `json:"description,omitempty"`
}

// DecisionRequest is the input of ProcessApproval
type DecisionRequest struct {
	StepID      string   `json:"step_id"`
	ApproverID  string   `json:"approver_id"`
	Decision    string   `json:"decision"`
	Comment     string   `json:"comment,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// Pagination defaults
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ApprovalService runs the expense approval workflow
type ApprovalService interface {
	// SubmitExpenseRequest plans the approver chain and persists the flow.
	SubmitExpenseRequest(ctx context.Context, req SubmitRequest) (string, error)
	// ProcessApproval applies one approver decision.
	ProcessApproval(ctx context.Context, req DecisionRequest) (*workflow.Result, error)
	GetPendingApprovals(ctx context.Context, approverID string, page, limit int) ([]*entity.ApprovalStep, error)
	GetMyRequests(ctx context.Context, requesterID string, page, limit int) ([]*entity.ApprovalFlow, error)
	GetFlow(ctx context.Context, flowID string) (*entity.ApprovalFlow, error)
	GetFlowByTransaction(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error)
}

// Option configures the approval service
type Option func(*approvalServiceImpl)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *approvalServiceImpl) {
		s.now = now
	}
}

type approvalServiceImpl struct {
	planner    port.ApprovalPlanner
	flowRepo   port.FlowRepository
	stepRepo   port.StepRepository
	txnRepo    port.TransactionRepository
	outboxRepo port.OutboxRepository
	txManager  port.TransactionManager
	publisher  EventPublisher
	logger     Logger
	now        func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	planner port.ApprovalPlanner,
	flowRepo port.FlowRepository,
	stepRepo port.StepRepository,
	txnRepo port.TransactionRepository,
	outboxRepo port.OutboxRepository,
	txManager port.TransactionManager,
	publisher EventPublisher,
	logger Logger,
	opts ...Option,
) ApprovalService {
	s := &approvalServiceImpl{
		planner:    planner,
		flowRepo:   flowRepo,
		stepRepo:   stepRepo,
		txnRepo:    txnRepo,
		outboxRepo: outboxRepo,
		txManager:  txManager,
		publisher:  publisher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitExpenseRequest plans, then writes the flow, its steps, the transaction
// stamp and the first approval requests in one unit. Nothing is written when
// planning fails.
func (s *approvalServiceImpl) SubmitExpenseRequest(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validateSubmit(&req); err != nil {
		return "", err
	}

	plan, err := s.planner.Plan(ctx, port.PlanRequest{
		RequesterID:    req.RequesterID,
		OrganizationID: req.OrganizationID,
		Amount:         req.Amount,
		Category:       req.Category,
		Priority:       req.Priority,
	})
	if err != nil {
		if workflow.IsDomainError(err) {
			s.logger.Info("Submission rejected by planner", "transaction_id", req.TransactionID, "reason", err.Error())
			return "", err
		}
		return "", s.operationFailed("plan approval flow", err, "transaction_id", req.TransactionID)
	}

	now := s.now()
	flow := &entity.ApprovalFlow{
		ID:             uuid.NewString(),
		TransactionID:  req.TransactionID,
		RequesterID:    req.RequesterID,
		OrganizationID: req.OrganizationID,
		Amount:         req.Amount,
		Category:       req.Category,
		Priority:       req.Priority,
		TotalSteps:     plan.TotalSteps,
		CurrentStep:    1,
		Status:         entity.FlowStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	steps := make([]*entity.ApprovalStep, 0, len(plan.Steps))
	for _, ps := range plan.Steps {
		steps = append(steps, &entity.ApprovalStep{
			ID:             uuid.NewString(),
			FlowID:         flow.ID,
			StepOrder:      ps.Order,
			ApproverID:     ps.ApproverID,
			ApproverRole:   ps.Role,
			OrganizationID: ps.OrganizationID,
			IsRequired:     ps.Required,
			IsParallel:     ps.Parallel,
			TimeoutHours:   ps.TimeoutHours,
			Status:         entity.StepStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	events, err := workflow.Begin(flow, steps, now)
	if err != nil {
		if workflow.IsDomainError(err) {
			return "", err
		}
		return "", s.operationFailed("start approval flow", err, "transaction_id", req.TransactionID)
	}
	outbox, err := toOutbox(events, now)
	if err != nil {
		return "", s.operationFailed("encode notifications", err, "transaction_id", req.TransactionID)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.flowRepo.GetByTransactionID(txCtx, req.TransactionID)
		if err != nil {
			return fmt.Errorf("check existing flow: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: transaction %s, flow %s", workflow.ErrDuplicateSubmission, req.TransactionID, existing.ID)
		}

		txn, err := s.txnRepo.GetByID(txCtx, req.TransactionID)
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if txn == nil {
			if err := s.txnRepo.Create(txCtx, &entity.ExpenseTransaction{
				ID:             req.TransactionID,
				RequesterID:    req.RequesterID,
				OrganizationID: req.OrganizationID,
				Amount:         req.Amount,
				Category:       req.Category,
				Description:    req.Description,
				Status:         entity.TransactionStatusDraft,
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}
		}

		if err := s.flowRepo.Create(txCtx, flow); err != nil {
			return fmt.Errorf("create flow: %w", err)
		}
		if err := s.stepRepo.CreateBatch(txCtx, steps); err != nil {
			return fmt.Errorf("create steps: %w", err)
		}
		if err := s.txnRepo.MarkSubmitted(txCtx, req.TransactionID, now); err != nil {
			return fmt.Errorf("stamp transaction: %w", err)
		}
		if err := s.outboxRepo.Enqueue(txCtx, outbox); err != nil {
			return fmt.Errorf("enqueue notifications: %w", err)
		}
		return nil
	})
	if err != nil {
		if workflow.IsDomainError(err) {
			s.logger.Info("Submission rejected", "transaction_id", req.TransactionID, "reason", err.Error())
			return "", err
		}
		return "", s.operationFailed("submit expense request", err, "transaction_id", req.TransactionID)
	}

	metrics.FlowSubmitted(flow.Priority)
	s.logger.Info("Approval flow submitted",
		"flow_id", flow.ID,
		"transaction_id", flow.TransactionID,
		"requester_id", flow.RequesterID,
		"amount", flow.Amount.String(),
		"total_steps", flow.TotalSteps,
		"current_step", flow.CurrentStep,
	)

	s.publish(ctx, events)
	return flow.ID, nil
}

// ProcessApproval applies a decision inside the flow's unit of work. Every
// check runs before any write, and the conditional step update makes exactly
// one of two concurrent deciders win.
func (s *approvalServiceImpl) ProcessApproval(ctx context.Context, req DecisionRequest) (result *workflow.Result, err error) {
	started := time.Now()
	var action workflow.Action
	defer func() {
		code := metrics.ResultSuccess
		if err != nil {
			code = workflow.ErrorCode(err)
		}
		label := string(action)
		if label == "" {
			label = "INVALID"
		}
		metrics.DecisionProcessed(label, code, time.Since(started))
	}()

	action, err = workflow.ParseAction(strings.ToUpper(strings.TrimSpace(req.Decision)))
	if err != nil {
		return nil, err
	}
	if req.StepID == "" || req.ApproverID == "" {
		return nil, workflow.InvalidRequest("step and approver are required")
	}

	step, err := s.stepRepo.GetByID(ctx, req.StepID)
	if err != nil {
		return nil, s.operationFailed("get step", err, "step_id", req.StepID)
	}
	if step == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrStepNotFound, req.StepID)
	}

	var transition *workflow.Transition
	err = s.txManager.WithFlowTransaction(ctx, step.FlowID, func(txCtx context.Context) error {
		flow, err := s.flowRepo.GetByID(txCtx, step.FlowID)
		if err != nil {
			return fmt.Errorf("get flow: %w", err)
		}
		if flow == nil {
			return fmt.Errorf("%w: %s", workflow.ErrFlowNotFound, step.FlowID)
		}
		steps, err := s.stepRepo.GetByFlowID(txCtx, flow.ID)
		if err != nil {
			return fmt.Errorf("get steps: %w", err)
		}

		now := s.now()
		t, err := workflow.Decide(flow, steps, workflow.Command{
			StepID:      req.StepID,
			ActorID:     req.ApproverID,
			Action:      action,
			Comment:     utils.SanitizeComment(req.Comment),
			Attachments: req.Attachments,
		}, now)
		if err != nil {
			return err
		}

		applied, err := s.stepRepo.ApplyDecision(txCtx, t.Step)
		if err != nil {
			return fmt.Errorf("update step: %w", err)
		}
		if !applied {
			return fmt.Errorf("%w: step %s", workflow.ErrAlreadyProcessed, t.Step.ID)
		}
		if len(t.Activated) > 0 {
			ids := make([]string, len(t.Activated))
			for i, a := range t.Activated {
				ids[i] = a.ID
			}
			if err := s.stepRepo.Activate(txCtx, ids, now); err != nil {
				return fmt.Errorf("activate steps: %w", err)
			}
		}
		if err := s.flowRepo.Update(txCtx, t.Flow); err != nil {
			return fmt.Errorf("update flow: %w", err)
		}

		switch t.Outcome {
		case workflow.StateApproved:
			if err := s.txnRepo.MarkApproved(txCtx, flow.TransactionID, now); err != nil {
				return fmt.Errorf("approve transaction: %w", err)
			}
		case workflow.StateRejected:
			if err := s.txnRepo.MarkRejected(txCtx, flow.TransactionID, t.Step.Comment, now); err != nil {
				return fmt.Errorf("reject transaction: %w", err)
			}
		}

		outbox, err := toOutbox(t.Events, now)
		if err != nil {
			return fmt.Errorf("encode notifications: %w", err)
		}
		if err := s.outboxRepo.Enqueue(txCtx, outbox); err != nil {
			return fmt.Errorf("enqueue notifications: %w", err)
		}

		transition = t
		return nil
	})
	if err != nil {
		if workflow.IsDomainError(err) {
			s.logger.Info("Decision refused",
				"step_id", req.StepID,
				"actor", req.ApproverID,
				"decision", string(action),
				"code", workflow.ErrorCode(err),
			)
			return nil, err
		}
		return nil, s.operationFailed("process approval", err, "step_id", req.StepID)
	}

	if transition.Outcome != "" {
		metrics.FlowCompleted(string(transition.Outcome))
	}
	s.logger.Info("Decision applied",
		"flow_id", transition.Flow.ID,
		"step_id", transition.Step.ID,
		"actor", req.ApproverID,
		"decision", string(action),
		"flow_status", transition.Flow.Status,
		"current_step", transition.Flow.CurrentStep,
		"outcome", string(transition.Outcome),
	)

	s.publish(ctx, transition.Events)
	result = &transition.Result
	return result, nil
}

func (s *approvalServiceImpl) GetPendingApprovals(ctx context.Context, approverID string, page, limit int) ([]*entity.ApprovalStep, error) {
	if approverID == "" {
		return nil, workflow.InvalidRequest("approver is required")
	}
	limit, offset := paginate(page, limit)

	steps, err := s.stepRepo.ListPendingForApprover(ctx, approverID, limit, offset)
	if err != nil {
		return nil, s.operationFailed("list pending approvals", err, "approver_id", approverID)
	}
	return steps, nil
}

func (s *approvalServiceImpl) GetMyRequests(ctx context.Context, requesterID string, page, limit int) ([]*entity.ApprovalFlow, error) {
	if requesterID == "" {
		return nil, workflow.InvalidRequest("requester is required")
	}
	limit, offset := paginate(page, limit)

	flows, err := s.flowRepo.ListByRequester(ctx, requesterID, limit, offset)
	if err != nil {
		return nil, s.operationFailed("list requests", err, "requester_id", requesterID)
	}
	if len(flows) == 0 {
		return flows, nil
	}

	ids := make([]string, len(flows))
	for i, f := range flows {
		ids[i] = f.ID
	}
	stepsByFlow, err := s.stepRepo.GetByFlowIDs(ctx, ids)
	if err != nil {
		return nil, s.operationFailed("list request steps", err, "requester_id", requesterID)
	}
	for _, f := range flows {
		f.Steps = stepsByFlow[f.ID]
	}
	return flows, nil
}

func (s *approvalServiceImpl) GetFlow(ctx context.Context, flowID string) (*entity.ApprovalFlow, error) {
	flow, err := s.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return nil, s.operationFailed("get flow", err, "flow_id", flowID)
	}
	if flow == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrFlowNotFound, flowID)
	}
	return s.withSteps(ctx, flow)
}

func (s *approvalServiceImpl) GetFlowByTransaction(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error) {
	flow, err := s.flowRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, s.operationFailed("get flow by transaction", err, "transaction_id", transactionID)
	}
	if flow == nil {
		return nil, fmt.Errorf("%w: transaction %s", workflow.ErrFlowNotFound, transactionID)
	}
	return s.withSteps(ctx, flow)
}

func (s *approvalServiceImpl) withSteps(ctx context.Context, flow *entity.ApprovalFlow) (*entity.ApprovalFlow, error) {
	steps, err := s.stepRepo.GetByFlowID(ctx, flow.ID)
	if err != nil {
		return nil, s.operationFailed("get steps", err, "flow_id", flow.ID)
	}
	flow.Steps = steps
	return flow, nil
}

// publish hands events to the dispatcher. The request context may be cancelled
// as soon as the response is written, so delivery runs detached from it.
func (s *approvalServiceImpl) publish(ctx context.Context, events []*event.Event) {
	if s.publisher == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, evt := range events {
		s.publisher.DispatchAsync(detached, evt)
	}
}

func (s *approvalServiceImpl) operationFailed(op string, err error, keysAndValues ...interface{}) error {
	s.logger.Error("Operation failed", append([]interface{}{"op", op, "error", err}, keysAndValues...)...)
	return workflow.OperationFailed(op, err)
}

func validateSubmit(req *SubmitRequest) error {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.Category = strings.ToUpper(strings.TrimSpace(req.Category))
	req.Priority = strings.ToUpper(strings.TrimSpace(req.Priority))
	req.Description = utils.SanitizeComment(req.Description)
	if req.Priority == "" {
		req.Priority = entity.PriorityNormal
	}

	for _, f := range []struct{ name, value string }{
		{"transaction_id", req.TransactionID},
		{"requester_id", req.RequesterID},
		{"organization_id", req.OrganizationID},
	} {
		if err := utils.ValidateID(f.name, f.value); err != nil {
			return workflow.InvalidRequest("%v", err)
		}
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return workflow.InvalidRequest("%v", err)
	}
	if req.Category == "" {
		return workflow.InvalidRequest("category is required")
	}
	if !entity.IsValidPriority(req.Priority) {
		return workflow.InvalidRequest("priority must be NORMAL or HIGH, got %q", req.Priority)
	}
	return nil
}

func paginate(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return limit, (page - 1) * limit
}
