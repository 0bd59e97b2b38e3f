package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

var fixedNow = time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)

type fixture struct {
	planner   *mockPlanner
	flows     *mockFlowRepo
	steps     *mockStepRepo
	txns      *mockTxnRepo
	outbox    *mockOutboxRepo
	txManager *mockTxManager
	publisher *mockPublisher
	svc       ApprovalService
}

func newFixture() *fixture {
	f := &fixture{
		planner:   &mockPlanner{},
		flows:     &mockFlowRepo{},
		steps:     &mockStepRepo{},
		txns:      &mockTxnRepo{},
		outbox:    &mockOutboxRepo{},
		txManager: &mockTxManager{},
		publisher: &mockPublisher{},
	}
	f.svc = NewApprovalService(f.planner, f.flows, f.steps, f.txns, f.outbox, f.txManager, f.publisher, &mockLogger{},
		WithClock(func() time.Time { return fixedNow }))
	return f
}

func twoStepPlan(ctx context.Context, req port.PlanRequest) (*port.Plan, error) {
	hours := 72
	return &port.Plan{
		TotalSteps: 2,
		Steps: []port.PlannedStep{
			{Order: 1, ApproverID: "u-dana", Role: "DEPARTMENT_HEAD", OrganizationID: "music", Required: true, TimeoutHours: &hours},
			{Order: 2, ApproverID: "u-tom", Role: "TREASURER", OrganizationID: "grace", Required: true, TimeoutHours: &hours},
		},
	}, nil
}

func validSubmit() SubmitRequest {
	return SubmitRequest{
		TransactionID:  "tx-100",
		RequesterID:    "u-ann",
		OrganizationID: "music",
		Amount:         decimal.RequireFromString("1250.00"),
		Category:       "general",
	}
}

func TestSubmitExpenseRequest_Success(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = twoStepPlan

	var createdFlow *entity.ApprovalFlow
	var createdSteps []*entity.ApprovalStep
	var createdTxn *entity.ExpenseTransaction
	var submittedAt time.Time
	f.flows.createFunc = func(ctx context.Context, flow *entity.ApprovalFlow) error {
		createdFlow = flow
		return nil
	}
	f.steps.createBatchFunc = func(ctx context.Context, steps []*entity.ApprovalStep) error {
		createdSteps = steps
		return nil
	}
	f.txns.createFunc = func(ctx context.Context, txn *entity.ExpenseTransaction) error {
		createdTxn = txn
		return nil
	}
	f.txns.markSubmittedFunc = func(ctx context.Context, id string, at time.Time) error {
		assert.Equal(t, "tx-100", id)
		submittedAt = at
		return nil
	}

	flowID, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())
	require.NoError(t, err)

	require.NotNil(t, createdFlow)
	assert.Equal(t, flowID, createdFlow.ID)
	assert.Equal(t, entity.FlowStatusPending, createdFlow.Status)
	assert.Equal(t, 1, createdFlow.CurrentStep)
	assert.Equal(t, 2, createdFlow.TotalSteps)
	assert.Equal(t, entity.PriorityNormal, createdFlow.Priority)
	assert.Equal(t, "GENERAL", createdFlow.Category)

	require.Len(t, createdSteps, 2)
	for i, s := range createdSteps {
		assert.Equal(t, flowID, s.FlowID)
		assert.Equal(t, i+1, s.StepOrder)
		assert.Equal(t, entity.StepStatusPending, s.Status)
	}
	require.NotNil(t, createdSteps[0].ActivatedAt)
	assert.Nil(t, createdSteps[1].ActivatedAt)

	require.NotNil(t, createdTxn)
	assert.True(t, createdTxn.Amount.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, fixedNow, submittedAt)

	require.Len(t, f.outbox.enqueued, 1)
	assert.Equal(t, "u-dana", f.outbox.enqueued[0].RecipientID)
	assert.Equal(t, string(event.TypeApprovalRequested), f.outbox.enqueued[0].EventType)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, f.outbox.enqueued[0].ID, f.publisher.events[0].ID)
	assert.Equal(t, 1, f.txManager.calls)
}

func TestSubmitExpenseRequest_ExistingTransactionNotRecreated(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = twoStepPlan
	f.txns.getByIDFunc = func(ctx context.Context, id string) (*entity.ExpenseTransaction, error) {
		return &entity.ExpenseTransaction{ID: id, Status: entity.TransactionStatusDraft}, nil
	}
	f.txns.createFunc = func(ctx context.Context, txn *entity.ExpenseTransaction) error {
		t.Fatal("transaction should not be created twice")
		return nil
	}

	_, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())
	require.NoError(t, err)
}

func TestSubmitExpenseRequest_NoApproversWritesNothing(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = func(ctx context.Context, req port.PlanRequest) (*port.Plan, error) {
		return nil, workflow.ErrNoApproversFound
	}

	_, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())

	assert.ErrorIs(t, err, workflow.ErrNoApproversFound)
	assert.Equal(t, workflow.CodePlanningFailed, workflow.ErrorCode(err))
	assert.Equal(t, 0, f.txManager.calls)
	assert.Empty(t, f.outbox.enqueued)
	assert.Empty(t, f.publisher.events)
}

func TestSubmitExpenseRequest_PlanWithoutRequiredFirstOrder(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = func(ctx context.Context, req port.PlanRequest) (*port.Plan, error) {
		return &port.Plan{
			TotalSteps: 2,
			Steps: []port.PlannedStep{
				{Order: 1, ApproverID: "u-mia", Role: "MISSIONS_COORDINATOR", OrganizationID: "grace"},
				{Order: 2, ApproverID: "u-tom", Role: "TREASURER", OrganizationID: "grace", Required: true},
			},
		}, nil
	}

	_, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())

	assert.ErrorIs(t, err, workflow.ErrOperationFailed)
	assert.False(t, workflow.IsDomainError(err))
	assert.Equal(t, 0, f.txManager.calls)
	assert.Empty(t, f.outbox.enqueued)
}

func TestSubmitExpenseRequest_Duplicate(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = twoStepPlan
	f.flows.getByTransactionIDFunc = func(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error) {
		return &entity.ApprovalFlow{ID: "flow-old", TransactionID: transactionID}, nil
	}
	f.flows.createFunc = func(ctx context.Context, flow *entity.ApprovalFlow) error {
		t.Fatal("flow must not be created")
		return nil
	}

	_, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())
	assert.ErrorIs(t, err, workflow.ErrDuplicateSubmission)
	assert.Empty(t, f.publisher.events)
}

func TestSubmitExpenseRequest_StorageFailureIsHidden(t *testing.T) {
	f := newFixture()
	f.planner.planFunc = twoStepPlan
	f.steps.createBatchFunc = func(ctx context.Context, steps []*entity.ApprovalStep) error {
		return errors.New("database is locked")
	}

	_, err := f.svc.SubmitExpenseRequest(context.Background(), validSubmit())

	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrOperationFailed)
	assert.False(t, workflow.IsDomainError(err))
	assert.NotContains(t, err.Error(), "locked")
	assert.Empty(t, f.publisher.events)

	var opErr *workflow.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.EqualError(t, errors.Unwrap(opErr.Cause), "database is locked")
}

func TestSubmitExpenseRequest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SubmitRequest)
	}{
		{"zero amount", func(r *SubmitRequest) { r.Amount = decimal.Zero }},
		{"missing transaction", func(r *SubmitRequest) { r.TransactionID = "" }},
		{"missing organization", func(r *SubmitRequest) { r.OrganizationID = " " }},
		{"missing category", func(r *SubmitRequest) { r.Category = "" }},
		{"bad priority", func(r *SubmitRequest) { r.Priority = "urgent" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := validSubmit()
			tt.mutate(&req)

			_, err := f.svc.SubmitExpenseRequest(context.Background(), req)
			assert.ErrorIs(t, err, workflow.ErrInvalidRequest)
			assert.Equal(t, 0, f.planner.calls)
		})
	}
}

// decisionFixture wires a three-step sequential flow into the mocks and
// records what the service writes back.
type decisionFixture struct {
	*fixture
	flow        *entity.ApprovalFlow
	steps       []*entity.ApprovalStep
	applied     []*entity.ApprovalStep
	updated     []*entity.ApprovalFlow
	activated   []string
	approvedTxn string
	rejectedTxn string
	reason      string
}

func newDecisionFixture(currentStep int) *decisionFixture {
	d := &decisionFixture{fixture: newFixture()}
	d.flow = &entity.ApprovalFlow{
		ID: "flow-1", TransactionID: "tx-1", RequesterID: "u-ann",
		Status: entity.FlowStatusPending, CurrentStep: currentStep, TotalSteps: 3,
	}
	if currentStep > 1 {
		d.flow.Status = entity.FlowStatusInProgress
	}
	for i, approver := range []string{"u-a", "u-b", "u-c"} {
		s := &entity.ApprovalStep{
			ID: []string{"s1", "s2", "s3"}[i], FlowID: "flow-1", StepOrder: i + 1,
			ApproverID: approver, IsRequired: true, Status: entity.StepStatusPending,
		}
		if i+1 < currentStep {
			s.Status = entity.StepStatusApproved
		}
		d.steps = append(d.steps, s)
	}

	d.fixture.steps.getByIDFunc = func(ctx context.Context, id string) (*entity.ApprovalStep, error) {
		for _, s := range d.steps {
			if s.ID == id {
				return s, nil
			}
		}
		return nil, nil
	}
	d.fixture.steps.getByFlowIDFunc = func(ctx context.Context, flowID string) ([]*entity.ApprovalStep, error) {
		return d.steps, nil
	}
	d.fixture.steps.applyDecisionFunc = func(ctx context.Context, step *entity.ApprovalStep) (bool, error) {
		d.applied = append(d.applied, step)
		return true, nil
	}
	d.fixture.steps.activateFunc = func(ctx context.Context, ids []string, at time.Time) error {
		d.activated = append(d.activated, ids...)
		return nil
	}
	d.flows.getByIDFunc = func(ctx context.Context, id string) (*entity.ApprovalFlow, error) {
		return d.flow, nil
	}
	d.flows.updateFunc = func(ctx context.Context, flow *entity.ApprovalFlow) error {
		d.updated = append(d.updated, flow)
		return nil
	}
	d.txns.markApprovedFunc = func(ctx context.Context, id string, at time.Time) error {
		d.approvedTxn = id
		return nil
	}
	d.txns.markRejectedFunc = func(ctx context.Context, id, reason string, at time.Time) error {
		d.rejectedTxn = id
		d.reason = reason
		return nil
	}
	return d
}

func TestProcessApproval_Advance(t *testing.T) {
	d := newDecisionFixture(1)

	result, err := d.svc.ProcessApproval(context.Background(), DecisionRequest{
		StepID: "s1", ApproverID: "u-a", Decision: "approve", Comment: "  looks fine ",
	})
	require.NoError(t, err)

	assert.False(t, result.Completed)
	assert.Equal(t, "s2", result.NextStepID)
	require.Len(t, d.applied, 1)
	assert.Equal(t, entity.StepStatusApproved, d.applied[0].Status)
	assert.Equal(t, "looks fine", d.applied[0].Comment)
	assert.Equal(t, []string{"s2"}, d.activated)
	require.Len(t, d.updated, 1)
	assert.Equal(t, entity.FlowStatusInProgress, d.updated[0].Status)
	assert.Equal(t, 2, d.updated[0].CurrentStep)
	assert.Empty(t, d.approvedTxn)

	require.Len(t, d.outbox.enqueued, 1)
	assert.Equal(t, "u-b", d.outbox.enqueued[0].RecipientID)
	require.Len(t, d.publisher.events, 1)
}

func TestProcessApproval_FinalApproval(t *testing.T) {
	d := newDecisionFixture(3)

	result, err := d.svc.ProcessApproval(context.Background(), DecisionRequest{StepID: "s3", ApproverID: "u-c", Decision: "APPROVE"})
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, workflow.StateApproved, result.Outcome)
	assert.Equal(t, "tx-1", d.approvedTxn)
	require.Len(t, d.updated, 1)
	assert.Equal(t, entity.FlowStatusApproved, d.updated[0].Status)
	require.NotNil(t, d.updated[0].CompletedAt)

	require.Len(t, d.publisher.events, 1)
	assert.Equal(t, event.TypeFlowApproved, d.publisher.events[0].Type)
	assert.Equal(t, "u-ann", d.publisher.events[0].RecipientID)
}

func TestProcessApproval_Reject(t *testing.T) {
	d := newDecisionFixture(2)

	result, err := d.svc.ProcessApproval(context.Background(), DecisionRequest{
		StepID: "s2", ApproverID: "u-b", Decision: "REJECT", Comment: "no receipt",
	})
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, workflow.StateRejected, result.Outcome)
	assert.Equal(t, "tx-1", d.rejectedTxn)
	assert.Equal(t, "no receipt", d.reason)
	assert.Empty(t, d.activated)
	assert.Equal(t, entity.StepStatusPending, d.steps[2].Status)

	require.Len(t, d.publisher.events, 1)
	assert.Equal(t, event.TypeFlowRejected, d.publisher.events[0].Type)
	assert.Equal(t, "no receipt", d.publisher.events[0].GetPayloadString(event.KeyReason))
}

func TestProcessApproval_Refusals(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *decisionFixture)
		req   DecisionRequest
		want  error
	}{
		{
			name: "wrong approver",
			req:  DecisionRequest{StepID: "s1", ApproverID: "u-b", Decision: "APPROVE"},
			want: workflow.ErrNotAuthorized,
		},
		{
			name:  "already processed",
			setup: func(d *decisionFixture) { d.steps[0].Status = entity.StepStatusApproved },
			req:   DecisionRequest{StepID: "s1", ApproverID: "u-a", Decision: "REJECT"},
			want:  workflow.ErrAlreadyProcessed,
		},
		{
			name:  "terminal flow",
			setup: func(d *decisionFixture) { d.flow.Status = entity.FlowStatusRejected },
			req:   DecisionRequest{StepID: "s1", ApproverID: "u-a", Decision: "APPROVE"},
			want:  workflow.ErrFlowNotActionable,
		},
		{
			name: "step not reached",
			req:  DecisionRequest{StepID: "s2", ApproverID: "u-b", Decision: "APPROVE"},
			want: workflow.ErrStepNotReached,
		},
		{
			name: "unknown step",
			req:  DecisionRequest{StepID: "s9", ApproverID: "u-a", Decision: "APPROVE"},
			want: workflow.ErrStepNotFound,
		},
		{
			name: "bad decision",
			req:  DecisionRequest{StepID: "s1", ApproverID: "u-a", Decision: "MAYBE"},
			want: workflow.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecisionFixture(1)
			if tt.setup != nil {
				tt.setup(d)
			}

			result, err := d.svc.ProcessApproval(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, result)
			assert.Empty(t, d.applied)
			assert.Empty(t, d.updated)
			assert.Empty(t, d.outbox.enqueued)
			assert.Empty(t, d.publisher.events)
		})
	}
}

func TestProcessApproval_LostRace(t *testing.T) {
	d := newDecisionFixture(1)
	d.fixture.steps.applyDecisionFunc = func(ctx context.Context, step *entity.ApprovalStep) (bool, error) {
		return false, nil
	}

	_, err := d.svc.ProcessApproval(context.Background(), DecisionRequest{StepID: "s1", ApproverID: "u-a", Decision: "APPROVE"})
	assert.ErrorIs(t, err, workflow.ErrAlreadyProcessed)
	assert.Empty(t, d.updated)
	assert.Empty(t, d.publisher.events)
}

func TestProcessApproval_StorageFailure(t *testing.T) {
	d := newDecisionFixture(1)
	d.flows.updateFunc = func(ctx context.Context, flow *entity.ApprovalFlow) error {
		return errors.New("disk I/O error")
	}

	_, err := d.svc.ProcessApproval(context.Background(), DecisionRequest{StepID: "s1", ApproverID: "u-a", Decision: "APPROVE"})
	assert.ErrorIs(t, err, workflow.ErrOperationFailed)
	assert.NotContains(t, err.Error(), "disk")
	assert.Empty(t, d.publisher.events)
}

func TestGetPendingApprovals_Pagination(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantLimit, wantSkip int
	}{
		{0, 0, DefaultPageLimit, 0},
		{1, 10, 10, 0},
		{3, 500, MaxPageLimit, 200},
		{-2, -1, DefaultPageLimit, 0},
	}

	for _, tt := range tests {
		f := newFixture()
		var gotLimit, gotOffset int
		f.steps.listPendingForApproverFunc = func(ctx context.Context, approverID string, limit, offset int) ([]*entity.ApprovalStep, error) {
			assert.Equal(t, "u-dana", approverID)
			gotLimit, gotOffset = limit, offset
			return nil, nil
		}

		_, err := f.svc.GetPendingApprovals(context.Background(), "u-dana", tt.page, tt.limit)
		require.NoError(t, err)
		assert.Equal(t, tt.wantLimit, gotLimit)
		assert.Equal(t, tt.wantSkip, gotOffset)
	}
}

func TestGetMyRequests_AttachesSteps(t *testing.T) {
	f := newFixture()
	f.flows.listByRequesterFunc = func(ctx context.Context, requesterID string, limit, offset int) ([]*entity.ApprovalFlow, error) {
		return []*entity.ApprovalFlow{{ID: "flow-2"}, {ID: "flow-1"}}, nil
	}
	f.steps.getByFlowIDsFunc = func(ctx context.Context, ids []string) (map[string][]*entity.ApprovalStep, error) {
		assert.Equal(t, []string{"flow-2", "flow-1"}, ids)
		return map[string][]*entity.ApprovalStep{
			"flow-1": {{ID: "s1"}},
			"flow-2": {{ID: "s2"}, {ID: "s3"}},
		}, nil
	}

	flows, err := f.svc.GetMyRequests(context.Background(), "u-ann", 1, 20)
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Len(t, flows[0].Steps, 2)
	assert.Len(t, flows[1].Steps, 1)
}

func TestGetFlow_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetFlow(context.Background(), "missing")
	assert.ErrorIs(t, err, workflow.ErrFlowNotFound)

	_, err = f.svc.GetFlowByTransaction(context.Background(), "tx-missing")
	assert.ErrorIs(t, err, workflow.ErrFlowNotFound)
}
