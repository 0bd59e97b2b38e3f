package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeApprovalService struct {
	submitFn  func(ctx context.Context, req service.SubmitRequest) (string, error)
	processFn func(ctx context.Context, req service.DecisionRequest) (*workflow.Result, error)
	pendingFn func(ctx context.Context, approverID string, page, limit int) ([]*entity.ApprovalStep, error)
	mineFn    func(ctx context.Context, requesterID string, page, limit int) ([]*entity.ApprovalFlow, error)
	flowFn    func(ctx context.Context, flowID string) (*entity.ApprovalFlow, error)
	byTxnFn   func(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error)
}

func (f *fakeApprovalService) SubmitExpenseRequest(ctx context.Context, req service.SubmitRequest) (string, error) {
	return f.submitFn(ctx, req)
}

func (f *fakeApprovalService) ProcessApproval(ctx context.Context, req service.DecisionRequest) (*workflow.Result, error) {
	return f.processFn(ctx, req)
}

func (f *fakeApprovalService) GetPendingApprovals(ctx context.Context, approverID string, page, limit int) ([]*entity.ApprovalStep, error) {
	return f.pendingFn(ctx, approverID, page, limit)
}

func (f *fakeApprovalService) GetMyRequests(ctx context.Context, requesterID string, page, limit int) ([]*entity.ApprovalFlow, error) {
	return f.mineFn(ctx, requesterID, page, limit)
}

func (f *fakeApprovalService) GetFlow(ctx context.Context, flowID string) (*entity.ApprovalFlow, error) {
	return f.flowFn(ctx, flowID)
}

func (f *fakeApprovalService) GetFlowByTransaction(ctx context.Context, transactionID string) (*entity.ApprovalFlow, error) {
	return f.byTxnFn(ctx, transactionID)
}

func newTestServer(svc service.ApprovalService) *Server {
	health := func(context.Context) (bool, interface{}) {
		return true, map[string]string{"database": "ok"}
	}
	return NewServer(DefaultServerConfig(), svc, health, nopLogger{})
}

func doRequest(t *testing.T, s *Server, method, path, user, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&fakeApprovalService{})
	rec, resp := doRequest(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeApprovalService{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireUser(t *testing.T) {
	s := newTestServer(&fakeApprovalService{})
	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/requests", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthenticated, resp.Code)
}

func TestSubmitExpense(t *testing.T) {
	var got service.SubmitRequest
	svc := &fakeApprovalService{
		submitFn: func(_ context.Context, req service.SubmitRequest) (string, error) {
			got = req
			return "flow-1", nil
		},
	}
	s := newTestServer(svc)

	body := `{"transaction_id":"txn-1","organization_id":"grace","amount":"1250.50","category":"GENERAL","priority":"HIGH"}`
	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/expenses", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "flow-1", resp.Data.(map[string]interface{})["flow_id"])

	assert.Equal(t, "alice", got.RequesterID)
	assert.Equal(t, "txn-1", got.TransactionID)
	assert.Equal(t, "1250.5", got.Amount.String())
	assert.Equal(t, "HIGH", got.Priority)
}

func TestSubmitExpense_BadBody(t *testing.T) {
	s := newTestServer(&fakeApprovalService{})
	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/expenses", "alice", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestProcessDecision(t *testing.T) {
	var got service.DecisionRequest
	svc := &fakeApprovalService{
		processFn: func(_ context.Context, req service.DecisionRequest) (*workflow.Result, error) {
			got = req
			return &workflow.Result{Completed: true, Outcome: workflow.StateApproved}, nil
		},
	}
	s := newTestServer(svc)

	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/steps/step-9/decision", "tom",
		`{"decision":"APPROVE","comment":"fine","attachments":["a.pdf"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["completed"])

	assert.Equal(t, "step-9", got.StepID)
	assert.Equal(t, "tom", got.ApproverID)
	assert.Equal(t, "APPROVE", got.Decision)
	assert.Equal(t, []string{"a.pdf"}, got.Attachments)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not authorized", workflow.ErrNotAuthorized, http.StatusForbidden, workflow.CodeNotAuthorized},
		{"already processed", fmt.Errorf("step s1: %w", workflow.ErrAlreadyProcessed), http.StatusConflict, workflow.CodeAlreadyProcessed},
		{"not actionable", workflow.ErrFlowNotActionable, http.StatusConflict, workflow.CodeFlowNotActionable},
		{"not reached", workflow.ErrStepNotReached, http.StatusConflict, workflow.CodeStepNotReached},
		{"duplicate", workflow.ErrDuplicateSubmission, http.StatusConflict, workflow.CodeDuplicateSubmission},
		{"planning failed", workflow.ErrNoApproversFound, http.StatusUnprocessableEntity, workflow.CodePlanningFailed},
		{"invalid", workflow.InvalidRequest("amount must be positive"), http.StatusUnprocessableEntity, workflow.CodeInvalidRequest},
		{"unknown org", workflow.ErrOrganizationNotFound, http.StatusUnprocessableEntity, workflow.CodeOrganizationNotFound},
		{"step missing", workflow.ErrStepNotFound, http.StatusNotFound, workflow.CodeStepNotFound},
		{"infrastructure", workflow.OperationFailed("apply decision", fmt.Errorf("database is locked")), http.StatusInternalServerError, workflow.CodeOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeApprovalService{
				processFn: func(context.Context, service.DecisionRequest) (*workflow.Result, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(svc)

			rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/steps/s1/decision", "tom", `{"decision":"REJECT"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "operation failed", resp.Error)
				assert.NotContains(t, rec.Body.String(), "locked")
			}
		})
	}
}

func TestListEndpoints(t *testing.T) {
	var pendingArgs, mineArgs []interface{}
	svc := &fakeApprovalService{
		pendingFn: func(_ context.Context, approverID string, page, limit int) ([]*entity.ApprovalStep, error) {
			pendingArgs = []interface{}{approverID, page, limit}
			return []*entity.ApprovalStep{{ID: "s1"}}, nil
		},
		mineFn: func(_ context.Context, requesterID string, page, limit int) ([]*entity.ApprovalFlow, error) {
			mineArgs = []interface{}{requesterID, page, limit}
			return []*entity.ApprovalFlow{}, nil
		},
	}
	s := newTestServer(svc)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/approvals/pending?page=2&limit=5", "tom", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)
	assert.Equal(t, []interface{}{"tom", 2, 5}, pendingArgs)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/requests", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"alice", 0, 0}, mineArgs)

	rec, resp = doRequest(t, s, http.MethodGet, "/api/v1/requests?page=abc", "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestGetFlow(t *testing.T) {
	svc := &fakeApprovalService{
		flowFn: func(_ context.Context, flowID string) (*entity.ApprovalFlow, error) {
			if flowID == "flow-1" {
				return &entity.ApprovalFlow{ID: "flow-1", Status: entity.FlowStatusInProgress}, nil
			}
			return nil, fmt.Errorf("%w: %s", workflow.ErrFlowNotFound, flowID)
		},
		byTxnFn: func(_ context.Context, transactionID string) (*entity.ApprovalFlow, error) {
			return &entity.ApprovalFlow{ID: "flow-1", TransactionID: transactionID}, nil
		},
	}
	s := newTestServer(svc)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/flows/flow-1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IN_PROGRESS", resp.Data.(map[string]interface{})["status"])

	rec, resp = doRequest(t, s, http.MethodGet, "/api/v1/flows/flow-2", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, workflow.CodeFlowNotFound, resp.Code)

	rec, resp = doRequest(t, s, http.MethodGet, "/api/v1/transactions/txn-1/flow", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "txn-1", resp.Data.(map[string]interface{})["transaction_id"])
}
