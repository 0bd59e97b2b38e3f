package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService service.ApprovalService
	health          HealthFunc
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(approvalService service.ApprovalService, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		approvalService: approvalService,
		health:          health,
		logger:          logger,
	}
}

// Response is the envelope of every API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitExpenseRequest is the body of POST /api/v1/expenses
type SubmitExpenseRequest struct {
	TransactionID  string          `json:"transaction_id" binding:"required"`
	OrganizationID string          `json:"organization_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category" binding:"required"`
	Priority       string          `json:"priority"`
	Description    string          `json:"description"`
}

// SubmitExpenseResponse is returned after a successful submission
type SubmitExpenseResponse struct {
	FlowID        string `json:"flow_id"`
	TransactionID string `json:"transaction_id"`
}

// DecisionBody is the body of POST /api/v1/steps/:id/decision
type DecisionBody struct {
	Decision    string   `json:"decision" binding:"required"`
	Comment     string   `json:"comment"`
	Attachments []string `json:"attachments"`
}

// PageQuery holds pagination query parameters
type PageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, components := true, interface{}(nil)
	if h.health != nil {
		healthy, components = h.health(c.Request.Context())
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, Response{
		Success: healthy,
		Data: HealthResponse{
			Status:     status,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Components: components,
		},
	})
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	flowID, err := h.approvalService.SubmitExpenseRequest(c.Request.Context(), service.SubmitRequest{
		TransactionID:  req.TransactionID,
		RequesterID:    c.GetString(userIDKey),
		OrganizationID: req.OrganizationID,
		Amount:         req.Amount,
		Category:       req.Category,
		Priority:       req.Priority,
		Description:    req.Description,
	})
	if err != nil {
		h.writeError(c, "submit expense", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: SubmitExpenseResponse{
			FlowID:        flowID,
			TransactionID: req.TransactionID,
		},
	})
}

// ProcessDecision handles POST /api/v1/steps/:id/decision
func (h *Handlers) ProcessDecision(c *gin.Context) {
	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.approvalService.ProcessApproval(c.Request.Context(), service.DecisionRequest{
		StepID:      c.Param("id"),
		ApproverID:  c.GetString(userIDKey),
		Decision:    body.Decision,
		Comment:     body.Comment,
		Attachments: body.Attachments,
	})
	if err != nil {
		h.writeError(c, "process decision", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ListPendingApprovals handles GET /api/v1/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	steps, err := h.approvalService.GetPendingApprovals(c.Request.Context(), c.GetString(userIDKey), q.Page, q.Limit)
	if err != nil {
		h.writeError(c, "list pending approvals", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    steps,
	})
}

// ListMyRequests handles GET /api/v1/requests
func (h *Handlers) ListMyRequests(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	flows, err := h.approvalService.GetMyRequests(c.Request.Context(), c.GetString(userIDKey), q.Page, q.Limit)
	if err != nil {
		h.writeError(c, "list my requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flows,
	})
}

// GetFlow handles GET /api/v1/flows/:id
func (h *Handlers) GetFlow(c *gin.Context) {
	flow, err := h.approvalService.GetFlow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get flow", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flow,
	})
}

// GetFlowByTransaction handles GET /api/v1/transactions/:id/flow
func (h *Handlers) GetFlowByTransaction(c *gin.Context) {
	flow, err := h.approvalService.GetFlowByTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get flow by transaction", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flow,
	})
}
