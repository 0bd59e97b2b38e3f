package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Codes produced by the adapter itself
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeBadRequest      = "BAD_REQUEST"
)

// statusFor maps a service error onto an HTTP status
func statusFor(err error) int {
	de, ok := workflow.AsDomainError(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch de.Code {
	case workflow.CodeNotAuthorized:
		return http.StatusForbidden
	case workflow.CodeAlreadyProcessed,
		workflow.CodeFlowNotActionable,
		workflow.CodeStepNotReached,
		workflow.CodeDuplicateSubmission:
		return http.StatusConflict
	case workflow.CodePlanningFailed,
		workflow.CodeInvalidRequest,
		workflow.CodeOrganizationNotFound:
		return http.StatusUnprocessableEntity
	case workflow.CodeFlowNotFound,
		workflow.CodeStepNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders a service error. Infrastructure failures are reported
// generically; their details are already in the service log.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	message := "operation failed"
	if status != http.StatusInternalServerError {
		message = err.Error()
	} else if !errors.Is(err, workflow.ErrOperationFailed) {
		h.logger.Error("Unexpected handler error", "op", op, "error", err)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    workflow.ErrorCode(err),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Code:    CodeBadRequest,
	})
}
