package workflow

import (
	"errors"
	"fmt"
)

// Error codes returned to API clients
const (
	CodePlanningFailed       = "PLANNING_FAILED"
	CodeNotAuthorized        = "NOT_AUTHORIZED"
	CodeAlreadyProcessed     = "ALREADY_PROCESSED"
	CodeFlowNotActionable    = "FLOW_NOT_ACTIONABLE"
	CodeStepNotReached       = "STEP_NOT_REACHED"
	CodeFlowNotFound         = "FLOW_NOT_FOUND"
	CodeStepNotFound         = "STEP_NOT_FOUND"
	CodeOrganizationNotFound = "ORGANIZATION_NOT_FOUND"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeDuplicateSubmission  = "DUPLICATE_SUBMISSION"
	CodeOperationFailed      = "OPERATION_FAILED"
)

// DomainError is a client-caused failure that is safe to show to the caller.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every guard of a permitted transition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrInvalidPlan is returned when a planned chain cannot be started
	ErrInvalidPlan = errors.New("invalid approval plan")

	ErrNoApproversFound     = &DomainError{Code: CodePlanningFailed, Message: "no eligible approvers found"}
	ErrNotAuthorized        = &DomainError{Code: CodeNotAuthorized, Message: "actor is not the designated approver of this step"}
	ErrAlreadyProcessed     = &DomainError{Code: CodeAlreadyProcessed, Message: "step has already been processed"}
	ErrFlowNotActionable    = &DomainError{Code: CodeFlowNotActionable, Message: "approval flow is no longer actionable"}
	ErrStepNotReached       = &DomainError{Code: CodeStepNotReached, Message: "step is not yet actionable"}
	ErrFlowNotFound         = &DomainError{Code: CodeFlowNotFound, Message: "approval flow not found"}
	ErrStepNotFound         = &DomainError{Code: CodeStepNotFound, Message: "approval step not found"}
	ErrOrganizationNotFound = &DomainError{Code: CodeOrganizationNotFound, Message: "organization not found"}
	ErrInvalidRequest       = &DomainError{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrDuplicateSubmission  = &DomainError{Code: CodeDuplicateSubmission, Message: "transaction already has an approval flow"}

	// ErrOperationFailed hides infrastructure failures from callers.
	ErrOperationFailed = errors.New("operation failed")
)

// InvalidRequest wraps ErrInvalidRequest with a description of the bad input.
func InvalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// AsDomainError extracts the domain error from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsDomainError reports whether err should reach the caller verbatim.
func IsDomainError(err error) bool {
	_, ok := AsDomainError(err)
	return ok
}

// ErrorCode returns the client-facing code for err.
func ErrorCode(err error) string {
	if de, ok := AsDomainError(err); ok {
		return de.Code
	}
	return CodeOperationFailed
}

// OperationError carries an infrastructure failure. Its message only names the
// operation so storage details do not leak to callers.
type OperationError struct {
	Op    string
	Cause error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrOperationFailed)
}

func (e *OperationError) Unwrap() error {
	return ErrOperationFailed
}

// OperationFailed wraps an infrastructure error at the service boundary.
// Domain errors pass through unchanged.
func OperationFailed(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if IsDomainError(cause) {
		return cause
	}
	var oe *OperationError
	if errors.As(cause, &oe) {
		return cause
	}
	return &OperationError{Op: op, Cause: cause}
}
