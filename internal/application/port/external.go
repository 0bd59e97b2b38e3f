package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// OrganizationDirectory is the read-only view of the church hierarchy
type OrganizationDirectory interface {
	// HierarchyPath returns the node followed by its ancestors up to the root.
	HierarchyPath(ctx context.Context, orgID string) ([]entity.Organization, error)
	// RoleHolders returns the users holding role at the node, sorted ascending.
	RoleHolders(ctx context.Context, orgID, role string) ([]string, error)
}

// PlanRequest is the planner input
type PlanRequest struct {
	RequesterID    string
	OrganizationID string
	Amount         decimal.Decimal
	Category       string
	Priority       string
}

// PlannedStep describes one approver position before it is persisted
type PlannedStep struct {
	Order          int
	ApproverID     string
	Role           string
	OrganizationID string
	Required       bool
	Parallel       bool
	TimeoutHours   *int
}

// Plan is the ordered approver chain. TotalSteps counts distinct orders.
type Plan struct {
	Steps      []PlannedStep
	TotalSteps int
}

// ApprovalPlanner computes the approver chain for an expense
type ApprovalPlanner interface {
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
}

// Notifier delivers approval notifications to people. Implementations
// report failures; callers decide whether they matter.
type Notifier interface {
	Name() string
	NotifyApprovalRequest(ctx context.Context, approverID, transactionID, organizationID string) error
	NotifyApprovalCompletion(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error
	NotifyApprovalReminder(ctx context.Context, approverID, transactionID string, overdueHours int) error
}
