package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalFlow is the approval process of one expense transaction.
type ApprovalFlow struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	RequesterID    string          `json:"requester_id"`
	OrganizationID string          `json:"organization_id"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	Priority       string          `json:"priority"`
	TotalSteps     int             `json:"total_steps"`
	CurrentStep    int             `json:"current_step"`
	Status         string          `json:"status"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Steps is populated by queries that return the flow with its progress.
	Steps []*ApprovalStep `json:"steps,omitempty"`
}

// IsActive reports whether steps of the flow may still be acted on.
func (f *ApprovalFlow) IsActive() bool {
	return f.Status == FlowStatusPending || f.Status == FlowStatusInProgress
}

// Clone returns a shallow copy without the attached steps.
func (f *ApprovalFlow) Clone() *ApprovalFlow {
	c := *f
	c.Steps = nil
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ApprovalStep is one approver's slot within a flow.
type ApprovalStep struct {
	ID             string     `json:"id"`
	FlowID         string     `json:"flow_id"`
	StepOrder      int        `json:"step_order"`
	ApproverID     string     `json:"approver_id"`
	ApproverRole   string     `json:"approver_role"`
	OrganizationID string     `json:"organization_id"`
	IsRequired     bool       `json:"is_required"`
	IsParallel     bool       `json:"is_parallel"`
	TimeoutHours   *int       `json:"timeout_hours,omitempty"`
	Status         string     `json:"status"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	Comment        string     `json:"comment,omitempty"`
	Attachments    []string   `json:"attachments,omitempty"`
	RemindedAt     *time.Time `json:"reminded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Flow is populated by the pending-approvals query.
	Flow *ApprovalFlow `json:"flow,omitempty"`
	// Reached is set alongside Flow: false means earlier orders are still
	// outstanding and a decision would be refused as not yet actionable.
	Reached bool `json:"reached"`
}

// Clone returns a copy that can be mutated without touching the original.
func (s *ApprovalStep) Clone() *ApprovalStep {
	c := *s
	c.Flow = nil
	if s.Attachments != nil {
		c.Attachments = append([]string(nil), s.Attachments...)
	}
	return &c
}

// Deadline returns when the step becomes overdue, or false if it has no timeout
// or has not been activated yet.
func (s *ApprovalStep) Deadline() (time.Time, bool) {
	if s.TimeoutHours == nil || *s.TimeoutHours <= 0 || s.ActivatedAt == nil {
		return time.Time{}, false
	}
	return s.ActivatedAt.Add(time.Duration(*s.TimeoutHours) * time.Hour), true
}
