package event

// Type identifies a notification event produced by the approval engine
type Type string

const (
	TypeApprovalRequested Type = "approval.requested"
	TypeFlowApproved      Type = "flow.approved"
	TypeFlowRejected      Type = "flow.rejected"
	TypeStepReminder      Type = "step.reminder"
)

// Payload keys
const (
	KeyStepID         = "step_id"
	KeyOrganizationID = "organization_id"
	KeyStepOrder      = "step_order"
	KeyApproved       = "approved"
	KeyReason         = "reason"
	KeyOverdueHours   = "overdue_hours"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalRequested,
		TypeFlowApproved,
		TypeFlowRejected,
		TypeStepReminder:
		return true
	default:
		return false
	}
}

// AllTypes lists every event type, in declaration order
func AllTypes() []Type {
	return []Type{
		TypeApprovalRequested,
		TypeFlowApproved,
		TypeFlowRejected,
		TypeStepReminder,
	}
}
