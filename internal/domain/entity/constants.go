package entity

// Flow status constants
const (
	FlowStatusPending    = "PENDING"
	FlowStatusInProgress = "IN_PROGRESS"
	FlowStatusApproved   = "APPROVED"
	FlowStatusRejected   = "REJECTED"
)

// Step status constants
const (
	StepStatusPending  = "PENDING"
	StepStatusApproved = "APPROVED"
	StepStatusRejected = "REJECTED"
)

// Transaction status constants
const (
	TransactionStatusDraft           = "DRAFT"
	TransactionStatusPendingApproval = "PENDING_APPROVAL"
	TransactionStatusApproved        = "APPROVED"
	TransactionStatusRejected        = "REJECTED"
)

// Priority constants
const (
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
)

// Organization type constants, leaf to root
const (
	OrgTypeDepartment = "DEPARTMENT"
	OrgTypeChurch     = "CHURCH"
	OrgTypeDistrict   = "DISTRICT"
	OrgTypeConference = "CONFERENCE"
	OrgTypeUnion      = "UNION"
)

// Notification outbox status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Expense categories used by the default policy
const (
	CategoryGeneral  = "GENERAL"
	CategoryTravel   = "TRAVEL"
	CategoryMissions = "MISSIONS"
	CategoryCapital  = "CAPITAL"
	CategoryYouth    = "YOUTH"
)

// IsValidPriority reports whether p is a known priority.
func IsValidPriority(p string) bool {
	return p == PriorityNormal || p == PriorityHigh
}

// IsValidOrgType reports whether t is a known organization type.
func IsValidOrgType(t string) bool {
	switch t {
	case OrgTypeDepartment, OrgTypeChurch, OrgTypeDistrict, OrgTypeConference, OrgTypeUnion:
		return true
	}
	return false
}
