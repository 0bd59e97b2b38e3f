package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseTransaction is the expense record gated by an approval flow.
// The approval engine stamps it but does not own it.
type ExpenseTransaction struct {
	ID              string          `json:"id"`
	RequesterID     string          `json:"requester_id"`
	OrganizationID  string          `json:"organization_id"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category"`
	Description     string          `json:"description,omitempty"`
	Status          string          `json:"status"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
