package entity

import "time"

// OutboxMessage is a notification recorded in the same transaction as the
// state change that produced it.
type OutboxMessage struct {
	ID            string     `json:"id"`
	EventType     string     `json:"event_type"`
	FlowID        string     `json:"flow_id"`
	TransactionID string     `json:"transaction_id"`
	RecipientID   string     `json:"recipient_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
