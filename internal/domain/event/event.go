package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a notification owed to a single recipient after a state change.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	FlowID        string                 `json:"flow_id"`
	TransactionID string                 `json:"transaction_id"`
	RecipientID   string                 `json:"recipient_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(eventType Type, flowID, transactionID, recipientID string, payload map[string]interface{}, at time.Time) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		FlowID:        flowID,
		TransactionID: transactionID,
		RecipientID:   recipientID,
		Payload:       payload,
		Timestamp:     at,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload. Values decoded
// from JSON arrive as float64.
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
