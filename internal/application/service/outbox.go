package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// toOutbox converts events into pending outbox rows. The row ID is the event
// ID so the async handler can mark the row it delivered.
func toOutbox(events []*event.Event, now time.Time) ([]*entity.OutboxMessage, error) {
	msgs := make([]*entity.OutboxMessage, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload of %s: %w", evt.Type, err)
		}
		msgs = append(msgs, &entity.OutboxMessage{
			ID:            evt.ID,
			EventType:     string(evt.Type),
			FlowID:        evt.FlowID,
			TransactionID: evt.TransactionID,
			RecipientID:   evt.RecipientID,
			Payload:       string(payload),
			Status:        entity.NotificationStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}
	return msgs, nil
}

func fromOutbox(msg *entity.OutboxMessage) (*event.Event, error) {
	payload := make(map[string]interface{})
	if msg.Payload != "" {
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload of %s: %w", msg.ID, err)
		}
	}
	return &event.Event{
		ID:            msg.ID,
		Type:          event.Type(msg.EventType),
		FlowID:        msg.FlowID,
		TransactionID: msg.TransactionID,
		RecipientID:   msg.RecipientID,
		Payload:       payload,
		Timestamp:     msg.CreatedAt,
	}, nil
}
