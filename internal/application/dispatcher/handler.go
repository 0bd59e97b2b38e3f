package dispatcher

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Handler processes one notification event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a subscribed handler for logs
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
