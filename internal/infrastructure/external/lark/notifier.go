package lark

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// DefaultReceiveIDType addresses approvers by their tenant user ID
const DefaultReceiveIDType = "user_id"

// Notifier delivers approval notifications as Lark IM text messages
type Notifier struct {
	sender        TextSender
	receiveIDType string
	logger        *zap.Logger
}

// NewNotifier creates a Lark notifier
func NewNotifier(sender TextSender, receiveIDType string, logger *zap.Logger) *Notifier {
	if receiveIDType == "" {
		receiveIDType = DefaultReceiveIDType
	}
	return &Notifier{
		sender:        sender,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// Name implements port.Notifier
func (n *Notifier) Name() string {
	return "lark"
}

// NotifyApprovalRequest implements port.Notifier
func (n *Notifier) NotifyApprovalRequest(ctx context.Context, approverID, transactionID, organizationID string) error {
	text := fmt.Sprintf("Expense %s is waiting for your approval.", transactionID)
	if organizationID != "" {
		text = fmt.Sprintf("Expense %s from %s is waiting for your approval.", transactionID, organizationID)
	}
	return n.send(ctx, approverID, text)
}

// NotifyApprovalCompletion implements port.Notifier
func (n *Notifier) NotifyApprovalCompletion(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
	text := fmt.Sprintf("Your expense %s has been approved.", transactionID)
	if !approved {
		text = fmt.Sprintf("Your expense %s has been rejected.", transactionID)
		if reason != "" {
			text += " Reason: " + reason
		}
	}
	return n.send(ctx, requesterID, text)
}

// NotifyApprovalReminder implements port.Notifier
func (n *Notifier) NotifyApprovalReminder(ctx context.Context, approverID, transactionID string, overdueHours int) error {
	text := fmt.Sprintf("Reminder: expense %s is still waiting for your approval (%d hours overdue).", transactionID, overdueHours)
	return n.send(ctx, approverID, text)
}

func (n *Notifier) send(ctx context.Context, receiveID, text string) error {
	messageID, err := n.sender.SendText(ctx, n.receiveIDType, receiveID, text)
	if err != nil {
		return fmt.Errorf("lark notify %s: %w", receiveID, err)
	}
	n.logger.Info("Lark notification sent",
		zap.String("recipient_id", receiveID),
		zap.String("message_id", messageID))
	return nil
}

var _ port.Notifier = (*Notifier)(nil)
