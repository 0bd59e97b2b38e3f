package notification

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log instead of a chat channel.
// It is the default channel when Lark is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name implements port.Notifier
func (n *LogNotifier) Name() string {
	return "log"
}

// NotifyApprovalRequest implements port.Notifier
func (n *LogNotifier) NotifyApprovalRequest(_ context.Context, approverID, transactionID, organizationID string) error {
	n.logger.Info("Approval requested",
		zap.String("approver_id", approverID),
		zap.String("transaction_id", transactionID),
		zap.String("organization_id", organizationID))
	return nil
}

// NotifyApprovalCompletion implements port.Notifier
func (n *LogNotifier) NotifyApprovalCompletion(_ context.Context, requesterID, transactionID string, approved bool, reason string) error {
	n.logger.Info("Approval completed",
		zap.String("requester_id", requesterID),
		zap.String("transaction_id", transactionID),
		zap.Bool("approved", approved),
		zap.String("reason", reason))
	return nil
}

// NotifyApprovalReminder implements port.Notifier
func (n *LogNotifier) NotifyApprovalReminder(_ context.Context, approverID, transactionID string, overdueHours int) error {
	n.logger.Info("Approval reminder",
		zap.String("approver_id", approverID),
		zap.String("transaction_id", transactionID),
		zap.Int("overdue_hours", overdueHours))
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
