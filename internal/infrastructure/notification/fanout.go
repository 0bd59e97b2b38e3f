package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/metrics"
	"go.uber.org/zap"
)

// FanOut delivers every notification to all channels. A channel failure does
// not stop the others; the joined error is returned so the outbox can retry.
type FanOut struct {
	channels []port.Notifier
	logger   *zap.Logger
}

// NewFanOut creates a notifier over several channels
func NewFanOut(logger *zap.Logger, channels ...port.Notifier) *FanOut {
	return &FanOut{
		channels: channels,
		logger:   logger,
	}
}

// Name implements port.Notifier
func (f *FanOut) Name() string {
	names := make([]string, len(f.channels))
	for i, ch := range f.channels {
		names[i] = ch.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

// NotifyApprovalRequest implements port.Notifier
func (f *FanOut) NotifyApprovalRequest(ctx context.Context, approverID, transactionID, organizationID string) error {
	return f.each(func(n port.Notifier) error {
		return n.NotifyApprovalRequest(ctx, approverID, transactionID, organizationID)
	})
}

// NotifyApprovalCompletion implements port.Notifier
func (f *FanOut) NotifyApprovalCompletion(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
	return f.each(func(n port.Notifier) error {
		return n.NotifyApprovalCompletion(ctx, requesterID, transactionID, approved, reason)
	})
}

// NotifyApprovalReminder implements port.Notifier
func (f *FanOut) NotifyApprovalReminder(ctx context.Context, approverID, transactionID string, overdueHours int) error {
	return f.each(func(n port.Notifier) error {
		return n.NotifyApprovalReminder(ctx, approverID, transactionID, overdueHours)
	})
}

func (f *FanOut) each(send func(port.Notifier) error) error {
	var errs []error
	for _, ch := range f.channels {
		err := send(ch)
		metrics.NotificationSent(ch.Name(), err)
		if err != nil {
			f.logger.Error("Notification channel failed", zap.String("channel", ch.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ port.Notifier = (*FanOut)(nil)
