package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

func newNotificationService(n *mockNotifier, outbox *mockOutboxRepo, steps *mockStepRepo, pub *mockPublisher) *notificationServiceImpl {
	svc := NewNotificationService(n, outbox, steps, &mockTxManager{}, pub,
		NotificationConfig{MaxAttempts: 3, RetryBackoff: time.Minute}, &mockLogger{}).(*notificationServiceImpl)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestHandleEvent_RoutesByType(t *testing.T) {
	var request, completion, reminder []string
	n := &mockNotifier{
		requestFunc: func(ctx context.Context, approverID, transactionID, organizationID string) error {
			request = append(request, approverID, transactionID, organizationID)
			return nil
		},
		completionFunc: func(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
			completion = append(completion, requesterID, transactionID, reason)
			assert.False(t, approved)
			return nil
		},
		reminderFunc: func(ctx context.Context, approverID, transactionID string, overdueHours int) error {
			reminder = append(reminder, approverID)
			assert.Equal(t, 5, overdueHours)
			return nil
		},
	}
	var sent []string
	outbox := &mockOutboxRepo{markSentFunc: func(ctx context.Context, id string, at time.Time) (bool, error) {
		sent = append(sent, id)
		return true, nil
	}}
	svc := newNotificationService(n, outbox, &mockStepRepo{}, nil)
	ctx := context.Background()

	req := event.NewEvent(event.TypeApprovalRequested, "f-1", "tx-1", "u-dana", map[string]interface{}{event.KeyOrganizationID: "music"}, fixedNow)
	rej := event.NewEvent(event.TypeFlowRejected, "f-1", "tx-1", "u-ann", map[string]interface{}{event.KeyApproved: false, event.KeyReason: "duplicate"}, fixedNow)
	rem := event.NewEvent(event.TypeStepReminder, "f-1", "tx-1", "u-dana", map[string]interface{}{event.KeyOverdueHours: 5}, fixedNow)

	require.NoError(t, svc.HandleEvent(ctx, req))
	require.NoError(t, svc.HandleEvent(ctx, rej))
	require.NoError(t, svc.HandleEvent(ctx, rem))

	assert.Equal(t, []string{"u-dana", "tx-1", "music"}, request)
	assert.Equal(t, []string{"u-ann", "tx-1", "duplicate"}, completion)
	assert.Equal(t, []string{"u-dana"}, reminder)
	assert.Equal(t, []string{req.ID, rej.ID, rem.ID}, sent)
}

func TestHandleEvent_FailureSchedulesRetry(t *testing.T) {
	n := &mockNotifier{requestFunc: func(ctx context.Context, approverID, transactionID, organizationID string) error {
		return errors.New("lark: 503")
	}}
	var next time.Time
	var lastErr string
	outbox := &mockOutboxRepo{
		markAttemptFailedFunc: func(ctx context.Context, id, errMsg string, at time.Time) error {
			next, lastErr = at, errMsg
			return nil
		},
		markSentFunc: func(ctx context.Context, id string, at time.Time) (bool, error) {
			t.Fatal("failed delivery must not be marked sent")
			return false, nil
		},
	}
	svc := newNotificationService(n, outbox, &mockStepRepo{}, nil)

	err := svc.HandleEvent(context.Background(), event.NewEvent(event.TypeApprovalRequested, "f-1", "tx-1", "u-dana", nil, fixedNow))
	assert.EqualError(t, err, "lark: 503")
	assert.Equal(t, fixedNow.Add(time.Minute), next)
	assert.Equal(t, "lark: 503", lastErr)
}

func TestDeliverPending_GivesUpAfterMaxAttempts(t *testing.T) {
	n := &mockNotifier{completionFunc: func(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
		return errors.New("unreachable")
	}}
	failed := ""
	outbox := &mockOutboxRepo{
		markFailedFunc: func(ctx context.Context, id, errMsg string) error {
			failed = id
			return nil
		},
		markAttemptFailedFunc: func(ctx context.Context, id, errMsg string, at time.Time) error {
			t.Fatal("last attempt must mark the row failed")
			return nil
		},
	}
	svc := newNotificationService(n, outbox, &mockStepRepo{}, nil)

	msgs, err := toOutbox([]*event.Event{
		event.NewEvent(event.TypeFlowApproved, "f-1", "tx-1", "u-ann", map[string]interface{}{event.KeyApproved: true}, fixedNow),
	}, fixedNow)
	require.NoError(t, err)
	msgs[0].Attempts = 2

	assert.Error(t, svc.DeliverPending(context.Background(), msgs[0]))
	assert.Equal(t, msgs[0].ID, failed)
}

func TestDeliverPending_RoundTripsPayload(t *testing.T) {
	var got bool
	n := &mockNotifier{completionFunc: func(ctx context.Context, requesterID, transactionID string, approved bool, reason string) error {
		got = approved
		return nil
	}}
	svc := newNotificationService(n, &mockOutboxRepo{}, &mockStepRepo{}, nil)

	msgs, err := toOutbox([]*event.Event{
		event.NewEvent(event.TypeFlowApproved, "f-1", "tx-1", "u-ann", map[string]interface{}{event.KeyApproved: true}, fixedNow),
	}, fixedNow)
	require.NoError(t, err)

	require.NoError(t, svc.DeliverPending(context.Background(), msgs[0]))
	assert.True(t, got)
}

func TestDeliverPending_CorruptPayload(t *testing.T) {
	failed := ""
	outbox := &mockOutboxRepo{markFailedFunc: func(ctx context.Context, id, errMsg string) error {
		failed = id
		return nil
	}}
	svc := newNotificationService(&mockNotifier{}, outbox, &mockStepRepo{}, nil)

	err := svc.DeliverPending(context.Background(), &entity.OutboxMessage{ID: "o-1", EventType: string(event.TypeFlowApproved), Payload: "{not json"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", failed)
}

func TestBackoff(t *testing.T) {
	svc := newNotificationService(&mockNotifier{}, &mockOutboxRepo{}, &mockStepRepo{}, nil)
	assert.Equal(t, time.Minute, svc.backoff(0))
	assert.Equal(t, 4*time.Minute, svc.backoff(2))
	assert.Equal(t, 24*time.Hour, svc.backoff(40))
}

func TestEnqueueReminders(t *testing.T) {
	hours := 24
	activated := fixedNow.Add(-30 * time.Hour)
	overdue := &entity.ApprovalStep{
		ID: "s1", FlowID: "f-1", ApproverID: "u-dana", Status: entity.StepStatusPending,
		TimeoutHours: &hours, ActivatedAt: &activated,
		Flow: &entity.ApprovalFlow{ID: "f-1", TransactionID: "tx-1"},
	}
	var reminded []string
	steps := &mockStepRepo{
		listOverdueFunc: func(ctx context.Context, now time.Time, limit int) ([]*entity.ApprovalStep, error) {
			assert.Equal(t, fixedNow, now)
			return []*entity.ApprovalStep{overdue}, nil
		},
		markRemindedFunc: func(ctx context.Context, stepID string, at time.Time) error {
			reminded = append(reminded, stepID)
			return nil
		},
	}
	outbox := &mockOutboxRepo{}
	pub := &mockPublisher{}
	svc := newNotificationService(&mockNotifier{}, outbox, steps, pub)

	n, err := svc.EnqueueReminders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"s1"}, reminded)
	require.Len(t, outbox.enqueued, 1)
	assert.Equal(t, string(event.TypeStepReminder), outbox.enqueued[0].EventType)
	assert.Equal(t, "tx-1", outbox.enqueued[0].TransactionID)
	require.Len(t, pub.events, 1)
	assert.Equal(t, int64(6), pub.events[0].GetPayloadInt(event.KeyOverdueHours))
	assert.Equal(t, entity.StepStatusPending, overdue.Status)
}
