package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFlowLifecycleMetrics(t *testing.T) {
	before := testutil.ToFloat64(activeFlows)
	submitted := testutil.ToFloat64(flowsSubmitted.WithLabelValues("HIGH"))

	FlowSubmitted("HIGH")
	assert.Equal(t, submitted+1, testutil.ToFloat64(flowsSubmitted.WithLabelValues("HIGH")))
	assert.Equal(t, before+1, testutil.ToFloat64(activeFlows))

	FlowCompleted("APPROVED")
	assert.Equal(t, before, testutil.ToFloat64(activeFlows))
	assert.GreaterOrEqual(t, testutil.ToFloat64(flowsCompleted.WithLabelValues("APPROVED")), 1.0)
}

func TestDecisionAndNotificationMetrics(t *testing.T) {
	DecisionProcessed("APPROVE", "ALREADY_PROCESSED", 3*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(decisions.WithLabelValues("APPROVE", "ALREADY_PROCESSED")), 1.0)

	failed := testutil.ToFloat64(notifications.WithLabelValues("lark", ResultError))
	NotificationSent("lark", errors.New("timeout"))
	NotificationSent("lark", nil)
	assert.Equal(t, failed+1, testutil.ToFloat64(notifications.WithLabelValues("lark", ResultError)))
	assert.GreaterOrEqual(t, testutil.ToFloat64(notifications.WithLabelValues("lark", ResultSuccess)), 1.0)
}
