package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "expense_approval"

// Result labels
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	flowsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_submitted_total",
			Help:      "Approval flows created, by priority",
		},
		[]string{"priority"},
	)

	decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Approval decisions processed, by decision and result code",
		},
		[]string{"decision", "result"},
	)

	flowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_completed_total",
			Help:      "Approval flows that reached a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	activeFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_flows",
			Help:      "Approval flows submitted by this process that have not terminated",
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by channel and status",
		},
		[]string{"channel", "status"},
	)

	decisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent processing one approval decision",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

// FlowSubmitted records a new flow.
func FlowSubmitted(priority string) {
	flowsSubmitted.WithLabelValues(priority).Inc()
	activeFlows.Inc()
}

// DecisionProcessed records one decision attempt. result is a domain error
// code or ResultSuccess.
func DecisionProcessed(decision, result string, elapsed time.Duration) {
	decisions.WithLabelValues(decision, result).Inc()
	decisionDuration.Observe(elapsed.Seconds())
}

// FlowCompleted records a terminal outcome.
func FlowCompleted(outcome string) {
	flowsCompleted.WithLabelValues(outcome).Inc()
	activeFlows.Dec()
}

// NotificationSent records a delivery attempt on a channel.
func NotificationSent(channel string, err error) {
	status := ResultSuccess
	if err != nil {
		status = ResultError
	}
	notifications.WithLabelValues(channel, status).Inc()
}
