package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trialist_circuit_breaker_state",
			Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_circuit_breaker_transitions_total",
			Help: "Circuit breaker state changes",
		},
		[]string{"service", "to"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_retry_attempts_total",
			Help: "Attempts made by the retry executor",
		},
		[]string{"service", "outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_tool_calls_total",
			Help: "Tool invocations by outcome",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trialist_tool_duration_seconds",
			Help:    "Tool invocation latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)

	QualificationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_qualification_verdicts_total",
			Help: "Qualification evaluations by tier",
		},
		[]string{"tier"},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_state_transitions_total",
			Help: "Conversation state transition attempts",
		},
		[]string{"from", "to", "result"},
	)

	Bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_bookings_total",
			Help: "Sales meeting booking attempts by outcome",
		},
		[]string{"status"},
	)

	AnalyticsDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialist_analytics_deliveries_total",
			Help: "Session export deliveries per sink",
		},
		[]string{"sink", "status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trialist_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)
)
