package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message metrics
	MessagesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insanuschat_messages_inserted_total",
			Help: "Total messages inserted",
		},
		[]string{"role"},
	)

	LockConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insanuschat_lock_conflicts_total",
			Help: "Total sends rejected because the chat was locked",
		},
	)

	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insanuschat_turns_total",
			Help: "Total agent turns by outcome",
		},
		[]string{"outcome"}, // "ok", "failed", "aborted"
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insanuschat_turn_duration_seconds",
			Help:    "Agent turn duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Tool metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insanuschat_tool_calls_total",
			Help: "Total tool invocations by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: "snippet" or "remote"
	)

	// Fan-out metrics
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insanuschat_broadcasts_total",
			Help: "Total broadcast deliveries by result",
		},
		[]string{"result"}, // "sent", "retried", "dropped"
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "insanuschat_ws_connections",
			Help: "Currently subscribed websocket connections",
		},
	)

	// Branch maintenance metrics
	BranchRewrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insanuschat_branch_rewrites_total",
			Help: "Total branch anchor / cousin pointer rewrites",
		},
	)

	StoreInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insanuschat_store_inconsistencies_total",
			Help: "Partial branch index updates that were logged and skipped",
		},
	)
)
