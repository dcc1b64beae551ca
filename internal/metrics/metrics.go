// Package metrics provides Prometheus instrumentation for the chat
// moderation services. It exposes counters for verdicts, karma movement and
// administrative actions, a histogram for decision latency, and gateway
// gauges for connection and message throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerdictsTotal counts moderation verdicts, labeled by reason:
	// "allowed", "command", or the deny reason string.
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmod_verdicts_total",
		Help: "Total number of moderation verdicts",
	}, []string{"reason"})

	// KarmaAdjustments counts karma changes, labeled by direction.
	KarmaAdjustments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmod_karma_adjustments_total",
		Help: "Total number of karma adjustments",
	}, []string{"direction"}) // direction = "increase", "decrease", "reset"

	// ViolationsTotal counts recorded violations.
	ViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatmod_violations_total",
		Help: "Total number of recorded violations",
	})

	// AdminActions counts administrative commands, labeled by command and
	// outcome ("ok" or "rejected").
	AdminActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmod_admin_actions_total",
		Help: "Total number of administrative actions",
	}, []string{"command", "outcome"})

	// StoreErrors counts reputation store failures seen by the moderator.
	StoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatmod_store_errors_total",
		Help: "Total number of reputation store errors",
	})

	// DecisionLatency records the time to reach a verdict in seconds.
	DecisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatmod_decision_latency_seconds",
		Help:    "Moderation decision latency in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ConnectionsTotal tracks the current number of gateway connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatmod_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts gateway messages, labeled by type: "received",
	// "delivered", "blocked" or "throttled".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmod_messages_total",
		Help: "Total number of chat messages handled by the gateway",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		VerdictsTotal,
		KarmaAdjustments,
		ViolationsTotal,
		AdminActions,
		StoreErrors,
		DecisionLatency,
		ConnectionsTotal,
		MessagesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
