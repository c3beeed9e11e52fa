// Package metrics holds the Prometheus collectors for the tutor client and
// the mock execution service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectAttempts counts dial attempts by result ("ok", "error")
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_connect_attempts_total",
			Help: "Total number of connection attempts",
		},
		[]string{"result"},
	)

	// Disconnects counts closed connections by close reason
	Disconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_disconnects_total",
			Help: "Total number of closed connections by reason",
		},
		[]string{"reason"},
	)

	// SessionState exposes the numeric state of each live session
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tutor_session_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=failed)",
		},
		[]string{"session_id"},
	)

	// EventsRouted counts inbound events delivered to handlers
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_events_routed_total",
			Help: "Total number of inbound events routed by kind",
		},
		[]string{"kind"},
	)

	// StaleEvents counts events dropped because they came from a replaced connection
	StaleEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_stale_events_total",
			Help: "Total number of events dropped from a previous connection",
		},
	)

	// Dispatches counts outbound intents by command and result
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_dispatches_total",
			Help: "Total number of outbound intents by command and result",
		},
		[]string{"command", "result"},
	)

	// MockConnections tracks clients connected to the mock service
	MockConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutor_mock_connections",
			Help: "Number of clients connected to the mock execution service",
		},
	)

	// MockExecutions counts executions run by the mock service
	MockExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_mock_executions_total",
			Help: "Total number of executions handled by the mock service",
		},
		[]string{"language"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe serves /metrics on addr. It blocks like http.ListenAndServe.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
