package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realm_online_users",
			Help: "Identities currently holding a registered connection",
		},
	)

	SessionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realm_sessions_replaced_total",
			Help: "Connections superseded by a newer connection of the same identity",
		},
	)

	HandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realm_handshake_failures_total",
			Help: "Connection attempts rejected before upgrade",
		},
	)

	// Fan-out metrics
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realm_messages_relayed_total",
			Help: "Chat messages persisted and fanned out",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realm_frames_dropped_total",
			Help: "Outbound frames dropped because a connection queue was full",
		},
	)

	// Call metrics
	ActiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realm_active_calls",
			Help: "Calls currently ringing or ongoing",
		},
	)

	CallsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realm_calls_terminated_total",
			Help: "Calls removed from the active table, by outcome",
		},
		[]string{"status"},
	)

	CallRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realm_call_record_failures_total",
			Help: "Call records that could not be persisted",
		},
	)
)
