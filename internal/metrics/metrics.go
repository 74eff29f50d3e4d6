// Package metrics provides Prometheus instrumentation for the Ripple backend.
// It exposes gauges for connection and presence counts, counters for message
// and notification throughput, and a histogram for HTTP request latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of users with a presence entry.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_online_users",
		Help: "Current number of authenticated online users",
	})

	// TypingTimers tracks the number of pending typing debounce timers.
	TypingTimers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_typing_timers",
		Help: "Current number of pending typing debounce timers",
	})

	// MessagesRouted counts private messages routed by the hub, labeled by
	// result: "delivered" (recipient online) or "dropped" (recipient offline).
	MessagesRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_messages_routed_total",
		Help: "Total number of private messages routed",
	}, []string{"result"})

	// NotificationsPushed counts targeted notification pushes, labeled by
	// result: "delivered" or "dropped".
	NotificationsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_notifications_pushed_total",
		Help: "Total number of targeted notification pushes",
	}, []string{"result"})

	// RequestDuration records HTTP API request latency in seconds.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ripple_http_request_duration_seconds",
		Help:    "HTTP API request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		TypingTimers,
		MessagesRouted,
		NotificationsPushed,
		RequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
