// Package metrics provides Prometheus instrumentation for the trade hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	// SettlementsTotal counts settlement attempts by outcome.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_settlements_total",
			Help: "Settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DeliveriesTotal counts realtime frames handed to session buffers.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_realtime_deliveries_total",
			Help: "Realtime events delivered to sessions by target",
		},
		[]string{"target"},
	)

	// DroppedTotal counts realtime events dropped because a session buffer was full.
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_realtime_dropped_total",
			Help: "Realtime events dropped by target",
		},
		[]string{"target"},
	)

	// ActiveSessions tracks connected realtime sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradehub_realtime_sessions",
			Help: "Connected realtime sessions",
		},
	)

	// BridgeErrorsTotal counts failures of the cross-instance event bridge.
	BridgeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradehub_bridge_errors_total",
			Help: "Event bridge failures by operation",
		},
		[]string{"op"},
	)
)
