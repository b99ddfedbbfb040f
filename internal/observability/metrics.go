// Package observability holds the relay's Prometheus collectors.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatrelay",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Sessions that completed the handshake and have not closed.",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "server",
			Name:      "handshakes_total",
			Help:      "Handshakes by result.",
		},
		[]string{"result"},
	)
	messagesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "server",
			Name:      "messages_routed_total",
			Help:      "Messages handed to the registry by kind and transport.",
		},
		[]string{"kind", "transport"},
	)
	routingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "server",
			Name:      "routing_failures_total",
			Help:      "Direct messages the registry could not deliver, by reason.",
		},
		[]string{"reason"},
	)
	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "server",
			Name:      "delivery_failures_total",
			Help:      "Queued responses that could not be written to their peer.",
		},
		[]string{"transport"},
	)
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionsActive, handshakes, messagesRouted, routingFailures, deliveryFailures)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// SessionOpened counts a session that completed its handshake.
func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

// SessionClosed releases a session counted by SessionOpened.
func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

// RecordHandshake counts a handshake by result: "ok" or "failed".
func RecordHandshake(result string) {
	RegisterMetrics()
	handshakes.WithLabelValues(result).Inc()
}

// RecordRouted counts a message handed to the registry.
// kind is "direct" or "broadcast"; transport is the requested transport.
func RecordRouted(kind, transport string) {
	RegisterMetrics()
	messagesRouted.WithLabelValues(kind, transport).Inc()
}

// RecordRoutingFailure counts a direct message the registry could not deliver.
func RecordRoutingFailure(reason string) {
	RegisterMetrics()
	routingFailures.WithLabelValues(reason).Inc()
}

// RecordDeliveryFailure counts a queued response the session could not write.
func RecordDeliveryFailure(transport string) {
	RegisterMetrics()
	deliveryFailures.WithLabelValues(transport).Inc()
}
