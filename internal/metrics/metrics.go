// Package metrics exposes Pulse's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps every collector Pulse exports. Names match the original
// implementation's metrics catalog (pulse_*) so dashboards built against
// either implementation are interchangeable.
type Registry struct {
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge

	MessagesTotal prometheus.CounterVec
	MessagesBytes prometheus.CounterVec

	ChannelsActive     prometheus.Gauge
	SubscriptionsTotal prometheus.Counter

	LatencySeconds prometheus.Histogram
	ErrorsTotal    prometheus.CounterVec
}

// NewRegistry constructs and registers every Pulse collector with
// prometheus's default registry, via promauto (matching the teacher's
// go-server-3/internal/metrics wiring).
func NewRegistry() *Registry {
	return &Registry{
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_connections_total",
			Help: "Total number of connections since server start",
		}),
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_connections_active",
			Help: "Current number of active connections",
		}),
		MessagesTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_messages_total",
			Help: "Total number of messages processed",
		}, []string{"direction"}),
		MessagesBytes: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_messages_bytes",
			Help: "Total bytes of messages processed",
		}, []string{"direction"}),
		ChannelsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_channels_active",
			Help: "Current number of active channels",
		}),
		SubscriptionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_subscriptions_total",
			Help: "Total number of channel subscriptions",
		}),
		LatencySeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "pulse_latency_seconds",
			Help: "Message processing latency in seconds",
		}),
		ErrorsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_errors_total",
			Help: "Total number of errors",
		}, []string{"type"}),
	}
}

// RecordConnection records a new connection.
func (r *Registry) RecordConnection() {
	r.ConnectionsTotal.Inc()
	r.ConnectionsActive.Inc()
}

// RecordDisconnection records a connection going away.
func (r *Registry) RecordDisconnection() {
	r.ConnectionsActive.Dec()
}

// RecordMessage records a message and its size moving in direction
// ("inbound", "outbound", or "broadcast").
func (r *Registry) RecordMessage(bytes int, direction string) {
	r.MessagesTotal.WithLabelValues(direction).Inc()
	r.MessagesBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordLatency records a frame-processing latency sample.
func (r *Registry) RecordLatency(seconds float64) {
	r.LatencySeconds.Observe(seconds)
}

// RecordSubscription records a new subscription.
func (r *Registry) RecordSubscription() {
	r.SubscriptionsTotal.Inc()
}

// SetActiveChannels sets the current channel-count gauge.
func (r *Registry) SetActiveChannels(count int) {
	r.ChannelsActive.Set(float64(count))
}

// RecordError records an error of the given type.
func (r *Registry) RecordError(errorType string) {
	r.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// Handler returns the HTTP handler serving Prometheus text exposition.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// ConnectionGuard records a connection on creation and its disconnection
// when Release is called, standing in for the original's RAII
// ConnectionMetricsGuard (Go has no Drop, so callers must `defer
// guard.Release()` themselves).
type ConnectionGuard struct {
	registry *Registry
}

// NewConnectionGuard records a connection and returns a guard whose
// Release must be deferred by the caller to record the disconnection.
func NewConnectionGuard(r *Registry) *ConnectionGuard {
	r.RecordConnection()
	return &ConnectionGuard{registry: r}
}

// Release records the disconnection. Safe to call at most once.
func (g *ConnectionGuard) Release() {
	g.registry.RecordDisconnection()
}
