// Package metrics exposes the hub's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Write results used as the "result" label on WritesTotal.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Hub groups the collectors of one hub instance. Each instance owns its
// registry so several hubs can live in one process (tests).
type Hub struct {
	registry *prometheus.Registry

	ConnectedClients prometheus.Gauge
	WritesTotal      *prometheus.CounterVec
	WriteDurationMs  *prometheus.HistogramVec
	SnapshotsSent    prometheus.Counter
	SnapshotSize     prometheus.Gauge
	DroppedClients   prometheus.Counter
	RejectedClients  prometheus.Counter
}

// NewHub creates and registers the hub collectors. withRuntime adds the
// Go runtime and process collectors.
func NewHub(withRuntime bool) *Hub {
	m := &Hub{
		registry: prometheus.NewRegistry(),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "globe_connected_clients",
			Help: "Number of websocket clients currently connected",
		}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "globe_writes_total",
			Help: "Waypoint writes received over websocket by type and result",
		}, []string{"type", "result"}),
		WriteDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "globe_write_duration_ms",
			Help:    "Store write duration in milliseconds",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}, []string{"type"}),
		SnapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_snapshots_sent_total",
			Help: "Snapshot messages queued to subscribed clients",
		}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "globe_waypoints",
			Help: "Number of waypoints in the latest snapshot",
		}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_dropped_clients_total",
			Help: "Clients disconnected because their send queue was full",
		}),
		RejectedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_rejected_clients_total",
			Help: "Websocket upgrades refused for a bad secret",
		}),
	}
	m.registry.MustRegister(
		m.ConnectedClients,
		m.WritesTotal,
		m.WriteDurationMs,
		m.SnapshotsSent,
		m.SnapshotSize,
		m.DroppedClients,
		m.RejectedClients,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry backing Handler.
func (m *Hub) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Hub) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
