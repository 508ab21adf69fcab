package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the plugin platform
type Metrics struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	LifecycleOpsTotal *prometheus.CounterVec
	HookDuration      *prometheus.HistogramVec
	HookFailuresTotal *prometheus.CounterVec
	PluginsActive     prometheus.Gauge

	// Event bus metrics
	EventsPublishedTotal *prometheus.CounterVec
	EventsDroppedTotal   prometheus.Counter

	// Gateway metrics
	StreamClientsActive prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		LifecycleOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_lifecycle_operations_total",
				Help: "Total number of plugin lifecycle operations",
			},
			[]string{"operation", "status"},
		),
		HookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugin_hook_duration_seconds",
				Help:    "Duration of plugin lifecycle hook invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"hook"},
		),
		HookFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_hook_failures_total",
				Help: "Total number of failed plugin lifecycle hooks",
			},
			[]string{"hook"},
		),
		PluginsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugins_active",
				Help: "Number of (tenant, plugin) pairs currently enabled",
			},
		),

		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_bus_published_total",
				Help: "Total number of events published on the platform bus",
			},
			[]string{"topic"},
		),
		EventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "event_bus_dropped_total",
				Help: "Total number of events dropped on slow stream clients",
			},
		),

		StreamClientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stream_clients_active",
				Help: "Number of connected websocket event-stream clients",
			},
		),
	}

	registry.MustRegister(
		m.LifecycleOpsTotal,
		m.HookDuration,
		m.HookFailuresTotal,
		m.PluginsActive,
		m.EventsPublishedTotal,
		m.EventsDroppedTotal,
		m.StreamClientsActive,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics in Prometheus format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
