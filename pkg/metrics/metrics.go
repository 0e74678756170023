// Package metrics provides Prometheus collectors for the orchestrator, the
// health monitor, and the HTTP status surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metrics collectors for the application.
type Metrics struct {
	// Registry is the Prometheus registry for all metrics.
	Registry *prometheus.Registry

	// Lifecycle metrics
	ServicesRegistered prometheus.Gauge
	ServiceUp          *prometheus.GaugeVec
	StartupDuration    *prometheus.GaugeVec
	ShutdownDuration   *prometheus.GaugeVec
	ForcedStops        *prometheus.CounterVec

	// Health metrics
	ServiceHealthy      *prometheus.GaugeVec
	ConsecutiveFailures *prometheus.GaugeVec
	HealthCheckDuration *prometheus.HistogramVec
	HealthCheckErrors   *prometheus.CounterVec
	MonitorLoops        prometheus.Gauge

	// HTTP metrics
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestInFlight prometheus.Gauge
}

// Config holds the configuration for metrics.
type Config struct {
	// Namespace is the Prometheus namespace for all metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{Namespace: "conductor"}
}

// New creates a new metrics collector with the given configuration.
func New(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		ServicesRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "services_registered",
				Help:      "Number of services currently registered",
			},
		),

		ServiceUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "service_up",
				Help:      "Whether the service is running (1) or not (0)",
			},
			[]string{"service"},
		),

		StartupDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "startup_duration_seconds",
				Help:      "Most recent startup duration per service",
			},
			[]string{"service"},
		),

		ShutdownDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "shutdown_duration_seconds",
				Help:      "Most recent shutdown duration per service",
			},
			[]string{"service"},
		),

		ForcedStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "forced_stops_total",
				Help:      "Total number of stop callbacks abandoned after the grace period",
			},
			[]string{"service"},
		),

		ServiceHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "health",
				Name:      "service_healthy",
				Help:      "Whether the service's last health check passed (1) or failed (0)",
			},
			[]string{"service"},
		),

		ConsecutiveFailures: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "health",
				Name:      "consecutive_failures",
				Help:      "Current consecutive health check failure streak per service",
			},
			[]string{"service"},
		),

		HealthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Health check duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		HealthCheckErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "health",
				Name:      "check_errors_total",
				Help:      "Total number of failed health checks",
			},
			[]string{"service"},
		),

		MonitorLoops: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "health",
				Name:      "monitor_loops",
				Help:      "Number of live health monitor loops",
			},
		),

		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RequestInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordServiceUp records whether a service is running.
func (m *Metrics) RecordServiceUp(service string, up bool) {
	var value float64
	if up {
		value = 1
	}
	m.ServiceUp.WithLabelValues(service).Set(value)
}

// RecordStartup records the startup duration for a service.
func (m *Metrics) RecordStartup(service string, duration time.Duration) {
	m.StartupDuration.WithLabelValues(service).Set(duration.Seconds())
}

// RecordShutdown records the shutdown duration for a service.
func (m *Metrics) RecordShutdown(service string, duration time.Duration, forced bool) {
	m.ShutdownDuration.WithLabelValues(service).Set(duration.Seconds())
	if forced {
		m.ForcedStops.WithLabelValues(service).Inc()
	}
}

// RecordHealthCheck records the outcome of a single health check.
func (m *Metrics) RecordHealthCheck(service string, healthy bool, failures int, duration time.Duration) {
	var value float64
	if healthy {
		value = 1
	} else {
		m.HealthCheckErrors.WithLabelValues(service).Inc()
	}
	m.ServiceHealthy.WithLabelValues(service).Set(value)
	m.ConsecutiveFailures.WithLabelValues(service).Set(float64(failures))
	m.HealthCheckDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordRequest records metrics for an HTTP request.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	m.RequestCount.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
