// Package metrics provides Prometheus metrics for the mapper engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victorteokw/docmap/core/engine"
	"github.com/victorteokw/docmap/core/schema"
)

// Collector holds all Prometheus metrics.
type Collector struct {
	// Operation metrics
	OpsTotal    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	OpsInFlight prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// Ensure interface compliance.
var _ engine.Observer = (*Collector)(nil)

// New creates a metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return &Collector{
		// Operation metrics
		OpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docmap",
				Name:      "ops_total",
				Help:      "Total number of entity operations processed",
			},
			[]string{"entity", "op", "outcome"},
		),
		OpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docmap",
				Name:      "op_duration_seconds",
				Help:      "Entity operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"entity", "op"},
		),
		OpsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docmap",
				Name:      "ops_in_flight",
				Help:      "Number of entity operations currently running",
			},
		),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docmap",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docmap",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		// Auth metrics
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docmap",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),

		// Config metrics
		ConfigReloads: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docmap",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docmap",
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
	}
}

// OpStarted records one entity operation entering the lifecycle.
func (c *Collector) OpStarted(entity string, op schema.Op) {
	c.OpsInFlight.Inc()
}

// ObserveOp records one finished entity operation.
func (c *Collector) ObserveOp(entity string, op schema.Op, outcome engine.State, elapsed time.Duration) {
	c.OpsInFlight.Dec()
	c.OpsTotal.WithLabelValues(entity, string(op), string(outcome)).Inc()
	c.OpDuration.WithLabelValues(entity, string(op)).Observe(elapsed.Seconds())
}
