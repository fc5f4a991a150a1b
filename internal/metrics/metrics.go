// Package metrics exposes engine observations as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finishline"

// Collectors implements engine.Metrics.
type Collectors struct {
	operations *prometheus.CounterVec
	gateWait   *prometheus.HistogramVec
	exports    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Mutating engine operations by name and outcome.",
		}, []string{"op", "outcome"}),
		gateWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting to acquire the mutual-exclusion gate.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"scope"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_writes_total",
			Help:      "Export artifact writes by mode and outcome.",
		}, []string{"mode", "outcome"}),
	}
	reg.MustRegister(c.operations, c.gateWait, c.exports)
	return c
}

// OperationCompleted counts one finished operation.
func (c *Collectors) OperationCompleted(op, outcome string) {
	c.operations.WithLabelValues(op, outcome).Inc()
}

// GateWaited records how long an operation waited for the gate.
func (c *Collectors) GateWaited(scope string, wait time.Duration) {
	c.gateWait.WithLabelValues(scope).Observe(wait.Seconds())
}

// ExportWritten counts one artifact write.
func (c *Collectors) ExportWritten(mode, outcome string) {
	c.exports.WithLabelValues(mode, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
