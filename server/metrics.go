package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the RED-style counters for gate traffic plus a saturation
// gauge for the approval queue.
type Metrics struct {
	registry *prometheus.Registry

	// Traffic: requests per capability and resulting decision.
	RequestsTotal *prometheus.CounterVec

	// Latency of patch application, by outcome.
	ApplyDuration *prometheus.HistogramVec

	// Saturation: records currently waiting for a human.
	PendingApprovals prometheus.GaugeFunc
}

// NewMetrics registers the gate collectors onto a fresh registry.
// pendingCount is sampled on every scrape.
func NewMetrics(pendingCount func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "patchgate_requests_total",
			Help: "Total number of capability requests by decision.",
		}, []string{"capability", "decision"}),
		ApplyDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patchgate_apply_duration_seconds",
			Help:    "Histogram of patch application latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"status"}),
		PendingApprovals: promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "patchgate_pending_approvals",
			Help: "Number of approval records currently pending.",
		}, pendingCount),
	}
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
