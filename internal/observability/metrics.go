package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the posting core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	postingsTotal   *prometheus.CounterVec
	postingFailures *prometheus.CounterVec
	integrityDrift  *prometheus.GaugeVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_postings_total",
		Help: "Number of committed postings by source module.",
	}, []string{"module"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_posting_failures_total",
		Help: "Number of rejected postings by source module.",
	}, []string{"module"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meridian_integrity_drift",
		Help: "Entities whose stored balance diverges from the recomputed value.",
	}, []string{"entity"})
	registry.MustRegister(postings, failures, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		postingsTotal:   postings,
		postingFailures: failures,
		integrityDrift:  drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordPosting increments the committed posting counter.
func (m *Metrics) RecordPosting(module string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(module).Inc()
}

// RecordPostingFailure increments the rejected posting counter.
func (m *Metrics) RecordPostingFailure(module string) {
	if m == nil {
		return
	}
	m.postingFailures.WithLabelValues(module).Inc()
}

// SetIntegrityDrift records the outcome of an integrity scan.
func (m *Metrics) SetIntegrityDrift(entity string, count float64) {
	if m == nil {
		return
	}
	m.integrityDrift.WithLabelValues(entity).Set(count)
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}
