// Package telemetry holds the business-level Prometheus collectors for the
// reconciliation core. HTTP-level metrics live in the middleware package.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds reconciliation business metrics.
// A nil *Metrics is valid and records nothing, so services can run without
// telemetry wired (tests, one-off tools).
type Metrics struct {
	sourceFailures       *prometheus.CounterVec
	resolutions          prometheus.Counter
	fallbacksSynthesized prometheus.Counter
	paymentsRecorded     *prometheus.CounterVec
	staleRefreshes       prometheus.Counter
}

// NewMetrics creates and registers the reconciliation metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "claimspay"
	}

	m := &Metrics{
		sourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_source_failures_total",
				Help:      "Reconciliation source queries that failed and contributed nothing",
			},
			[]string{"source"},
		),
		resolutions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_resolutions_total",
				Help:      "Completed multi-source invoice resolutions",
			},
		),
		fallbacksSynthesized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_fallback_invoices_total",
				Help:      "Fallback invoices synthesized because every source came back empty",
			},
		),
		paymentsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_recorded_total",
				Help:      "Payment records written to the ledger",
			},
			[]string{"status"},
		),
		staleRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_stale_discarded_total",
				Help:      "Background refreshes discarded because a newer one superseded them",
			},
		),
	}

	prometheus.MustRegister(
		m.sourceFailures,
		m.resolutions,
		m.fallbacksSynthesized,
		m.paymentsRecorded,
		m.staleRefreshes,
	)

	return m
}

// SourceFailure counts a failed source query.
func (m *Metrics) SourceFailure(source string) {
	if m == nil {
		return
	}
	m.sourceFailures.WithLabelValues(source).Inc()
}

// Resolution counts a completed resolution.
func (m *Metrics) Resolution() {
	if m == nil {
		return
	}
	m.resolutions.Inc()
}

// FallbackSynthesized counts a synthesized fallback invoice.
func (m *Metrics) FallbackSynthesized() {
	if m == nil {
		return
	}
	m.fallbacksSynthesized.Inc()
}

// PaymentRecorded counts a ledger write with the record's status.
func (m *Metrics) PaymentRecorded(status string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(status).Inc()
}

// StaleRefreshDiscarded counts a discarded superseded refresh.
func (m *Metrics) StaleRefreshDiscarded() {
	if m == nil {
		return
	}
	m.staleRefreshes.Inc()
}
