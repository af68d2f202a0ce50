package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger core.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	verificationsCreated *prometheus.CounterVec
	numberConflicts      prometheus.Counter
	lockRejections       *prometheus.CounterVec
	vatReportsComputed   prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		verificationsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_verifications_created_total",
				Help: "Total verifications committed, by series.",
			},
			[]string{"series"},
		),
		numberConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_number_conflicts_total",
				Help: "Total verification number allocation collisions (retried).",
			},
		),
		lockRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_period_lock_rejections_total",
				Help: "Total mutations rejected because the month is closed.",
			},
			[]string{"operation"},
		),
		vatReportsComputed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_vat_reports_computed_total",
				Help: "Total VAT reports derived from the ledger.",
			},
		),
	}
}

// IncrVerificationCreated counts a committed verification.
func (m *Metrics) IncrVerificationCreated(series string) {
	if m == nil {
		return
	}
	m.verificationsCreated.WithLabelValues(series).Inc()
}

// IncrNumberConflict counts an allocation collision that triggered a retry.
func (m *Metrics) IncrNumberConflict() {
	if m == nil {
		return
	}
	m.numberConflicts.Inc()
}

// IncrLockRejection counts a mutation rejected by the period lock guard.
func (m *Metrics) IncrLockRejection(operation string) {
	if m == nil {
		return
	}
	m.lockRejections.WithLabelValues(operation).Inc()
}

// IncrVatReportComputed counts a derived VAT report.
func (m *Metrics) IncrVatReportComputed() {
	if m == nil {
		return
	}
	m.vatReportsComputed.Inc()
}
