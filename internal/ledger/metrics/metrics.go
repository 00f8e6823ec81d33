package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger module: emission volume,
// optimistic-concurrency retries, and critical path duration.
type Metrics struct {
	EmissionsTotal    prometheus.Counter
	EmissionFailures  *prometheus.CounterVec
	EmissionConflicts prometheus.Counter
	EmissionDuration  prometheus.Histogram
	VoidedTotal       prometheus.Counter
	PaidTotal         prometheus.Counter
}

// New creates a Metrics instance with all ledger metrics registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		EmissionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facturo_emissions_total",
			Help: "Total number of successfully emitted invoices",
		}),
		EmissionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "facturo_emission_failures_total",
			Help: "Failed emission attempts by error code",
		}, []string{"code"}),
		EmissionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facturo_emission_conflicts_total",
			Help: "Optimistic-concurrency conflicts retried during emission",
		}),
		EmissionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "facturo_emission_duration_seconds",
			Help:    "Duration of the emission critical path (number + chain + signature)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		VoidedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facturo_invoices_voided_total",
			Help: "Total number of voided invoices",
		}),
		PaidTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "facturo_invoices_paid_total",
			Help: "Total number of invoices marked paid",
		}),
	}
}

// ObserveEmission records the duration of an emission. Call with time.Now()
// taken at the start of the operation.
func (m *Metrics) ObserveEmission(start time.Time) {
	m.EmissionDuration.Observe(time.Since(start).Seconds())
}
