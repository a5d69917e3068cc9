package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lifecycle engine. All methods are
// nil-receiver safe so tests can run without a registry.
type Metrics struct {
	// Transition outcomes by operation and result (committed, rejected,
	// conflict).
	Transitions *prometheus.CounterVec

	// Commits that lost the CAS once and were retried against fresh state.
	CASRetries prometheus.Counter

	// Latency of the full commit (guards, scoring, issuance, transaction).
	CommitLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "traincheck_lifecycle_transitions_total",
			Help: "Lifecycle transition outcomes by operation",
		}, []string{"operation", "outcome"}),

		CASRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "traincheck_lifecycle_cas_retries_total",
			Help: "Commits retried after losing the compare-and-swap once",
		}),

		CommitLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traincheck_lifecycle_commit_duration_seconds",
			Help:    "Duration of lifecycle commits by operation",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncTransition(operation, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) IncCASRetry() {
	if m != nil {
		m.CASRetries.Inc()
	}
}

func (m *Metrics) ObserveCommit(operation string, d time.Duration) {
	if m != nil {
		m.CommitLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
