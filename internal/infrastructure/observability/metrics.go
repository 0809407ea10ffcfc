// Package observability exposes the service's prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service records into. A Metrics built
// with a nil registerer collects nothing and is safe to use in tests.
type Metrics struct {
	DecisionsTotal  *prometheus.CounterVec
	DegradedTotal   prometheus.Counter
	RoutingDuration prometheus.Histogram
	SearchDuration  prometheus.Histogram
	IndexRetries    prometheus.Counter
	ReviewQueueAdds prometheus.Counter
	EmbeddingErrors prometheus.Counter
	ConfigReloads   prometheus.Counter
}

// New registers and returns the service metrics under the given namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by action.",
		}, []string{"action"}),
		DegradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_degraded_total",
			Help:      "Decisions downgraded to unsorted by infrastructure failures.",
		}),
		RoutingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_duration_seconds",
			Help:      "End-to-end latency of routing one candidate.",
			Buckets:   prometheus.DefBuckets,
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_search_duration_seconds",
			Help:      "Latency of vector index searches.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		IndexRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_index_retries_total",
			Help:      "Retried vector index calls.",
		}),
		ReviewQueueAdds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_queue_adds_total",
			Help:      "Candidates enqueued for human review.",
		}),
		EmbeddingErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_errors_total",
			Help:      "Failed embedding provider calls.",
		}),
		ConfigReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied configuration hot reloads.",
		}),
	}
}

// NewNop returns metrics that record nowhere.
func NewNop() *Metrics {
	return New("curator_test", nil)
}

// ObserveDecision records one finished routing decision.
func (m *Metrics) ObserveDecision(action string, start time.Time) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action).Inc()
	m.RoutingDuration.Observe(time.Since(start).Seconds())
}
