// Package metrics exposes Prometheus instrumentation for sec-cs operations,
// grounded on the sibling s3-encryption-gateway repo's metrics.go shape
// (promauto factories producing CounterVec/HistogramVec families).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the core records. A nil *Metrics is
// valid and a no-op, so callers that don't want Prometheus wiring can omit
// it entirely.
type Metrics struct {
	contentOpsTotal    *prometheus.CounterVec
	contentOpDuration  *prometheus.HistogramVec
	nodeOpsTotal       *prometheus.CounterVec
	authenticityErrors prometheus.Counter
	orphansCollected   prometheus.Counter
}

// New creates a Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collector-already-registered
// panics across test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		contentOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sec_cs_content_operations_total",
				Help: "Total put/get/delete operations on the content-addressable store, by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		contentOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sec_cs_content_operation_duration_seconds",
				Help:    "Duration of put/get/delete operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		nodeOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sec_cs_node_operations_total",
				Help: "Total insert/fetch/release operations against the refcounted node store.",
			},
			[]string{"op"},
		),
		authenticityErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sec_cs_authenticity_errors_total",
			Help: "Total ciphertext verification failures detected on unwrap.",
		}),
		orphansCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "sec_cs_nodes_physically_removed_total",
			Help: "Total backend entries physically removed after their refcount reached zero.",
		}),
	}
}

func (m *Metrics) ObserveContentOp(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.contentOpsTotal.WithLabelValues(op, outcome).Inc()
	m.contentOpDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) IncNodeOp(op string) {
	if m == nil {
		return
	}
	m.nodeOpsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) IncAuthenticityError() {
	if m == nil {
		return
	}
	m.authenticityErrors.Inc()
}

func (m *Metrics) IncNodeRemoved() {
	if m == nil {
		return
	}
	m.orphansCollected.Inc()
}
