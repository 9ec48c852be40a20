package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CustodyMetrics records lifecycle engine activity.
type CustodyMetrics struct {
	transitions    *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	legacyFallback prometheus.Counter
	duration       *prometheus.HistogramVec
}

// NewCustodyMetrics registers the custody collectors on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCustodyMetrics(reg prometheus.Registerer) *CustodyMetrics {
	if reg == nil {
		return &CustodyMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transitions_total",
		Help: "Custody record status transitions applied.",
	}, []string{"from", "to"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transition_conflicts_total",
		Help: "Conditional transitions that lost a race and were retried or surfaced as conflicts.",
	}, []string{"operation"})
	legacyFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custody_legacy_role_fallback_total",
		Help: "Signature submissions whose role was inferred from unclassified legacy events.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_operation_duration_seconds",
		Help:    "Duration of lifecycle engine operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(transitions, conflicts, legacyFallback, duration)
	return &CustodyMetrics{
		transitions:    transitions,
		conflicts:      conflicts,
		legacyFallback: legacyFallback,
		duration:       duration,
	}
}

func (c *CustodyMetrics) IncTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (c *CustodyMetrics) IncConflict(operation string) {
	if c == nil || c.conflicts == nil {
		return
	}
	c.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (c *CustodyMetrics) IncLegacyFallback() {
	if c == nil || c.legacyFallback == nil {
		return
	}
	c.legacyFallback.Inc()
}

// ObserveOperation records how long an engine operation took.
func (c *CustodyMetrics) ObserveOperation(operation string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}
