package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks how custody events leave the outbox.
type OutboxMetrics struct {
	settled *prometheus.CounterVec
	lag     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_settled_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_delivery_lag_seconds",
		Help:    "Time between a custody transition and its Pub/Sub delivery.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 15, 60, 300, 1800},
	})
	reg.MustRegister(settled, lag)
	return &OutboxMetrics{settled: settled, lag: lag}
}

func (m *OutboxMetrics) ObserveSettled(eventType, outcome string) {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveDeliveryLag ignores negative values caused by clock skew between hosts.
func (m *OutboxMetrics) ObserveDeliveryLag(lag time.Duration) {
	if m == nil || m.lag == nil || lag < 0 {
		return
	}
	m.lag.Observe(lag.Seconds())
}
