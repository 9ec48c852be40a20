package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveSettled("custody_checked_out", "published")
	m.ObserveSettled("custody_checked_out", "published")
	m.ObserveSettled("custody_cancelled", "dead_lettered")
	m.ObserveDeliveryLag(2 * time.Second)
	m.ObserveDeliveryLag(-time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "outbox_events_settled_total", map[string]string{"event_type": "custody_checked_out", "outcome": "published"})
	if err != nil {
		t.Fatalf("fetch settled: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	h, err := fetchHistogram(mfs, "outbox_delivery_lag_seconds", nil)
	if err != nil {
		t.Fatalf("fetch lag: %v", err)
	}
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 2 {
		t.Fatalf("expected one 2s sample, got count=%d sum=%f", h.GetSampleCount(), h.GetSampleSum())
	}
}

func TestNilOutboxMetricsIsSafe(t *testing.T) {
	var m *OutboxMetrics
	m.ObserveSettled("x", "y")
	m.ObserveDeliveryLag(time.Second)
	NewOutboxMetrics(nil).ObserveSettled("x", "y")
}
