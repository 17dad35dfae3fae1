package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestWorkerMetrics_OutboxBacklog(t *testing.T) {
	m := NewWorkerMetricsWithRegisterer(prometheus.NewRegistry())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.SetOutboxBacklog(3, now.Add(-90*time.Second), now)
	if got := gaugeValue(t, m.outboxPending); got != 3 {
		t.Fatalf("pending=%v", got)
	}
	if got := gaugeValue(t, m.outboxOldestAge); got != 90 {
		t.Fatalf("oldest age=%v", got)
	}

	m.SetOutboxBacklog(0, time.Time{}, now)
	if got := gaugeValue(t, m.outboxOldestAge); got != 0 {
		t.Fatalf("oldest age after drain=%v", got)
	}
}

func TestWorkerMetrics_Counters(t *testing.T) {
	m := NewWorkerMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOutboxPublish("sent")
	m.RecordOutboxPublish("sent")
	m.RecordIdempotencyCleanup(5, nil)
	m.RecordIdempotencyCleanup(0, errors.New("db down"))

	if got := counterValue(t, m.outboxPublish.WithLabelValues("sent")); got != 2 {
		t.Fatalf("sent=%v", got)
	}
	if got := counterValue(t, m.idempotencyGC.WithLabelValues("deleted")); got != 5 {
		t.Fatalf("deleted=%v", got)
	}
	if got := counterValue(t, m.idempotencyGC.WithLabelValues("error")); got != 1 {
		t.Fatalf("errors=%v", got)
	}

	var nilMetrics *WorkerMetrics
	nilMetrics.RecordOutboxPublish("sent")
	nilMetrics.SetOutboxBacklog(1, time.Now(), time.Now())
	nilMetrics.RecordIdempotencyCleanup(1, nil)
}

func TestHTTPMetrics_Observe(t *testing.T) {
	m := NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())

	m.Observe("POST", "/cart/checkout/", 201, 30*time.Millisecond)
	m.Observe("POST", "/cart/checkout/", 201, 10*time.Millisecond)

	if got := counterValue(t, m.requests.WithLabelValues("POST", "/cart/checkout/", "201")); got != 2 {
		t.Fatalf("requests=%v", got)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
}
