package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics — метрики фоновых воркеров: outbox relay и очистка idempotency-ключей.
type WorkerMetrics struct {
	outboxPublish   *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge
	idempotencyGC   *prometheus.CounterVec
}

// NewWorkerMetricsWithRegisterer регистрирует метрики воркеров.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		outboxPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		idempotencyGC: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_cleanup_total",
			Help: "Idempotency cleanup results: deleted keys and failed runs.",
		}, []string{"result"}),
	}
}

// RecordOutboxPublish учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *WorkerMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер и возраст backlog outbox.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.outboxOldestAge.Set(0)
		return
	}
	age := now.Sub(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.outboxOldestAge.Set(age)
}

// RecordIdempotencyCleanup учитывает удалённые ключи или неудачный прогон (err != nil).
func (m *WorkerMetrics) RecordIdempotencyCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.idempotencyGC.WithLabelValues("error").Inc()
		return
	}
	m.idempotencyGC.WithLabelValues("deleted").Add(float64(deleted))
}
