package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит метрики ядра магазина: оформление, статусы, платежи.
// Методы безопасны для nil-получателя, чтобы сервисы могли работать без метрик.
type ShopMetrics struct {
	checkouts        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	stockSkipped     prometheus.Counter
	gatewayRequests  *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec
	webhookEvents    *prometheus.CounterVec
	crmSync          *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	timelineEvents   prometheus.Counter
	outboxEnqueued   *prometheus.CounterVec
	versionConflicts prometheus.Counter
}

// NewShopMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_checkouts_total",
			Help: "Total number of cart checkouts grouped by result.",
		}, []string{"result"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_transitions_total",
			Help: "Total number of order status transitions.",
		}, []string{"from", "to"}),
		stockSkipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_redecrement_skipped_total",
			Help: "Order items whose stock could not be re-decremented because of insufficient stock.",
		}),
		gatewayRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payment_gateway_requests_total",
			Help: "Total number of payment gateway calls grouped by operation and result.",
		}, []string{"op", "result"}),
		gatewayDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_payment_gateway_duration_seconds",
			Help:    "Duration of payment gateway calls in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payment_webhook_events_total",
			Help: "Total number of payment webhook events grouped by type and outcome.",
		}, []string{"type", "outcome"}),
		crmSync: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_crm_sync_total",
			Help: "Total number of CRM sync attempts grouped by result.",
		}, []string{"result"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_notifications_total",
			Help: "Total number of customer notifications grouped by kind and result.",
		}, []string{"kind", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of order timeline events recorded.",
		}),
		outboxEnqueued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_enqueued_total",
			Help: "Total number of outbox messages enqueued grouped by event type.",
		}, []string{"event_type"}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts on order writes.",
		}),
	}
}

// RecordCheckout учитывает результат оформления корзины.
func (m *ShopMetrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

// RecordTransition учитывает переход статуса заказа.
func (m *ShopMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordStockSkipped учитывает позицию, для которой повторное списание пропущено.
func (m *ShopMetrics) RecordStockSkipped() {
	if m == nil {
		return
	}
	m.stockSkipped.Inc()
}

// RecordGatewayCall учитывает вызов платёжного шлюза и его длительность.
func (m *ShopMetrics) RecordGatewayCall(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayRequests.WithLabelValues(op, result).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordWebhook учитывает обработанное webhook-событие.
func (m *ShopMetrics) RecordWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordCRMSync учитывает результат синхронизации с CRM.
func (m *ShopMetrics) RecordCRMSync(result string) {
	if m == nil {
		return
	}
	m.crmSync.WithLabelValues(result).Inc()
}

// RecordNotification учитывает постановку письма в очередь.
func (m *ShopMetrics) RecordNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "queued"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ShopMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEnqueued увеличивает счётчик событий outbox.
func (m *ShopMetrics) RecordOutboxEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.outboxEnqueued.WithLabelValues(eventType).Inc()
}

// RecordVersionConflict учитывает конфликт optimistic locking.
func (m *ShopMetrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}
