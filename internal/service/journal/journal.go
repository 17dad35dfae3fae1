// Package journal фиксирует побочные записи жизненного цикла заказа:
// события timeline, события outbox и уведомления покупателю.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Journal пишет timeline и outbox в транзакции вызывающего.
type Journal struct {
	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.ShopMetrics
	now      func() time.Time
}

// New создаёт журнал. notifier, logger и m могут быть nil.
func New(notifier domain.Notifier, logger *log.Entry, m *metrics.ShopMetrics) *Journal {
	if logger == nil {
		logger = log.WithField("component", "journal")
	}
	return &Journal{
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Timeline добавляет событие в историю заказа.
func (j *Journal) Timeline(ctx context.Context, tx domain.Repositories, orderID int64, eventType, reason string) error {
	err := tx.Timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: j.now(),
	})
	if err != nil {
		return fmt.Errorf("append timeline %s: %w", eventType, err)
	}
	j.metrics.RecordTimelineEvent()
	return nil
}

// Emit ставит событие заказа в outbox. extra дополняет стандартные поля.
func (j *Journal) Emit(ctx context.Context, tx domain.Repositories, order domain.Order, eventType string, extra map[string]any) error {
	now := j.now()
	payload := map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"status":       order.Status,
		"total_amount": order.TotalAmount.StringFixed(domain.MoneyPlaces),
		"ts":           now.Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	if _, err := tx.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	j.metrics.RecordOutboxEnqueued(eventType)
	return nil
}

// StatusChanged фиксирует смену статуса: timeline и событие OrderStatusChanged.
func (j *Journal) StatusChanged(ctx context.Context, tx domain.Repositories, order domain.Order, from domain.OrderStatus, reason string) error {
	if reason == "" {
		reason = fmt.Sprintf("%s -> %s", from, order.Status)
	}
	if err := j.Timeline(ctx, tx, order.ID, domain.TimelineStatusChanged, reason); err != nil {
		return err
	}
	return j.Emit(ctx, tx, order, domain.EventOrderStatusChanged, map[string]any{
		"previous_status": from,
		"reason":          reason,
	})
}

// Notify ставит письмо покупателю в очередь. Вызывается после коммита основной операции,
// поэтому неудача не влияет на её результат.
func (j *Journal) Notify(ctx context.Context, outbox domain.OutboxRepository, n domain.Notification) bool {
	if j.notifier == nil {
		return false
	}
	ok := j.notifier.Notify(ctx, outbox, n)
	if !ok {
		j.logger.WithFields(log.Fields{
			"order_id": n.Order.ID,
			"kind":     n.Kind,
		}).Warn("customer notification was not queued")
	}
	return ok
}
