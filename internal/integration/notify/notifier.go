// Package notify ставит письма покупателям в transactional outbox.
// Доставку выполняет отдельный потребитель топика уведомлений.
package notify

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

// Email — полезная нагрузка события уведомления.
type Email struct {
	Kind           domain.NotificationKind `json:"kind"`
	To             string                  `json:"to"`
	CustomerName   string                  `json:"customer_name,omitempty"`
	Subject        string                  `json:"subject"`
	Body           string                  `json:"body"`
	OrderID        int64                   `json:"order_id"`
	OrderNumber    string                  `json:"order_number"`
	TotalAmount    string                  `json:"total_amount"`
	Status         string                  `json:"status"`
	PreviousStatus string                  `json:"previous_status,omitempty"`
	CRMSyncStatus  string                  `json:"crm_sync_status,omitempty"`
	RequestedAt    time.Time               `json:"requested_at"`
}

// Notifier реализует domain.Notifier поверх outbox.
type Notifier struct {
	logger  *log.Entry
	metrics *metrics.ShopMetrics
	now     func() time.Time
}

// New создаёт Notifier. logger и m могут быть nil.
func New(logger *log.Entry, m *metrics.ShopMetrics) *Notifier {
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	return &Notifier{
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Notify ставит письмо в очередь. Ошибка логируется и превращается в false.
func (n *Notifier) Notify(ctx context.Context, outbox domain.OutboxRepository, req domain.Notification) bool {
	ok := n.enqueue(ctx, outbox, req)
	n.metrics.RecordNotification(string(req.Kind), ok)
	return ok
}

func (n *Notifier) enqueue(ctx context.Context, outbox domain.OutboxRepository, req domain.Notification) bool {
	logger := n.logger.WithFields(log.Fields{
		"order_id": req.Order.ID,
		"kind":     req.Kind,
	})

	if req.Order.CustomerEmail == "" {
		logger.Warn("notification skipped: customer email is empty")
		return false
	}

	email, err := Compose(req, n.now())
	if err != nil {
		logger.WithError(err).Warn("failed to compose notification")
		return false
	}
	payload, err := json.Marshal(email)
	if err != nil {
		logger.WithError(err).Warn("failed to marshal notification")
		return false
	}

	if _, err := outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateNotification,
		AggregateID:   strconv.FormatInt(req.Order.ID, 10),
		EventType:     string(req.Kind),
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Warn("failed to enqueue notification")
		return false
	}
	return true
}

// Compose собирает тему и текст письма по типу уведомления.
func Compose(req domain.Notification, now time.Time) (Email, error) {
	order := req.Order
	total := order.TotalAmount.StringFixed(domain.MoneyPlaces)

	email := Email{
		Kind:          req.Kind,
		To:            order.CustomerEmail,
		CustomerName:  order.CustomerName,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TotalAmount:   total,
		Status:        string(order.Status),
		CRMSyncStatus: string(order.CRMSyncStatus),
		RequestedAt:   now,
	}

	switch req.Kind {
	case domain.NotificationOrderConfirmation:
		email.Subject = "Order Confirmation - " + order.OrderNumber
		email.Body = fmt.Sprintf("Thank you for your order!\n\nOrder Number: %s\nTotal Amount: $%s\n\nYour order has been received and is being processed.",
			order.OrderNumber, total)
	case domain.NotificationPaymentConfirmation:
		crm := string(order.CRMSyncStatus)
		if crm == "" {
			crm = "N/A"
		}
		email.Subject = "Payment Confirmed - Order " + order.OrderNumber
		email.Body = fmt.Sprintf("Payment Confirmed!\n\nOrder Number: %s\nAmount Paid: $%s\nStatus: %s\n\nThank you for your purchase!",
			order.OrderNumber, total, crm)
	case domain.NotificationStatusUpdate:
		previous := string(req.PreviousStatus)
		if previous == "" {
			previous = "N/A"
		}
		email.PreviousStatus = string(req.PreviousStatus)
		email.Subject = "Order Status Update - " + order.OrderNumber
		email.Body = fmt.Sprintf("Order Status Update\n\nOrder Number: %s\nPrevious Status: %s\nNew Status: %s\n\nYour order status has been updated.",
			order.OrderNumber, previous, order.Status)
	default:
		return Email{}, fmt.Errorf("unknown notification kind %q", req.Kind)
	}
	return email, nil
}

var _ domain.Notifier = (*Notifier)(nil)
