package domain

import (
	"context"
	"strconv"
)

// Статусы payment intent у провайдера. Ядро реагирует только на succeeded,
// остальные значения передаются клиенту как есть.
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusCanceled              = "canceled"
)

// Типы webhook-событий провайдера, которые обрабатывает сверка платежей.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventPaymentIntentCanceled  = "payment_intent.canceled"
)

// MetadataOrderID и MetadataOrderNumber — ключи метаданных intent.
const (
	MetadataOrderID     = "order_id"
	MetadataOrderNumber = "order_number"
)

// PaymentIntentRequest — параметры создания payment intent.
type PaymentIntentRequest struct {
	AmountMinor int64
	Currency    string
	CustomerID  string
	Metadata    map[string]string
}

// NewPaymentIntentRequest собирает запрос на оплату заказа в минимальных единицах валюты.
func NewPaymentIntentRequest(order Order, currency string) PaymentIntentRequest {
	return PaymentIntentRequest{
		AmountMinor: ToMinorUnits(order.TotalAmount),
		Currency:    currency,
		CustomerID:  order.PaymentCustomerID,
		Metadata: map[string]string{
			MetadataOrderID:     strconv.FormatInt(order.ID, 10),
			MetadataOrderNumber: order.OrderNumber,
		},
	}
}

// PaymentIntent — снимок намерения оплаты у провайдера.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Currency     string
	CustomerID   string
	Metadata     map[string]string
}

// Succeeded сообщает, что провайдер подтвердил оплату.
func (p PaymentIntent) Succeeded() bool {
	return p.Status == IntentStatusSucceeded
}

// GatewayEvent — проверенное webhook-событие провайдера.
type GatewayEvent struct {
	ID     string
	Type   string
	Intent PaymentIntent
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
// Реализации обязаны ограничивать каждый вызов таймаутом и возвращать *GatewayError.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) (PaymentIntent, error)
}

// WebhookVerifier проверяет подпись webhook и разбирает событие.
// Возвращает ErrInvalidSignature или ErrInvalidPayload.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (GatewayEvent, error)
}
