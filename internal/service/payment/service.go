// Package payment создаёт платежи и сверяет их статус с провайдером:
// синхронное подтверждение клиентом и асинхронные webhook-события.
package payment

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

// DefaultCurrency — валюта платежей по умолчанию.
const DefaultCurrency = "usd"

// Transitioner выполняет системные переходы статуса заказа.
type Transitioner interface {
	Transition(ctx context.Context, req order.TransitionRequest) (order.TransitionResult, error)
}

// Session — данные для завершения оплаты на клиенте.
type Session struct {
	ClientSecret    string
	PaymentIntentID string
}

// Service связывает заказы с платёжным провайдером.
// Вызовы провайдера и CRM выполняются вне транзакций хранилища.
type Service struct {
	store    domain.Store
	orders   Transitioner
	gateway  domain.PaymentGateway
	verifier domain.WebhookVerifier
	crm      domain.CRMSyncer
	journal  *journal.Journal
	currency string

	logger  *log.Entry
	metrics *metrics.ShopMetrics
	tracer  trace.Tracer
}

// Option настраивает Service.
type Option func(*Service)

// WithCRM подключает синхронизацию оплаченных заказов с CRM.
func WithCRM(crm domain.CRMSyncer) Option {
	return func(s *Service) { s.crm = crm }
}

// WithJournal задаёт журнал событий заказа.
func WithJournal(j *journal.Journal) Option {
	return func(s *Service) {
		if j != nil {
			s.journal = j
		}
	}
}

// WithCurrency задаёт валюту payment intent.
func WithCurrency(currency string) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService создаёт сервис платежей.
func NewService(
	store domain.Store,
	orders Transitioner,
	gateway domain.PaymentGateway,
	verifier domain.WebhookVerifier,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		orders:   orders,
		gateway:  gateway,
		verifier: verifier,
		currency: DefaultCurrency,
		logger:   log.WithField("component", "payment-service"),
		tracer:   otel.Tracer("storefront/payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal == nil {
		s.journal = journal.New(nil, s.logger, s.metrics)
	}
	return s
}

// CreatePayment создаёт (или переиспользует) покупателя и payment intent для pending-заказа.
func (s *Service) CreatePayment(ctx context.Context, actor domain.Actor, orderID int64) (_ Session, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.CreatePayment", trace.WithAttributes(attribute.Int64("order_id", orderID)))
	defer func() { endSpan(span, err) }()

	current, err := s.loadAccessible(ctx, actor, orderID)
	if err != nil {
		return Session{}, err
	}
	if current.Status != domain.OrderStatusPending {
		return Session{}, domain.NewValidationError("", "Only pending orders can initiate payment")
	}

	repos := s.store.Repositories()
	logger := s.logger.WithField("order_id", orderID)

	if current.PaymentCustomerID == "" {
		customerID, err := s.gateway.CreateCustomer(ctx, current.CustomerEmail, current.CustomerName)
		if err != nil {
			return Session{}, err
		}
		// Покупатель сохраняется сразу, чтобы неудача intent не приводила к дублю.
		winner, err := repos.Orders.ClaimPaymentCustomer(ctx, orderID, customerID)
		if err != nil {
			return Session{}, fmt.Errorf("store payment customer: %w", err)
		}
		if winner != customerID {
			logger.WithField("customer_id", customerID).Info("payment customer created concurrently, using stored one")
		}
		current.PaymentCustomerID = winner
	}

	if current.PaymentIntentID != "" {
		intent, err := s.gateway.RetrieveIntent(ctx, current.PaymentIntentID)
		if err != nil {
			return Session{}, err
		}
		return Session{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, domain.NewPaymentIntentRequest(current, s.currency))
	if err != nil {
		return Session{}, err
	}

	winner, err := repos.Orders.ClaimPaymentIntent(ctx, orderID, intent.ID)
	if err != nil {
		s.cancelRedundant(ctx, orderID, intent.ID)
		return Session{}, fmt.Errorf("store payment intent: %w", err)
	}
	if winner != intent.ID {
		// Параллельный запрос успел закрепить свой intent: наш лишний.
		s.cancelRedundant(ctx, orderID, intent.ID)
		stored, err := s.gateway.RetrieveIntent(ctx, winner)
		if err != nil {
			return Session{}, err
		}
		return Session{ClientSecret: stored.ClientSecret, PaymentIntentID: stored.ID}, nil
	}

	if err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		return s.journal.Timeline(ctx, tx, orderID, domain.TimelinePaymentIntentCreated, intent.ID)
	}); err != nil {
		logger.WithError(err).Warn("failed to record payment intent in timeline")
	}

	logger.WithField("intent_id", intent.ID).Info("payment intent created")
	return Session{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

// ConfirmPayment сверяет статус intent у провайдера и завершает заказ при успешной оплате.
func (s *Service) ConfirmPayment(ctx context.Context, actor domain.Actor, orderID int64) (_ domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.ConfirmPayment", trace.WithAttributes(attribute.Int64("order_id", orderID)))
	defer func() { endSpan(span, err) }()

	current, err := s.loadAccessible(ctx, actor, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if current.PaymentIntentID == "" {
		return domain.Order{}, domain.ErrPaymentIntentMissing
	}

	intent, err := s.gateway.RetrieveIntent(ctx, current.PaymentIntentID)
	if err != nil {
		return domain.Order{}, err
	}
	if !intent.Succeeded() {
		return domain.Order{}, &domain.PaymentNotSucceededError{Status: intent.Status, ClientSecret: intent.ClientSecret}
	}

	completed, _, err := s.complete(ctx, current, "payment confirmed by client")
	if err != nil {
		return domain.Order{}, err
	}
	return completed, nil
}

// Исходы обработки webhook для метрик и логов.
const (
	OutcomeCompleted      = "completed"
	OutcomeCancelled      = "cancelled"
	OutcomeUnchanged      = "unchanged"
	OutcomeUnknownOrder   = "unknown_order"
	OutcomeIgnored        = "ignored"
	OutcomeAfterCancel    = "succeeded_after_cancel"
	OutcomeRejected       = "rejected"
	OutcomeInternalFailed = "error"
)

// HandleWebhook проверяет подпись события и применяет его к заказу.
// Неподписанное или неразборчивое событие не меняет ничего.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (outcome string, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.HandleWebhook")
	defer func() { endSpan(span, err) }()

	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.metrics.RecordWebhook("unverified", OutcomeRejected)
		s.logger.WithError(err).Warn("webhook rejected")
		return OutcomeRejected, err
	}
	span.SetAttributes(attribute.String("event_type", event.Type), attribute.String("intent_id", event.Intent.ID))

	switch event.Type {
	case domain.EventPaymentIntentSucceeded:
		outcome, err = s.onSucceeded(ctx, event)
	case domain.EventPaymentIntentFailed, domain.EventPaymentIntentCanceled:
		outcome, err = s.onFailed(ctx, event)
	default:
		outcome = OutcomeIgnored
	}
	if err != nil {
		outcome = OutcomeInternalFailed
	}

	s.metrics.RecordWebhook(event.Type, outcome)
	s.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"intent_id":  event.Intent.ID,
		"outcome":    outcome,
	}).Info("webhook processed")
	return outcome, err
}

func (s *Service) onSucceeded(ctx context.Context, event domain.GatewayEvent) (string, error) {
	current, err := s.store.Repositories().Orders.GetByPaymentIntent(ctx, event.Intent.ID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return "", err
	}

	_, changed, err := s.complete(ctx, current, "payment_intent.succeeded webhook")
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return OutcomeAfterCancel, nil
	case err != nil:
		return "", err
	case changed:
		return OutcomeCompleted, nil
	default:
		return OutcomeUnchanged, nil
	}
}

func (s *Service) onFailed(ctx context.Context, event domain.GatewayEvent) (string, error) {
	current, err := s.store.Repositories().Orders.GetByPaymentIntent(ctx, event.Intent.ID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return OutcomeUnknownOrder, nil
	}
	if err != nil {
		return "", err
	}

	res, err := s.orders.Transition(ctx, order.TransitionRequest{
		OrderID: current.ID,
		To:      domain.OrderStatusCancelled,
		Reason:  event.Type + " webhook",
		From:    []domain.OrderStatus{domain.OrderStatusPending},
	})
	if err != nil {
		return "", err
	}
	if !res.Changed {
		return OutcomeUnchanged, nil
	}

	s.journal.Notify(ctx, s.store.Repositories().Outbox, domain.Notification{
		Kind:           domain.NotificationStatusUpdate,
		Order:          res.Order,
		PreviousStatus: res.From,
	})
	return OutcomeCancelled, nil
}

// complete переводит заказ в completed. CRM и письмо срабатывают только
// при фактической смене статуса. Оплата отменённого заказа не применяется
// и фиксируется в timeline.
func (s *Service) complete(ctx context.Context, current domain.Order, reason string) (domain.Order, bool, error) {
	res, err := s.orders.Transition(ctx, order.TransitionRequest{
		OrderID: current.ID,
		To:      domain.OrderStatusCompleted,
		Reason:  reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.recordSucceededAfterCancel(ctx, current)
		}
		return domain.Order{}, false, err
	}
	if !res.Changed {
		return res.Order, false, nil
	}

	completed := s.syncCRM(ctx, res.Order)
	s.journal.Notify(ctx, s.store.Repositories().Outbox, domain.Notification{
		Kind:  domain.NotificationPaymentConfirmation,
		Order: completed,
	})
	return completed, true, nil
}

// syncCRM отправляет заказ в CRM и сохраняет результат. Ошибки не пробрасываются.
func (s *Service) syncCRM(ctx context.Context, completed domain.Order) domain.Order {
	if s.crm == nil {
		return completed
	}

	status := s.crm.Sync(ctx, completed)
	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		if err := tx.Orders.SetCRMSyncStatus(ctx, completed.ID, status); err != nil {
			return err
		}
		return s.journal.Timeline(ctx, tx, completed.ID, domain.TimelineCRMSync, string(status))
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", completed.ID).Warn("failed to store crm sync status")
		return completed
	}

	completed.CRMSyncStatus = status
	if fresh, err := s.store.Repositories().Orders.Get(ctx, completed.ID); err == nil {
		return fresh
	}
	return completed
}

func (s *Service) recordSucceededAfterCancel(ctx context.Context, current domain.Order) {
	s.logger.WithFields(log.Fields{
		"order_id":  current.ID,
		"intent_id": current.PaymentIntentID,
		"status":    current.Status,
	}).Warn("payment succeeded for an order that can no longer be completed")

	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		return s.journal.Timeline(ctx, tx, current.ID, domain.TimelinePaymentSucceededAfterCancel, current.PaymentIntentID)
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", current.ID).Warn("failed to record late payment")
	}
}

// cancelRedundant отменяет лишний intent у провайдера. Неудача только логируется.
func (s *Service) cancelRedundant(ctx context.Context, orderID int64, intentID string) {
	if _, err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":  orderID,
			"intent_id": intentID,
		}).Warn("failed to cancel redundant payment intent")
	}
}

func (s *Service) loadAccessible(ctx context.Context, actor domain.Actor, orderID int64) (domain.Order, error) {
	current, err := s.store.Repositories().Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(current) {
		return domain.Order{}, domain.ErrPermissionDenied
	}
	return current, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
