// Package stripegw реализует платёжный шлюз поверх Stripe API.
package stripegw

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// DefaultTimeout ограничивает один вызов Stripe.
const DefaultTimeout = 10 * time.Second

const (
	opCreateCustomer = "create customer"
	opCreateIntent   = "create payment intent"
	opRetrieveIntent = "retrieve payment intent"
	opCancelIntent   = "cancel payment intent"
)

// Config описывает подключение к Stripe.
type Config struct {
	SecretKey string
	// BaseURL переопределяет адрес API (stripe-mock, тесты).
	BaseURL string
	Timeout time.Duration
}

// Gateway реализует domain.PaymentGateway.
type Gateway struct {
	api     *client.API
	timeout time.Duration
	tracer  trace.Tracer
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// New создаёт шлюз. logger и m могут быть nil.
func New(cfg Config, logger *log.Entry, m *metrics.ShopMetrics) *Gateway {
	if logger == nil {
		logger = log.WithField("component", "stripe-gateway")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var backends *stripe.Backends
	if cfg.BaseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.BaseURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	return &Gateway{
		api:     client.New(cfg.SecretKey, backends),
		timeout: timeout,
		tracer:  otel.Tracer("storefront/gateway/stripe"),
		logger:  logger,
		metrics: m,
	}
}

// CreateCustomer создаёт покупателя у провайдера и возвращает его идентификатор.
func (g *Gateway) CreateCustomer(ctx context.Context, email, name string) (id string, err error) {
	ctx, finish := g.begin(ctx, opCreateCustomer)
	defer func() { finish(err) }()

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.Context = ctx

	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrap(opCreateCustomer, err)
	}
	return customer.ID, nil
}

// CreatePaymentIntent создаёт intent на сумму в минимальных единицах валюты.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (intent domain.PaymentIntent, err error) {
	ctx, finish := g.begin(ctx, opCreateIntent)
	defer func() { finish(err) }()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.PaymentIntent{}, wrap(opCreateIntent, err)
	}
	return toIntent(pi), nil
}

// RetrieveIntent читает актуальный статус intent.
func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (intent domain.PaymentIntent, err error) {
	ctx, finish := g.begin(ctx, opRetrieveIntent, attribute.String("intent_id", intentID))
	defer func() { finish(err) }()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return domain.PaymentIntent{}, wrap(opRetrieveIntent, err)
	}
	return toIntent(pi), nil
}

// CancelIntent отменяет intent, который ещё не оплачен.
func (g *Gateway) CancelIntent(ctx context.Context, intentID string) (intent domain.PaymentIntent, err error) {
	ctx, finish := g.begin(ctx, opCancelIntent, attribute.String("intent_id", intentID))
	defer func() { finish(err) }()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return domain.PaymentIntent{}, wrap(opCancelIntent, err)
	}
	return toIntent(pi), nil
}

// begin открывает span и таймаут вызова; finish закрывает их и пишет метрики.
func (g *Gateway) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := g.tracer.Start(ctx, "stripe."+op, trace.WithAttributes(attrs...))
	ctx, cancel := context.WithTimeout(ctx, g.timeout)

	return ctx, func(err error) {
		cancel()
		g.metrics.RecordGatewayCall(op, err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			g.logger.WithError(err).WithField("op", op).Warn("stripe call failed")
		}
		span.End()
	}
}

func toIntent(pi *stripe.PaymentIntent) domain.PaymentIntent {
	intent := domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		intent.CustomerID = pi.Customer.ID
	}
	return intent
}

// wrap превращает ошибку SDK в *domain.GatewayError с сообщением провайдера.
func wrap(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return &domain.GatewayError{Op: op, Err: errors.New(stripeErr.Msg)}
	}
	return &domain.GatewayError{Op: op, Err: err}
}

var _ domain.PaymentGateway = (*Gateway)(nil)
