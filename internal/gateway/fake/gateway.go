// Package fake содержит детерминированный платёжный шлюз в памяти
// для тестов и локального запуска без ключей провайдера.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Gateway хранит intents в памяти. Безопасен для конкурентного использования.
type Gateway struct {
	mu        sync.Mutex
	seq       int
	customers map[string]string
	intents   map[string]domain.PaymentIntent
	failures  map[string]error
	calls     map[string]int

	// InitialStatus — статус новых intents.
	InitialStatus string
}

// NewGateway создаёт пустой шлюз; новые intents ждут способ оплаты.
func NewGateway() *Gateway {
	return &Gateway{
		customers:     make(map[string]string),
		intents:       make(map[string]domain.PaymentIntent),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		InitialStatus: domain.IntentStatusRequiresPaymentMethod,
	}
}

// Операции для FailNext и Calls.
const (
	OpCreateCustomer = "create customer"
	OpCreateIntent   = "create payment intent"
	OpRetrieveIntent = "retrieve payment intent"
	OpCancelIntent   = "cancel payment intent"
)

// FailNext заставляет следующий вызов op вернуть *domain.GatewayError с err.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = err
}

// SetStatus меняет статус intent, имитируя действия покупателя у провайдера.
func (g *Gateway) SetStatus(intentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = status
		g.intents[intentID] = intent
	}
}

// Intent возвращает сохранённый intent.
func (g *Gateway) Intent(intentID string) (domain.PaymentIntent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	return intent, ok
}

// Calls возвращает число вызовов операции op.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) enter(ctx context.Context, op string) error {
	g.calls[op]++
	if err := ctx.Err(); err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	if err, ok := g.failures[op]; ok {
		delete(g.failures, op)
		return &domain.GatewayError{Op: op, Err: err}
	}
	return nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(ctx, OpCreateCustomer); err != nil {
		return "", err
	}
	g.seq++
	id := fmt.Sprintf("cus_fake_%d", g.seq)
	g.customers[id] = email
	return id, nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (domain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(ctx, OpCreateIntent); err != nil {
		return domain.PaymentIntent{}, err
	}
	if req.AmountMinor <= 0 {
		return domain.PaymentIntent{}, &domain.GatewayError{Op: OpCreateIntent, Err: fmt.Errorf("amount must be positive")}
	}

	g.seq++
	id := fmt.Sprintf("pi_fake_%d", g.seq)
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	intent := domain.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       g.InitialStatus,
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
		CustomerID:   req.CustomerID,
		Metadata:     metadata,
	}
	g.intents[id] = intent
	return intent, nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(ctx, OpRetrieveIntent); err != nil {
		return domain.PaymentIntent{}, err
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, &domain.GatewayError{Op: OpRetrieveIntent, Err: fmt.Errorf("no such payment_intent: %s", intentID)}
	}
	return intent, nil
}

func (g *Gateway) CancelIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(ctx, OpCancelIntent); err != nil {
		return domain.PaymentIntent{}, err
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return domain.PaymentIntent{}, &domain.GatewayError{Op: OpCancelIntent, Err: fmt.Errorf("no such payment_intent: %s", intentID)}
	}
	if intent.Status == domain.IntentStatusSucceeded {
		return domain.PaymentIntent{}, &domain.GatewayError{Op: OpCancelIntent, Err: fmt.Errorf("payment_intent %s already succeeded", intentID)}
	}
	intent.Status = domain.IntentStatusCanceled
	g.intents[intentID] = intent
	return intent, nil
}

var _ domain.PaymentGateway = (*Gateway)(nil)
