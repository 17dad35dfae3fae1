// Package rest — HTTP API магазина поверх echo.
package rest

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// CartService — операции корзины, нужные HTTP-слою.
type CartService interface {
	Get(ctx context.Context, actor domain.Actor) (domain.Cart, error)
	AddItem(ctx context.Context, actor domain.Actor, productID int64, qty int) (domain.CartItem, error)
	UpdateItem(ctx context.Context, actor domain.Actor, itemID int64, quantity *int) (domain.CartItem, error)
	RemoveItem(ctx context.Context, actor domain.Actor, itemID int64) error
	Clear(ctx context.Context, actor domain.Actor) error
	Checkout(ctx context.Context, actor domain.Actor, in cart.CheckoutInput) (domain.Order, error)
}

// OrderService — операции заказов.
type OrderService interface {
	Create(ctx context.Context, actor domain.Actor, in order.CreateInput) (domain.Order, error)
	List(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error)
	Get(ctx context.Context, actor domain.Actor, orderID int64) (domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID int64) ([]domain.TimelineEvent, error)
	Update(ctx context.Context, actor domain.Actor, orderID int64, in order.UpdateInput) (domain.Order, error)
	Delete(ctx context.Context, actor domain.Actor, orderID int64) error
	AddItem(ctx context.Context, actor domain.Actor, orderID int64, in order.ItemInput) (domain.Order, error)
	UpdateItemQuantity(ctx context.Context, actor domain.Actor, orderID, itemID int64, qty int) (domain.Order, error)
	RemoveItem(ctx context.Context, actor domain.Actor, orderID, itemID int64) (domain.Order, error)
}

// PaymentService — оплата и webhook провайдера.
type PaymentService interface {
	CreatePayment(ctx context.Context, actor domain.Actor, orderID int64) (payment.Session, error)
	ConfirmPayment(ctx context.Context, actor domain.Actor, orderID int64) (domain.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error)
}

// Server собирает маршруты API.
type Server struct {
	cart     CartService
	orders   OrderService
	payments PaymentService

	auth    *Authenticator
	guard   *idempotency.Guard
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
}

// Option настраивает Server.
type Option func(*Server)

// WithIdempotency включает обработку заголовка Idempotency-Key.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *Server) { s.guard = guard }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer создаёт HTTP API.
func NewServer(cartSvc CartService, orderSvc OrderService, paymentSvc PaymentService, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		cart:     cartSvc,
		orders:   orderSvc,
		payments: paymentSvc,
		auth:     auth,
		logger:   log.WithField("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler возвращает echo-роутер со всеми маршрутами.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Pre(middleware.AddTrailingSlash())
	e.Use(s.requestID, s.accessLog, middleware.Recover())

	e.POST("/webhooks/stripe/", s.stripeWebhook)

	api := e.Group("", s.auth.Middleware)

	api.GET("/cart/", s.getCart)
	api.POST("/cart/", s.addCartItem)
	api.DELETE("/cart/", s.clearCart)
	api.PUT("/cart/items/:id/", s.replaceCartItem)
	api.PATCH("/cart/items/:id/", s.patchCartItem)
	api.DELETE("/cart/items/:id/", s.removeCartItem)
	api.POST("/cart/checkout/", s.checkout, s.idempotent)

	api.GET("/orders/", s.listOrders)
	api.POST("/orders/", s.createOrder, s.idempotent)
	api.GET("/orders/:id/", s.getOrder)
	api.PUT("/orders/:id/", s.updateOrder)
	api.PATCH("/orders/:id/", s.updateOrder)
	api.DELETE("/orders/:id/", s.deleteOrder)
	api.GET("/orders/:id/timeline/", s.orderTimeline)
	api.POST("/orders/:id/items/", s.addOrderItem)
	api.PATCH("/orders/:id/items/:item_id/", s.updateOrderItem)
	api.DELETE("/orders/:id/items/:item_id/", s.removeOrderItem)
	api.POST("/orders/:id/create-payment/", s.createPayment, s.idempotent)
	api.POST("/orders/:id/confirm-payment/", s.confirmPayment)

	return e
}
