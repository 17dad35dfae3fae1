// Package order реализует операции с заказами, машину статусов
// и складские эффекты переходов.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/journal"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

const (
	defaultListLimit = 100

	defaultMaxRetries = 3
	defaultBaseDelay  = 10 * time.Millisecond
)

// Service управляет заказами.
type Service struct {
	store   domain.Store
	journal *journal.Journal
	logger  *log.Entry
	metrics *metrics.ShopMetrics
	now     func() time.Time

	maxRetries int
	baseDelay  time.Duration
}

// NewService создаёт сервис заказов. logger и m могут быть nil.
func NewService(store domain.Store, j *journal.Journal, logger *log.Entry, m *metrics.ShopMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	if j == nil {
		j = journal.New(nil, logger, m)
	}
	return &Service{
		store:      store,
		journal:    j,
		logger:     logger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
}

// ItemInput — позиция создаваемого заказа.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// CreateInput — параметры прямого создания заказа.
type CreateInput struct {
	ShippingAddress string
	BillingAddress  string
	Items           []ItemInput
}

// Create создаёт заказ из списка товаров по текущим ценам со строгим списанием остатков.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, domain.NewValidationError("items", "Order must have at least one item")
	}
	ids := make([]int64, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity < 1 {
			return domain.Order{}, domain.NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
		}
		ids = append(ids, item.ProductID)
	}

	var order domain.Order
	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		ledger, err := stock.LockAvailable(ctx, tx.Products, ids)
		if err != nil {
			return err
		}
		for _, item := range in.Items {
			if _, ok := ledger.Product(item.ProductID); !ok {
				return domain.NewValidationError("product_id", "Product not found or inactive")
			}
		}

		shell, err := tx.Orders.Create(ctx, domain.NewOrder(actor, in.ShippingAddress, in.BillingAddress, s.now()))
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range in.Items {
			product, _ := ledger.Product(item.ProductID)
			if err := ledger.Decrement(item.ProductID, item.Quantity); err != nil {
				return err
			}
			if _, err := tx.Orders.AddItem(ctx, domain.OrderItem{
				OrderID:     shell.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				Price:       product.Price,
				CreatedAt:   s.now(),
			}); err != nil {
				return fmt.Errorf("add order item: %w", err)
			}
		}
		if err := ledger.Flush(ctx); err != nil {
			return err
		}

		order, err = s.persistTotal(ctx, tx, shell.ID)
		if err != nil {
			return err
		}
		if err := s.journal.Timeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "direct"); err != nil {
			return err
		}
		return s.journal.Emit(ctx, tx, order, domain.EventOrderCreated, map[string]any{
			"items_count": len(order.Items),
			"source":      "direct",
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  actor.UserID,
	}).Info("order created")

	s.journal.Notify(ctx, s.store.Repositories().Outbox, domain.Notification{
		Kind:  domain.NotificationOrderConfirmation,
		Order: order,
	})
	return order, nil
}

// List возвращает видимые заказы: администратору все, покупателю свои.
func (s *Service) List(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	filter := domain.OrderFilter{Limit: limit}
	if !actor.IsAdmin() {
		filter.CustomerID = actor.UserID
	}
	return s.store.Repositories().Orders.List(ctx, filter)
}

// Get возвращает заказ, если у пользователя есть к нему доступ.
func (s *Service) Get(ctx context.Context, actor domain.Actor, orderID int64) (domain.Order, error) {
	order, err := s.store.Repositories().Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(order) {
		return domain.Order{}, domain.ErrPermissionDenied
	}
	return order, nil
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID int64) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Timeline.List(ctx, orderID)
}

// UpdateInput — изменяемые поля заказа. nil — поле не меняется.
type UpdateInput struct {
	ShippingAddress *string
	BillingAddress  *string
	Status          *domain.OrderStatus
}

// Update меняет адреса и статус заказа. Покупатель правит только свои pending-заказы
// и может лишь отменить заказ; администратор может выставить любой статус.
func (s *Service) Update(ctx context.Context, actor domain.Actor, orderID int64, in UpdateInput) (domain.Order, error) {
	if in.Status != nil && !in.Status.Valid() {
		return domain.Order{}, domain.NewValidationError("status", fmt.Sprintf("%q is not a valid choice.", string(*in.Status)))
	}

	var (
		order domain.Order
		plan  domain.TransitionPlan
	)
	err := s.withRetry(ctx, orderID, "update", func(tx domain.Repositories) error {
		current, err := s.loadForWrite(ctx, tx, actor, orderID, "updated")
		if err != nil {
			return err
		}

		if in.ShippingAddress != nil {
			current.ShippingAddress = *in.ShippingAddress
		}
		if in.BillingAddress != nil {
			current.BillingAddress = *in.BillingAddress
		}

		plan = domain.TransitionPlan{From: current.Status, To: current.Status}
		if in.Status != nil {
			if !actor.IsAdmin() && *in.Status != current.Status && *in.Status != domain.OrderStatusCancelled {
				return domain.ErrPermissionDenied
			}
			plan, err = domain.PlanTransition(current.Status, *in.Status, actor.IsAdmin())
			if err != nil {
				return err
			}
		}

		order, err = s.applyTransition(ctx, tx, current, plan, "updated by user")
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	if plan.Changed {
		s.journal.Notify(ctx, s.store.Repositories().Outbox, domain.Notification{
			Kind:           domain.NotificationStatusUpdate,
			Order:          order,
			PreviousStatus: plan.From,
		})
	}
	return order, nil
}

// Delete мягко удаляет заказ. Остатки не возвращаются: это делает только отмена.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, orderID int64) error {
	return s.withRetry(ctx, orderID, "delete", func(tx domain.Repositories) error {
		current, err := s.loadForWrite(ctx, tx, actor, orderID, "deleted")
		if err != nil {
			return err
		}
		current.SoftDelete(s.now())
		if _, err := tx.Orders.Save(ctx, current); err != nil {
			return err
		}
		return s.journal.Timeline(ctx, tx, orderID, domain.TimelineOrderDeleted, fmt.Sprintf("deleted by user %d", actor.UserID))
	})
}

// TransitionRequest — системный переход статуса (сверка платежей).
type TransitionRequest struct {
	OrderID int64
	To      domain.OrderStatus
	Reason  string
	// From ограничивает исходные статусы. Пусто — любой, разрешённый графом.
	From []domain.OrderStatus
}

// TransitionResult описывает итог системного перехода.
type TransitionResult struct {
	Order domain.Order
	From  domain.OrderStatus
	// Changed — статус действительно изменился.
	Changed bool
}

// Transition переводит заказ по графу без привилегий. Переход в текущий статус
// и исходный статус вне From не считаются ошибкой: Changed == false.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	var result TransitionResult
	err := s.withRetry(ctx, req.OrderID, "transition", func(tx domain.Repositories) error {
		current, err := tx.Orders.GetForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		result = TransitionResult{Order: current, From: current.Status}

		if len(req.From) > 0 && !containsStatus(req.From, current.Status) {
			return nil
		}

		plan, err := domain.PlanTransition(current.Status, req.To, false)
		if err != nil {
			return err
		}
		order, err := s.applyTransition(ctx, tx, current, plan, req.Reason)
		if err != nil {
			return err
		}
		result.Order = order
		result.Changed = plan.Changed
		return nil
	})
	return result, err
}

// loadForWrite блокирует заказ и проверяет права на изменение.
func (s *Service) loadForWrite(ctx context.Context, tx domain.Repositories, actor domain.Actor, orderID int64, action string) (domain.Order, error) {
	current, err := tx.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanAccess(current) {
		return domain.Order{}, domain.ErrPermissionDenied
	}
	if !actor.IsAdmin() && current.Status != domain.OrderStatusPending {
		return domain.Order{}, &domain.OrderNotPendingError{Action: action}
	}
	return current, nil
}

// applyTransition применяет складской эффект плана и сохраняет заказ.
func (s *Service) applyTransition(ctx context.Context, tx domain.Repositories, order domain.Order, plan domain.TransitionPlan, reason string) (domain.Order, error) {
	if err := s.applyStockEffect(ctx, tx, order, plan.Effect); err != nil {
		return domain.Order{}, err
	}

	order.Status = plan.To
	saved, err := tx.Orders.Save(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	if !plan.Changed {
		return saved, nil
	}

	if err := s.journal.StatusChanged(ctx, tx, saved, plan.From, reason); err != nil {
		return domain.Order{}, err
	}
	s.metrics.RecordTransition(string(plan.From), string(plan.To))
	s.logger.WithFields(log.Fields{
		"order_id": saved.ID,
		"from":     plan.From,
		"to":       plan.To,
	}).Info("order status changed")
	return saved, nil
}

// applyStockEffect двигает остатки по позициям заказа.
// Повторное списание при выходе из cancelled пропускает позиции без остатка.
func (s *Service) applyStockEffect(ctx context.Context, tx domain.Repositories, order domain.Order, effect domain.StockEffect) error {
	if effect == domain.StockEffectNone || len(order.Items) == 0 {
		return nil
	}

	ledger, err := stock.LockForReturn(ctx, tx.Products, stock.ProductIDs(order.Items))
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		switch effect {
		case domain.StockEffectRestore:
			if !ledger.Restore(item.ProductID, item.Quantity) {
				s.logger.WithFields(log.Fields{
					"order_id":   order.ID,
					"product_id": item.ProductID,
				}).Warn("product missing, stock not restored")
			}
		case domain.StockEffectRedecrement:
			if !ledger.TryDecrement(item.ProductID, item.Quantity) {
				if err := s.recordSkipped(ctx, tx, order.ID, item, ledger); err != nil {
					return err
				}
			}
		}
	}
	return ledger.Flush(ctx)
}

// recordSkipped фиксирует позицию, для которой повторное списание не выполнено.
func (s *Service) recordSkipped(ctx context.Context, tx domain.Repositories, orderID int64, item domain.OrderItem, ledger *stock.Ledger) error {
	available := 0
	if p, ok := ledger.Product(item.ProductID); ok {
		available = p.StockQuantity
	}
	s.metrics.RecordStockSkipped()
	s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"product_id": item.ProductID,
		"requested":  item.Quantity,
		"available":  available,
	}).Warn("insufficient stock, re-decrement skipped")

	reason := fmt.Sprintf("product %d: requested %d, available %d", item.ProductID, item.Quantity, available)
	return s.journal.Timeline(ctx, tx, orderID, domain.TimelineStockNotRestored, reason)
}

// persistTotal перечитывает заказ, пересчитывает сумму и сохраняет её.
func (s *Service) persistTotal(ctx context.Context, tx domain.Repositories, orderID int64) (domain.Order, error) {
	current, err := tx.Orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	current.RecalculateTotal()
	saved, err := tx.Orders.Save(ctx, current)
	if err != nil {
		return domain.Order{}, fmt.Errorf("persist order total: %w", err)
	}
	return saved, nil
}

// withRetry выполняет fn в транзакции, повторяя её при конфликте версий
// с экспоненциальной задержкой.
func (s *Service) withRetry(ctx context.Context, orderID int64, operation string, fn func(tx domain.Repositories) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.InTx(ctx, fn)
		if err == nil || !domain.IsVersionConflict(err) || attempt >= s.maxRetries-1 {
			if err != nil && domain.IsVersionConflict(err) {
				s.logger.WithError(err).WithFields(log.Fields{
					"order_id":  orderID,
					"operation": operation,
					"attempt":   attempt + 1,
				}).Error("version conflict retries exhausted")
			}
			return err
		}

		s.metrics.RecordVersionConflict()
		s.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"operation": operation,
			"attempt":   attempt + 1,
		}).Warn("version conflict detected, retrying")

		delay := s.baseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func containsStatus(list []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}
