// Package cart реализует операции корзины и её оформление в заказ.
package cart

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

// Service управляет корзинами пользователей.
type Service struct {
	store   domain.Store
	journal *journal.Journal
	logger  *log.Entry
	metrics *metrics.ShopMetrics
	now     func() time.Time
}

// NewService создаёт сервис корзины. logger и m могут быть nil.
func NewService(store domain.Store, j *journal.Journal, logger *log.Entry, m *metrics.ShopMetrics) *Service {
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	if j == nil {
		j = journal.New(nil, logger, m)
	}
	return &Service{
		store:   store,
		journal: j,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает корзину пользователя (пустую, если её ещё нет).
func (s *Service) Get(ctx context.Context, actor domain.Actor) (domain.Cart, error) {
	return s.store.Repositories().Carts.GetByUser(ctx, actor.UserID)
}

// AddItem добавляет товар в корзину. Повторное добавление увеличивает количество
// и обновляет цену до текущей. Остаток не резервируется.
func (s *Service) AddItem(ctx context.Context, actor domain.Actor, productID int64, qty int) (domain.CartItem, error) {
	if err := validateQuantity(qty); err != nil {
		return domain.CartItem{}, err
	}

	var saved domain.CartItem
	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		product, err := tx.Products.Get(ctx, productID)
		if err != nil {
			return err
		}

		cart, err := tx.Carts.GetOrCreate(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		line := cart.MergeLine(product, qty, s.now())
		if !product.HasStock(line.Quantity) {
			return insufficient(product, line.Quantity)
		}

		saved, err = tx.Carts.SaveItem(ctx, line)
		return err
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":    actor.UserID,
		"product_id": productID,
		"quantity":   saved.Quantity,
	}).Debug("cart item saved")
	return saved, nil
}

// UpdateItem меняет количество позиции. nil quantity оставляет текущее (PATCH).
func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, itemID int64, quantity *int) (domain.CartItem, error) {
	if quantity != nil {
		if err := validateQuantity(*quantity); err != nil {
			return domain.CartItem{}, err
		}
	}

	var saved domain.CartItem
	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		item, err := findItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		if quantity == nil {
			saved = item
			return nil
		}

		product, err := tx.Products.Get(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if !product.HasStock(*quantity) {
			return insufficient(product, *quantity)
		}

		item.Quantity = *quantity
		saved, err = tx.Carts.SaveItem(ctx, item)
		return err
	})
	return saved, err
}

// RemoveItem удаляет позицию из корзины пользователя.
func (s *Service) RemoveItem(ctx context.Context, actor domain.Actor, itemID int64) error {
	return s.store.InTx(ctx, func(tx domain.Repositories) error {
		item, err := findItem(ctx, tx, actor, itemID)
		if err != nil {
			return err
		}
		return tx.Carts.DeleteItem(ctx, item.CartID, item.ID)
	})
}

// Clear удаляет все позиции корзины.
func (s *Service) Clear(ctx context.Context, actor domain.Actor) error {
	return s.store.InTx(ctx, func(tx domain.Repositories) error {
		cart, err := tx.Carts.GetByUser(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if cart.ID == 0 {
			return nil
		}
		return tx.Carts.Clear(ctx, cart.ID)
	})
}

// CheckoutInput — параметры оформления корзины.
type CheckoutInput struct {
	ShippingAddress string
	BillingAddress  string
	// ClearCart по умолчанию true.
	ClearCart *bool
}

func (in CheckoutInput) clearCart() bool {
	return in.ClearCart == nil || *in.ClearCart
}

// Checkout превращает корзину в заказ одной транзакцией: проверка остатков,
// создание заказа, списание, пересчёт суммы и очистка корзины.
// Любая нехватка остатка откатывает всё, включая созданную оболочку заказа.
func (s *Service) Checkout(ctx context.Context, actor domain.Actor, in CheckoutInput) (domain.Order, error) {
	var order domain.Order
	err := s.store.InTx(ctx, func(tx domain.Repositories) error {
		cart, err := tx.Carts.GetByUser(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if cart.IsEmpty() {
			return domain.ErrCartEmpty
		}

		ids := make([]int64, 0, len(cart.Items))
		for _, line := range cart.Items {
			ids = append(ids, line.ProductID)
		}
		ledger, err := stock.LockAvailable(ctx, tx.Products, ids)
		if err != nil {
			return err
		}

		for _, line := range cart.Items {
			product, ok := ledger.Product(line.ProductID)
			if !ok {
				// товар сняли с продажи после добавления в корзину
				product = domain.Product{ID: line.ProductID, Name: line.ProductName}
			}
			if !product.HasStock(line.Quantity) {
				return insufficient(product, line.Quantity)
			}
		}

		shell, err := tx.Orders.Create(ctx, domain.NewOrder(actor, in.ShippingAddress, in.BillingAddress, s.now()))
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range cart.Items {
			// Строгое списание: гонка после проверки откатывает всю транзакцию.
			if err := ledger.Decrement(line.ProductID, line.Quantity); err != nil {
				return err
			}
			name := line.ProductName
			if name == "" {
				product, _ := ledger.Product(line.ProductID)
				name = product.Name
			}
			if _, err := tx.Orders.AddItem(ctx, domain.OrderItem{
				OrderID:     shell.ID,
				ProductID:   line.ProductID,
				ProductName: name,
				Quantity:    line.Quantity,
				Price:       line.Price,
				CreatedAt:   s.now(),
			}); err != nil {
				return fmt.Errorf("add order item: %w", err)
			}
		}
		if err := ledger.Flush(ctx); err != nil {
			return err
		}

		current, err := tx.Orders.Get(ctx, shell.ID)
		if err != nil {
			return err
		}
		current.RecalculateTotal()
		order, err = tx.Orders.Save(ctx, current)
		if err != nil {
			return fmt.Errorf("persist order total: %w", err)
		}

		if in.clearCart() {
			if err := tx.Carts.Clear(ctx, cart.ID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}

		if err := s.journal.Timeline(ctx, tx, order.ID, domain.TimelineOrderCreated, "checkout"); err != nil {
			return err
		}
		return s.journal.Emit(ctx, tx, order, domain.EventOrderCreated, map[string]any{
			"items_count": len(order.Items),
			"source":      "checkout",
		})
	})
	if err != nil {
		s.metrics.RecordCheckout(checkoutResult(err))
		s.logger.WithError(err).WithField("user_id", actor.UserID).Info("checkout rejected")
		return domain.Order{}, err
	}

	s.metrics.RecordCheckout("success")
	s.logger.WithFields(log.Fields{
		"user_id":  actor.UserID,
		"order_id": order.ID,
		"total":    order.TotalAmount.StringFixed(domain.MoneyPlaces),
	}).Info("cart checked out")

	s.journal.Notify(ctx, s.store.Repositories().Outbox, domain.Notification{
		Kind:  domain.NotificationOrderConfirmation,
		Order: order,
	})
	return order, nil
}

func findItem(ctx context.Context, tx domain.Repositories, actor domain.Actor, itemID int64) (domain.CartItem, error) {
	cart, err := tx.Carts.GetByUser(ctx, actor.UserID)
	if err != nil {
		return domain.CartItem{}, err
	}
	for _, item := range cart.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return domain.CartItem{}, domain.ErrCartItemNotFound
}

func validateQuantity(qty int) error {
	if qty < 1 {
		return domain.NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
	}
	return nil
}

func insufficient(product domain.Product, requested int) error {
	return &domain.StockInsufficientError{
		ProductID:   product.ID,
		ProductName: product.Name,
		Requested:   requested,
		Available:   product.StockQuantity,
	}
}

func checkoutResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_missing"
	default:
		return "error"
	}
}
