package order

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

// Правка позиций доступна только администратору. Позиции отменённого заказа
// уже возвращены на склад, поэтому их правка остатки не двигает.

// AddItem добавляет позицию по текущей цене товара со строгим списанием.
func (s *Service) AddItem(ctx context.Context, actor domain.Actor, orderID int64, in ItemInput) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, domain.ErrPermissionDenied
	}
	if in.Quantity < 1 {
		return domain.Order{}, domain.NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
	}

	var order domain.Order
	err := s.withRetry(ctx, orderID, "add item", func(tx domain.Repositories) error {
		current, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		ledger, err := stock.LockAvailable(ctx, tx.Products, []int64{in.ProductID})
		if err != nil {
			return err
		}
		product, ok := ledger.Product(in.ProductID)
		if !ok {
			return domain.NewValidationError("product_id", "Product not found or inactive")
		}
		if current.Status != domain.OrderStatusCancelled {
			if err := ledger.Decrement(in.ProductID, in.Quantity); err != nil {
				return err
			}
			if err := ledger.Flush(ctx); err != nil {
				return err
			}
		}

		if _, err := tx.Orders.AddItem(ctx, domain.OrderItem{
			OrderID:     orderID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			Price:       product.Price,
			CreatedAt:   s.now(),
		}); err != nil {
			return fmt.Errorf("add order item: %w", err)
		}

		order, err = s.persistTotal(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.journal.Timeline(ctx, tx, orderID, domain.TimelineItemAdded,
			fmt.Sprintf("product %d x%d", product.ID, in.Quantity))
	})
	return order, err
}

// UpdateItemQuantity меняет количество позиции: сначала возвращает старое количество,
// затем списывает новое, только если остатка хватает. При нехватке списание
// пропускается и фиксируется в timeline.
func (s *Service) UpdateItemQuantity(ctx context.Context, actor domain.Actor, orderID, itemID int64, qty int) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, domain.ErrPermissionDenied
	}
	if qty < 1 {
		return domain.Order{}, domain.NewValidationError("quantity", "Ensure this value is greater than or equal to 1.")
	}

	var order domain.Order
	err := s.withRetry(ctx, orderID, "update item", func(tx domain.Repositories) error {
		current, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		item, ok := current.FindItem(itemID)
		if !ok {
			return domain.ErrOrderItemNotFound
		}

		if current.Status != domain.OrderStatusCancelled {
			ledger, err := stock.LockForReturn(ctx, tx.Products, []int64{item.ProductID})
			if err != nil {
				return err
			}
			ledger.Restore(item.ProductID, item.Quantity)
			if !ledger.TryDecrement(item.ProductID, qty) {
				updated := item
				updated.Quantity = qty
				if err := s.recordSkipped(ctx, tx, orderID, updated, ledger); err != nil {
					return err
				}
			}
			if err := ledger.Flush(ctx); err != nil {
				return err
			}
		}

		previous := item.Quantity
		item.Quantity = qty
		if err := tx.Orders.UpdateItem(ctx, item); err != nil {
			return err
		}

		order, err = s.persistTotal(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.journal.Timeline(ctx, tx, orderID, domain.TimelineItemUpdated,
			fmt.Sprintf("item %d quantity %d -> %d", itemID, previous, qty))
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"item_id":  itemID,
		"quantity": qty,
	}).Info("order item updated")
	return order, nil
}

// RemoveItem удаляет позицию; для неотменённого заказа количество возвращается на склад.
func (s *Service) RemoveItem(ctx context.Context, actor domain.Actor, orderID, itemID int64) (domain.Order, error) {
	if !actor.IsAdmin() {
		return domain.Order{}, domain.ErrPermissionDenied
	}

	var order domain.Order
	err := s.withRetry(ctx, orderID, "remove item", func(tx domain.Repositories) error {
		current, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		item, ok := current.FindItem(itemID)
		if !ok {
			return domain.ErrOrderItemNotFound
		}

		if current.Status != domain.OrderStatusCancelled {
			ledger, err := stock.LockForReturn(ctx, tx.Products, []int64{item.ProductID})
			if err != nil {
				return err
			}
			ledger.Restore(item.ProductID, item.Quantity)
			if err := ledger.Flush(ctx); err != nil {
				return err
			}
		}

		if err := tx.Orders.DeleteItem(ctx, orderID, itemID); err != nil {
			return err
		}

		order, err = s.persistTotal(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return s.journal.Timeline(ctx, tx, orderID, domain.TimelineItemRemoved,
			fmt.Sprintf("item %d product %d x%d", itemID, item.ProductID, item.Quantity))
	})
	return order, err
}
