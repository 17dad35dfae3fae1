package order

import (
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *OrderServiceSuite) TestItemOperationsRequireAdmin() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.service.AddItem(s.ctx, customer, order.ID, ItemInput{ProductID: a.ID, Quantity: 1})
	s.ErrorIs(err, domain.ErrPermissionDenied)
	_, err = s.service.UpdateItemQuantity(s.ctx, customer, order.ID, order.Items[0].ID, 2)
	s.ErrorIs(err, domain.ErrPermissionDenied)
	_, err = s.service.RemoveItem(s.ctx, customer, order.ID, order.Items[0].ID)
	s.ErrorIs(err, domain.ErrPermissionDenied)
}

func (s *OrderServiceSuite) TestAddItemStrictDecrement() {
	a := s.product("A", "1.00", 5)
	b := s.product("B", "4.00", 2)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	updated, err := s.service.AddItem(s.ctx, admin, order.ID, ItemInput{ProductID: b.ID, Quantity: 2})
	s.Require().NoError(err)
	s.Len(updated.Items, 2)
	s.Equal("9.00", updated.TotalAmount.StringFixed(2))
	s.Equal(0, s.stock(b.ID))

	_, err = s.service.AddItem(s.ctx, admin, order.ID, ItemInput{ProductID: b.ID, Quantity: 1})
	s.ErrorIs(err, domain.ErrInsufficientStock)
}

func (s *OrderServiceSuite) TestUpdateItemQuantityRestoresThenDecrements() {
	a := s.product("A", "2.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2})
	s.Equal(3, s.stock(a.ID))

	updated, err := s.service.UpdateItemQuantity(s.ctx, admin, order.ID, order.Items[0].ID, 4)
	s.Require().NoError(err)
	s.Equal(1, s.stock(a.ID))
	s.Equal(4, updated.Items[0].Quantity)
	s.Equal("8.00", updated.Items[0].Subtotal.StringFixed(2))
	s.Equal("8.00", updated.TotalAmount.StringFixed(2))
}

func (s *OrderServiceSuite) TestUpdateItemQuantitySkipsDecrementWhenShort() {
	a := s.product("A", "2.00", 3)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2})
	s.Equal(1, s.stock(a.ID))

	// после возврата 2 на складе 3, новое количество 10 не покрывается:
	// списание пропускается, позиция всё равно получает 10
	updated, err := s.service.UpdateItemQuantity(s.ctx, admin, order.ID, order.Items[0].ID, 10)
	s.Require().NoError(err)
	s.Equal(3, s.stock(a.ID))
	s.Equal(10, updated.Items[0].Quantity)
	s.Equal("20.00", updated.TotalAmount.StringFixed(2))
	s.Contains(s.timelineTypes(order.ID), domain.TimelineStockNotRestored)
}

func (s *OrderServiceSuite) TestRemoveItemRestoresStock() {
	a := s.product("A", "1.00", 5)
	b := s.product("B", "2.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2}, ItemInput{ProductID: b.ID, Quantity: 1})

	updated, err := s.service.RemoveItem(s.ctx, admin, order.ID, order.Items[0].ID)
	s.Require().NoError(err)
	s.Len(updated.Items, 1)
	s.Equal("2.00", updated.TotalAmount.StringFixed(2))
	s.Equal(5, s.stock(a.ID))

	_, err = s.service.RemoveItem(s.ctx, admin, order.ID, 9999)
	s.ErrorIs(err, domain.ErrOrderItemNotFound)
}

func (s *OrderServiceSuite) TestCancelledOrderItemsDoNotMoveStock() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2})
	_, err := s.setStatus(customer, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(5, s.stock(a.ID))

	_, err = s.service.UpdateItemQuantity(s.ctx, admin, order.ID, order.Items[0].ID, 3)
	s.Require().NoError(err)
	s.Equal(5, s.stock(a.ID))

	_, err = s.service.RemoveItem(s.ctx, admin, order.ID, order.Items[0].ID)
	s.Require().NoError(err)
	s.Equal(5, s.stock(a.ID))
}
