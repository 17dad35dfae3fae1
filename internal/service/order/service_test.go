package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	admin    = domain.Actor{UserID: 1, Email: "admin@example.com", Role: domain.RoleAdmin}
	customer = domain.Actor{UserID: 2, Email: "buyer@example.com", Name: "Buyer", Role: domain.RoleCustomer}
	stranger = domain.Actor{UserID: 3, Email: "other@example.com", Role: domain.RoleCustomer}
)

type OrderServiceSuite struct {
	suite.Suite

	ctx     context.Context
	store   *memory.Store
	service *Service
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.service = NewService(s.store, nil, nil, nil)
}

func (s *OrderServiceSuite) product(name, price string, stock int) domain.Product {
	p, err := s.store.Repositories().Products.Create(s.ctx, domain.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	})
	s.Require().NoError(err)
	return p
}

func (s *OrderServiceSuite) stock(id int64) int {
	p, err := s.store.Repositories().Products.Get(s.ctx, id)
	s.Require().NoError(err)
	return p.StockQuantity
}

func (s *OrderServiceSuite) setStock(id int64, qty int) {
	s.Require().NoError(s.store.Repositories().Products.UpdateStock(s.ctx, id, qty))
}

func (s *OrderServiceSuite) createOrder(actor domain.Actor, items ...ItemInput) domain.Order {
	order, err := s.service.Create(s.ctx, actor, CreateInput{ShippingAddress: "Addr", Items: items})
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) setStatus(actor domain.Actor, id int64, status domain.OrderStatus) (domain.Order, error) {
	return s.service.Update(s.ctx, actor, id, UpdateInput{Status: &status})
}

func (s *OrderServiceSuite) timelineTypes(orderID int64) []string {
	events, err := s.store.Repositories().Timeline.List(s.ctx, orderID)
	s.Require().NoError(err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func (s *OrderServiceSuite) TestCreateUsesLivePriceAndDecrements() {
	a := s.product("A", "10.00", 5)
	b := s.product("B", "2.50", 4)

	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2}, ItemInput{ProductID: b.ID, Quantity: 3})

	s.Equal("27.50", order.TotalAmount.StringFixed(2))
	s.Equal(customer.UserID, order.CustomerID)
	s.Equal(customer.Email, order.CustomerEmail)
	s.Equal(3, s.stock(a.ID))
	s.Equal(1, s.stock(b.ID))
	s.Empty(order.ValidateInvariants())
	s.Contains(s.timelineTypes(order.ID), domain.TimelineOrderCreated)
}

func (s *OrderServiceSuite) TestCreateRejectsAndRollsBack() {
	a := s.product("A", "10.00", 5)
	b := s.product("B", "1.00", 1)

	_, err := s.service.Create(s.ctx, customer, CreateInput{Items: []ItemInput{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
	}})
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(5, s.stock(a.ID))

	_, err = s.service.Create(s.ctx, customer, CreateInput{Items: []ItemInput{{ProductID: 999, Quantity: 1}}})
	var vErr *domain.ValidationError
	s.ErrorAs(err, &vErr)

	_, err = s.service.Create(s.ctx, customer, CreateInput{})
	s.ErrorAs(err, &vErr)

	list, err := s.service.List(s.ctx, admin, 0)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *OrderServiceSuite) TestListAndGetRespectOwnership() {
	p := s.product("A", "1.00", 10)
	mine := s.createOrder(customer, ItemInput{ProductID: p.ID, Quantity: 1})
	theirs := s.createOrder(stranger, ItemInput{ProductID: p.ID, Quantity: 1})

	list, err := s.service.List(s.ctx, customer, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(mine.ID, list[0].ID)

	all, err := s.service.List(s.ctx, admin, 0)
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.service.Get(s.ctx, customer, theirs.ID)
	s.ErrorIs(err, domain.ErrPermissionDenied)

	got, err := s.service.Get(s.ctx, admin, theirs.ID)
	s.Require().NoError(err)
	s.Equal(theirs.OrderNumber, got.OrderNumber)
}

func (s *OrderServiceSuite) TestCancelRestoresStockAndUncancelRedecrementsWeakly() {
	a := s.product("A", "10.00", 5)
	b := s.product("B", "20.00", 1)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2}, ItemInput{ProductID: b.ID, Quantity: 1})
	s.Equal(3, s.stock(a.ID))
	s.Equal(0, s.stock(b.ID))

	cancelled, err := s.setStatus(customer, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.Equal(5, s.stock(a.ID))
	s.Equal(1, s.stock(b.ID))

	// B раскуплен, пока заказ был отменён
	s.setStock(b.ID, 0)

	reopened, err := s.setStatus(admin, order.ID, domain.OrderStatusPending)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPending, reopened.Status)
	s.Equal(3, s.stock(a.ID))
	s.Equal(0, s.stock(b.ID), "item without stock is left as is")
	s.Contains(s.timelineTypes(order.ID), domain.TimelineStockNotRestored)
}

func (s *OrderServiceSuite) TestSameStatusIsNoop() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.setStatus(customer, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(5, s.stock(a.ID))

	_, err = s.setStatus(admin, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(5, s.stock(a.ID), "second cancel must not restore twice")
}

func (s *OrderServiceSuite) TestCustomerPermissions() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.setStatus(customer, order.ID, domain.OrderStatusCompleted)
	s.ErrorIs(err, domain.ErrPermissionDenied)

	_, err = s.setStatus(stranger, order.ID, domain.OrderStatusCancelled)
	s.ErrorIs(err, domain.ErrPermissionDenied)

	_, err = s.setStatus(admin, order.ID, domain.OrderStatusProcessing)
	s.Require().NoError(err)

	addr := "New addr"
	_, err = s.service.Update(s.ctx, customer, order.ID, UpdateInput{ShippingAddress: &addr})
	s.ErrorIs(err, domain.ErrOrderNotPending)
	s.EqualError(err, "Only pending orders can be updated")

	err = s.service.Delete(s.ctx, customer, order.ID)
	s.EqualError(err, "Only pending orders can be deleted")
}

func (s *OrderServiceSuite) TestTerminalStatesNeedOverride() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.service.Transition(s.ctx, TransitionRequest{OrderID: order.ID, To: domain.OrderStatusCompleted})
	s.Require().NoError(err)

	_, err = s.service.Transition(s.ctx, TransitionRequest{OrderID: order.ID, To: domain.OrderStatusPending})
	s.ErrorIs(err, domain.ErrInvalidTransition)

	reopened, err := s.setStatus(admin, order.ID, domain.OrderStatusProcessing)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessing, reopened.Status)
}

func (s *OrderServiceSuite) TestInvalidStatusValue() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.setStatus(admin, order.ID, domain.OrderStatus("shipped"))
	var vErr *domain.ValidationError
	s.Require().ErrorAs(err, &vErr)
	s.Equal("status", vErr.Field)
}

func (s *OrderServiceSuite) TestDeleteIsSoftAndKeepsStock() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2})

	s.Require().NoError(s.service.Delete(s.ctx, customer, order.ID))
	s.Equal(3, s.stock(a.ID))

	_, err := s.service.Get(s.ctx, admin, order.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestTransitionFromGate() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})
	_, err := s.setStatus(admin, order.ID, domain.OrderStatusProcessing)
	s.Require().NoError(err)

	res, err := s.service.Transition(s.ctx, TransitionRequest{
		OrderID: order.ID,
		To:      domain.OrderStatusCancelled,
		From:    []domain.OrderStatus{domain.OrderStatusPending},
	})
	s.Require().NoError(err)
	s.False(res.Changed)
	s.Equal(domain.OrderStatusProcessing, res.Order.Status)
	s.Equal(4, s.stock(a.ID))

	res, err = s.service.Transition(s.ctx, TransitionRequest{OrderID: order.ID, To: domain.OrderStatusCompleted})
	s.Require().NoError(err)
	s.True(res.Changed)
	s.Equal(domain.OrderStatusProcessing, res.From)

	res, err = s.service.Transition(s.ctx, TransitionRequest{OrderID: order.ID, To: domain.OrderStatusCompleted})
	s.Require().NoError(err)
	s.False(res.Changed)
}

func (s *OrderServiceSuite) TestEmitsStatusChangedEvent() {
	a := s.product("A", "1.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 1})

	_, err := s.setStatus(customer, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)

	pending, err := s.store.Repositories().Outbox.PullPending(s.ctx, 10)
	s.Require().NoError(err)
	types := make([]string, 0, len(pending))
	for _, m := range pending {
		types = append(types, m.EventType)
	}
	s.Equal([]string{domain.EventOrderCreated, domain.EventOrderStatusChanged}, types)
}

type conflictingStore struct {
	domain.Store
	conflicts int
	calls     int
}

func (c *conflictingStore) InTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	c.calls++
	if c.calls <= c.conflicts {
		return domain.ErrOrderVersionConflict
	}
	return c.Store.InTx(ctx, fn)
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		conflicts int
		wantCalls int
		wantErr   bool
	}{
		{name: "no conflict", conflicts: 0, wantCalls: 1},
		{name: "recovers", conflicts: 2, wantCalls: 3},
		{name: "exhausted", conflicts: 5, wantCalls: 3, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := &conflictingStore{Store: memory.NewStore(), conflicts: tc.conflicts}
			svc := NewService(store, nil, nil, nil)
			svc.baseDelay = time.Millisecond

			err := svc.withRetry(context.Background(), 1, "test", func(domain.Repositories) error { return nil })
			if tc.wantErr {
				require.True(t, domain.IsVersionConflict(err))
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.wantCalls, store.calls)
		})
	}
}

func (s *OrderServiceSuite) rawStock(id int64) int {
	var p domain.Product
	err := s.store.InTx(s.ctx, func(tx domain.Repositories) error {
		var err error
		p, err = tx.Products.GetAnyForUpdate(s.ctx, id)
		return err
	})
	s.Require().NoError(err)
	return p.StockQuantity
}

func (s *OrderServiceSuite) withdraw(id int64) {
	p, err := s.store.Repositories().Products.Get(s.ctx, id)
	s.Require().NoError(err)
	p.IsActive = false
	s.Require().NoError(s.store.Repositories().Products.Save(s.ctx, p))
}

func (s *OrderServiceSuite) TestCancelRestoresStockOfWithdrawnProduct() {
	a := s.product("A", "10.00", 5)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 2})
	s.withdraw(a.ID)

	_, err := s.setStatus(customer, order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(5, s.rawStock(a.ID))

	_, err = s.service.Get(s.ctx, customer, order.ID)
	s.Require().NoError(err)
	_, err = s.store.Repositories().Products.Get(s.ctx, a.ID)
	s.ErrorIs(err, domain.ErrProductNotFound, "withdrawn product stays hidden from the catalog")

	_, err = s.setStatus(admin, order.ID, domain.OrderStatusPending)
	s.Require().NoError(err)
	s.Equal(3, s.rawStock(a.ID), "reopening takes the units again")
}

func (s *OrderServiceSuite) TestFailedPaymentCancelRestoresWithdrawnProduct() {
	a := s.product("A", "10.00", 4)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 3})
	s.withdraw(a.ID)

	res, err := s.service.Transition(s.ctx, TransitionRequest{
		OrderID: order.ID,
		To:      domain.OrderStatusCancelled,
		Reason:  "payment failed",
		From:    []domain.OrderStatus{domain.OrderStatusPending},
	})
	s.Require().NoError(err)
	s.True(res.Changed)
	s.Equal(4, s.rawStock(a.ID))
}

func (s *OrderServiceSuite) TestItemEditsReturnStockOfWithdrawnProduct() {
	a := s.product("A", "1.00", 10)
	b := s.product("B", "1.00", 10)
	order := s.createOrder(customer, ItemInput{ProductID: a.ID, Quantity: 4}, ItemInput{ProductID: b.ID, Quantity: 3})
	s.withdraw(a.ID)
	s.withdraw(b.ID)

	_, err := s.service.UpdateItemQuantity(s.ctx, admin, order.ID, order.Items[0].ID, 1)
	s.Require().NoError(err)
	s.Equal(9, s.rawStock(a.ID))

	_, err = s.service.RemoveItem(s.ctx, admin, order.ID, order.Items[1].ID)
	s.Require().NoError(err)
	s.Equal(10, s.rawStock(b.ID))
}

func TestCreate_ConcurrentOrdersNeverOversell(t *testing.T) {
	const (
		initialStock = 20
		buyers       = 50
	)
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, nil, nil, nil)

	product, err := store.Repositories().Products.Create(ctx, domain.Product{
		Name:          "Limited",
		Price:         decimal.RequireFromString("5.00"),
		StockQuantity: initialStock,
		IsActive:      true,
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			actor := domain.Actor{UserID: userID, Email: "buyer@example.com", Role: domain.RoleCustomer}
			_, err := svc.Create(ctx, actor, CreateInput{Items: []ItemInput{{ProductID: product.ID, Quantity: 1}}})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	require.Equal(t, int32(initialStock), succeeded.Load())
	require.Equal(t, int32(buyers-initialStock), rejected.Load())

	left, err := store.Repositories().Products.Get(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, left.StockQuantity)

	orders, err := store.Repositories().Orders.List(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, initialStock)
}
