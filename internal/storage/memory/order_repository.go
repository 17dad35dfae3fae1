package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	binding
}

// Create сохраняет оболочку заказа и присваивает ID. Версия новой записи — 1.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	err := r.write(func(st *state) error {
		st.seq.order++
		order.ID = st.seq.order
		order.Version = 1
		order.Items = nil
		st.orders[order.ID] = order
		return nil
	})
	return order, err
}

// Get возвращает видимый заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	err := r.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok || !o.Visible() {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(o)
		return nil
	})
	return order, err
}

func (r *orderRepositoryInMemory) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepositoryInMemory) GetByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	var order domain.Order
	err := r.read(func(st *state) error {
		if intentID == "" {
			return domain.ErrOrderNotFound
		}
		for _, o := range st.orders {
			if o.PaymentIntentID == intentID && o.Visible() {
				order = cloneOrder(o)
				return nil
			}
		}
		return domain.ErrOrderNotFound
	})
	return order, err
}

// List возвращает видимые заказы по убыванию даты создания, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var result []domain.Order
	err := r.read(func(st *state) error {
		result = make([]domain.Order, 0, len(st.orders))
		for _, order := range st.orders {
			if !order.Visible() {
				continue
			}
			if filter.CustomerID != 0 && order.CustomerID != filter.CustomerID {
				continue
			}
			result = append(result, cloneOrder(order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Save перезаписывает шапку заказа, проверяя версию (optimistic locking).
// Позиции меняются только через AddItem/UpdateItem/DeleteItem.
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) (domain.Order, error) {
	err := r.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok || !current.Visible() {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}
		order.OrderNumber = current.OrderNumber
		order.CreatedAt = current.CreatedAt
		order.Items = current.Items
		order.Version++
		order.UpdatedAt = time.Now().UTC()
		st.orders[order.ID] = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return cloneOrder(order), nil
}

func (r *orderRepositoryInMemory) ClaimPaymentIntent(_ context.Context, orderID int64, intentID string) (string, error) {
	return r.claim(orderID, func(o *domain.Order) *string { return &o.PaymentIntentID }, intentID)
}

func (r *orderRepositoryInMemory) ClaimPaymentCustomer(_ context.Context, orderID int64, customerID string) (string, error) {
	return r.claim(orderID, func(o *domain.Order) *string { return &o.PaymentCustomerID }, customerID)
}

func (r *orderRepositoryInMemory) claim(orderID int64, field func(*domain.Order) *string, value string) (string, error) {
	var winner string
	err := r.write(func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok || !order.Visible() {
			return domain.ErrOrderNotFound
		}
		slot := field(&order)
		if *slot == "" {
			*slot = value
			order.Version++
			order.UpdatedAt = time.Now().UTC()
			st.orders[orderID] = order
		}
		winner = *slot
		return nil
	})
	return winner, err
}

func (r *orderRepositoryInMemory) SetCRMSyncStatus(_ context.Context, orderID int64, status domain.CRMSyncStatus) error {
	return r.write(func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order.CRMSyncStatus = status
		order.Version++
		order.UpdatedAt = time.Now().UTC()
		st.orders[orderID] = order
		return nil
	})
}

func (r *orderRepositoryInMemory) AddItem(_ context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	err := r.write(func(st *state) error {
		order, ok := st.orders[item.OrderID]
		if !ok || !order.Visible() {
			return domain.ErrOrderNotFound
		}
		st.seq.orderItem++
		item.ID = st.seq.orderItem
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		item.Recompute()
		order.Items = append(order.Items, item)
		st.orders[order.ID] = order
		return nil
	})
	return item, err
}

func (r *orderRepositoryInMemory) UpdateItem(_ context.Context, item domain.OrderItem) error {
	return r.write(func(st *state) error {
		order, ok := st.orders[item.OrderID]
		if !ok || !order.Visible() {
			return domain.ErrOrderNotFound
		}
		idx := orderItemIndex(order, item.ID)
		if idx < 0 {
			return domain.ErrOrderItemNotFound
		}
		item.Recompute()
		order.Items[idx] = item
		st.orders[order.ID] = order
		return nil
	})
}

func (r *orderRepositoryInMemory) DeleteItem(_ context.Context, orderID, itemID int64) error {
	return r.write(func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok || !order.Visible() {
			return domain.ErrOrderNotFound
		}
		idx := orderItemIndex(order, itemID)
		if idx < 0 {
			return domain.ErrOrderItemNotFound
		}
		order.Items = append(order.Items[:idx], order.Items[idx+1:]...)
		st.orders[orderID] = order
		return nil
	})
}

func orderItemIndex(order domain.Order, itemID int64) int {
	for i, item := range order.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
