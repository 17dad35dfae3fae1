package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ взят в работу.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted — оплата подтверждена, заказ завершён.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён, остатки возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CRMSyncStatus — результат последней синхронизации заказа с CRM.
type CRMSyncStatus string

const (
	CRMSyncNone    CRMSyncStatus = ""
	CRMSyncSuccess CRMSyncStatus = "success"
	CRMSyncFailed  CRMSyncStatus = "failed"
)

// OrderNumberPrefix — префикс человекочитаемого номера заказа.
const OrderNumberPrefix = "ORD-"

// NewOrderNumber генерирует уникальный номер заказа, производный от времени создания.
func NewOrderNumber(now time.Time) string {
	return OrderNumberPrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// OrderItem — позиция заказа со снимком цены.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
	CreatedAt   time.Time
}

// Recompute пересчитывает подытог позиции. Вызывается при каждой записи.
func (i *OrderItem) Recompute() {
	i.Subtotal = RoundMoney(i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID                int64
	OrderNumber       string
	CustomerID        int64
	CustomerEmail     string
	CustomerName      string
	TotalAmount       decimal.Decimal
	Status            OrderStatus
	ShippingAddress   string
	BillingAddress    string
	PaymentIntentID   string
	PaymentCustomerID string
	CRMSyncStatus     CRMSyncStatus
	IsActive          bool
	IsDeleted         bool
	Items             []OrderItem
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrder создаёт оболочку заказа в статусе pending.
func NewOrder(customer Actor, shipping, billing string, now time.Time) Order {
	return Order{
		OrderNumber:     NewOrderNumber(now),
		CustomerID:      customer.UserID,
		CustomerEmail:   customer.Email,
		CustomerName:    customer.Name,
		TotalAmount:     decimal.Zero,
		Status:          OrderStatusPending,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Visible сообщает, доступен ли заказ для чтения (soft delete фильтр).
func (o *Order) Visible() bool {
	return o.IsActive && !o.IsDeleted
}

// OwnedBy проверяет, принадлежит ли заказ пользователю.
func (o *Order) OwnedBy(userID int64) bool {
	return o.CustomerID == userID
}

// RecalculateTotal выставляет TotalAmount равным сумме подытогов позиций.
func (o *Order) RecalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal)
	}
	o.TotalAmount = RoundMoney(total)
	return o.TotalAmount
}

// FindItem возвращает позицию заказа по идентификатору.
func (o *Order) FindItem(itemID int64) (OrderItem, bool) {
	for _, item := range o.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return OrderItem{}, false
}

// SoftDelete помечает заказ удалённым. Остатки при этом не возвращаются.
func (o *Order) SoftDelete(now time.Time) {
	o.IsDeleted = true
	o.IsActive = false
	o.UpdatedAt = now
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, NewValidationError("order_number", "order number is required"))
	}
	if !o.Status.Valid() {
		errs = append(errs, NewValidationError("status", "unknown status"))
	}

	calc := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, NewValidationError("quantity", "item quantity must be greater than zero"))
		}
		if item.Price.IsNegative() {
			errs = append(errs, NewValidationError("price", "item price must be non-negative"))
		}
		calc = calc.Add(item.Subtotal)
	}
	if !RoundMoney(calc).Equal(o.TotalAmount) {
		errs = append(errs, NewValidationError("total_amount", "order total does not match items sum"))
	}

	return errs
}
