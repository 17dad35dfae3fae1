package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart — корзина пользователя. Не резервирует остатки.
type Cart struct {
	ID        int64
	UserID    int64
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem — позиция корзины со снимком цены на момент добавления.
type CartItem struct {
	ID          int64
	CartID      int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subtotal = цена × количество.
func (i CartItem) Subtotal() decimal.Decimal {
	return RoundMoney(i.Price.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// Total суммирует подытоги всех позиций корзины.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return RoundMoney(total)
}

// IsEmpty сообщает, есть ли в корзине позиции.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindByProduct возвращает позицию корзины для товара, если она есть.
func (c *Cart) FindByProduct(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// MergeLine добавляет количество к существующей позиции либо создаёт новую.
// Цена всегда перезаписывается последним снимком.
func (c *Cart) MergeLine(product Product, qty int, now time.Time) CartItem {
	if item, ok := c.FindByProduct(product.ID); ok {
		item.Quantity += qty
		item.Price = product.Price
		item.ProductName = product.Name
		item.UpdatedAt = now
		return item
	}
	return CartItem{
		CartID:      c.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		Price:       product.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
