package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product — товар каталога со счётчиком складского остатка.
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	IsActive      bool
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Visible сообщает, доступен ли товар для чтения (soft delete фильтр).
func (p *Product) Visible() bool {
	return p.IsActive && !p.IsDeleted
}

// HasStock проверяет, покрывает ли остаток запрошенное количество.
func (p *Product) HasStock(qty int) bool {
	return qty >= 0 && p.StockQuantity >= qty
}

// DecrementStock списывает остаток. Уход в минус запрещён.
func (p *Product) DecrementStock(qty int) error {
	if !p.HasStock(qty) {
		return &StockInsufficientError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.StockQuantity,
		}
	}
	p.StockQuantity -= qty
	return nil
}

// TryDecrementStock списывает остаток только если его хватает.
// При нехватке остаток не меняется и возвращается false.
func (p *Product) TryDecrementStock(qty int) bool {
	if !p.HasStock(qty) {
		return false
	}
	p.StockQuantity -= qty
	return true
}

// RestoreStock возвращает количество на склад.
func (p *Product) RestoreStock(qty int) {
	if qty <= 0 {
		return
	}
	p.StockQuantity += qty
}
