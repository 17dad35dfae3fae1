// Package stock ведёт складские остатки в рамках одной транзакции хранилища.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger держит заблокированные товары транзакции и накапливает изменения остатков.
// Flush записывает изменённые остатки в хранилище.
type Ledger struct {
	repo     domain.ProductRepository
	products map[int64]domain.Product
	dirty    map[int64]struct{}
}

// Lock блокирует товары по возрастанию id. Отсутствующий товар — ошибка.
func Lock(ctx context.Context, repo domain.ProductRepository, ids []int64) (*Ledger, error) {
	return lock(ctx, repo.GetForUpdate, repo, ids, false)
}

// LockAvailable блокирует видимые товары, пропуская снятые с продажи.
// Для новых списаний: вызывающий сам решает, что делать с отсутствующими.
func LockAvailable(ctx context.Context, repo domain.ProductRepository, ids []int64) (*Ledger, error) {
	return lock(ctx, repo.GetForUpdate, repo, ids, true)
}

// LockForReturn блокирует товары независимо от видимости в каталоге.
// Для возврата остатков и повторного списания по уже оформленным позициям.
func LockForReturn(ctx context.Context, repo domain.ProductRepository, ids []int64) (*Ledger, error) {
	return lock(ctx, repo.GetAnyForUpdate, repo, ids, true)
}

type lockFunc func(ctx context.Context, id int64) (domain.Product, error)

func lock(ctx context.Context, get lockFunc, repo domain.ProductRepository, ids []int64, skipMissing bool) (*Ledger, error) {
	l := &Ledger{
		repo:     repo,
		products: make(map[int64]domain.Product, len(ids)),
		dirty:    make(map[int64]struct{}),
	}
	for _, id := range uniqueSorted(ids) {
		product, err := get(ctx, id)
		if err != nil {
			if skipMissing && errors.Is(err, domain.ErrProductNotFound) {
				continue
			}
			return nil, fmt.Errorf("lock product %d: %w", id, err)
		}
		l.products[id] = product
	}
	return l, nil
}

// Product возвращает текущее (с учётом несохранённых изменений) состояние товара.
func (l *Ledger) Product(id int64) (domain.Product, bool) {
	p, ok := l.products[id]
	return p, ok
}

// Decrement строго списывает остаток; при нехватке возвращает *domain.StockInsufficientError.
func (l *Ledger) Decrement(id int64, qty int) error {
	p, ok := l.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrProductNotFound)
	}
	if err := p.DecrementStock(qty); err != nil {
		return err
	}
	l.put(p)
	return nil
}

// TryDecrement списывает остаток, только если его хватает.
func (l *Ledger) TryDecrement(id int64, qty int) bool {
	p, ok := l.products[id]
	if !ok || !p.TryDecrementStock(qty) {
		return false
	}
	l.put(p)
	return true
}

// Restore возвращает количество на склад. false — товар не заблокирован.
func (l *Ledger) Restore(id int64, qty int) bool {
	p, ok := l.products[id]
	if !ok {
		return false
	}
	p.RestoreStock(qty)
	l.put(p)
	return true
}

// Flush сохраняет изменённые остатки в порядке возрастания id.
func (l *Ledger) Flush(ctx context.Context) error {
	ids := make([]int64, 0, len(l.dirty))
	for id := range l.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := l.products[id]
		if err := l.repo.UpdateStock(ctx, id, p.StockQuantity); err != nil {
			return fmt.Errorf("update stock for product %d: %w", id, err)
		}
		delete(l.dirty, id)
	}
	return nil
}

func (l *Ledger) put(p domain.Product) {
	l.products[p.ID] = p
	l.dirty[p.ID] = struct{}{}
}

func uniqueSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProductIDs собирает идентификаторы товаров из позиций заказа.
func ProductIDs(items []domain.OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
