package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepositoryInMemory struct {
	binding
}

// Create сохраняет товар и присваивает ему идентификатор.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	err := r.write(func(st *state) error {
		st.seq.product++
		product.ID = st.seq.product
		now := time.Now().UTC()
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		product.UpdatedAt = now
		st.products[product.ID] = product
		return nil
	})
	return product, err
}

// Get возвращает видимый товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok || !p.Visible() {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

// GetForUpdate в памяти совпадает с Get: транзакция уже держит мьютекс хранилища.
func (r *productRepositoryInMemory) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.Get(ctx, id)
}

// GetAnyForUpdate возвращает товар независимо от флагов видимости.
func (r *productRepositoryInMemory) GetAnyForUpdate(_ context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

// UpdateStock перезаписывает остаток товара.
func (r *productRepositoryInMemory) UpdateStock(_ context.Context, id int64, stock int) error {
	if stock < 0 {
		return domain.NewValidationError("stock_quantity", "stock quantity must be non-negative")
	}
	return r.write(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		p.StockQuantity = stock
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}

// Save перезаписывает карточку товара, сохраняя дату создания.
func (r *productRepositoryInMemory) Save(_ context.Context, product domain.Product) error {
	if product.StockQuantity < 0 {
		return domain.NewValidationError("stock_quantity", "stock quantity must be non-negative")
	}
	return r.write(func(st *state) error {
		current, ok := st.products[product.ID]
		if !ok {
			return domain.ErrProductNotFound
		}
		product.CreatedAt = current.CreatedAt
		product.UpdatedAt = time.Now().UTC()
		st.products[product.ID] = product
		return nil
	})
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
