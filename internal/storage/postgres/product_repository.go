package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `id, name, price, stock_quantity, is_active, is_deleted, created_at, updated_at`

type productRepository struct {
	q querier
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (name, price, stock_quantity, is_active, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`,
		product.Name, product.Price, product.StockQuantity, product.IsActive, product.IsDeleted,
		product.CreatedAt, product.UpdatedAt,
	).Scan(&product.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

const visibleProduct = ` AND is_active AND NOT is_deleted`

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, visibleProduct)
}

func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, visibleProduct+" FOR UPDATE")
}

func (r *productRepository) GetAnyForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *productRepository) get(ctx context.Context, id int64, suffix string) (domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1`+suffix, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.IsActive, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) UpdateStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return domain.NewValidationError("stock_quantity", "stock quantity must be non-negative")
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2, updated_at = $3
		WHERE id = $1
	`, id, stock, time.Now().UTC())
	if err != nil {
		if isCheckViolation(err) {
			return domain.NewValidationError("stock_quantity", "stock quantity must be non-negative")
		}
		return fmt.Errorf("update product stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) Save(ctx context.Context, product domain.Product) error {
	if product.StockQuantity < 0 {
		return domain.NewValidationError("stock_quantity", "stock quantity must be non-negative")
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock_quantity = $4, is_active = $5, is_deleted = $6, updated_at = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.StockQuantity, product.IsActive, product.IsDeleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
