package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	q querier
}

func (r *cartRepository) GetByUser(ctx context.Context, userID int64) (domain.Cart, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	cart := domain.Cart{UserID: userID}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, nil
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

func (r *cartRepository) GetOrCreate(ctx context.Context, userID int64) (domain.Cart, error) {
	insertCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if _, err := r.q.ExecContext(insertCtx, `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES ($1,$2,$2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now); err != nil {
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return r.GetByUser(ctx, userID)
}

func (r *cartRepository) SaveItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	item.UpdatedAt = now

	if item.ID == 0 {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, product_name, quantity, price, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`,
			item.CartID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.CreatedAt, item.UpdatedAt,
		).Scan(&item.ID)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("insert cart item: %w", err)
		}
		return item, r.touch(ctx, item.CartID, now)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE cart_items
		SET product_name = $3, quantity = $4, price = $5, updated_at = $6
		WHERE id = $1 AND cart_id = $2
	`, item.ID, item.CartID, item.ProductName, item.Quantity, item.Price, item.UpdatedAt)
	if err != nil {
		return domain.CartItem{}, fmt.Errorf("update cart item: %w", err)
	}
	if err := expectAffected(res, domain.ErrCartItemNotFound); err != nil {
		return domain.CartItem{}, err
	}
	return item, r.touch(ctx, item.CartID, now)
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if err := expectAffected(res, domain.ErrCartItemNotFound); err != nil {
		return err
	}
	return r.touch(ctx, cartID, time.Now().UTC())
}

func (r *cartRepository) Clear(ctx context.Context, cartID int64) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.touch(ctx, cartID, time.Now().UTC())
}

func (r *cartRepository) touch(ctx context.Context, cartID int64, now time.Time) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, now); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func (r *cartRepository) loadItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, product_id, product_name, quantity, price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id ASC
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
