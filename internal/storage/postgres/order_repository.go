package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `
	id, order_number, customer_id, customer_email, customer_name, total_amount, status,
	shipping_address, billing_address, payment_intent_id, payment_customer_id, crm_sync_status,
	is_active, is_deleted, version, created_at, updated_at`

const orderVisible = `is_active AND NOT is_deleted`

type orderRepository struct {
	q querier
}

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                       domain.Order
		status                      string
		intentID, customerID, crmSt sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.CustomerEmail, &order.CustomerName,
		&order.TotalAmount, &status, &order.ShippingAddress, &order.BillingAddress,
		&intentID, &customerID, &crmSt,
		&order.IsActive, &order.IsDeleted, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentIntentID = intentID.String
	order.PaymentCustomerID = customerID.String
	order.CRMSyncStatus = domain.CRMSyncStatus(crmSt.String)
	return order, nil
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	order.Version = 1
	order.Items = nil
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, customer_id, customer_email, customer_name, total_amount, status,
			shipping_address, billing_address, payment_intent_id, payment_customer_id, crm_sync_status,
			is_active, is_deleted, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`,
		order.OrderNumber, order.CustomerID, order.CustomerEmail, order.CustomerName,
		order.TotalAmount, string(order.Status), order.ShippingAddress, order.BillingAddress,
		nullString(order.PaymentIntentID), nullString(order.PaymentCustomerID), nullString(string(order.CRMSyncStatus)),
		order.IsActive, order.IsDeleted, order.Version, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderVersionConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.getBy(ctx, `id = $1`, id, "")
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.getBy(ctx, `id = $1`, id, " FOR UPDATE")
}

func (r *orderRepository) GetByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if intentID == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.getBy(ctx, `payment_intent_id = $1`, intentID, "")
}

func (r *orderRepository) getBy(ctx context.Context, cond string, arg any, lock string) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+cond+` AND `+orderVisible+lock, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + orderVisible
	args := make([]any, 0, 2)
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	// Позиции читаем после закрытия курсора: внутри транзакции соединение одно.
	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET customer_email = $1,
		    customer_name = $2,
		    total_amount = $3,
		    status = $4,
		    shipping_address = $5,
		    billing_address = $6,
		    payment_intent_id = $7,
		    payment_customer_id = $8,
		    crm_sync_status = $9,
		    is_active = $10,
		    is_deleted = $11,
		    version = version + 1,
		    updated_at = $12
		WHERE id = $13
		  AND version = $14
		  AND `+orderVisible,
		order.CustomerEmail,
		order.CustomerName,
		order.TotalAmount,
		string(order.Status),
		order.ShippingAddress,
		order.BillingAddress,
		nullString(order.PaymentIntentID),
		nullString(order.PaymentCustomerID),
		nullString(string(order.CRMSyncStatus)),
		order.IsActive,
		order.IsDeleted,
		now,
		order.ID,
		order.Version,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return domain.Order{}, err
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	order.Version++
	order.UpdatedAt = now
	return order, nil
}

func (r *orderRepository) ClaimPaymentIntent(ctx context.Context, orderID int64, intentID string) (string, error) {
	return r.claim(ctx, orderID, "payment_intent_id", intentID)
}

func (r *orderRepository) ClaimPaymentCustomer(ctx context.Context, orderID int64, customerID string) (string, error) {
	return r.claim(ctx, orderID, "payment_customer_id", customerID)
}

// claim записывает значение в колонку, только если она ещё пуста, и возвращает
// итоговое значение. column — константа из этого файла, не пользовательский ввод.
func (r *orderRepository) claim(ctx context.Context, orderID int64, column, value string) (string, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var stored sql.NullString
	err := r.q.QueryRowContext(ctx, `
		UPDATE orders
		SET `+column+` = COALESCE(NULLIF(`+column+`, ''), $2),
		    version = CASE WHEN COALESCE(`+column+`, '') = '' THEN version + 1 ELSE version END,
		    updated_at = NOW()
		WHERE id = $1 AND `+orderVisible+`
		RETURNING `+column, orderID, value).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrOrderNotFound
		}
		return "", fmt.Errorf("claim %s: %w", column, err)
	}
	return stored.String, nil
}

func (r *orderRepository) SetCRMSyncStatus(ctx context.Context, orderID int64, status domain.CRMSyncStatus) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET crm_sync_status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, orderID, nullString(string(status)))
	if err != nil {
		return fmt.Errorf("update crm sync status: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) AddItem(ctx context.Context, item domain.OrderItem) (domain.OrderItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Recompute()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, price, subtotal, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.Subtotal, item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("insert order item: %w", err)
	}
	return item, nil
}

func (r *orderRepository) UpdateItem(ctx context.Context, item domain.OrderItem) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	item.Recompute()
	res, err := r.q.ExecContext(ctx, `
		UPDATE order_items
		SET quantity = $3, price = $4, subtotal = $5
		WHERE id = $1 AND order_id = $2
	`, item.ID, item.OrderID, item.Quantity, item.Price, item.Subtotal)
	if err != nil {
		return fmt.Errorf("update order item: %w", err)
	}
	return expectAffected(res, domain.ErrOrderItemNotFound)
}

func (r *orderRepository) DeleteItem(ctx context.Context, orderID, itemID int64) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM order_items WHERE id = $1 AND order_id = $2`, itemID, orderID)
	if err != nil {
		return fmt.Errorf("delete order item: %w", err)
	}
	return expectAffected(res, domain.ErrOrderItemNotFound)
}

func (r *orderRepository) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Price, &item.Subtotal, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID int64) (bool, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 AND `+orderVisible, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
