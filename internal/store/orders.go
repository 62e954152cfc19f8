package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

// CreateOrder turns the given cart items into an order with its order_items
// rows and clears the cart, all in one transaction. It returns the new order
// id.
func (m *Manager) CreateOrder(ctx context.Context, userID int64, address string, items []domain.CartItem) (int64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("store manager is not initialized")
	}
	if len(items) == 0 {
		return 0, errors.New("cannot create an order from an empty cart")
	}

	total := domain.CartTotal(items)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin order: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var orderID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO orders(user_id, status, shipping_address, total_amount)
VALUES($1, $2, $3, $4)
RETURNING order_id
`, userID, domain.OrderPending, address, total).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
INSERT INTO order_items(order_id, product_id, quantity, price)
VALUES($1, $2, $3, $4)
`, orderID, item.ProductID, item.Quantity, item.PriceCents)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE user_id=$1`, userID); err != nil {
		return 0, fmt.Errorf("clear cart after order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}

	return orderID, nil
}

// OrdersByUser lists the user's orders, newest first.
func (m *Manager) OrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT order_id, user_id, status, COALESCE(shipping_address, ''), total_amount, created_at
FROM orders
WHERE user_id=$1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// OpenOrders lists every order not yet delivered or cancelled, oldest first,
// for the admin queue.
func (m *Manager) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT order_id, user_id, status, COALESCE(shipping_address, ''), total_amount, created_at
FROM orders
WHERE status NOT IN ($1, $2)
ORDER BY created_at
`, domain.OrderDelivered, domain.OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.ShippingAddress, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetOrder fetches one order by id. The boolean reports presence.
func (m *Manager) GetOrder(ctx context.Context, orderID int64) (domain.Order, bool, error) {
	if m == nil || m.db == nil {
		return domain.Order{}, false, errors.New("store manager is not initialized")
	}

	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
SELECT order_id, user_id, status, COALESCE(shipping_address, ''), total_amount, created_at
FROM orders
WHERE order_id=$1
`, orderID).Scan(&o.ID, &o.UserID, &o.Status, &o.ShippingAddress, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("get order: %w", err)
	}

	return o, true, nil
}

// OrderItems lists the lines of one order joined with product titles.
func (m *Manager) OrderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT oi.order_id, oi.product_id, p.title, oi.quantity, oi.price
FROM order_items oi
JOIN products p ON oi.product_id = p.idx
WHERE oi.order_id=$1
ORDER BY p.title
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Title, &item.Quantity, &item.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// AdvanceOrder moves the order to the next status in the sequence and returns
// the new status.
func (m *Manager) AdvanceOrder(ctx context.Context, orderID int64) (string, error) {
	if m == nil || m.db == nil {
		return "", errors.New("store manager is not initialized")
	}

	order, ok, err := m.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("order %d not found", orderID)
	}

	next := domain.NextOrderStatus(order.Status)
	if next == order.Status {
		return order.Status, nil
	}

	if _, err := m.db.ExecContext(ctx, `
UPDATE orders SET status=$1 WHERE order_id=$2
`, next, orderID); err != nil {
		return "", fmt.Errorf("advance order: %w", err)
	}

	return next, nil
}

// CancelOrder marks the order cancelled.
func (m *Manager) CancelOrder(ctx context.Context, orderID int64) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	if _, err := m.db.ExecContext(ctx, `
UPDATE orders SET status=$1 WHERE order_id=$2
`, domain.OrderCancelled, orderID); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	return nil
}
