package store

import (
	"context"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

// CartItems lists the user's cart joined with product titles and prices.
func (m *Manager) CartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT p.idx, p.title, p.price, c.quantity
FROM cart c
JOIN products p ON c.product_id = p.idx
WHERE c.user_id = $1
ORDER BY p.title
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Title, &item.PriceCents, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// AddToCart adds one unit of the product to the user's cart, creating the line
// when absent.
func (m *Manager) AddToCart(ctx context.Context, userID int64, productID string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	_, err := m.db.ExecContext(ctx, `
INSERT INTO cart(user_id, product_id, quantity)
VALUES($1, $2, 1)
ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart.quantity + 1
`, userID, productID)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}

	return nil
}

// DecrementCartItem removes one unit of the product, dropping the line when
// the quantity reaches zero.
func (m *Manager) DecrementCartItem(ctx context.Context, userID int64, productID string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	_, err := m.db.ExecContext(ctx, `
UPDATE cart SET quantity = quantity - 1
WHERE user_id=$1 AND product_id=$2
`, userID, productID)
	if err != nil {
		return fmt.Errorf("decrement cart item: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
DELETE FROM cart WHERE user_id=$1 AND product_id=$2 AND quantity <= 0
`, userID, productID)
	if err != nil {
		return fmt.Errorf("drop empty cart line: %w", err)
	}

	return nil
}

// RemoveFromCart drops the product's line from the user's cart entirely.
func (m *Manager) RemoveFromCart(ctx context.Context, userID int64, productID string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	_, err := m.db.ExecContext(ctx, `
DELETE FROM cart WHERE user_id=$1 AND product_id=$2
`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}

	return nil
}

// ClearCart empties the user's cart.
func (m *Manager) ClearCart(ctx context.Context, userID int64) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM cart WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return nil
}
