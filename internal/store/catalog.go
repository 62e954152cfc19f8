package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

// Categories lists all catalog categories ordered by title.
func (m *Manager) Categories(ctx context.Context) ([]domain.Category, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT idx, title, created_at FROM categories ORDER BY title
`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// AddCategory inserts or retitles a category.
func (m *Manager) AddCategory(ctx context.Context, id, title string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if id == "" || title == "" {
		return errors.New("category id and title are required")
	}

	_, err := m.db.ExecContext(ctx, `
INSERT INTO categories(idx, title)
VALUES($1, $2)
ON CONFLICT (idx) DO UPDATE SET title=EXCLUDED.title
`, id, title)
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}

	return nil
}

const productColumns = `p.idx, p.title, COALESCE(p.body, ''), COALESCE(p.image, ''), p.price, COALESCE(p.tag, ''), COALESCE(c.title, ''), p.created_at`

func scanProduct(rows *sql.Rows) (domain.Product, error) {
	var p domain.Product
	err := rows.Scan(&p.ID, &p.Title, &p.Body, &p.Image, &p.PriceCents, &p.CategoryID, &p.Category, &p.CreatedAt)
	return p, err
}

// Products lists the whole catalog joined with category titles.
func (m *Manager) Products(ctx context.Context) ([]domain.Product, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT `+productColumns+`
FROM products p
LEFT JOIN categories c ON p.tag = c.idx
ORDER BY p.title
`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// ProductsByCategory lists the products tagged with the given category.
func (m *Manager) ProductsByCategory(ctx context.Context, categoryID string) ([]domain.Product, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("store manager is not initialized")
	}

	rows, err := m.db.QueryContext(ctx, `
SELECT `+productColumns+`
FROM products p
LEFT JOIN categories c ON p.tag = c.idx
WHERE p.tag = $1
ORDER BY p.title
`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct fetches one product by id. The boolean reports presence.
func (m *Manager) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	if m == nil || m.db == nil {
		return domain.Product{}, false, errors.New("store manager is not initialized")
	}

	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
SELECT `+productColumns+`
FROM products p
LEFT JOIN categories c ON p.tag = c.idx
WHERE p.idx = $1
`, id).Scan(&p.ID, &p.Title, &p.Body, &p.Image, &p.PriceCents, &p.CategoryID, &p.Category, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("get product: %w", err)
	}

	return p, true, nil
}

// AddProduct inserts or replaces a catalog entry.
func (m *Manager) AddProduct(ctx context.Context, p domain.Product) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if p.ID == "" || p.Title == "" {
		return errors.New("product id and title are required")
	}
	if p.PriceCents < 0 {
		return errors.New("product price must not be negative")
	}

	_, err := m.db.ExecContext(ctx, `
INSERT INTO products(idx, title, body, image, price, tag)
VALUES($1, $2, $3, $4, $5, NULLIF($6, ''))
ON CONFLICT (idx) DO UPDATE SET
  title=EXCLUDED.title, body=EXCLUDED.body, image=EXCLUDED.image,
  price=EXCLUDED.price, tag=EXCLUDED.tag
`, p.ID, p.Title, p.Body, p.Image, p.PriceCents, p.CategoryID)
	if err != nil {
		return fmt.Errorf("add product: %w", err)
	}

	return nil
}

// DeleteProduct removes a product together with any cart lines referencing it.
func (m *Manager) DeleteProduct(ctx context.Context, id string) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete product: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart WHERE product_id=$1`, id); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE idx=$1`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete product: %w", err)
	}

	return nil
}
