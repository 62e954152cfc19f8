package store

import (
	"context"
	"errors"
	"fmt"

	"tg_storefront_bot/internal/domain"
)

var seedCategories = []domain.Category{
	{ID: "flower", Title: "Flower"},
	{ID: "edibles", Title: "Edibles"},
	{ID: "accessories", Title: "Accessories"},
}

var seedProducts = []domain.Product{
	{ID: "flower-og", Title: "OG Kush", Body: "Classic indica-dominant strain.", PriceCents: 3500, CategoryID: "flower"},
	{ID: "flower-haze", Title: "Amnesia Haze", Body: "Uplifting sativa with citrus notes.", PriceCents: 4000, CategoryID: "flower"},
	{ID: "edible-gummy", Title: "Fruit Gummies", Body: "Assorted 10-pack.", PriceCents: 1500, CategoryID: "edibles"},
	{ID: "acc-grinder", Title: "Herb Grinder", Body: "4-piece aluminium grinder.", PriceCents: 1200, CategoryID: "accessories"},
}

// Seed inserts the demo catalog when the tables are empty of those rows.
// Existing rows are left untouched so the routine is safe to run every start.
func (m *Manager) Seed(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	for _, c := range seedCategories {
		_, err := m.db.ExecContext(ctx, `
INSERT INTO categories(idx, title) VALUES($1, $2)
ON CONFLICT (idx) DO NOTHING
`, c.ID, c.Title)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}

	for _, p := range seedProducts {
		_, err := m.db.ExecContext(ctx, `
INSERT INTO products(idx, title, body, image, price, tag)
VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT (idx) DO NOTHING
`, p.ID, p.Title, p.Body, p.Image, p.PriceCents, p.CategoryID)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}

	return nil
}
