package domain

import (
	"fmt"
	"time"
)

// Category groups products in the catalog.
type Category struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a single catalog entry. Price is stored in cents.
type Product struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Image      string    `json:"image"`
	PriceCents int64     `json:"price_cents"`
	CategoryID string    `json:"category_id"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"created_at"`
}

// PriceLabel renders a cent amount as a dollar string for chat messages.
func PriceLabel(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
