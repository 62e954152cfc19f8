package domain

import "time"

// Order statuses, in the sequence an order normally moves through.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// NextOrderStatus returns the status that follows the given one, or the same
// status when it is terminal or unknown.
func NextOrderStatus(status string) string {
	switch status {
	case OrderPending:
		return OrderConfirmed
	case OrderConfirmed:
		return OrderShipped
	case OrderShipped:
		return OrderDelivered
	default:
		return status
	}
}

// CartItem is one product in a user's cart joined with its catalog data.
type CartItem struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// Subtotal returns the line total for the item in cents.
func (i CartItem) Subtotal() int64 {
	return i.PriceCents * int64(i.Quantity)
}

// CartTotal sums the line totals of all items in cents.
func CartTotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// Order is a placed order.
type Order struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Status          string    `json:"status"`
	ShippingAddress string    `json:"shipping_address"`
	TotalCents      int64     `json:"total_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderItem is one line of a placed order, with the price frozen at purchase
// time.
type OrderItem struct {
	OrderID    int64  `json:"order_id"`
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}
