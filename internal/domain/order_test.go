package domain

import "testing"

func TestCartTotal(t *testing.T) {
	items := []CartItem{
		{ProductID: "a", PriceCents: 1250, Quantity: 2},
		{ProductID: "b", PriceCents: 400, Quantity: 1},
	}

	if got := CartTotal(items); got != 2900 {
		t.Fatalf("expected total 2900, got %d", got)
	}

	if got := CartTotal(nil); got != 0 {
		t.Fatalf("expected empty cart total 0, got %d", got)
	}
}

func TestNextOrderStatus(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{OrderPending, OrderConfirmed},
		{OrderConfirmed, OrderShipped},
		{OrderShipped, OrderDelivered},
		{OrderDelivered, OrderDelivered},
		{OrderCancelled, OrderCancelled},
		{"weird", "weird"},
	}

	for _, tt := range tests {
		if got := NextOrderStatus(tt.from); got != tt.want {
			t.Fatalf("NextOrderStatus(%q) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestPriceLabel(t *testing.T) {
	if got := PriceLabel(1250); got != "$12.50" {
		t.Fatalf("expected $12.50, got %s", got)
	}
	if got := PriceLabel(5); got != "$0.05" {
		t.Fatalf("expected $0.05, got %s", got)
	}
}
