package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is returned when an order payload breaks its invariants.
var ErrInvalidOrder = errors.New("invalid order")

// OrderItem is a single cart line as sent to the order endpoint.
type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
}

// OrderPayload is the body of POST /api/orders.
type OrderPayload struct {
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerPhone   string      `json:"customer_phone"`
	PickupTime      string      `json:"pickup_time"`
	SpecialRequests string      `json:"special_requests,omitempty"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
}

// ComputedTotal sums price*quantity over the items.
func (p OrderPayload) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	return total
}

// Validate checks that items are present and total_amount matches the lines.
func (p OrderPayload) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrInvalidOrder)
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("%w: items[%d].id is required", ErrInvalidOrder, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrInvalidOrder, i)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: items[%d].price must not be negative", ErrInvalidOrder, i)
		}
	}

	want := p.ComputedTotal().Round(2)
	got := decimal.NewFromFloat(p.TotalAmount).Round(2)
	if !want.Equal(got) {
		return fmt.Errorf("%w: total_amount %s does not match items total %s", ErrInvalidOrder, got.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

// Order is the stored order returned by the remote API. Queued orders are
// rendered with the same shape using the local id and status "queued".
type Order struct {
	ID string `json:"id"`
	OrderPayload
	OrderDate string `json:"order_date,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Order statuses seen by the storefront.
const (
	OrderStatusPending = "pending"
	OrderStatusQueued  = "queued"
)

// MenuItem is an entry of GET /api/menu/{category}.
type MenuItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Image       string   `json:"image"`
	Ingredients []string `json:"ingredients,omitempty"`
	Available   bool     `json:"available"`
}

// PopularItem is one row of the admin "popular items" aggregate.
type PopularItem struct {
	Name  string `json:"_id"`
	Count int    `json:"count"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalOrders  int           `json:"total_orders"`
	TotalRevenue float64       `json:"total_revenue"`
	PopularItems []PopularItem `json:"popular_items"`
}
