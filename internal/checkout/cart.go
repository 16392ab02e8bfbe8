package checkout

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"bakery-storefront-edge/internal/model"
)

// CartItem is one cart line.
type CartItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
}

// Customer holds the checkout form fields.
type Customer struct {
	Name            string `json:"customer_name"`
	Email           string `json:"customer_email"`
	Phone           string `json:"customer_phone"`
	PickupTime      string `json:"pickup_time"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// Cart is a session-scoped shopping cart. It is safe for concurrent use.
type Cart struct {
	mu    sync.Mutex
	items []CartItem
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// Add puts one unit of item in the cart, merging with an existing line of
// the same id.
func (c *Cart) Add(item model.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i].Quantity++
			return
		}
	}
	c.items = append(c.items, CartItem{
		ID:       item.ID,
		Name:     item.Name,
		Price:    item.Price,
		Category: item.Category,
		Quantity: 1,
	})
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (c *Cart) UpdateQuantity(id string, quantity int) {
	if quantity <= 0 {
		c.Remove(id)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = quantity
		}
	}
}

// Remove deletes the line with id.
func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = slices.DeleteFunc(c.items, func(it CartItem) bool { return it.ID == id })
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// TotalItems is the sum of quantities.
func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, it := range c.items {
		total += it.Quantity
	}
	return total
}

// TotalPrice is the sum of price*quantity.
func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.items)
}

func total(items []CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// Payload builds the order body for the current cart.
func (c *Cart) Payload(customer Customer) model.OrderPayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]model.OrderItem, 0, len(c.items))
	for _, it := range c.items {
		items = append(items, model.OrderItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
			Category: it.Category,
		})
	}
	return model.OrderPayload{
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		PickupTime:      customer.PickupTime,
		SpecialRequests: customer.SpecialRequests,
		Items:           items,
		TotalAmount:     total(c.items).Round(2).InexactFloat64(),
	}
}
