package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func croissants() OrderPayload {
	return OrderPayload{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "555-0100",
		PickupTime:    "09:30",
		Items: []OrderItem{
			{ID: "croissant", Name: "Artisan Croissants", Price: 3.50, Quantity: 2, Category: "bakery"},
		},
		TotalAmount: 7.00,
	}
}

func TestOrderPayload_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(p *OrderPayload)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *OrderPayload) {}},
		{name: "empty items", mutate: func(p *OrderPayload) { p.Items = nil }, wantErr: true},
		{name: "zero quantity", mutate: func(p *OrderPayload) { p.Items[0].Quantity = 0 }, wantErr: true},
		{name: "missing item id", mutate: func(p *OrderPayload) { p.Items[0].ID = " " }, wantErr: true},
		{name: "total mismatch", mutate: func(p *OrderPayload) { p.TotalAmount = 7.01 }, wantErr: true},
		{
			name: "float drift is tolerated at cent precision",
			mutate: func(p *OrderPayload) {
				p.Items = append(p.Items, OrderItem{ID: "latte", Price: 0.1, Quantity: 3})
				p.TotalAmount = 7.0 + 0.1*3
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := croissants()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrder)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrder_JSONFlattensPayload(t *testing.T) {
	raw := `{"id":"srv-1","customer_name":"Ada","items":[{"id":"croissant","name":"Artisan Croissants","price":3.5,"quantity":2,"category":"bakery"}],"total_amount":7,"order_date":"2024-05-01T08:00:00.123456","status":"pending"}`

	var order Order
	require.NoError(t, json.Unmarshal([]byte(raw), &order))
	assert.Equal(t, "srv-1", order.ID)
	assert.Equal(t, "Ada", order.CustomerName)
	assert.Equal(t, 7.0, order.TotalAmount)
	assert.Equal(t, OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestPendingOrder_PseudoOrder(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	pending := PendingOrder{ID: "local-1", Data: croissants(), Timestamp: ts}

	order := pending.PseudoOrder()
	assert.Equal(t, "local-1", order.ID)
	assert.Equal(t, OrderStatusQueued, order.Status)
	assert.Equal(t, "2024-05-01T08:00:00Z", order.OrderDate)
	assert.Equal(t, 7.00, order.TotalAmount)
}
