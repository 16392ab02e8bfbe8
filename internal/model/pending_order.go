package model

import "time"

// PendingOrder is an order payload queued locally while the upstream was unreachable.
type PendingOrder struct {
	ID        string       `json:"id"`
	Data      OrderPayload `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

// PseudoOrder renders the queued order the way a confirmed one would look,
// so the storefront can show a confirmation without waiting for the server.
func (p PendingOrder) PseudoOrder() Order {
	return Order{
		ID:           p.ID,
		OrderPayload: p.Data,
		OrderDate:    p.Timestamp.UTC().Format(time.RFC3339),
		Status:       OrderStatusQueued,
	}
}
