// Package queue persists orders that could not be submitted yet.
package queue

import (
	"context"
	"errors"

	"bakery-storefront-edge/internal/model"
)

// ErrStorageFull means the queue could not durably record an order, either
// because the configured quota is exhausted or the database ran out of space.
var ErrStorageFull = errors.New("pending order storage is full")

// Store is a durable FIFO of pending orders.
type Store interface {
	// Enqueue appends order and returns the stored record.
	Enqueue(ctx context.Context, order model.OrderPayload) (model.PendingOrder, error)
	// List returns every queued order in insertion order.
	List(ctx context.Context) ([]model.PendingOrder, error)
	// Remove deletes the order with id. Unknown ids are a no-op.
	Remove(ctx context.Context, id string) error
}
