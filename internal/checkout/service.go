// Package checkout is the storefront's entry point for placing orders.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bakery-storefront-edge/internal/metrics"
	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/orderapi"
	"bakery-storefront-edge/internal/queue"
)

// Outcome tells the UI how an order was handled.
type Outcome string

const (
	// Confirmed means the remote API stored the order.
	Confirmed Outcome = "confirmed"
	// Queued means the order is stored locally and will be synced later.
	Queued Outcome = "queued"
)

// Submitter posts an order to the remote endpoint.
type Submitter interface {
	SubmitOrder(ctx context.Context, payload model.OrderPayload) (*model.Order, error)
}

// Connectivity reports the advisory online flag.
type Connectivity interface {
	Online() bool
}

// SyncRequester registers a background sync.
type SyncRequester interface {
	RequestSync()
}

// Result of a submission. Order is the server's order when confirmed and a
// pseudo-order built from the local record when queued.
type Result struct {
	Outcome Outcome             `json:"outcome"`
	Order   model.Order         `json:"order"`
	Pending *model.PendingOrder `json:"pending,omitempty"`
}

// Service submits orders directly when online and queues them otherwise.
type Service struct {
	queue     queue.Store
	submitter Submitter
	conn      Connectivity
	sync      SyncRequester
	log       *zap.SugaredLogger
}

// NewService creates the submission facade.
func NewService(store queue.Store, submitter Submitter, conn Connectivity, sync SyncRequester, log *zap.SugaredLogger) *Service {
	return &Service{
		queue:     store,
		submitter: submitter,
		conn:      conn,
		sync:      sync,
		log:       log,
	}
}

// Submit places order. A network failure or a rejection while online still
// queues the order; only invalid payloads and queue write failures return
// an error.
func (s *Service) Submit(ctx context.Context, order model.OrderPayload) (Result, error) {
	if err := order.Validate(); err != nil {
		metrics.OrdersSubmitted.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	if s.conn.Online() {
		confirmed, err := s.submitter.SubmitOrder(ctx, order)
		if err == nil {
			metrics.OrdersSubmitted.WithLabelValues("confirmed").Inc()
			s.log.Infof("order %s confirmed for %s", confirmed.ID, order.CustomerName)
			return Result{Outcome: Confirmed, Order: *confirmed}, nil
		}

		var rejection *orderapi.RejectionError
		if errors.As(err, &rejection) {
			s.log.Warnf("remote api rejected order with status %d, queueing: %s", rejection.StatusCode, rejection.Body)
		} else {
			s.log.Warnf("direct submission failed, queueing: %v", err)
		}
	}

	pending, err := s.queue.Enqueue(ctx, order)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("order could not be queued: %w", err)
	}
	s.sync.RequestSync()
	metrics.OrdersSubmitted.WithLabelValues("queued").Inc()

	return Result{Outcome: Queued, Order: pending.PseudoOrder(), Pending: &pending}, nil
}
