// Package syncer drains the pending-order queue into the remote API.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/metrics"
	"bakery-storefront-edge/internal/model"
	"bakery-storefront-edge/internal/orderapi"
	"bakery-storefront-edge/internal/queue"
)

// Submitter posts an order to the remote endpoint.
type Submitter interface {
	SubmitOrder(ctx context.Context, payload model.OrderPayload) (*model.Order, error)
}

// Connectivity is the part of the connectivity monitor the coordinator needs.
type Connectivity interface {
	Online() bool
	Restored() <-chan struct{}
}

// Observer is told about every queued order the server accepted.
type Observer interface {
	OrderSynced(ctx context.Context, pending model.PendingOrder, order *model.Order)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, pending model.PendingOrder, order *model.Order)

func (f ObserverFunc) OrderSynced(ctx context.Context, pending model.PendingOrder, order *model.Order) {
	f(ctx, pending, order)
}

// SyncedOrder pairs the local queue id with the order the server stored.
type SyncedOrder struct {
	LocalID string       `json:"local_id"`
	Order   *model.Order `json:"order"`
}

// Report summarizes one drain pass.
type Report struct {
	Attempted int           `json:"attempted"`
	Synced    []SyncedOrder `json:"synced"`
	Failed    []string      `json:"failed"`
	Remaining int           `json:"remaining"`
}

// Coordinator runs drain passes, at most one at a time.
type Coordinator struct {
	queue     queue.Store
	submitter Submitter
	conn      Connectivity
	tag       string
	retry     time.Duration
	log       *zap.SugaredLogger

	group     singleflight.Group
	draining  atomic.Bool
	requested atomic.Bool
	failures  atomic.Int64

	mu        sync.RWMutex
	observers []Observer

	wg sync.WaitGroup
}

// New creates a coordinator.
func New(store queue.Store, submitter Submitter, conn Connectivity, cfg config.SyncConfig, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		queue:     store,
		submitter: submitter,
		conn:      conn,
		tag:       cfg.Tag,
		retry:     cfg.RetryInterval,
		log:       log,
	}
}

// Tag is the sync registration name this coordinator answers to.
func (c *Coordinator) Tag() string { return c.tag }

// Observe registers o for every confirmed order.
func (c *Coordinator) Observe(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// Draining reports whether a pass is in flight.
func (c *Coordinator) Draining() bool { return c.draining.Load() }

// Failures is the cumulative count of failed submissions.
func (c *Coordinator) Failures() int64 { return c.failures.Load() }

// RequestSync registers a pending sync. Run drains on the next retry tick
// while online, and keeps the registration until the queue is empty.
func (c *Coordinator) RequestSync() { c.requested.Store(true) }

// SyncRequested reports whether a sync is registered.
func (c *Coordinator) SyncRequested() bool { return c.requested.Load() }

// Drain runs one pass over a snapshot of the queue. Callers arriving while a
// pass is in flight wait for it and share its report. The pass ignores
// cancellation of ctx.
func (c *Coordinator) Drain(ctx context.Context) (Report, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, shared := c.group.Do("drain", func() (any, error) {
		c.draining.Store(true)
		defer c.draining.Store(false)
		return c.pass(ctx)
	})
	if shared {
		c.log.Debug("joined in-flight drain pass")
	}
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

// Trigger starts a pass in the background. It is ignored while one is
// already running and reports whether a pass was started.
func (c *Coordinator) Trigger(ctx context.Context) bool {
	if c.draining.Load() {
		metrics.DrainTriggersIgnored.Inc()
		c.log.Debug("drain already in progress, ignoring trigger")
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.Drain(ctx); err != nil {
			c.log.Errorf("background sync failed: %v", err)
		}
	}()
	return true
}

// Wait blocks until passes started by Trigger have finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) pass(ctx context.Context) (Report, error) {
	orders, err := c.queue.List(ctx)
	if err != nil {
		return Report{}, err
	}
	c.log.Infof("syncing %d pending orders", len(orders))

	report := Report{Attempted: len(orders), Synced: []SyncedOrder{}, Failed: []string{}}
	for _, pending := range orders {
		order, err := c.submitter.SubmitOrder(ctx, pending.Data)
		if err != nil {
			c.recordFailure(pending, err)
			report.Failed = append(report.Failed, pending.ID)
			continue
		}

		if err := c.queue.Remove(ctx, pending.ID); err != nil {
			c.log.Errorf("order %s was accepted as %s but could not be removed from the queue: %v", pending.ID, order.ID, err)
		}
		metrics.OrdersSynced.Inc()
		c.log.Infof("order %s synced as %s", pending.ID, order.ID)
		report.Synced = append(report.Synced, SyncedOrder{LocalID: pending.ID, Order: order})
		c.notify(ctx, pending, order)
	}

	report.Remaining = len(report.Failed)
	if remaining, err := c.queue.List(ctx); err == nil {
		report.Remaining = len(remaining)
	}
	c.requested.Store(report.Remaining > 0)
	metrics.DrainPasses.Inc()
	metrics.PendingOrders.Set(float64(report.Remaining))
	return report, nil
}

func (c *Coordinator) recordFailure(pending model.PendingOrder, err error) {
	c.failures.Add(1)
	metrics.OrderSyncFailures.Inc()

	var rejection *orderapi.RejectionError
	if errors.As(err, &rejection) {
		c.log.Warnf("order %s rejected with status %d, keeping it queued: %s", pending.ID, rejection.StatusCode, rejection.Body)
		return
	}
	c.log.Warnf("failed to sync order %s, keeping it queued: %v", pending.ID, err)
}

func (c *Coordinator) notify(ctx context.Context, pending model.PendingOrder, order *model.Order) {
	c.mu.RLock()
	observers := c.observers
	c.mu.RUnlock()
	for _, o := range observers {
		o.OrderSynced(ctx, pending, order)
	}
}

// Run drains on every connectivity restoration and, while a sync is
// registered, on each retry tick when online. It returns when ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	restored := c.conn.Restored()

	retry := c.retry
	if retry <= 0 {
		retry = 30 * time.Second
	}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("sync coordinator shutting down")
			return
		case <-restored:
			c.Trigger(ctx)
		case <-ticker.C:
			if c.requested.Load() && c.conn.Online() {
				c.Trigger(ctx)
			}
		}
	}
}
