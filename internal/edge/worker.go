// Package edge exposes the install, activate and sync lifecycle events as
// plain method calls.
package edge

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bakery-storefront-edge/internal/cache"
	"bakery-storefront-edge/internal/syncer"
)

// Drainer runs one pass over the pending-order queue.
type Drainer interface {
	Drain(ctx context.Context) (syncer.Report, error)
}

// Worker is the lifecycle adapter around the cache manager and the sync
// coordinator.
type Worker struct {
	cache      *cache.Manager
	drainer    Drainer
	staticURLs []string
	apiURLs    []string
	syncTag    string
	log        *zap.SugaredLogger
}

// NewWorker creates the adapter.
func NewWorker(manager *cache.Manager, drainer Drainer, staticURLs, apiURLs []string, syncTag string, log *zap.SugaredLogger) *Worker {
	return &Worker{
		cache:      manager,
		drainer:    drainer,
		staticURLs: staticURLs,
		apiURLs:    apiURLs,
		syncTag:    syncTag,
		log:        log,
	}
}

// Install seeds the static partition and warms the API partition
// concurrently. Missing static resources are logged and do not fail the
// install; only storage errors do.
func (w *Worker) Install(ctx context.Context) error {
	w.log.Info("installing")

	var g errgroup.Group
	g.Go(func() error {
		err := w.cache.InitializeStatic(ctx, w.staticURLs)
		var partial *cache.PartialFailure
		if errors.As(err, &partial) {
			w.log.Warnf("install continues without some static resources: %v", partial)
			return nil
		}
		return err
	})
	g.Go(func() error {
		w.cache.PrefetchAPI(ctx, w.apiURLs)
		return nil
	})
	return g.Wait()
}

// Activate deletes every cache partition from an older version.
func (w *Worker) Activate(ctx context.Context) error {
	w.log.Info("activated")
	deleted, err := w.cache.PurgeStale(ctx, w.cache.Partitions().Expected()...)
	for _, name := range deleted {
		w.log.Infof("deleted old cache %s", name)
	}
	return err
}

// Sync handles a background sync event. Only the order tag drains the
// queue; other tags are ignored.
func (w *Worker) Sync(ctx context.Context, tag string) (syncer.Report, bool, error) {
	if tag != w.syncTag {
		w.log.Debugf("ignoring sync event %q", tag)
		return syncer.Report{}, false, nil
	}
	w.log.Info("syncing pending orders")
	report, err := w.drainer.Drain(ctx)
	return report, true, err
}
