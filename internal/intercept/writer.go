package intercept

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"bakery-storefront-edge/internal/cache"
	"bakery-storefront-edge/internal/metrics"
)

const writeQueueDepth = 64

type writeJob struct {
	ns    cache.Namespace
	req   *http.Request
	entry *cache.Entry
}

// Writer stores response copies in the background. Writes are best-effort:
// a full queue drops the job, and a job lost to a shutdown is simply
// repopulated by the next successful fetch.
type Writer struct {
	size    int
	jobs    chan writeJob
	manager *cache.Manager
	log     *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWriter creates a writer with size workers.
func NewWriter(size int, manager *cache.Manager, log *zap.SugaredLogger) *Writer {
	if size <= 0 {
		size = 1
	}
	return &Writer{
		size:    size,
		jobs:    make(chan writeJob, writeQueueDepth),
		manager: manager,
		log:     log,
	}
}

// Start launches the worker goroutines. Cache writes are detached from
// ctx's values only; cancelling ctx stops the workers.
func (w *Writer) Start(ctx context.Context) {
	for i := 0; i < w.size; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}
}

func (w *Writer) worker(ctx context.Context, id int) {
	defer w.wg.Done()
	w.log.Debugf("cache writer %d started", id)
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debugf("cache writer %d drained", id)
				return
			}
			w.store(ctx, job)
		case <-ctx.Done():
			w.log.Debugf("cache writer %d shutting down", id)
			return
		}
	}
}

func (w *Writer) store(ctx context.Context, job writeJob) {
	if err := w.manager.PutEntry(context.WithoutCancel(ctx), job.ns, job.req, job.entry); err != nil {
		w.log.Warnf("background cache write for %s failed: %v", job.req.URL, err)
	}
}

// Dispatch queues a write without blocking. It reports whether the job
// was accepted.
func (w *Writer) Dispatch(ns cache.Namespace, req *http.Request, entry *cache.Entry) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}

	job := writeJob{ns: ns, req: req.Clone(context.Background()), entry: entry}
	select {
	case w.jobs <- job:
		return true
	default:
		metrics.CacheOps.WithLabelValues(w.manager.Partitions().Name(ns), "dropped").Inc()
		w.log.Debugf("cache write queue full, dropping %s", req.URL)
		return false
	}
}

// Close stops accepting jobs and waits for queued writes to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
