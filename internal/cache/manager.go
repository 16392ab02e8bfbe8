package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bakery-storefront-edge/internal/metrics"
)

// Namespace selects one of the two partitions.
type Namespace string

const (
	Static Namespace = "static"
	API    Namespace = "api"
)

// Partitions maps namespaces to their versioned partition names.
type Partitions struct {
	Static string
	API    string
}

// Name returns the partition name for ns.
func (p Partitions) Name(ns Namespace) string {
	if ns == API {
		return p.API
	}
	return p.Static
}

// Expected is the set of partitions that survive activation.
func (p Partitions) Expected() []string {
	return []string{p.Static, p.API}
}

// URLFailure records one resource that could not be cached at install time.
type URLFailure struct {
	URL string
	Err error
}

// PartialFailure is returned by InitializeStatic when some resources of the
// seed list could not be fetched or stored. The others are still cached.
type PartialFailure struct {
	Failures []URLFailure
	Total    int
}

func (e *PartialFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.URL, f.Err))
	}
	return fmt.Sprintf("%d of %d static resources were not cached (%s)", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

const installConcurrency = 4

// Manager owns the static and API partitions and their storage.
type Manager struct {
	storage    Storage
	partitions Partitions
	origin     *url.URL
	client     *http.Client
	log        *zap.SugaredLogger
}

// NewManager creates a Manager. client is used for install-time population
// and must talk to the network directly.
func NewManager(storage Storage, partitions Partitions, origin *url.URL, client *http.Client, log *zap.SugaredLogger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		storage:    storage,
		partitions: partitions,
		origin:     origin,
		client:     client,
		log:        log,
	}
}

// Partitions returns the versioned partition names.
func (m *Manager) Partitions() Partitions { return m.partitions }

// Origin is the base URL relative seed paths are resolved against.
func (m *Manager) Origin() *url.URL { return m.origin }

// InitializeStatic fetches and stores every URL of the seed list in the
// static partition. Failures are logged and collected into a
// *PartialFailure; they never stop the remaining URLs.
func (m *Manager) InitializeStatic(ctx context.Context, urls []string) error {
	partition := m.partitions.Static
	if err := m.storage.Open(ctx, partition); err != nil {
		return err
	}
	m.log.Infof("caching %d static files into %s", len(urls), partition)

	var (
		mu       sync.Mutex
		failures []URLFailure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for _, raw := range urls {
		g.Go(func() error {
			if err := m.fetchAndStore(gctx, Static, raw, func(code int) bool { return code == http.StatusOK }); err != nil {
				m.log.Warnf("failed to cache static resource %s: %v", raw, err)
				mu.Lock()
				failures = append(failures, URLFailure{URL: raw, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].URL < failures[j].URL })
	return &PartialFailure{Failures: failures, Total: len(urls)}
}

// PrefetchAPI warms the API partition. Any failure is skipped silently.
func (m *Manager) PrefetchAPI(ctx context.Context, urls []string) {
	if err := m.storage.Open(ctx, m.partitions.API); err != nil {
		m.log.Debugf("api partition unavailable, skipping prefetch: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for _, raw := range urls {
		g.Go(func() error {
			if err := m.fetchAndStore(gctx, API, raw, isSuccess); err != nil {
				m.log.Debugf("failed to cache %s: %v", raw, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) fetchAndStore(ctx context.Context, ns Namespace, raw string, accept func(int) bool) error {
	target, err := m.Resolve(raw)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if !accept(resp.StatusCode) {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return m.Put(ctx, ns, req, resp)
}

// Resolve turns a seed path into an absolute URL on the origin.
func (m *Manager) Resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if m.origin == nil {
		return ref.String(), nil
	}
	return m.origin.ResolveReference(ref).String(), nil
}

// Match looks req up in the partition of ns. Storage errors count as a miss.
func (m *Manager) Match(ctx context.Context, ns Namespace, req *http.Request) (*http.Response, bool) {
	partition := m.partitions.Name(ns)
	if req.Method != http.MethodGet {
		return nil, false
	}

	entry, found, err := m.storage.Get(ctx, partition, RequestKey(req))
	if err != nil {
		m.log.Warnf("cache lookup in %s failed: %v", partition, err)
		found = false
	}
	if !found {
		metrics.CacheOps.WithLabelValues(partition, "miss").Inc()
		return nil, false
	}
	metrics.CacheOps.WithLabelValues(partition, "hit").Inc()
	return entry.Response(req), true
}

// Put stores a copy of resp. resp stays readable for the caller.
func (m *Manager) Put(ctx context.Context, ns Namespace, req *http.Request, resp *http.Response) error {
	entry, err := Snapshot(resp)
	if err != nil {
		return err
	}
	return m.PutEntry(ctx, ns, req, entry)
}

// PutEntry stores an already duplicated response.
func (m *Manager) PutEntry(ctx context.Context, ns Namespace, req *http.Request, entry *Entry) error {
	partition := m.partitions.Name(ns)
	if req.Method != http.MethodGet {
		return fmt.Errorf("cannot cache %s request", req.Method)
	}
	if err := m.storage.Set(ctx, partition, RequestKey(req), entry); err != nil {
		metrics.CacheOps.WithLabelValues(partition, "store_error").Inc()
		return err
	}
	metrics.CacheOps.WithLabelValues(partition, "store").Inc()
	return nil
}

// PurgeStale deletes every partition whose name is not in expected and
// returns the deleted names.
func (m *Manager) PurgeStale(ctx context.Context, expected ...string) ([]string, error) {
	keep := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		keep[name] = struct{}{}
	}

	names, err := m.storage.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		deleted []string
		errs    []error
	)
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		m.log.Infof("deleting old cache %s", name)
		if _, err := m.storage.DeletePartition(ctx, name); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.CachePartitionsPurged.Inc()
		deleted = append(deleted, name)
	}
	return deleted, errors.Join(errs...)
}

// Close releases the storage.
func (m *Manager) Close() error {
	return m.storage.Close()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
