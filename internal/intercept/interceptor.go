// Package intercept routes outgoing requests through the response cache.
//
// Requests under the API prefix are network-first: a live response always
// wins, and the API partition only answers when the network fails. All other
// requests are cache-first with no revalidation.
package intercept

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bakery-storefront-edge/internal/cache"
)

// Interceptor is an http.RoundTripper applying the cache policy.
type Interceptor struct {
	next      http.RoundTripper
	manager   *cache.Manager
	writer    *Writer
	apiPrefix string
	log       *zap.SugaredLogger
}

// New wraps next. A nil next uses http.DefaultTransport.
func New(next http.RoundTripper, manager *cache.Manager, writer *Writer, apiPrefix string, log *zap.SugaredLogger) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	return &Interceptor{
		next:      next,
		manager:   manager,
		writer:    writer,
		apiPrefix: apiPrefix,
		log:       log,
	}
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasPrefix(req.URL.Path, i.apiPrefix) {
		return i.networkFirst(req)
	}
	return i.cacheFirst(req)
}

func (i *Interceptor) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := i.next.RoundTrip(req)
	if err == nil && req.Method == http.MethodGet && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		err = i.storeCopy(cache.API, req, resp)
	}
	if err == nil {
		return resp, nil
	}

	if cached, ok := i.manager.Match(req.Context(), cache.API, req); ok {
		i.log.Infof("network failed for %s, serving from cache: %v", req.URL, err)
		return cached, nil
	}
	return nil, err
}

func (i *Interceptor) cacheFirst(req *http.Request) (*http.Response, error) {
	if cached, ok := i.manager.Match(req.Context(), cache.Static, req); ok {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return cached, nil
	}

	resp, err := i.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if req.Method != http.MethodGet || resp.StatusCode != http.StatusOK || !i.sameOrigin(req) {
		return resp, nil
	}
	if err := i.storeCopy(cache.Static, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// storeCopy duplicates resp, hands the copy to the background writer and
// leaves resp readable for the caller.
func (i *Interceptor) storeCopy(ns cache.Namespace, req *http.Request, resp *http.Response) error {
	entry, err := cache.Snapshot(resp)
	if err != nil {
		return fmt.Errorf("copy response of %s: %w", req.URL, err)
	}
	i.writer.Dispatch(ns, req, entry)
	return nil
}

func (i *Interceptor) sameOrigin(req *http.Request) bool {
	origin := i.manager.Origin()
	if origin == nil {
		return true
	}
	return strings.EqualFold(req.URL.Scheme, origin.Scheme) && strings.EqualFold(req.URL.Host, origin.Host)
}
