package intercept

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bakery-storefront-edge/internal/cache"
)

const origin = "http://bakery.test"

type fixture struct {
	mock        *httpmock.MockTransport
	manager     *cache.Manager
	writer      *Writer
	interceptor *Interceptor
	client      *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	mock := httpmock.NewMockTransport()
	manager := cache.NewManager(
		cache.NewMemoryStorage(),
		cache.Partitions{Static: "artisan-bakery-v1", API: "artisan-bakery-api-v1"},
		u,
		&http.Client{Transport: mock},
		log,
	)
	writer := NewWriter(1, manager, log)
	ctx, cancel := context.WithCancel(context.Background())
	writer.Start(ctx)
	t.Cleanup(func() {
		writer.Close()
		cancel()
	})

	interceptor := New(mock, manager, writer, "/api/", log)
	return &fixture{
		mock:        mock,
		manager:     manager,
		writer:      writer,
		interceptor: interceptor,
		client:      &http.Client{Transport: interceptor},
	}
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, error) {
	t.Helper()
	return f.client.Get(origin + path)
}

func (f *fixture) cached(t *testing.T, ns cache.Namespace, rawURL string) (string, bool) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	resp, ok := f.manager.Match(context.Background(), ns, req)
	if !ok {
		return "", false
	}
	return body(t, resp), true
}

func (f *fixture) seed(t *testing.T, ns cache.Namespace, path, payload string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, origin+path, nil)
	require.NoError(t, err)
	require.NoError(t, f.manager.PutEntry(context.Background(), ns, req, &cache.Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(payload),
	}))
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInterceptor_NetworkFirstPopulatesAPIPartition(t *testing.T) {
	f := newFixture(t)
	live := `[{"id":"latte","name":"Latte","price":4.5}]`
	f.mock.RegisterResponder(http.MethodGet, origin+"/api/menu/cafe", httpmock.NewStringResponder(http.StatusOK, live))
	f.seed(t, cache.API, "/api/menu/cafe", `[{"id":"stale"}]`)

	resp, err := f.get(t, "/api/menu/cafe")
	require.NoError(t, err)
	assert.Equal(t, live, body(t, resp), "live data wins over the cached copy")

	// Flush the background writer.
	f.writer.Close()

	got, ok := f.cached(t, cache.API, origin+"/api/menu/cafe")
	require.True(t, ok)
	assert.Equal(t, live, got)
}

func TestInterceptor_NetworkFirstFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/api/menu/cafe", httpmock.NewErrorResponder(errors.New("connection refused")))
	f.seed(t, cache.API, "/api/menu/cafe", `[{"id":"cached"}]`)

	resp, err := f.get(t, "/api/menu/cafe")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `[{"id":"cached"}]`, body(t, resp))
}

func TestInterceptor_NetworkFirstMissPropagatesError(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/api/menu/bakery", httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := f.get(t, "/api/menu/bakery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInterceptor_NetworkFirstSkipsErrorsAndWrites(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/api/menu", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
	f.mock.RegisterResponder(http.MethodPost, origin+"/api/orders", httpmock.NewStringResponder(http.StatusCreated, `{"id":"srv-1"}`))

	resp, err := f.get(t, "/api/menu")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", body(t, resp))

	resp, err = f.client.Post(origin+"/api/orders", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id":"srv-1"}`, body(t, resp))

	f.writer.Close()
	_, ok := f.cached(t, cache.API, origin+"/api/menu")
	assert.False(t, ok)
	_, ok = f.cached(t, cache.API, origin+"/api/orders")
	assert.False(t, ok)
}

func TestInterceptor_StaticCacheFirstNeverRevalidates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, cache.Static, "/static/css/main.css", "body{color:brown}")
	f.mock.RegisterResponder(http.MethodGet, origin+"/static/css/main.css", httpmock.NewStringResponder(http.StatusOK, "body{color:red}"))

	resp, err := f.get(t, "/static/css/main.css")
	require.NoError(t, err)
	assert.Equal(t, "body{color:brown}", body(t, resp))
	assert.Zero(t, f.mock.GetTotalCallCount(), "network must not be consulted on a hit")
}

func TestInterceptor_StaticMissPopulatesOnlyBasicSuccess(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/manifest.json", httpmock.NewStringResponder(http.StatusOK, `{"name":"Artisan Bakery"}`))
	f.mock.RegisterResponder(http.MethodGet, origin+"/missing.png", httpmock.NewStringResponder(http.StatusNotFound, "nope"))
	f.mock.RegisterResponder(http.MethodGet, origin+"/empty", httpmock.NewStringResponder(http.StatusNoContent, ""))
	f.mock.RegisterResponder(http.MethodGet, "http://cdn.test/font.woff2", httpmock.NewStringResponder(http.StatusOK, "font"))

	for _, target := range []string{origin + "/manifest.json", origin + "/missing.png", origin + "/empty", "http://cdn.test/font.woff2"} {
		resp, err := f.client.Get(target)
		require.NoError(t, err, target)
		_ = body(t, resp)
	}
	f.writer.Close()

	got, ok := f.cached(t, cache.Static, origin+"/manifest.json")
	require.True(t, ok)
	assert.Equal(t, `{"name":"Artisan Bakery"}`, got)

	for _, target := range []string{origin + "/missing.png", origin + "/empty", "http://cdn.test/font.woff2"} {
		_, ok := f.cached(t, cache.Static, target)
		assert.False(t, ok, target)
	}
}

func TestInterceptor_StaticMissPropagatesNetworkError(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/bakery", httpmock.NewErrorResponder(errors.New("offline")))

	_, err := f.get(t, "/bakery")
	assert.Error(t, err)
}

func TestInterceptor_BackgroundWriteIsObservable(t *testing.T) {
	f := newFixture(t)
	f.mock.RegisterResponder(http.MethodGet, origin+"/cafe", httpmock.NewStringResponder(http.StatusOK, "<html>cafe</html>"))

	resp, err := f.get(t, "/cafe")
	require.NoError(t, err)
	assert.Equal(t, "<html>cafe</html>", body(t, resp))

	assert.Eventually(t, func() bool {
		got, ok := f.cached(t, cache.Static, origin+"/cafe")
		return ok && got == "<html>cafe</html>"
	}, time.Second, 10*time.Millisecond)
}
