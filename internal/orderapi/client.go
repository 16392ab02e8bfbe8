// Package orderapi is a typed client for the remote menu and order API.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"bakery-storefront-edge/internal/model"
)

// ErrNetworkUnavailable wraps every transport-level failure.
var ErrNetworkUnavailable = errors.New("network unavailable")

// RejectionError is a non-2xx answer from the remote API.
type RejectionError struct {
	StatusCode int
	Body       string
}

func (e *RejectionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote api rejected request with status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote api rejected request with status %d: %s", e.StatusCode, e.Body)
}

const maxErrorBody = 4 << 10

// Client talks to the remote API rooted at a base URL.
type Client struct {
	base   *url.URL
	client *http.Client
	log    *zap.SugaredLogger
}

// New creates a client. Reads go through client's transport, so passing the
// cache interceptor there gives menu and admin reads an offline fallback.
func New(baseURL string, client *http.Client, log *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{base: base, client: client, log: log}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL { return c.base }

// Menu returns the items of category, or the whole menu when category is empty.
func (c *Client) Menu(ctx context.Context, category string) ([]model.MenuItem, error) {
	path := "/api/menu"
	if category != "" {
		path += "/" + url.PathEscape(category)
	}
	var items []model.MenuItem
	if err := c.getJSON(ctx, path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SubmitOrder posts payload to /api/orders and returns the stored order.
func (c *Client) SubmitOrder(ctx context.Context, payload model.OrderPayload) (*model.Order, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve("/api/orders"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var order model.Order
	if err := c.do(req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Order fetches one stored order by its server id.
func (c *Client) Order(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := c.getJSON(ctx, "/api/orders/"+url.PathEscape(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AdminOrders lists every stored order.
func (c *Client) AdminOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.getJSON(ctx, "/api/admin/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// AdminStats returns the dashboard summary.
func (c *Client) AdminStats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.getJSON(ctx, "/api/admin/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ExportOrders downloads the CSV export.
func (c *Client) ExportOrders(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/api/admin/orders/export"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading export: %w", ErrNetworkUnavailable, err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// send performs req and turns transport failures and non-2xx statuses into
// ErrNetworkUnavailable and *RejectionError. On success the caller owns the body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetworkUnavailable, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debugf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
		return nil, &RejectionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (c *Client) resolve(path string) string {
	return c.base.JoinPath(path).String()
}
