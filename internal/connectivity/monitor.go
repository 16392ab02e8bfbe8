// Package connectivity tracks whether the upstream API is reachable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Monitor keeps an advisory online flag and signals every offline to
// online transition. The flag starts online.
type Monitor struct {
	client   *http.Client
	probeURL string
	interval time.Duration
	log      *zap.SugaredLogger

	online atomic.Bool

	mu   sync.Mutex
	subs []chan struct{}
}

// NewMonitor creates a monitor probing probeURL every interval. client must
// not route through the response cache, or a cached answer would look like
// a reachable upstream.
func NewMonitor(client *http.Client, probeURL string, interval time.Duration, log *zap.SugaredLogger) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	m := &Monitor{
		client:   client,
		probeURL: probeURL,
		interval: interval,
		log:      log,
	}
	m.online.Store(true)
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool { return m.online.Load() }

// Set forces the state. Going from offline to online notifies subscribers.
func (m *Monitor) Set(online bool) {
	was := m.online.Swap(online)
	switch {
	case !was && online:
		m.log.Info("upstream reachable again")
		m.notify()
	case was && !online:
		m.log.Warn("upstream unreachable, working offline")
	}
}

// Restored returns a channel that receives after each transition to online.
// Bursts of transitions are coalesced into one pending signal.
func (m *Monitor) Restored() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Probe checks the upstream once and updates the flag. Any answer below 500
// counts as reachable. A probe cut short by ctx leaves the flag untouched.
func (m *Monitor) Probe(ctx context.Context) bool {
	online := m.probe(ctx)
	if ctx.Err() != nil {
		return m.Online()
	}
	m.Set(online)
	return online
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		m.log.Errorf("invalid probe url %q: %v", m.probeURL, err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Debugf("probe failed: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		m.log.Warn("connectivity probing disabled")
		return
	}
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("connectivity monitor shutting down")
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
