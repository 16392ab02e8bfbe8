package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_operations_total",
			Help: "Response cache operations per partition",
		},
		[]string{"partition", "op"}, // hit|miss|store|store_error|dropped
	)
	CachePartitionsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_partitions_purged_total",
			Help: "Stale cache partitions deleted at activation",
		},
	)
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_orders_submitted_total",
			Help: "Order submissions by outcome",
		},
		[]string{"outcome"}, // confirmed|queued|failed|invalid
	)
	OrdersSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_orders_synced_total",
			Help: "Queued orders accepted by the remote API during a drain",
		},
	)
	OrderSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_order_sync_failures_total",
			Help: "Queued order submissions that failed and stayed queued",
		},
	)
	DrainPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_drain_passes_total",
			Help: "Completed drain passes",
		},
	)
	DrainTriggersIgnored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_drain_triggers_ignored_total",
			Help: "Drain triggers ignored because a pass was already running",
		},
	)
	PendingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_pending_orders",
			Help: "Orders currently waiting in the local queue",
		},
	)
)

var registerOnce sync.Once

// MustRegister registers every collector with the default registry. Calls
// after the first are no-ops.
func MustRegister() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		CacheOps,
		CachePartitionsPurged,
		OrdersSubmitted,
		OrdersSynced,
		OrderSyncFailures,
		DrainPasses,
		DrainTriggersIgnored,
		PendingOrders,
	)
}
