package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide Prometheus collectors for the data layer. Registered on the
// default registry; the demo server exposes them at /metrics via promhttp.

var (
	// Loader
	LoaderBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_loader_batches_total",
		Help: "Number of batch function dispatches.",
	})
	LoaderBatchedKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_loader_batched_keys_total",
		Help: "Number of keys delivered to batch functions.",
	})
	LoaderCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_loader_cache_hits_total",
		Help: "Number of loads served from the loader cache.",
	})
	LoaderBatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_loader_batch_errors_total",
		Help: "Number of structural batch failures (length mismatch or panic).",
	})

	// Pub/sub
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_events_published_total",
		Help: "Events published, per channel prefix.",
	}, []string{"channel"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_events_dropped_total",
		Help: "Events dropped due to slow subscribers or rate limiting.",
	})
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lens_subscriptions_active",
		Help: "Currently active broker subscriptions.",
	})

	// Optimistic manager
	OptimisticPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lens_optimistic_pending_ops",
		Help: "Speculative operations currently pending across all sessions.",
	})
	OptimisticRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_optimistic_rollbacks_total",
		Help: "Explicit rollbacks of speculative operations.",
	})
	OptimisticTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_optimistic_timeout_rollbacks_total",
		Help: "Speculative operations force-rolled-back by the timeout sweep.",
	})
	OptimisticReconciles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_optimistic_reconciles_total",
		Help: "Server events that corrected in-flight speculation.",
	})
)

// ChannelPrefix reduces a channel name to its convention prefix
// ("resource:messages:...") so the published-events counter stays
// low-cardinality.
func ChannelPrefix(channel string) string {
	n := 0
	for i := 0; i < len(channel); i++ {
		if channel[i] == ':' {
			n++
			if n == 2 {
				return channel[:i]
			}
		}
	}
	return channel
}
