// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Execution queue metrics
	QueueDepth        *prometheus.GaugeVec
	QueueDispatched   *prometheus.CounterVec
	QueueActive       prometheus.Gauge
	QueueRate         prometheus.Gauge
	QueueDispatchWait prometheus.Histogram

	// Quote cache metrics
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge

	// Cooldown metrics
	CooldownsEntered     prometheus.Counter
	CooldownState        prometheus.Gauge
	ConsecutiveCooldowns prometheus.Gauge
	FatalStops           prometheus.Counter
	CanaryResults        *prometheus.CounterVec
	DrainSells           *prometheus.CounterVec

	// Trading metrics
	Trades        *prometheus.CounterVec
	TradeVolume   *prometheus.CounterVec
	ActiveWorkers prometheus.Gauge
	CycleDuration prometheus.Histogram

	// Ledger metrics
	ConfirmLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "volume_bot"
	}

	return &Metrics{
		// Execution queue metrics
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Queued work items by priority tier",
		}, []string{"tier"}),
		QueueDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dispatched_total",
			Help:      "Total work items dispatched by priority tier",
		}, []string{"tier"}),
		QueueActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "active_requests",
			Help:      "Work items currently in flight",
		}),
		QueueRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "requests_per_second",
			Help:      "Current pacing ceiling in requests per second",
		}),
		QueueDispatchWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dispatch_wait_seconds",
			Help:      "Time from submission to dispatch",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		// Quote cache metrics
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total quote cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total quote cache misses",
		}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total quote cache entries evicted by TTL",
		}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current quote cache entry count",
		}),

		// Cooldown metrics
		CooldownsEntered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "entered_total",
			Help:      "Total cooldown hold entries including extensions",
		}),
		CooldownState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "state",
			Help:      "Coordinator state: 0 normal, 1 cooldown, 2 halted",
		}),
		ConsecutiveCooldowns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "consecutive",
			Help:      "Consecutive cooldowns without a successful resume",
		}),
		FatalStops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "fatal_stops_total",
			Help:      "Total fatal stops issued at the cooldown ceiling",
		}),
		CanaryResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "canary_results_total",
			Help:      "Canary attempts by stage and result",
		}, []string{"stage", "result"}),
		DrainSells: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooldown",
			Name:      "drain_sells_total",
			Help:      "Liquidation sells during drain by result",
		}, []string{"result"}),

		// Trading metrics
		Trades: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_total",
			Help:      "Trades by side and status",
		}, []string{"side", "status"}),
		TradeVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "volume_lamports_total",
			Help:      "Confirmed volume in lamports by side",
		}, []string{"side"}),
		ActiveWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "active_workers",
			Help:      "Worker loops currently running",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "cycle_duration_seconds",
			Help:      "Full buy+sell cycle duration",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Ledger metrics
		ConfirmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "confirm_latency_seconds",
			Help:      "Transaction confirmation latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordDispatch records a dispatched work item and its queue wait.
func RecordDispatch(tier string, waitSeconds float64) {
	DefaultMetrics.QueueDispatched.WithLabelValues(tier).Inc()
	DefaultMetrics.QueueDispatchWait.Observe(waitSeconds)
}

// UpdateQueueDepth updates per-tier queue depth gauges.
func UpdateQueueDepth(high, normal int) {
	DefaultMetrics.QueueDepth.WithLabelValues("high").Set(float64(high))
	DefaultMetrics.QueueDepth.WithLabelValues("normal").Set(float64(normal))
}

// UpdateQueueActive updates the in-flight request gauge.
func UpdateQueueActive(n int) {
	DefaultMetrics.QueueActive.Set(float64(n))
}

// UpdateQueueRate updates the pacing ceiling gauge.
func UpdateQueueRate(rps float64) {
	DefaultMetrics.QueueRate.Set(rps)
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.CacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.CacheMisses.Inc()
}

// RecordCacheEviction adds to the eviction counter and updates entry count.
func RecordCacheEviction(evicted, remaining int) {
	DefaultMetrics.CacheEvictions.Add(float64(evicted))
	DefaultMetrics.CacheEntries.Set(float64(remaining))
}

// UpdateCacheEntries updates the entry count gauge.
func UpdateCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordCooldownEntered records a hold entry and the current streak.
func RecordCooldownEntered(consecutive int) {
	DefaultMetrics.CooldownsEntered.Inc()
	DefaultMetrics.ConsecutiveCooldowns.Set(float64(consecutive))
	DefaultMetrics.CooldownState.Set(1)
}

// RecordCooldownResumed resets the state gauges after a successful resume.
func RecordCooldownResumed() {
	DefaultMetrics.ConsecutiveCooldowns.Set(0)
	DefaultMetrics.CooldownState.Set(0)
}

// RecordFatalStop records the terminal halt.
func RecordFatalStop() {
	DefaultMetrics.FatalStops.Inc()
	DefaultMetrics.CooldownState.Set(2)
}

// RecordCanary records a canary attempt result for a recovery stage.
func RecordCanary(stage string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	DefaultMetrics.CanaryResults.WithLabelValues(stage, result).Inc()
}

// RecordDrainSell records one liquidation attempt during drain.
func RecordDrainSell(result string) {
	DefaultMetrics.DrainSells.WithLabelValues(result).Inc()
}

// RecordTrade records a trade and, when confirmed, its volume.
func RecordTrade(side, status string, volumeLamports uint64) {
	DefaultMetrics.Trades.WithLabelValues(side, status).Inc()
	if volumeLamports > 0 {
		DefaultMetrics.TradeVolume.WithLabelValues(side).Add(float64(volumeLamports))
	}
}

// RecordConfirmLatency records confirmation latency for a method (ws or poll).
func RecordConfirmLatency(method string, seconds float64) {
	DefaultMetrics.ConfirmLatency.WithLabelValues(method).Observe(seconds)
}
