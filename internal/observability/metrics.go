// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poolwatch/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Poller metrics
	PollCyclesTotal   *prometheus.CounterVec
	PollCycleDuration prometheus.Histogram
	StepErrors        *prometheus.CounterVec
	HeadBlock         prometheus.Gauge

	// Node metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCErrors      *prometheus.CounterVec

	// State metrics
	RetainedTransfers prometheus.Gauge
	Candles           prometheus.Gauge
	PoolPrice         prometheus.Gauge

	// Surface metrics
	WSClients     prometheus.Gauge
	ProxyRequests *prometheus.CounterVec
	ProxyCache    *prometheus.CounterVec

	// Sink metrics
	ArchiveWrites *prometheus.CounterVec
	Publishes     *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "poolwatch"
	}

	return &Metrics{
		// Poller metrics
		PollCyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by status",
		}, []string{"status"}),
		PollCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StepErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "step_errors_total",
			Help:      "Total number of cycle step failures by step and error kind",
		}, []string{"step", "kind"}),
		HeadBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "head_block",
			Help:      "Latest block number seen",
		}),

		// Node metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "rpc_call_latency_seconds",
			Help:      "Node RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "rpc_errors_total",
			Help:      "Total number of node RPC errors by method and kind",
		}, []string{"method", "kind"}),

		// State metrics
		RetainedTransfers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "retained_transfers",
			Help:      "Current number of transfers in the retention buffer",
		}),
		Candles: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "candles",
			Help:      "Number of candles in the latest snapshot",
		}),
		PoolPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "pool_price",
			Help:      "Latest spot price of the watched token",
		}),

		// Surface metrics
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Number of connected websocket clients",
		}),
		ProxyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of explorer proxy requests by status code",
		}, []string{"status"}),
		ProxyCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "cache_total",
			Help:      "Explorer proxy cache lookups by result",
		}, []string{"result"}),

		// Sink metrics
		ArchiveWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "writes_total",
			Help:      "Total number of archive writes by sink and status",
		}, []string{"sink", "status"}),
		Publishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "publishes_total",
			Help:      "Total number of snapshot publishes by status",
		}, []string{"status"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last poll cycle without step errors",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPollCycle records a finished or skipped poll cycle.
func RecordPollCycle(status string, durationSeconds float64) {
	DefaultMetrics.PollCyclesTotal.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		DefaultMetrics.PollCycleDuration.Observe(durationSeconds)
	}
}

// RecordStepError records a failed cycle step.
func RecordStepError(step string, kind domain.ErrorKind) {
	DefaultMetrics.StepErrors.WithLabelValues(step, string(kind)).Inc()
}

// UpdateHeadBlock updates the head block gauge.
func UpdateHeadBlock(block uint64) {
	DefaultMetrics.HeadBlock.Set(float64(block))
}

// RecordRPCCall records node RPC latency and, on failure, its error kind.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCErrors.WithLabelValues(method, string(domain.KindOf(err))).Inc()
	}
}

// UpdateState updates gauges derived from the latest snapshot.
// price is ignored when defined is false.
func UpdateState(transfers, candles int, price float64, defined bool) {
	DefaultMetrics.RetainedTransfers.Set(float64(transfers))
	DefaultMetrics.Candles.Set(float64(candles))
	if defined {
		DefaultMetrics.PoolPrice.Set(price)
	}
}

// UpdateLastSuccessfulCycle sets the last successful cycle timestamp.
func UpdateLastSuccessfulCycle(unix int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unix))
}

// SetWSClients sets the websocket clients gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordProxyRequest records an explorer proxy response status.
func RecordProxyRequest(status string) {
	DefaultMetrics.ProxyRequests.WithLabelValues(status).Inc()
}

// RecordProxyCache records a cache lookup result (hit, miss, error).
func RecordProxyCache(result string) {
	DefaultMetrics.ProxyCache.WithLabelValues(result).Inc()
}

// RecordArchiveWrite records an archive write.
func RecordArchiveWrite(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ArchiveWrites.WithLabelValues(sink, status).Inc()
}

// RecordPublish records a snapshot publish.
func RecordPublish(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.Publishes.WithLabelValues(status).Inc()
}
