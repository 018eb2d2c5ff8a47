// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const namespace = "copybot"

// Collector owns every bot metric on a private registry.
type Collector struct {
	registry *prometheus.Registry

	rpcCalls       *prometheus.CounterVec
	rpcRateLimits  *prometheus.CounterVec
	rpcBackoff     *prometheus.HistogramVec
	rpcExhausted   *prometheus.CounterVec
	trades         *prometheus.CounterVec
	tradeVolume    prometheus.Counter
	tradeDuration  prometheus.Histogram
	skipped        *prometheus.CounterVec
	queueDropped   prometheus.Counter
	openPositions  prometheus.Gauge
	closedPosition *prometheus.CounterVec
	realizedPnL    prometheus.Counter
	droppedEvents  *prometheus.CounterVec
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "RPC calls by method and outcome",
		}, []string{"method", "status"}),
		rpcRateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_rate_limited_total",
			Help:      "Rate-limit responses by method",
		}, []string{"method"}),
		rpcBackoff: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_backoff_seconds",
			Help:      "Backoff waits after rate limiting",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"method"}),
		rpcExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_exhausted_total",
			Help:      "Calls that ran out of rate-limit retries",
		}, []string{"method"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Copied trades by outcome",
		}, []string{"status"}),
		tradeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_volume_total",
			Help:      "Sum of successfully copied trade amounts",
		}),
		tradeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_duration_seconds",
			Help:      "Time from notification to final trade outcome",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Notifications that did not lead to a trade, by reason",
		}, []string{"reason"}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_queue_dropped_total",
			Help:      "Notifications dropped because the work queue was full",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Currently open positions",
		}),
		closedPosition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by reason",
		}, []string{"reason"}),
		realizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_total",
			Help:      "Sum of positive realized pnl",
		}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers",
		}, []string{"feed", "type"}),
	}

	c.registry.MustRegister(
		c.rpcCalls, c.rpcRateLimits, c.rpcBackoff, c.rpcExhausted,
		c.trades, c.tradeVolume, c.tradeDuration, c.skipped, c.queueDropped,
		c.openPositions, c.closedPosition, c.realizedPnL, c.droppedEvents,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the private registry (tests, custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRPCCall counts one attempt of method.
func (c *Collector) ObserveRPCCall(method string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.rpcCalls.WithLabelValues(method, status).Inc()
}

// ObserveRateLimit records a rate-limit hit and the wait it caused.
func (c *Collector) ObserveRateLimit(method string, wait time.Duration) {
	c.rpcRateLimits.WithLabelValues(method).Inc()
	c.rpcBackoff.WithLabelValues(method).Observe(wait.Seconds())
}

// ObserveRPCExhausted records a call that gave up after max retries.
func (c *Collector) ObserveRPCExhausted(method string) {
	c.rpcExhausted.WithLabelValues(method).Inc()
}

// ObserveTrade records the final outcome of a copied trade.
func (c *Collector) ObserveTrade(success bool, amount float64, took time.Duration) {
	if success {
		c.trades.WithLabelValues("success").Inc()
		if amount > 0 {
			c.tradeVolume.Add(amount)
		}
	} else {
		c.trades.WithLabelValues("failure").Inc()
	}
	c.tradeDuration.Observe(took.Seconds())
}

// ObserveSkipped counts a notification that stopped before execution.
func (c *Collector) ObserveSkipped(reason string) {
	c.skipped.WithLabelValues(reason).Inc()
}

// ObserveQueueDrop counts a notification dropped on a full queue.
func (c *Collector) ObserveQueueDrop() {
	c.queueDropped.Inc()
}

// SetOpenPositions sets the open positions gauge.
func (c *Collector) SetOpenPositions(n int) {
	c.openPositions.Set(float64(n))
}

// ObservePositionClosed counts a closed position.
func (c *Collector) ObservePositionClosed(reason string, pnl float64) {
	c.closedPosition.WithLabelValues(reason).Inc()
	if pnl > 0 {
		c.realizedPnL.Add(pnl)
	}
}

// EventDropped matches events.DropObserver.
func (c *Collector) EventDropped(feed string, t events.EventType) {
	c.droppedEvents.WithLabelValues(feed, string(t)).Inc()
}
