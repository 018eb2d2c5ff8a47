package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestRPCMetrics(t *testing.T) {
	c := NewCollector()
	c.ObserveRPCCall("getTransaction", nil)
	c.ObserveRPCCall("getTransaction", errors.New("boom"))
	c.ObserveRateLimit("getTransaction", 400*time.Millisecond)
	c.ObserveRPCExhausted("getBalance")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcCalls.WithLabelValues("getTransaction", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcCalls.WithLabelValues("getTransaction", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcRateLimits.WithLabelValues("getTransaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcExhausted.WithLabelValues("getBalance")))

	families := gather(t, c)
	backoff := families["copybot_rpc_backoff_seconds"]
	require.NotNil(t, backoff)
	hist := backoff.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 0.4, hist.GetSampleSum(), 1e-9)
}

func TestTradeAndPositionMetrics(t *testing.T) {
	c := NewCollector()
	c.ObserveTrade(true, 0.1, time.Second)
	c.ObserveTrade(false, 0.2, time.Second)
	c.ObserveSkipped("not_a_swap")
	c.ObserveQueueDrop()
	c.SetOpenPositions(3)
	c.ObservePositionClosed("take_profit", 0.45)
	c.ObservePositionClosed("stop_loss", -0.21)
	c.EventDropped("trades", events.TradeFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.trades.WithLabelValues("failure")))
	assert.InDelta(t, 0.1, testutil.ToFloat64(c.tradeVolume), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped.WithLabelValues("not_a_swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueDropped))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.openPositions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.closedPosition.WithLabelValues("stop_loss")))
	assert.InDelta(t, 0.45, testutil.ToFloat64(c.realizedPnL), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.droppedEvents.WithLabelValues("trades", "trade_failed")))
}

func TestHandlerServesRegistry(t *testing.T) {
	c := NewCollector()
	c.SetOpenPositions(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "copybot_open_positions 2")
}
