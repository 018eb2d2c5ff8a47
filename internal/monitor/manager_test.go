package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const quoteMint = "So11111111111111111111111111111111111111112"

type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	quotes []string
}

func newStubPrices() *stubPrices {
	return &stubPrices{prices: make(map[string]decimal.Decimal)}
}

func (s *stubPrices) set(mint, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[mint] = decimal.RequireFromString(price)
}

func (s *stubPrices) Price(_ context.Context, mint, quote string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, quote)
	p, ok := s.prices[mint]
	if !ok {
		return decimal.Zero, errors.New("no price")
	}
	return p, nil
}

type recordingMetrics struct {
	mu     sync.Mutex
	open   int
	closed []string
}

func (m *recordingMetrics) SetOpenPositions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = n
}

func (m *recordingMetrics) ObservePositionClosed(reason string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, reason)
}

func newTestManager(t *testing.T, prices PriceSource, opts ...Option) (*Manager, *events.Feed) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	feed := events.NewFeed("positions", logger)
	pm := NewManager(Config{
		TakeProfit:    decimal.RequireFromString("0.4"),
		StopLoss:      decimal.RequireFromString("0.2"),
		CheckInterval: 5 * time.Millisecond,
		QuoteMint:     quoteMint,
	}, prices, feed, logger, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pm.Shutdown(ctx)
		feed.Close()
	})
	return pm, feed
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExitThresholds(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		wantReason CloseReason
		wantPnL    string
	}{
		{"take profit at 14.5 from 10", "14.5", CloseReasonTakeProfit, "0.45"},
		{"stop loss at 7.9 from 10", "7.9", CloseReasonStopLoss, "-0.21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := newStubPrices()
			metrics := &recordingMetrics{}
			pm, feed := newTestManager(t, prices, WithMetrics(metrics))
			updates, _ := feed.Subscribe(16)

			_, err := pm.Open("MintA", d("1"), d("10"))
			require.NoError(t, err)
			prices.set("MintA", tt.price)

			require.Eventually(t, func() bool { return pm.OpenCount() == 0 }, time.Second, 5*time.Millisecond)

			var closed events.PositionUpdatedEvent
			for ev := range updates {
				pu := ev.(events.PositionUpdatedEvent)
				if pu.Status == string(StatusClosed) {
					closed = pu
					break
				}
			}
			assert.Equal(t, string(tt.wantReason), closed.CloseReason)
			assert.True(t, closed.PnL.Equal(d(tt.wantPnL)), "pnl %s", closed.PnL)
			assert.True(t, pm.RealizedPnL().Equal(d(tt.wantPnL)))

			metrics.mu.Lock()
			assert.Equal(t, []string{string(tt.wantReason)}, metrics.closed)
			assert.Equal(t, 0, metrics.open)
			metrics.mu.Unlock()
		})
	}
}

func TestPriceInsideBandPublishesUpdate(t *testing.T) {
	prices := newStubPrices()
	prices.set("MintA", "11")
	pm, feed := newTestManager(t, prices)
	updates, _ := feed.Subscribe(16)

	opened, err := pm.Open("MintA", d("2"), d("10"))
	require.NoError(t, err)

	// the opening snapshot comes first
	select {
	case ev := <-updates:
		pu := ev.(events.PositionUpdatedEvent)
		assert.Equal(t, opened.ID, pu.PositionID)
		assert.Equal(t, string(StatusOpen), pu.Status)
		assert.True(t, pu.EntryPrice.Equal(d("10")))
		assert.True(t, pu.PnL.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no position opened event")
	}

	select {
	case ev := <-updates:
		pu := ev.(events.PositionUpdatedEvent)
		assert.Equal(t, events.PositionUpdated, pu.Type())
		assert.Equal(t, string(StatusOpen), pu.Status)
		assert.True(t, pu.PnL.Equal(d("0.2")))
		assert.True(t, pu.PriceChange.Equal(d("0.1")))
	case <-time.After(time.Second):
		t.Fatal("no position update")
	}

	pos, ok := pm.GetPosition("MintA")
	require.True(t, ok)
	assert.Equal(t, StatusOpen, pos.Status)
	assert.True(t, pm.TotalPnL().Equal(d("0.2")))

	prices.mu.Lock()
	assert.Equal(t, quoteMint, prices.quotes[0])
	prices.mu.Unlock()
}

// panickingPrices blows up on the first call and then reports price.
type panickingPrices struct {
	mu    sync.Mutex
	calls int
	price decimal.Decimal
}

func (p *panickingPrices) Price(context.Context, string, string) (decimal.Decimal, error) {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first {
		panic("price feed exploded")
	}
	return p.price, nil
}

func TestMonitorSurvivesPanickingPriceSource(t *testing.T) {
	prices := &panickingPrices{price: d("14.5")}
	pm, _ := newTestManager(t, prices)

	_, err := pm.Open("MintX", d("1"), d("10"))
	require.NoError(t, err)

	// the panicking tick is skipped and the next one closes at take profit
	require.Eventually(t, func() bool { return pm.OpenCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, pm.RealizedPnL().Equal(d("0.45")), "realized %s", pm.RealizedPnL())

	prices.mu.Lock()
	assert.GreaterOrEqual(t, prices.calls, 2)
	prices.mu.Unlock()
}

func TestPriceMonitorRecoversCallbackPanic(t *testing.T) {
	prices := newStubPrices()
	prices.set("MintA", "1")

	var mu sync.Mutex
	calls := 0
	monitor := NewPriceMonitor(prices, "MintA", quoteMint, time.Millisecond, zaptest.NewLogger(t), func(decimal.Decimal) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("callback exploded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestCloseAtEntryHasZeroPnL(t *testing.T) {
	pm, _ := newTestManager(t, newStubPrices())

	opened, err := pm.Open("MintA", d("3"), d("10"))
	require.NoError(t, err)

	closed := pm.Close("MintA", d("10"), CloseReasonManual)
	require.NotNil(t, closed)
	assert.Equal(t, opened.ID, closed.ID)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, CloseReasonManual, closed.CloseReason)
	assert.True(t, closed.PnL.IsZero())
	assert.False(t, closed.ClosedAt.IsZero())
}

func TestDoubleCloseReturnsNil(t *testing.T) {
	pm, _ := newTestManager(t, newStubPrices())

	_, err := pm.Open("MintA", d("1"), d("10"))
	require.NoError(t, err)

	require.NotNil(t, pm.Close("MintA", d("12"), CloseReasonManual))
	assert.Nil(t, pm.Close("MintA", d("12"), CloseReasonManual))
	assert.Nil(t, pm.Close("Unknown", d("1"), CloseReasonManual))
	assert.Empty(t, pm.ListOpen())
}

func TestOpenValidation(t *testing.T) {
	pm, _ := newTestManager(t, newStubPrices())

	_, err := pm.Open("MintA", d("0"), d("10"))
	assert.ErrorIs(t, err, ErrInvalidPosition)
	_, err = pm.Open("MintA", d("1"), d("0"))
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = pm.Open("MintA", d("1"), d("10"))
	require.NoError(t, err)
	_, err = pm.Open("MintA", d("1"), d("10"))
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestListOpenAndOptions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	pm, _ := newTestManager(t, newStubPrices(), WithClock(clock))

	_, err := pm.Open("MintB", d("1"), d("1"), WithQuoteMint("USDC"), WithSourceSignature("sig-b"))
	require.NoError(t, err)
	_, err = pm.Open("MintA", d("1"), d("1"))
	require.NoError(t, err)

	open := pm.ListOpen()
	require.Len(t, open, 2)
	assert.Equal(t, "MintB", open[0].TokenMint)
	assert.Equal(t, "USDC", open[0].QuoteMint)
	assert.Equal(t, "sig-b", open[0].SourceSig)
	assert.Equal(t, quoteMint, open[1].QuoteMint)
	assert.Equal(t, 2, pm.OpenCount())
}

func TestShutdownStopsMonitors(t *testing.T) {
	prices := newStubPrices()
	prices.set("MintA", "10")
	pm, _ := newTestManager(t, prices)

	_, err := pm.Open("MintA", d("1"), d("10"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pm.Shutdown(ctx))

	_, err = pm.Open("MintB", d("1"), d("10"))
	assert.Error(t, err)
}

func TestComputePnL(t *testing.T) {
	pnl, change := computePnL(d("4"), d("10"), d("12.5"))
	assert.True(t, pnl.Equal(d("1")))
	assert.True(t, change.Equal(d("0.25")))

	pnl, change = computePnL(d("4"), decimal.Zero, d("12.5"))
	assert.True(t, pnl.IsZero())
	assert.True(t, change.IsZero())
}
