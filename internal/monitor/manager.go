// internal/monitor/manager.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

var (
	ErrPositionExists  = errors.New("position already open for token")
	ErrInvalidPosition = errors.New("invalid position")
)

// Config holds exit thresholds and the polling interval.
type Config struct {
	TakeProfit    decimal.Decimal // fraction, 0.4 = +40%
	StopLoss      decimal.Decimal // fraction, 0.2 = -20%
	CheckInterval time.Duration
	QuoteMint     string
}

// Metrics receives position lifecycle observations.
type Metrics interface {
	SetOpenPositions(n int)
	ObservePositionClosed(reason string, pnl float64)
}

type nopMetrics struct{}

func (nopMetrics) SetOpenPositions(int)                  {}
func (nopMetrics) ObservePositionClosed(string, float64) {}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(pm *Manager) { pm.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(pm *Manager) { pm.now = now }
}

// OpenOption customises a single position.
type OpenOption func(*Position)

// WithQuoteMint prices the position against quoteMint instead of the default.
func WithQuoteMint(quoteMint string) OpenOption {
	return func(p *Position) { p.QuoteMint = quoteMint }
}

// WithSourceSignature links the position to the observed transaction.
func WithSourceSignature(sig string) OpenOption {
	return func(p *Position) { p.SourceSig = sig }
}

type tracked struct {
	pos    *Position
	cancel context.CancelFunc
}

// Manager tracks open positions, one price monitor per position.
type Manager struct {
	cfg    Config
	source PriceSource
	feed   *events.Feed

	mu        sync.RWMutex
	positions map[string]*tracked // by token mint
	realized  decimal.Decimal

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewManager creates a position manager. Monitors run until Close or Shutdown.
func NewManager(cfg Config, source PriceSource, feed *events.Feed, logger *zap.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	pm := &Manager{
		cfg:       cfg,
		source:    source,
		feed:      feed,
		positions: make(map[string]*tracked),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   nopMetrics{},
		now:       time.Now,
		logger:    logger.Named("position_manager"),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// Open starts tracking amount of tokenMint bought at entryPrice.
func (pm *Manager) Open(tokenMint string, amount, entryPrice decimal.Decimal, opts ...OpenOption) (*Position, error) {
	if tokenMint == "" || !amount.IsPositive() || !entryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: mint=%q amount=%s entry=%s", ErrInvalidPosition, tokenMint, amount, entryPrice)
	}

	now := pm.now()
	pos := &Position{
		ID:           uuid.New().String(),
		TokenMint:    tokenMint,
		QuoteMint:    pm.cfg.QuoteMint,
		Amount:       amount,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		PnL:          decimal.Zero,
		PriceChange:  decimal.Zero,
		Status:       StatusOpen,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
	for _, opt := range opts {
		opt(pos)
	}

	pm.mu.Lock()
	if pm.ctx.Err() != nil {
		pm.mu.Unlock()
		return nil, errors.New("position manager is shut down")
	}
	if _, exists := pm.positions[tokenMint]; exists {
		pm.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, tokenMint)
	}
	ctx, cancel := context.WithCancel(pm.ctx)
	pm.positions[tokenMint] = &tracked{pos: pos, cancel: cancel}
	open := len(pm.positions)
	snapshot := *pos
	pm.mu.Unlock()

	pm.metrics.SetOpenPositions(open)
	pm.logger.Info("📈 Position opened",
		zap.String("position_id", pos.ID),
		zap.String("token", tokenMint),
		zap.String("amount", amount.String()),
		zap.String("entry_price", entryPrice.String()))
	pm.publish(snapshot)

	monitor := NewPriceMonitor(pm.source, tokenMint, pos.QuoteMint, pm.cfg.CheckInterval,
		pm.logger.Named("price").With(zap.String("token", tokenMint)),
		func(price decimal.Decimal) { pm.onPrice(tokenMint, pos.ID, price) })

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		monitor.Run(ctx)
	}()

	return &snapshot, nil
}

// onPrice revalues the position and applies the exit rules.
func (pm *Manager) onPrice(tokenMint, id string, price decimal.Decimal) {
	pm.mu.Lock()
	t, ok := pm.positions[tokenMint]
	if !ok || t.pos.ID != id {
		pm.mu.Unlock()
		return
	}
	t.pos.mark(price, pm.now())
	snapshot := *t.pos
	pm.mu.Unlock()

	switch {
	case snapshot.PriceChange.GreaterThanOrEqual(pm.cfg.TakeProfit):
		pm.logger.Info("🎯 Take profit reached",
			zap.String("token", tokenMint),
			zap.String("change", snapshot.PriceChange.String()))
		pm.Close(tokenMint, price, CloseReasonTakeProfit)
	case snapshot.PriceChange.LessThanOrEqual(pm.cfg.StopLoss.Neg()):
		pm.logger.Info("🛑 Stop loss reached",
			zap.String("token", tokenMint),
			zap.String("change", snapshot.PriceChange.String()))
		pm.Close(tokenMint, price, CloseReasonStopLoss)
	default:
		pm.publish(snapshot)
	}
}

// Close marks the position closed at exitPrice, stops its monitor and
// removes it. Returns nil when no position is open for tokenMint.
func (pm *Manager) Close(tokenMint string, exitPrice decimal.Decimal, reason CloseReason) *Position {
	pm.mu.Lock()
	t, ok := pm.positions[tokenMint]
	if !ok {
		pm.mu.Unlock()
		return nil
	}
	delete(pm.positions, tokenMint)
	now := pm.now()
	t.pos.mark(exitPrice, now)
	t.pos.Status = StatusClosed
	t.pos.CloseReason = reason
	t.pos.ClosedAt = now
	pm.realized = pm.realized.Add(t.pos.PnL)
	open := len(pm.positions)
	snapshot := *t.pos
	pm.mu.Unlock()

	// the monitor may be the caller, so only signal it
	t.cancel()

	pnl, _ := snapshot.PnL.Float64()
	pm.metrics.SetOpenPositions(open)
	pm.metrics.ObservePositionClosed(string(reason), pnl)
	pm.logger.Info("📉 Position closed",
		zap.String("position_id", snapshot.ID),
		zap.String("token", tokenMint),
		zap.String("reason", string(reason)),
		zap.String("exit_price", exitPrice.String()),
		zap.String("pnl", snapshot.PnL.String()))
	pm.publish(snapshot)
	return &snapshot
}

func (pm *Manager) publish(p Position) {
	if pm.feed == nil {
		return
	}
	pm.feed.Publish(events.PositionUpdatedEvent{
		BaseEvent:    events.NewBase(events.PositionUpdated),
		PositionID:   p.ID,
		TokenMint:    p.TokenMint,
		Amount:       p.Amount,
		EntryPrice:   p.EntryPrice,
		CurrentPrice: p.CurrentPrice,
		PriceChange:  p.PriceChange,
		PnL:          p.PnL,
		Status:       string(p.Status),
		CloseReason:  string(p.CloseReason),
	})
}

// ListOpen returns snapshots of open positions, oldest first.
func (pm *Manager) ListOpen() []Position {
	pm.mu.RLock()
	out := make([]Position, 0, len(pm.positions))
	for _, t := range pm.positions {
		out = append(out, *t.pos)
	}
	pm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// GetPosition returns a snapshot of the open position for tokenMint.
func (pm *Manager) GetPosition(tokenMint string) (Position, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	t, ok := pm.positions[tokenMint]
	if !ok {
		return Position{}, false
	}
	return *t.pos, true
}

// OpenCount returns the number of open positions.
func (pm *Manager) OpenCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.positions)
}

// TotalPnL sums the unrealized pnl of open positions.
func (pm *Manager) TotalPnL() decimal.Decimal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	total := decimal.Zero
	for _, t := range pm.positions {
		total = total.Add(t.pos.PnL)
	}
	return total
}

// RealizedPnL sums the pnl of every position closed so far.
func (pm *Manager) RealizedPnL() decimal.Decimal {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.realized
}

// Shutdown stops every monitor and waits for them until ctx expires.
// Positions stay listed as open.
func (pm *Manager) Shutdown(ctx context.Context) error {
	pm.logger.Info("Shutting down position manager", zap.Int("open_positions", pm.OpenCount()))
	pm.cancel()

	done := make(chan struct{})
	go func() {
		pm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		pm.logger.Info("Position manager shutdown complete")
		return nil
	case <-ctx.Done():
		pm.logger.Warn("Timeout waiting for price monitors to finish")
		return ctx.Err()
	}
}
