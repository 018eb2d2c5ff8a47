// internal/trading/manager.go
package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/eventlistener"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/parser"
)

const defaultDedupeTTL = 10 * time.Minute

// Deps are the collaborators of a Manager.
type Deps struct {
	Stream    ActivityStream
	Parser    TransactionParser
	Policy    parser.LegPolicy
	Wallet    WalletState
	Signer    solana.PrivateKey
	Executor  Executor
	Routes    RouteBuilder
	Positions PositionOpener
	Feed      *events.Feed
	Metrics   Metrics
}

type run struct {
	target string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager copies swaps of one target account onto the operator wallet.
type Manager struct {
	cfg    Config
	deps   Deps
	feed   *events.Feed
	seen   *seenSet
	logger *zap.Logger

	mu  sync.Mutex
	cur *run

	statsMu sync.RWMutex
	stats   Stats
}

// NewManager creates a trade manager in the idle state.
func NewManager(cfg Config, deps Deps, logger *zap.Logger) *Manager {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if deps.Policy == nil {
		deps.Policy = parser.FirstMatch{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	logger = logger.Named("trade_manager")
	if deps.Feed == nil {
		deps.Feed = events.NewFeed("trades", logger)
	}

	return &Manager{
		cfg:    cfg,
		deps:   deps,
		feed:   deps.Feed,
		seen:   newSeenSet(cfg.DedupeTTL),
		logger: logger,
		stats:  Stats{TotalVolume: decimal.Zero},
	}
}

// StartMonitoring subscribes to target and starts processing its swaps.
// Calling it while already monitoring is a no-op.
func (m *Manager) StartMonitoring(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		m.logger.Info("Already monitoring", zap.String("target", m.cur.target))
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	notifications, err := m.deps.Stream.Subscribe(runCtx, target)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", target, err)
	}

	r := &run{target: target, cancel: cancel, done: make(chan struct{})}
	queue := make(chan eventlistener.Notification, m.cfg.QueueSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.readLoop(runCtx, notifications, queue)
	}()
	go func() {
		defer wg.Done()
		m.worker(runCtx, queue)
	}()
	go func() {
		wg.Wait()
		close(r.done)
	}()

	m.cur = r
	m.logger.Info("👀 Monitoring target wallet", zap.String("target", target))
	m.feed.Publish(events.NewStatus("trade_manager", "monitoring started: "+target))
	return nil
}

// StopMonitoring cancels the subscription and waits for in-flight work. Idempotent.
func (m *Manager) StopMonitoring() {
	m.mu.Lock()
	r := m.cur
	m.cur = nil
	m.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done

	m.logger.Info("Stopped monitoring", zap.String("target", r.target))
	m.feed.Publish(events.NewStatus("trade_manager", "monitoring stopped: "+r.target))
}

// IsMonitoring reports whether a target is being watched.
func (m *Manager) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// readLoop filters notifications and hands them to the worker without blocking the stream.
func (m *Manager) readLoop(ctx context.Context, in <-chan eventlistener.Notification, queue chan<- eventlistener.Notification) {
	defer close(queue)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-in:
			if !ok {
				return
			}
			if n.Failed {
				m.deps.Metrics.ObserveSkipped(SkipFailedOnChain)
				continue
			}
			if !m.seen.firstSeen(n.Signature) {
				m.deps.Metrics.ObserveSkipped(SkipDuplicate)
				continue
			}
			select {
			case queue <- n:
			default:
				m.deps.Metrics.ObserveQueueDrop()
				m.logger.Warn("⚠️ Notification queue full, dropping", zap.String("signature", n.Signature))
				status := events.NewStatus("trade_manager", "notification queue full")
				status.Fields = map[string]string{"signature": n.Signature}
				m.feed.Publish(status)
			}
		}
	}
}

// worker processes notifications one at a time in arrival order.
func (m *Manager) worker(ctx context.Context, queue <-chan eventlistener.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-queue:
			if !ok {
				return
			}
			if err := m.HandleEvent(ctx, n); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("Failed to handle notification",
					zap.String("signature", n.Signature),
					zap.Error(err))
			}
		}
	}
}

// Events subscribes to trade_executed, trade_failed and status events.
func (m *Manager) Events(buffer int) (<-chan events.Event, events.Subscription) {
	return m.feed.Subscribe(buffer)
}

// Feed returns the manager's outbound feed.
func (m *Manager) Feed() *events.Feed {
	return m.feed
}

// Stats returns a copy of the trading counters.
func (m *Manager) Stats() Stats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}

func (m *Manager) recordTrade(success bool, amount decimal.Decimal) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.TotalTrades++
	if success {
		m.stats.SuccessfulTrades++
		m.stats.TotalVolume = m.stats.TotalVolume.Add(amount)
	} else {
		m.stats.FailedTrades++
	}
	m.stats.LastTradeAt = time.Now()
}
