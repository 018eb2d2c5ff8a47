// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/eventlistener"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/governor"
	"github.com/rovshanmuradov/solana-copybot/internal/jupiter"
	"github.com/rovshanmuradov/solana-copybot/internal/logger"
	"github.com/rovshanmuradov/solana-copybot/internal/metrics"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	"github.com/rovshanmuradov/solana-copybot/internal/parser"
	"github.com/rovshanmuradov/solana-copybot/internal/trading"
	"github.com/rovshanmuradov/solana-copybot/internal/transaction"
	"github.com/rovshanmuradov/solana-copybot/internal/wallet"
)

const (
	statsInterval      = time.Minute
	metricsReadTimeout = 5 * time.Second
)

// Runner wires the copy-trading components together and supervises them.
type Runner struct {
	cfg    *config.Config
	log    *logger.Logger
	logger *zap.Logger

	collector *metrics.Collector
	chain     blockchain.Client
	state     *wallet.State
	executor  *transaction.Executor
	positions *monitor.Manager
	posFeed   *events.Feed
	trades    *trading.Manager
	stream    trading.ActivityStream

	shutdown *ShutdownHandler
}

// NewRunner создает новый раннер
func NewRunner(cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		log:      log,
		logger:   log.WithComponent("runner"),
		shutdown: NewShutdownHandler(log.Logger, cfg.ShutdownTimeout),
	}
}

// Initialize builds every component from the configuration.
func (r *Runner) Initialize(ctx context.Context) error {
	defer r.log.TrackPerformance("initialize")()

	w, err := wallet.NewWallet(r.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}
	policy, err := parser.PolicyByName(r.cfg.SwapLegPolicy)
	if err != nil {
		return err
	}

	r.collector = metrics.NewCollector()

	gov := governor.New(governor.Config{
		Cooldown:    r.cfg.RPCCooldown,
		BackoffBase: r.cfg.RPCBackoffBase,
		BackoffCap:  r.cfg.RPCBackoffCap,
		MaxRetries:  r.cfg.MaxRetries,
	}, r.log.Logger, governor.WithMetrics(r.collector))
	r.chain = governor.NewClient(solbc.NewClient(r.cfg.RPCURL, r.log.Logger), gov, r.log.Logger)

	r.state = wallet.NewState(w.PublicKey, r.chain, wallet.LimitsFromConfig(r.cfg), r.log.Logger)
	balance, err := r.state.RefreshBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch operator balance: %w", err)
	}
	r.logger.Info("💼 Operator wallet loaded",
		zap.String("owner", w.PublicKey.String()),
		zap.String("balance_sol", balance.String()))

	r.executor = transaction.NewExecutor(r.chain, transaction.Config{
		ComputeUnitPrice: r.cfg.ComputeUnitPrice,
		ComputeUnitLimit: r.cfg.ComputeUnitLimit,
	}, r.log.Logger)

	jup := jupiter.NewClient(jupiter.Config{
		BaseURL:    r.cfg.JupiterURL,
		APIKey:     r.cfg.JupiterAPIKey,
		RetryCount: 3,
	}, r.log.Logger)

	r.posFeed = events.NewFeed("positions", r.log.Logger)
	r.posFeed.OnDrop(r.collector.EventDropped)
	r.positions = monitor.NewManager(monitor.Config{
		TakeProfit:    r.cfg.TakeProfitDec(),
		StopLoss:      r.cfg.StopLossDec(),
		CheckInterval: r.cfg.PriceCheckInterval,
		QuoteMint:     r.cfg.QuoteMint,
	}, jup, r.posFeed, r.log.Logger, monitor.WithMetrics(r.collector))

	if r.stream == nil {
		r.stream = eventlistener.NewEventListener(r.cfg.WebSocketURL, r.log.Logger, eventlistener.Options{
			ReconnectMax: r.cfg.RPCBackoffCap,
			Buffer:       r.cfg.EventQueueSize,
			Commitment:   rpc.CommitmentConfirmed,
		})
	}

	tradeFeed := events.NewFeed("trades", r.log.Logger)
	tradeFeed.OnDrop(r.collector.EventDropped)
	r.trades = trading.NewManager(trading.Config{
		SlippageTolerance: r.cfg.SlippageDec(),
		MaxRetries:        r.cfg.MaxRetries,
		RetryDelay:        r.cfg.RetryDelay,
		QueueSize:         r.cfg.EventQueueSize,
		Submit: transaction.Options{
			Confirm:       r.cfg.ConfirmTransactions,
			SkipPreflight: r.cfg.SkipPreflight,
			Commitment:    rpc.CommitmentConfirmed,
		},
	}, trading.Deps{
		Stream:    r.stream,
		Parser:    parser.New(r.chain, r.log.Logger),
		Policy:    policy,
		Wallet:    r.state,
		Signer:    w.PrivateKey,
		Executor:  r.executor,
		Routes:    jup,
		Positions: r.positions,
		Feed:      tradeFeed,
		Metrics:   r.collector,
	}, r.log.Logger)

	// Закрываются в обратном порядке: сначала торговля, в конце логгер
	r.shutdown.AddFunc("logger", func(context.Context) error { return r.log.Sync() })
	r.shutdown.AddFunc("feeds", func(context.Context) error {
		tradeFeed.Close()
		r.posFeed.Close()
		return nil
	})
	r.shutdown.AddFunc("positions", r.positions.Shutdown)
	r.shutdown.AddFunc("executor", r.executor.Drain)
	r.shutdown.AddFunc("trade_manager", func(context.Context) error {
		r.trades.StopMonitoring()
		return nil
	})

	r.logger.Info("✅ Runner initialized",
		zap.String("target", r.cfg.TargetWallet),
		zap.String("swap_leg_policy", r.cfg.SwapLegPolicy))
	return nil
}

// Run starts copying the target account and blocks until ctx is cancelled
// or a supervised task fails.
func (r *Runner) Run(ctx context.Context) error {
	if r.trades == nil {
		return errors.New("runner is not initialized")
	}

	g, ctx := errgroup.WithContext(ctx)

	tradeEvents, tradeSub := r.trades.Events(r.cfg.EventBufferSize)
	defer tradeSub.Unsubscribe()
	posEvents, posSub := r.posFeed.Subscribe(r.cfg.EventBufferSize)
	defer posSub.Unsubscribe()

	if err := r.trades.StartMonitoring(ctx, r.cfg.TargetWallet); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	r.logger.Info("🚀 Copy trading started", zap.String("target", r.cfg.TargetWallet))

	handler := events.HandlerFunc(r.logEvent)
	g.Go(func() error {
		events.Dispatch(ctx, tradeEvents, handler, r.onEventError)
		return nil
	})
	g.Go(func() error {
		events.Dispatch(ctx, posEvents, handler, r.onEventError)
		return nil
	})
	g.Go(func() error {
		r.reportStats(ctx)
		return nil
	})
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return r.serveMetrics(ctx)
		})
	}

	return g.Wait()
}

// Shutdown stops every component registered during Initialize.
func (r *Runner) Shutdown(ctx context.Context) error {
	return r.shutdown.Shutdown(ctx)
}

func (r *Runner) logEvent(_ context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.TradeExecutedEvent:
		r.log.WithSignature(e.Signature).Info("✅ Trade copied",
			zap.String("source", e.SourceSignature),
			zap.String("token_in", e.TokenIn),
			zap.String("token_out", e.TokenOut),
			zap.String("amount", e.Amount.String()),
			zap.Int("attempts", e.Attempts))
	case events.TradeFailedEvent:
		r.log.WithSignature(e.SourceSignature).Warn("❌ Trade copy failed",
			zap.String("token_in", e.TokenIn),
			zap.String("token_out", e.TokenOut),
			zap.String("amount", e.Amount.String()),
			zap.Int("attempts", e.Attempts),
			zap.String("error", e.Error))
	case events.PositionUpdatedEvent:
		fields := []zap.Field{
			zap.String("position_id", e.PositionID),
			zap.String("token", e.TokenMint),
			zap.String("price", e.CurrentPrice.String()),
			zap.String("change", e.PriceChange.StringFixed(4)),
			zap.String("pnl", e.PnL.String()),
		}
		if e.Status == string(monitor.StatusClosed) {
			r.logger.Info("📕 Position closed", append(fields, zap.String("reason", e.CloseReason))...)
			return nil
		}
		r.logger.Debug("Position updated", fields...)
	case events.StatusEvent:
		fields := []zap.Field{zap.String("source", e.Component)}
		for k, v := range e.Fields {
			fields = append(fields, zap.String(k, v))
		}
		r.logger.Info(e.Message, fields...)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type())
	}
	return nil
}

func (r *Runner) onEventError(ev events.Event, err error) {
	r.log.LogError("Failed to handle event", err, zap.String("type", string(ev.Type())))
}

func (r *Runner) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := r.trades.Stats()
			r.logger.Info("📊 Trading stats",
				zap.Int("total_trades", stats.TotalTrades),
				zap.Int("successful", stats.SuccessfulTrades),
				zap.Int("failed", stats.FailedTrades),
				zap.String("volume", stats.TotalVolume.String()),
				zap.Int("open_positions", r.positions.OpenCount()),
				zap.String("total_pnl", r.positions.TotalPnL().String()),
				zap.String("balance_sol", r.state.Balance().String()))
		}
	}
}

func (r *Runner) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.collector.Handler())

	srv := &http.Server{
		Addr:              r.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("Serving metrics", zap.String("addr", r.cfg.MetricsAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsReadTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
