// internal/trading/handle.go
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/eventlistener"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	"github.com/rovshanmuradov/solana-copybot/internal/parser"
	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

var ErrTradeFailed = errors.New("trade failed")

// HandleEvent runs one notification through parse, classify, size, viability,
// routing and execution. Non-swaps and unviable trades return nil.
func (m *Manager) HandleEvent(ctx context.Context, n eventlistener.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic while handling notification",
				zap.String("signature", n.Signature),
				zap.Any("panic", r))
			m.deps.Metrics.ObserveSkipped(SkipError)
			err = fmt.Errorf("panic handling %s: %v", n.Signature, r)
		}
	}()

	logger := m.logger.With(zap.String("signature", n.Signature))
	if n.Failed {
		m.deps.Metrics.ObserveSkipped(SkipFailedOnChain)
		return nil
	}

	parsed, err := m.deps.Parser.Parse(ctx, n.Signature)
	if err != nil {
		err = fmt.Errorf("parse transaction: %w", err)
		m.failStage(ctx, types.TradeOrder{SourceSignature: n.Signature}, err)
		return err
	}
	if parsed == nil {
		m.deps.Metrics.ObserveSkipped(SkipNotParsed)
		return nil
	}

	swap := parser.ClassifySwapWith(parsed, m.deps.Policy)
	if swap == nil {
		m.deps.Metrics.ObserveSkipped(SkipNotSwap)
		logger.Debug("Not a swap, skipping")
		return nil
	}
	logger.Info("🔍 Swap detected",
		zap.String("token_in", swap.TokenIn.Mint),
		zap.String("amount_in", swap.TokenIn.Amount.String()),
		zap.String("token_out", swap.TokenOut.Mint),
		zap.String("amount_out", swap.TokenOut.Amount.String()))

	if err := m.deps.Wallet.Eligible(swap.TokenIn.Amount); err != nil {
		m.deps.Metrics.ObserveSkipped(SkipFiltered)
		logger.Info("Observed swap filtered out", zap.Error(err))
		return nil
	}

	amount := m.deps.Wallet.SizeTrade(swap.TokenIn.Amount)
	order := m.buildOrder(swap, amount)

	viable, err := m.deps.Wallet.CheckViability(ctx, amount)
	if err != nil {
		err = fmt.Errorf("check viability: %w", err)
		m.failStage(ctx, order, err)
		return err
	}
	if !viable {
		m.deps.Metrics.ObserveSkipped(SkipNotViable)
		logger.Info("Insufficient balance for trade", zap.String("amount", amount.String()))
		return nil
	}
	if err := m.deps.Wallet.WithinLimits(amount); err != nil {
		m.deps.Metrics.ObserveSkipped(SkipLimits)
		logger.Info("Trade outside limits", zap.String("amount", amount.String()), zap.Error(err))
		return nil
	}

	instructions, err := m.deps.Routes.BuildSwap(ctx, order, m.deps.Wallet.Owner())
	if err != nil {
		m.deps.Metrics.ObserveSkipped(SkipNoRoute)
		m.publishFailed(order, 0, err)
		return fmt.Errorf("build route: %w", err)
	}

	_, err = m.ExecuteWithRetry(ctx, order, instructions)
	return err
}

func (m *Manager) buildOrder(swap *types.SwapDetails, amount decimal.Decimal) types.TradeOrder {
	return types.TradeOrder{
		TokenIn:           swap.TokenIn,
		TokenOut:          swap.TokenOut,
		Amount:            amount,
		SlippageTolerance: m.cfg.SlippageTolerance,
		ObservedPrice:     swap.Price(),
		SourceSignature:   swap.Signature,
	}
}

// ExecuteWithRetry submits instructions up to MaxRetries times with RetryDelay
// between attempts. The final failure is published as trade_failed; success is
// published as trade_executed and opens a position.
func (m *Manager) ExecuteWithRetry(ctx context.Context, order types.TradeOrder, instructions []solana.Instruction) (types.ExecutionResult, error) {
	started := time.Now()
	signers := []solana.PrivateKey{m.deps.Signer}
	logger := m.logger.With(zap.String("source_signature", order.SourceSignature))

	var result types.ExecutionResult
	attempts := 0
	for attempts < m.cfg.MaxRetries {
		attempts++
		result = m.deps.Executor.Execute(ctx, instructions, signers, m.cfg.Submit)
		if result.Success {
			break
		}
		logger.Warn("Trade attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", m.cfg.MaxRetries),
			zap.String("error", result.Error))

		if attempts == m.cfg.MaxRetries || !sleepCtx(ctx, m.cfg.RetryDelay) {
			break
		}
	}

	amount, _ := order.Amount.Float64()
	m.deps.Metrics.ObserveTrade(result.Success, amount, time.Since(started))
	m.recordTrade(result.Success, order.Amount)

	if !result.Success {
		err := fmt.Errorf("%w after %d attempts: %s", ErrTradeFailed, attempts, result.Error)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		m.publishFailed(order, attempts, err)
		return result, err
	}

	logger.Info("✅ Trade executed",
		zap.String("signature", result.Signature),
		zap.String("amount", order.Amount.String()),
		zap.Int("attempts", attempts))
	m.feed.Publish(events.TradeExecutedEvent{
		BaseEvent:       events.NewBase(events.TradeExecuted),
		Signature:       result.Signature,
		SourceSignature: order.SourceSignature,
		TokenIn:         order.TokenIn.Mint,
		TokenOut:        order.TokenOut.Mint,
		Amount:          order.Amount,
		Attempts:        attempts,
	})

	if _, err := m.deps.Wallet.RefreshBalance(ctx); err != nil {
		logger.Warn("Balance refresh after trade failed", zap.Error(err))
	}
	m.openPosition(order, logger)
	return result, nil
}

func (m *Manager) openPosition(order types.TradeOrder, logger *zap.Logger) {
	if m.deps.Positions == nil {
		return
	}
	_, err := m.deps.Positions.Open(order.TokenOut.Mint, order.ExpectedOut(), order.ObservedPrice,
		monitor.WithQuoteMint(order.TokenIn.Mint),
		monitor.WithSourceSignature(order.SourceSignature))
	if err != nil {
		logger.Warn("Position not opened", zap.String("token", order.TokenOut.Mint), zap.Error(err))
	}
}

// failStage reports a pipeline failure before execution as trade_failed with
// zero attempts. Cancellation is not a failure.
func (m *Manager) failStage(ctx context.Context, order types.TradeOrder, err error) {
	if ctx.Err() != nil {
		return
	}
	m.deps.Metrics.ObserveSkipped(SkipError)
	m.publishFailed(order, 0, err)
}

func (m *Manager) publishFailed(order types.TradeOrder, attempts int, err error) {
	m.logger.Error("❌ Trade failed",
		zap.String("source_signature", order.SourceSignature),
		zap.Int("attempts", attempts),
		zap.Error(err))
	m.feed.Publish(events.TradeFailedEvent{
		BaseEvent:       events.NewBase(events.TradeFailed),
		SourceSignature: order.SourceSignature,
		TokenIn:         order.TokenIn.Mint,
		TokenOut:        order.TokenOut.Mint,
		Amount:          order.Amount,
		Attempts:        attempts,
		Error:           err.Error(),
	})
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
