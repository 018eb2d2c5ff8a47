// internal/trading/types.go
package trading

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/eventlistener"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	"github.com/rovshanmuradov/solana-copybot/internal/transaction"
	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

// ActivityStream delivers transactions mentioning the target account.
type ActivityStream interface {
	Subscribe(ctx context.Context, account string) (<-chan eventlistener.Notification, error)
}

// TransactionParser resolves a signature into balance deltas.
type TransactionParser interface {
	Parse(ctx context.Context, signature string) (*types.ParsedTransaction, error)
}

// WalletState sizes trades against the operator balance.
type WalletState interface {
	Owner() solana.PublicKey
	Eligible(observed decimal.Decimal) error
	SizeTrade(observed decimal.Decimal) decimal.Decimal
	CheckViability(ctx context.Context, amount decimal.Decimal) (bool, error)
	WithinLimits(amount decimal.Decimal) error
	RefreshBalance(ctx context.Context) (decimal.Decimal, error)
}

// Executor submits instructions under the executor lock.
type Executor interface {
	Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, opts transaction.Options) types.ExecutionResult
}

// RouteBuilder turns an order into swap instructions for owner.
type RouteBuilder interface {
	BuildSwap(ctx context.Context, order types.TradeOrder, owner solana.PublicKey) ([]solana.Instruction, error)
}

// PositionOpener is notified of every successful copy.
type PositionOpener interface {
	Open(tokenMint string, amount, entryPrice decimal.Decimal, opts ...monitor.OpenOption) (*monitor.Position, error)
}

// Metrics receives trade pipeline observations.
type Metrics interface {
	ObserveTrade(success bool, amount float64, took time.Duration)
	ObserveSkipped(reason string)
	ObserveQueueDrop()
}

type nopMetrics struct{}

func (nopMetrics) ObserveTrade(bool, float64, time.Duration) {}
func (nopMetrics) ObserveSkipped(string)                     {}
func (nopMetrics) ObserveQueueDrop()                         {}

// Skip reasons reported to metrics.
const (
	SkipFailedOnChain = "failed_on_chain"
	SkipDuplicate     = "duplicate"
	SkipNotParsed     = "not_parsed"
	SkipNotSwap       = "not_swap"
	SkipFiltered      = "filtered"
	SkipLimits        = "limits"
	SkipNotViable     = "not_viable"
	SkipNoRoute       = "no_route"
	SkipError         = "error"
)

// Config holds trade manager settings.
type Config struct {
	SlippageTolerance decimal.Decimal
	MaxRetries        int
	RetryDelay        time.Duration
	QueueSize         int
	DedupeTTL         time.Duration
	Submit            transaction.Options
}

// Stats are cumulative trading counters.
type Stats struct {
	TotalTrades      int
	SuccessfulTrades int
	FailedTrades     int
	TotalVolume      decimal.Decimal
	LastTradeAt      time.Time
}
