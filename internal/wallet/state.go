// internal/wallet/state.go
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
)

var lamportsPerSOL = decimal.New(1, 9)

var (
	ErrBelowMinTrade      = errors.New("trade below minimum size")
	ErrAboveBalanceShare  = errors.New("trade above allowed share of balance")
	ErrBelowCopyThreshold = errors.New("observed amount below copy threshold")
	ErrAboveMaxTrade      = errors.New("observed amount above maximum transaction size")
)

// Limits are the sizing and safety parameters of the operator account.
type Limits struct {
	ScalingFactor        decimal.Decimal
	MinTradeSize         decimal.Decimal
	MaxTransactionSize   decimal.Decimal
	MaxBalancePercentage decimal.Decimal
	FeeBufferRatio       decimal.Decimal
	MinBalanceToCopy     decimal.Decimal
}

// LimitsFromConfig converts config floats into exact decimals.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		ScalingFactor:        cfg.ScalingFactorDec(),
		MinTradeSize:         cfg.MinTradeSizeDec(),
		MaxTransactionSize:   cfg.MaxTransactionSizeDec(),
		MaxBalancePercentage: cfg.MaxBalancePercentageDec(),
		FeeBufferRatio:       cfg.FeeBufferRatioDec(),
		MinBalanceToCopy:     cfg.MinBalanceToCopyDec(),
	}
}

// Balance is the last observed operator balance.
type Balance struct {
	Lamports    uint64
	SOL         decimal.Decimal
	RefreshedAt time.Time
}

// State tracks the operator balance and applies trade sizing rules.
type State struct {
	owner  solana.PublicKey
	client blockchain.Client
	limits Limits
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	balance Balance
}

// NewState creates wallet state for owner. client should be the governed client.
func NewState(owner solana.PublicKey, client blockchain.Client, limits Limits, logger *zap.Logger) *State {
	return &State{
		owner:  owner,
		client: client,
		limits: limits,
		logger: logger.Named("wallet_state"),
		now:    time.Now,
	}
}

// Owner returns the operator account.
func (s *State) Owner() solana.PublicKey { return s.owner }

// RefreshBalance fetches the current balance and overwrites the cached one.
func (s *State) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	lamports, err := s.client.GetBalance(ctx, s.owner, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refresh balance: %w", err)
	}

	sol := decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
	s.mu.Lock()
	s.balance = Balance{Lamports: lamports, SOL: sol, RefreshedAt: s.now()}
	s.mu.Unlock()

	s.logger.Debug("Balance refreshed", zap.String("balance", sol.String()))
	return sol, nil
}

// Balance returns the cached balance in SOL.
func (s *State) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance.SOL
}

// Snapshot returns the cached balance with its refresh time.
func (s *State) Snapshot() Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Eligible filters observed swaps before sizing: amounts below MinBalanceToCopy
// or above MaxTransactionSize (when set) are not copied.
func (s *State) Eligible(observed decimal.Decimal) error {
	switch {
	case observed.LessThan(s.limits.MinBalanceToCopy):
		return fmt.Errorf("%w: %s < %s", ErrBelowCopyThreshold, observed, s.limits.MinBalanceToCopy)
	case s.limits.MaxTransactionSize.IsPositive() && observed.GreaterThan(s.limits.MaxTransactionSize):
		return fmt.Errorf("%w: %s > %s", ErrAboveMaxTrade, observed, s.limits.MaxTransactionSize)
	}
	return nil
}

// SizeTrade scales observed and clamps it: up to MinTradeSize first, then down to
// balance*MaxBalancePercentage.
func (s *State) SizeTrade(observed decimal.Decimal) decimal.Decimal {
	amount := observed.Mul(s.limits.ScalingFactor)
	if amount.LessThan(s.limits.MinTradeSize) {
		amount = s.limits.MinTradeSize
	}
	if ceiling := s.ceiling(); amount.GreaterThan(ceiling) {
		amount = ceiling
	}
	return amount
}

func (s *State) ceiling() decimal.Decimal {
	return s.Balance().Mul(s.limits.MaxBalancePercentage)
}

// CheckViability refreshes the balance and reports whether it covers amount plus
// the fee buffer. Insufficient funds is (false, nil); only the refresh can fail.
func (s *State) CheckViability(ctx context.Context, amount decimal.Decimal) (bool, error) {
	balance, err := s.RefreshBalance(ctx)
	if err != nil {
		return false, err
	}
	required := amount.Mul(decimal.NewFromInt(1).Add(s.limits.FeeBufferRatio))
	return balance.GreaterThanOrEqual(required), nil
}

// WithinLimits re-validates a sized amount against the cached balance right before
// submission. The balance may have dropped since SizeTrade ran.
func (s *State) WithinLimits(amount decimal.Decimal) error {
	switch ceiling := s.ceiling(); {
	case amount.LessThan(s.limits.MinTradeSize):
		return fmt.Errorf("%w: %s < %s", ErrBelowMinTrade, amount, s.limits.MinTradeSize)
	case amount.GreaterThan(ceiling):
		return fmt.Errorf("%w: %s > %s", ErrAboveBalanceShare, amount, ceiling)
	}
	return nil
}
