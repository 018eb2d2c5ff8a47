// internal/types/types.go
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferKind distinguishes SPL token movements from native SOL movements.
type TransferKind string

const (
	TransferToken  TransferKind = "token"
	TransferNative TransferKind = "native"
)

// Direction is relative to the account whose balance changed.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer is a single non-zero balance delta extracted from a transaction.
type Transfer struct {
	Kind      TransferKind    `json:"kind"`
	Mint      string          `json:"mint,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
	Decimals  uint8           `json:"decimals,omitempty"`
}

// ParsedTransaction is the normalized view of a confirmed transaction.
type ParsedTransaction struct {
	Signature string     `json:"signature"`
	Timestamp time.Time  `json:"timestamp"`
	Success   bool       `json:"success"`
	Transfers []Transfer `json:"transfers"`
}

// TokenTransfers returns only the token-kind transfers, preserving order.
func (p *ParsedTransaction) TokenTransfers() []Transfer {
	out := make([]Transfer, 0, len(p.Transfers))
	for _, t := range p.Transfers {
		if t.Kind == TransferToken {
			out = append(out, t)
		}
	}
	return out
}

// SwapLeg is one side of a detected swap.
type SwapLeg struct {
	Mint     string          `json:"mint"`
	Amount   decimal.Decimal `json:"amount"`
	Decimals uint8           `json:"decimals"`
}

// SwapDetails describes a swap observed on the target account.
type SwapDetails struct {
	Signature string    `json:"signature"`
	TokenIn   SwapLeg   `json:"token_in"`
	TokenOut  SwapLeg   `json:"token_out"`
	Timestamp time.Time `json:"timestamp"`
}

// Price returns the observed execution price of TokenOut denominated in TokenIn.
func (s *SwapDetails) Price() decimal.Decimal {
	if s.TokenOut.Amount.IsZero() {
		return decimal.Zero
	}
	return s.TokenIn.Amount.Div(s.TokenOut.Amount)
}

// TradeOrder is the operator's scaled copy of an observed swap.
type TradeOrder struct {
	TokenIn           SwapLeg         `json:"token_in"`
	TokenOut          SwapLeg         `json:"token_out"`
	Amount            decimal.Decimal `json:"amount"`
	SlippageTolerance decimal.Decimal `json:"slippage_tolerance"`
	ObservedPrice     decimal.Decimal `json:"observed_price"`
	SourceSignature   string          `json:"source_signature,omitempty"`
}

// ExpectedOut estimates the TokenOut quantity at the observed price.
func (o TradeOrder) ExpectedOut() decimal.Decimal {
	if !o.ObservedPrice.IsPositive() {
		return decimal.Zero
	}
	return o.Amount.Div(o.ObservedPrice)
}

// ExecutionResult is the terminal outcome of one execution attempt.
type ExecutionResult struct {
	Signature string `json:"signature,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Failed builds an unsuccessful result from err.
func Failed(err error) ExecutionResult {
	return ExecutionResult{Success: false, Error: err.Error()}
}
