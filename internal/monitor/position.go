// internal/monitor/position.go
package monitor

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a position. It only ever moves from open to closed.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonManual     CloseReason = "manual"
)

// Position is a copied trade being tracked for exit.
type Position struct {
	ID           string
	TokenMint    string
	QuoteMint    string
	Amount       decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	PriceChange  decimal.Decimal // fraction of entry
	PnL          decimal.Decimal
	Status       Status
	CloseReason  CloseReason
	OpenedAt     time.Time
	UpdatedAt    time.Time
	ClosedAt     time.Time
	SourceSig    string
}

// mark revalues the position at price.
func (p *Position) mark(price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	p.PnL, p.PriceChange = computePnL(p.Amount, p.EntryPrice, price)
	p.UpdatedAt = at
}

// computePnL returns pnl = amount*(cur-entry)/entry and change = (cur-entry)/entry.
// A zero entry price yields zero for both.
func computePnL(amount, entry, current decimal.Decimal) (pnl, change decimal.Decimal) {
	if entry.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	change = current.Sub(entry).Div(entry)
	return amount.Mul(change), change
}
