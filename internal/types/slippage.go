// internal/types/slippage.go
package types

import (
	"github.com/shopspring/decimal"
)

var bpsPerUnit = decimal.NewFromInt(10_000)

// SlippageBps converts the fractional tolerance (0.005 = 0.5%) into basis points,
// rounding down and never going below one basis point.
func (o TradeOrder) SlippageBps() uint64 {
	bps := o.SlippageTolerance.Mul(bpsPerUnit).Floor()
	if bps.LessThan(decimal.NewFromInt(1)) {
		return 1
	}
	return uint64(bps.IntPart())
}

// RawAmount converts the UI amount of the input leg into base units using its decimals.
func (o TradeOrder) RawAmount() uint64 {
	raw := o.Amount.Shift(int32(o.TokenIn.Decimals)).Floor()
	if raw.IsNegative() {
		return 0
	}
	return uint64(raw.IntPart())
}

