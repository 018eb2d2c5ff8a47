// internal/parser/swap.go
package parser

import (
	"fmt"

	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

// LegPolicy picks the tokenIn (out-direction) and tokenOut (in-direction) legs of a swap.
type LegPolicy interface {
	Pick(outs, ins []types.Transfer) (tokenIn, tokenOut types.Transfer)
}

// FirstMatch takes the first out transfer as tokenIn and the first in transfer as tokenOut.
type FirstMatch struct{}

func (FirstMatch) Pick(outs, ins []types.Transfer) (types.Transfer, types.Transfer) {
	return outs[0], ins[0]
}

// LargestLeg takes the largest out and the largest in transfer, earliest wins ties.
type LargestLeg struct{}

func (LargestLeg) Pick(outs, ins []types.Transfer) (types.Transfer, types.Transfer) {
	return largest(outs), largest(ins)
}

func largest(transfers []types.Transfer) types.Transfer {
	best := transfers[0]
	for _, t := range transfers[1:] {
		if t.Amount.GreaterThan(best.Amount) {
			best = t
		}
	}
	return best
}

// PolicyByName maps the swap_leg_policy setting to a LegPolicy.
func PolicyByName(name string) (LegPolicy, error) {
	switch name {
	case "", "first":
		return FirstMatch{}, nil
	case "largest":
		return LargestLeg{}, nil
	default:
		return nil, fmt.Errorf("unknown swap leg policy %q", name)
	}
}

// ClassifySwap returns swap details using the first-match policy.
func ClassifySwap(parsed *types.ParsedTransaction) *types.SwapDetails {
	return ClassifySwapWith(parsed, FirstMatch{})
}

// ClassifySwapWith returns nil unless parsed has at least two token transfers
// with at least one in each direction.
func ClassifySwapWith(parsed *types.ParsedTransaction, policy LegPolicy) *types.SwapDetails {
	if parsed == nil {
		return nil
	}
	tokens := parsed.TokenTransfers()
	if len(tokens) < 2 {
		return nil
	}

	var outs, ins []types.Transfer
	for _, t := range tokens {
		switch t.Direction {
		case types.DirectionOut:
			outs = append(outs, t)
		case types.DirectionIn:
			ins = append(ins, t)
		}
	}
	if len(outs) == 0 || len(ins) == 0 {
		return nil
	}

	if policy == nil {
		policy = FirstMatch{}
	}
	in, out := policy.Pick(outs, ins)

	return &types.SwapDetails{
		Signature: parsed.Signature,
		TokenIn:   types.SwapLeg{Mint: in.Mint, Amount: in.Amount, Decimals: in.Decimals},
		TokenOut:  types.SwapLeg{Mint: out.Mint, Amount: out.Amount, Decimals: out.Decimals},
		Timestamp: parsed.Timestamp,
	}
}
