// internal/jupiter/swap.go
package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

var ErrLookupTables = errors.New("route requires address lookup tables")

// BuildSwap fetches a quote for order and returns the route instructions for
// owner. Compute budget instructions from the API are dropped.
func (c *Client) BuildSwap(ctx context.Context, order types.TradeOrder, owner solana.PublicKey) ([]solana.Instruction, error) {
	amount := order.RawAmount()
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount rounds to zero", ErrNoRoute)
	}

	quote, err := c.quote(ctx, order, amount)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"quoteResponse":    json.RawMessage(quote),
			"userPublicKey":    owner.String(),
			"wrapAndUnwrapSol": true,
		}).
		Post("/swap/v1/swap-instructions")
	if err != nil {
		return nil, fmt.Errorf("swap-instructions request: %w", err)
	}
	if err := checkResponse("swap-instructions", resp); err != nil {
		return nil, err
	}

	instructions, err := decodeRoute(resp.Body())
	if err != nil {
		return nil, err
	}

	c.logger.Info("🔀 Swap route built",
		zap.String("input_mint", order.TokenIn.Mint),
		zap.String("output_mint", order.TokenOut.Mint),
		zap.Uint64("amount", amount),
		zap.String("out_amount", gjson.GetBytes(quote, "outAmount").String()),
		zap.Int("instructions", len(instructions)))
	return instructions, nil
}

func (c *Client) quote(ctx context.Context, order types.TradeOrder, amount uint64) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":           order.TokenIn.Mint,
			"outputMint":          order.TokenOut.Mint,
			"amount":              strconv.FormatUint(amount, 10),
			"slippageBps":         strconv.FormatUint(order.SlippageBps(), 10),
			"asLegacyTransaction": "true",
		}).
		Get("/swap/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	if err := checkResponse("quote", resp); err != nil {
		return nil, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "outAmount").Exists() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, order.TokenIn.Mint, order.TokenOut.Mint)
	}
	return body, nil
}

// decodeRoute turns the swap-instructions payload into setup, swap and
// cleanup instructions, in that order.
func decodeRoute(body []byte) ([]solana.Instruction, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("swap-instructions: invalid json response")
	}
	parsed := gjson.ParseBytes(body)

	if n := len(parsed.Get("addressLookupTableAddresses").Array()); n > 0 {
		return nil, fmt.Errorf("%w (%d)", ErrLookupTables, n)
	}

	var nodes []gjson.Result
	nodes = append(nodes, parsed.Get("setupInstructions").Array()...)
	swap := parsed.Get("swapInstruction")
	if !swap.IsObject() {
		return nil, fmt.Errorf("%w: missing swapInstruction", ErrNoRoute)
	}
	nodes = append(nodes, swap)
	if cleanup := parsed.Get("cleanupInstruction"); cleanup.IsObject() {
		nodes = append(nodes, cleanup)
	}

	out := make([]solana.Instruction, 0, len(nodes))
	for i, node := range nodes {
		ix, err := decodeInstruction(node)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if ix.ProgramID().Equals(solana.ComputeBudget) {
			continue
		}
		out = append(out, ix)
	}
	return out, nil
}

func decodeInstruction(node gjson.Result) (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(node.Get("programId").String())
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(node.Get("data").String())
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	var metas solana.AccountMetaSlice
	var accErr error
	node.Get("accounts").ForEach(func(_, acc gjson.Result) bool {
		pk, err := solana.PublicKeyFromBase58(acc.Get("pubkey").String())
		if err != nil {
			accErr = fmt.Errorf("account %q: %w", acc.Get("pubkey").String(), err)
			return false
		}
		metas = append(metas, solana.NewAccountMeta(pk, acc.Get("isWritable").Bool(), acc.Get("isSigner").Bool()))
		return true
	})
	if accErr != nil {
		return nil, accErr
	}

	return solana.NewInstruction(programID, metas, data), nil
}
