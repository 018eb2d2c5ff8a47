// internal/parser/parser.go
package parser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/governor"
	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

// SOLDecimals is the number of decimals of the native currency.
const SOLDecimals = 9

// Parser turns confirmed ledger transactions into normalized transfer lists.
type Parser struct {
	client blockchain.Client
	logger *zap.Logger
	now    func() time.Time
}

// New creates a parser. client should be the governed client.
func New(client blockchain.Client, logger *zap.Logger) *Parser {
	return &Parser{
		client: client,
		logger: logger.Named("parser"),
		now:    time.Now,
	}
}

// Parse fetches and normalizes the transaction behind signature.
//
// It returns (nil, nil) when the transaction does not exist, failed on chain,
// or cannot be decoded; such outcomes are logged and are never fatal to the
// stream. A non-nil error is returned when ctx is done or the governor gave up
// on rate-limit retries.
func (p *Parser) Parse(ctx context.Context, signature string) (*types.ParsedTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		p.logger.Warn("Invalid signature", zap.String("signature", signature), zap.Error(err))
		return nil, nil
	}

	result, err := p.client.GetTransaction(ctx, sig)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, governor.ErrRPCExhausted) {
			return nil, fmt.Errorf("fetch transaction %s: %w", signature, err)
		}
		if errors.Is(err, rpc.ErrNotFound) {
			p.logger.Info("Transaction not found", zap.String("signature", signature))
		} else {
			p.logger.Warn("Failed to fetch transaction", zap.String("signature", signature), zap.Error(err))
		}
		return nil, nil
	}

	parsed, err := p.FromResult(signature, result)
	if err != nil {
		p.logger.Warn("Malformed transaction payload", zap.String("signature", signature), zap.Error(err))
		return nil, nil
	}
	if parsed == nil {
		p.logger.Debug("Skipping failed transaction", zap.String("signature", signature))
	}
	return parsed, nil
}

// FromResult normalizes an already fetched transaction. It returns (nil, nil)
// for failed transactions and an error for payloads it cannot decode.
func (p *Parser) FromResult(signature string, result *rpc.GetTransactionResult) (parsed *types.ParsedTransaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			parsed, err = nil, fmt.Errorf("panic while parsing: %v", r)
		}
	}()

	if result == nil || result.Meta == nil || result.Transaction == nil {
		return nil, errors.New("missing transaction or meta")
	}
	if result.Meta.Err != nil {
		return nil, nil
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if tx == nil {
		return nil, errors.New("empty transaction envelope")
	}

	keys := accountKeys(tx, result.Meta)

	tokens, err := tokenTransfers(keys, result.Meta)
	if err != nil {
		return nil, err
	}
	natives, err := nativeTransfers(keys, result.Meta)
	if err != nil {
		return nil, err
	}

	timestamp := p.now().UTC()
	if result.BlockTime != nil {
		timestamp = result.BlockTime.Time().UTC()
	}

	return &types.ParsedTransaction{
		Signature: signature,
		Timestamp: timestamp,
		Success:   true,
		Transfers: append(tokens, natives...),
	}, nil
}

// accountKeys returns static keys followed by writable and read-only lookup-table keys,
// which is the index space used by balances and compiled instructions.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) solana.PublicKeySlice {
	keys := make(solana.PublicKeySlice, 0,
		len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	return keys
}

func tokenTransfers(keys solana.PublicKeySlice, meta *rpc.TransactionMeta) ([]types.Transfer, error) {
	pre := make(map[uint16]rpc.TokenBalance, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		pre[b.AccountIndex] = b
	}

	var transfers []types.Transfer
	seen := make(map[uint16]struct{}, len(meta.PostTokenBalances))

	for _, post := range meta.PostTokenBalances {
		seen[post.AccountIndex] = struct{}{}
		before, ok := pre[post.AccountIndex]
		var beforePtr *rpc.TokenBalance
		if ok {
			beforePtr = &before
		}
		t, err := tokenDelta(keys, beforePtr, &post)
		if err != nil {
			return nil, err
		}
		if t != nil {
			transfers = append(transfers, *t)
		}
	}

	// accounts closed during the transaction only have a pre balance
	for _, b := range meta.PreTokenBalances {
		if _, ok := seen[b.AccountIndex]; ok {
			continue
		}
		t, err := tokenDelta(keys, &b, nil)
		if err != nil {
			return nil, err
		}
		if t != nil {
			transfers = append(transfers, *t)
		}
	}
	return transfers, nil
}

func tokenDelta(keys solana.PublicKeySlice, pre, post *rpc.TokenBalance) (*types.Transfer, error) {
	ref := post
	if ref == nil {
		ref = pre
	}
	if ref.UiTokenAmount == nil {
		return nil, fmt.Errorf("token balance %d has no amount", ref.AccountIndex)
	}

	before, err := rawAmount(pre)
	if err != nil {
		return nil, err
	}
	after, err := rawAmount(post)
	if err != nil {
		return nil, err
	}

	delta := after.Sub(before)
	if delta.IsZero() {
		return nil, nil
	}

	decimals := ref.UiTokenAmount.Decimals
	owner := tokenOwner(keys, pre, post)
	t := &types.Transfer{
		Kind:     types.TransferToken,
		Mint:     ref.Mint.String(),
		Amount:   delta.Abs().Shift(-int32(decimals)),
		Decimals: decimals,
	}
	if delta.IsPositive() {
		t.Direction = types.DirectionIn
		t.To = owner
	} else {
		t.Direction = types.DirectionOut
		t.From = owner
	}
	return t, nil
}

func rawAmount(b *rpc.TokenBalance) (decimal.Decimal, error) {
	if b == nil || b.UiTokenAmount == nil || b.UiTokenAmount.Amount == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(b.UiTokenAmount.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token balance %d: invalid amount %q: %w", b.AccountIndex, b.UiTokenAmount.Amount, err)
	}
	return amount, nil
}

func tokenOwner(keys solana.PublicKeySlice, pre, post *rpc.TokenBalance) string {
	for _, b := range []*rpc.TokenBalance{post, pre} {
		if b != nil && b.Owner != nil {
			return b.Owner.String()
		}
	}
	ref := post
	if ref == nil {
		ref = pre
	}
	if int(ref.AccountIndex) < len(keys) {
		return keys[ref.AccountIndex].String()
	}
	return ""
}

// nativeTransfers nets inner system-program transfers per account.
func nativeTransfers(keys solana.PublicKeySlice, meta *rpc.TransactionMeta) ([]types.Transfer, error) {
	deltas := make(map[solana.PublicKey]int64)
	var order []solana.PublicKey

	touch := func(pk solana.PublicKey, lamports int64) {
		if _, ok := deltas[pk]; !ok {
			order = append(order, pk)
		}
		deltas[pk] += lamports
	}

	for _, inner := range meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			if int(ix.ProgramIDIndex) >= len(keys) {
				return nil, fmt.Errorf("program index %d out of range", ix.ProgramIDIndex)
			}
			if !keys[ix.ProgramIDIndex].Equals(solana.SystemProgramID) {
				continue
			}
			from, to, lamports, ok, err := decodeSystemTransfer(keys, ix)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			touch(from, -int64(lamports))
			touch(to, int64(lamports))
		}
	}

	var transfers []types.Transfer
	for _, pk := range order {
		lamports := deltas[pk]
		if lamports == 0 {
			continue
		}
		t := types.Transfer{
			Kind:     types.TransferNative,
			Amount:   decimal.NewFromInt(lamports).Abs().Shift(-SOLDecimals),
			Decimals: SOLDecimals,
		}
		if lamports > 0 {
			t.Direction = types.DirectionIn
			t.To = pk.String()
		} else {
			t.Direction = types.DirectionOut
			t.From = pk.String()
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func decodeSystemTransfer(keys solana.PublicKeySlice, ix solana.CompiledInstruction) (from, to solana.PublicKey, lamports uint64, ok bool, err error) {
	if len(ix.Accounts) < 2 {
		return from, to, 0, false, nil
	}
	metas := make([]*solana.AccountMeta, 0, len(ix.Accounts))
	for _, idx := range ix.Accounts {
		if int(idx) >= len(keys) {
			return from, to, 0, false, fmt.Errorf("account index %d out of range", idx)
		}
		metas = append(metas, solana.Meta(keys[idx]))
	}

	decoded, err := system.DecodeInstruction(metas, ix.Data)
	if err != nil {
		// other system instructions we do not model
		return from, to, 0, false, nil
	}
	transfer, isTransfer := decoded.Impl.(*system.Transfer)
	if !isTransfer || transfer.Lamports == nil {
		return from, to, 0, false, nil
	}
	return transfer.GetFundingAccount().PublicKey, transfer.GetRecipientAccount().PublicKey, *transfer.Lamports, true, nil
}
