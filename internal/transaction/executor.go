// internal/transaction/executor.go
package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/types"
)

var (
	ErrNoSigners      = errors.New("no signers supplied")
	ErrNoInstructions = errors.New("no instructions supplied")
	ErrExecutorBusy   = errors.New("executor lock not acquired")
)

// Config holds fee settings applied to every transaction.
type Config struct {
	ComputeUnitPrice uint64 // micro-lamports per compute unit
	ComputeUnitLimit uint32
}

// Options control submission of a single transaction.
type Options struct {
	Confirm       bool
	SkipPreflight bool
	Commitment    rpc.CommitmentType
}

// Executor builds, signs and submits transactions one at a time for the operator's fee payer.
type Executor struct {
	client blockchain.Client
	cfg    Config
	logger *zap.Logger
	lock   chan struct{}
}

// NewExecutor creates an executor. client should be the governed client.
func NewExecutor(client blockchain.Client, cfg Config, logger *zap.Logger) *Executor {
	return &Executor{
		client: client,
		cfg:    cfg,
		logger: logger.Named("executor"),
		lock:   make(chan struct{}, 1),
	}
}

// Execute prepends compute budget instructions, signs with every signer (the first
// pays fees), submits and optionally waits for confirmation. It never panics and
// reports every failure through the returned result.
func (e *Executor) Execute(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, opts Options) (result types.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Execution panic recovered", zap.Any("panic", r))
			result = types.Failed(fmt.Errorf("execution panic: %v", r))
		}
	}()

	if len(signers) == 0 {
		return types.Failed(ErrNoSigners)
	}
	if len(instructions) == 0 {
		return types.Failed(ErrNoInstructions)
	}

	sig, err := e.submitLocked(ctx, func(ctx context.Context) (*solana.Transaction, error) {
		return e.build(ctx, instructions, signers)
	}, opts)
	if err != nil {
		e.logger.Warn("Transaction submission failed", zap.Error(err))
		return types.Failed(err)
	}
	return e.finish(ctx, sig, opts)
}

// ExecuteRaw submits an already signed transaction under the same lock.
func (e *Executor) ExecuteRaw(ctx context.Context, tx *solana.Transaction, opts Options) (result types.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = types.Failed(fmt.Errorf("execution panic: %v", r))
		}
	}()

	if tx == nil || len(tx.Signatures) == 0 {
		return types.Failed(ErrNoSigners)
	}
	sig, err := e.submitLocked(ctx, func(context.Context) (*solana.Transaction, error) {
		return tx, nil
	}, opts)
	if err != nil {
		return types.Failed(err)
	}
	return e.finish(ctx, sig, opts)
}

// Drain waits until no submission holds the lock; used on shutdown.
func (e *Executor) Drain(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		e.logger.Warn("⚠️ Executor still busy at shutdown", zap.Error(err))
		return err
	}
	e.release()
	return nil
}

func (e *Executor) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrExecutorBusy, ctx.Err())
	}
}

func (e *Executor) release() { <-e.lock }

// submitLocked holds the lock from blockhash fetch through submission.
func (e *Executor) submitLocked(ctx context.Context, prepare func(context.Context) (*solana.Transaction, error), opts Options) (solana.Signature, error) {
	if err := e.acquire(ctx); err != nil {
		return solana.Signature{}, err
	}
	defer e.release()

	tx, err := prepare(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := e.client.SendTransactionWithOpts(ctx, tx, blockchain.TransactionOptions{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: e.commitment(opts),
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	e.logger.Info("📤 Transaction sent", zap.String("signature", sig.String()))
	return sig, nil
}

func (e *Executor) build(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (*solana.Transaction, error) {
	blockhash, err := e.client.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get recent blockhash: %w", err)
	}

	payer := signers[0].PublicKey()
	tx, err := solana.NewTransaction(
		withBudget(instructions, e.cfg.ComputeUnitPrice, e.cfg.ComputeUnitLimit),
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	keys := make(map[solana.PublicKey]*solana.PrivateKey, len(signers))
	for i := range signers {
		keys[signers[i].PublicKey()] = &signers[i]
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey { return keys[key] }); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (e *Executor) finish(ctx context.Context, sig solana.Signature, opts Options) types.ExecutionResult {
	if opts.Confirm {
		if err := e.client.WaitForTransactionConfirmation(ctx, sig, e.commitment(opts)); err != nil {
			e.logger.Warn("⚠️ Confirmation failed", zap.String("signature", sig.String()), zap.Error(err))
			return types.ExecutionResult{
				Signature: sig.String(),
				Error:     fmt.Errorf("confirmation failed: %w", err).Error(),
			}
		}
		e.logger.Info("✅ Transaction confirmed", zap.String("signature", sig.String()))
	}
	return types.ExecutionResult{Signature: sig.String(), Success: true}
}

func (e *Executor) commitment(opts Options) rpc.CommitmentType {
	if opts.Commitment == "" {
		return rpc.CommitmentConfirmed
	}
	return opts.Commitment
}
