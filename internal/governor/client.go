// internal/governor/client.go
package governor

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
)

// Client routes every ledger call of the wrapped client through a Governor.
type Client struct {
	inner   blockchain.Client
	gov     *Governor
	logger  *zap.Logger
	polling blockchain.ConfirmPolling
}

// NewClient wraps inner so that no caller can bypass gov.
func NewClient(inner blockchain.Client, gov *Governor, logger *zap.Logger) *Client {
	return &Client{
		inner:   inner,
		gov:     gov,
		logger:  logger.Named("governed-client"),
		polling: blockchain.DefaultConfirmPolling,
	}
}

// Governor exposes the shared governor, e.g. for snapshots in status reporting.
func (c *Client) Governor() *Governor { return c.gov }

func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	return Call(ctx, c.gov, "getTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return c.inner.GetTransaction(ctx, signature)
	})
}

func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	return Call(ctx, c.gov, "getBalance", func(ctx context.Context) (uint64, error) {
		return c.inner.GetBalance(ctx, pubkey, commitment)
	})
}

func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	return Call(ctx, c.gov, "getLatestBlockhash", c.inner.GetRecentBlockhash)
}

func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return Call(ctx, c.gov, "getSignatureStatuses", func(ctx context.Context) (*rpc.GetSignatureStatusesResult, error) {
		return c.inner.GetSignatureStatuses(ctx, signatures...)
	})
}

func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts blockchain.TransactionOptions) (solana.Signature, error) {
	return Call(ctx, c.gov, "sendTransaction", func(ctx context.Context) (solana.Signature, error) {
		return c.inner.SendTransactionWithOpts(ctx, tx, opts)
	})
}

// WaitForTransactionConfirmation polls through the governed status call so every poll pays the cooldown.
func (c *Client) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	polling := c.polling
	polling.OnError = func(err error) {
		c.logger.Debug("Status poll failed", zap.String("signature", signature.String()), zap.Error(err))
	}
	return blockchain.WaitForConfirmation(ctx, c.GetSignatureStatuses, signature, commitment, polling)
}

var _ blockchain.Client = (*Client)(nil)
