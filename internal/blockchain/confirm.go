// internal/blockchain/confirm.go
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
)

// StatusFunc fetches signature statuses; both the raw and governed clients supply one.
type StatusFunc func(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)

// ConfirmPolling настраивает простой polling‑механизм ожидания подтверждения.
type ConfirmPolling struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnError is called for transient status lookup failures; polling continues.
	OnError func(error)
}

// DefaultConfirmPolling matches the node's typical confirmation latency.
var DefaultConfirmPolling = ConfirmPolling{Interval: 500 * time.Millisecond, Timeout: 30 * time.Second}

// WaitForConfirmation polls statuses until signature reaches commitment, fails on chain,
// the timeout elapses, or ctx is cancelled.
func WaitForConfirmation(
	ctx context.Context,
	statuses StatusFunc,
	signature solana.Signature,
	commitment rpc.CommitmentType,
	polling ConfirmPolling,
) error {
	ticker := time.NewTicker(polling.Interval)
	defer ticker.Stop()
	timeout := time.NewTimer(polling.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("%w: %s", ErrConfirmationTimeout, signature)
		case <-ticker.C:
			result, err := statuses(ctx, signature)
			if err != nil {
				if polling.OnError != nil {
					polling.OnError(err)
				}
				continue
			}
			if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if Reached(status.ConfirmationStatus, commitment) {
				return nil
			}
		}
	}
}

// Reached reports whether an observed confirmation status satisfies the wanted commitment.
func Reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return want != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return want == rpc.CommitmentProcessed
	default:
		return false
	}
}
