package blockchain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolling = ConfirmPolling{Interval: 5 * time.Millisecond, Timeout: 200 * time.Millisecond}

func statusSequence(results ...*rpc.SignatureStatusesResult) (StatusFunc, *int32) {
	var calls int32
	return func(ctx context.Context, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(results) {
			n = len(results) - 1
		}
		if results[n] == nil {
			return nil, errors.New("node unavailable")
		}
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{results[n]}}, nil
	}, &calls
}

func TestWaitForConfirmationReachesCommitment(t *testing.T) {
	fn, calls := statusSequence(
		nil,
		&rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		&rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	)

	var transient int32
	polling := fastPolling
	polling.OnError = func(error) { atomic.AddInt32(&transient, 1) }

	err := WaitForConfirmation(context.Background(), fn, solana.Signature{}, rpc.CommitmentConfirmed, polling)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&transient))
}

func TestWaitForConfirmationOnChainFailure(t *testing.T) {
	fn, _ := statusSequence(&rpc.SignatureStatusesResult{
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
	})

	err := WaitForConfirmation(context.Background(), fn, solana.Signature{}, rpc.CommitmentConfirmed, fastPolling)
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestWaitForConfirmationTimeoutAndCancel(t *testing.T) {
	fn, _ := statusSequence(&rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed})

	err := WaitForConfirmation(context.Background(), fn, solana.Signature{}, rpc.CommitmentFinalized, fastPolling)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WaitForConfirmation(ctx, fn, solana.Signature{}, rpc.CommitmentFinalized, fastPolling)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReached(t *testing.T) {
	tests := []struct {
		status rpc.ConfirmationStatusType
		want   rpc.CommitmentType
		ok     bool
	}{
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
		{"", rpc.CommitmentProcessed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, Reached(tt.status, tt.want), "%s vs %s", tt.status, tt.want)
	}
}
