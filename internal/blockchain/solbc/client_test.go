package solbc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
)

// rpcServer answers JSON-RPC calls with the canned result registered for each method.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.Unmarshal(body, &req))

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":`+string(req.ID)+`,"result":`+result+`}`)
	}))
}

func TestClientGetBalance(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"getBalance": `{"context":{"slot":1},"value":2500000000}`,
	})
	defer srv.Close()

	client := NewClient(srv.URL, zaptest.NewLogger(t))
	lamports, err := client.GetBalance(context.Background(), solana.SystemProgramID, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), lamports)
}

func TestClientGetTransactionNotFound(t *testing.T) {
	srv := rpcServer(t, map[string]string{"getTransaction": "null"})
	defer srv.Close()

	client := NewClient(srv.URL, zaptest.NewLogger(t))
	result, err := client.GetTransaction(context.Background(), solana.Signature{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestClientWaitForConfirmation(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"getSignatureStatuses": `{"context":{"slot":1},"value":[{"slot":1,"confirmations":null,"err":null,"confirmationStatus":"finalized"}]}`,
	})
	defer srv.Close()

	client := NewClient(srv.URL, zaptest.NewLogger(t))
	client.polling = blockchain.ConfirmPolling{Interval: 5 * time.Millisecond, Timeout: time.Second}

	err := client.WaitForTransactionConfirmation(context.Background(), solana.Signature{}, rpc.CommitmentConfirmed)
	assert.NoError(t, err)
}
