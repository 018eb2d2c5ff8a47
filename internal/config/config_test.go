// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
    "rpc_url": "https://rpc.example.com",
    "target_wallet": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
    "private_key": "secret",
    "scaling_factor": 0.02,
    "price_check_interval_ms": 500,
    "swap_leg_policy": "largest",
    "log": {"file": "copy.log"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigJSON))
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.RPCURL)
	assert.Equal(t, "wss://rpc.example.com", cfg.WebSocketURL)
	assert.Equal(t, 0.02, cfg.ScalingFactor)
	assert.Equal(t, 500*time.Millisecond, cfg.PriceCheckInterval)
	assert.Equal(t, LegPolicyLargest, cfg.SwapLegPolicy)
	assert.Equal(t, "copy.log", cfg.Log.File)

	// untouched keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.RPCCooldown)
	assert.Equal(t, time.Second, cfg.RPCBackoffBase)
	assert.Equal(t, 30*time.Second, cfg.RPCBackoffCap)
	assert.Equal(t, 10, cfg.MaxRetries)
	assert.Equal(t, uint64(421197), cfg.ComputeUnitPrice)
	assert.Equal(t, uint32(101337), cfg.ComputeUnitLimit)
	assert.True(t, cfg.ConfirmTransactions)
	assert.Equal(t, WrappedSOLMint, cfg.QuoteMint)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "0.5", cfg.MaxBalancePercentageDec().String())
	assert.Zero(t, cfg.MaxTransactionSize)
	assert.Equal(t, 0.005, cfg.MinBalanceToCopy)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("COPYBOT_TARGET_WALLET", "target")
	t.Setenv("COPYBOT_PRIVATE_KEY", "key")
	t.Setenv("COPYBOT_RPC_URL", "http://localhost:8899")
	t.Setenv("COPYBOT_MAX_RETRIES", "3")
	t.Setenv("COPYBOT_LOG_FILE", "env.log")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "target", cfg.TargetWallet)
	assert.Equal(t, "key", cfg.PrivateKey)
	assert.Equal(t, "ws://localhost:8899", cfg.WebSocketURL)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "env.log", cfg.Log.File)
}

func TestLoadConfigValidation(t *testing.T) {
	base := `"target_wallet": "t", "private_key": "k"`

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing target", `{"private_key": "k"}`, "target_wallet is required"},
		{"missing key", `{"target_wallet": "t"}`, "private_key is required"},
		{"bad rpc scheme", `{` + base + `, "rpc_url": "ftp://x"}`, "invalid rpc_url"},
		{"bad ws scheme", `{` + base + `, "websocket_url": "https://x"}`, "invalid websocket_url"},
		{"max below copy threshold", `{` + base + `, "min_balance_to_copy": 1, "max_transaction_size": 0.5}`, "max_transaction_size"},
		{"negative max transaction", `{` + base + `, "max_transaction_size": -1}`, "max_transaction_size"},
		{"percentage above one", `{` + base + `, "max_balance_percentage": 1.5}`, "max_balance_percentage"},
		{"zero scaling", `{` + base + `, "scaling_factor": 0}`, "scaling_factor"},
		{"negative retries", `{` + base + `, "max_retries": -1}`, "max_retries"},
		{"unknown policy", `{` + base + `, "swap_leg_policy": "random"}`, "swap_leg_policy"},
		{"cap below base", `{` + base + `, "rpc_backoff_cap_ms": 10}`, "rpc throttle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config error")
}

func TestDeriveWebSocketURL(t *testing.T) {
	assert.Equal(t, "wss://a.b/path", deriveWebSocketURL("https://a.b/path"))
	assert.Equal(t, "ws://a.b", deriveWebSocketURL("http://a.b"))
	assert.Equal(t, "wss://a.b", deriveWebSocketURL("wss://a.b"))
}
