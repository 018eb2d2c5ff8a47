// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds copy-trading settings loaded from a config file and COPYBOT_* env vars.
type Config struct {
	RPCURL       string `mapstructure:"rpc_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	TargetWallet string `mapstructure:"target_wallet"`
	PrivateKey   string `mapstructure:"private_key"`

	ScalingFactor        float64 `mapstructure:"scaling_factor"`
	MinTradeSize         float64 `mapstructure:"min_trade_size"`
	MinBalanceToCopy     float64 `mapstructure:"min_balance_to_copy"`
	MaxTransactionSize   float64 `mapstructure:"max_transaction_size"`
	MaxBalancePercentage float64 `mapstructure:"max_balance_percentage"`
	FeeBufferRatio       float64 `mapstructure:"fee_buffer_ratio"`
	SlippageTolerance    float64 `mapstructure:"slippage_tolerance"`
	TakeProfit           float64 `mapstructure:"take_profit"`
	StopLoss             float64 `mapstructure:"stop_loss"`

	PriceCheckInterval   time.Duration `mapstructure:"-"`
	PriceCheckIntervalMS int           `mapstructure:"price_check_interval_ms"`
	RPCCooldown          time.Duration `mapstructure:"-"`
	RPCCooldownMS        int           `mapstructure:"rpc_cooldown_ms"`
	RPCBackoffBase       time.Duration `mapstructure:"-"`
	RPCBackoffBaseMS     int           `mapstructure:"rpc_backoff_base_ms"`
	RPCBackoffCap        time.Duration `mapstructure:"-"`
	RPCBackoffCapMS      int           `mapstructure:"rpc_backoff_cap_ms"`
	RetryDelay           time.Duration `mapstructure:"-"`
	RetryDelayMS         int           `mapstructure:"retry_delay_ms"`
	ShutdownTimeout      time.Duration `mapstructure:"-"`
	ShutdownTimeoutMS    int           `mapstructure:"shutdown_timeout_ms"`

	MaxRetries          int    `mapstructure:"max_retries"`
	ComputeUnitPrice    uint64 `mapstructure:"compute_unit_price"`
	ComputeUnitLimit    uint32 `mapstructure:"compute_unit_limit"`
	ConfirmTransactions bool   `mapstructure:"confirm_transactions"`
	SkipPreflight       bool   `mapstructure:"skip_preflight"`
	SwapLegPolicy       string `mapstructure:"swap_leg_policy"`

	EventQueueSize  int `mapstructure:"event_queue_size"`
	EventBufferSize int `mapstructure:"event_buffer_size"`

	JupiterURL    string `mapstructure:"jupiter_url"`
	JupiterAPIKey string `mapstructure:"jupiter_api_key"`
	QuoteMint     string `mapstructure:"quote_mint"`
	MetricsAddr   string `mapstructure:"metrics_addr"`

	Debug bool      `mapstructure:"debug"`
	Log   LogConfig `mapstructure:"log"`
}

// LogConfig configures the rotating file sink.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	Pretty     bool   `mapstructure:"pretty"`
}

const (
	DefaultRPCURL     = "https://api.mainnet-beta.solana.com"
	DefaultJupiterURL = "https://lite-api.jup.ag"
	WrappedSOLMint    = "So11111111111111111111111111111111111111112"

	LegPolicyFirst   = "first"
	LegPolicyLargest = "largest"

	envPrefix = "COPYBOT"
)

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"rpc_url":                 DefaultRPCURL,
		"scaling_factor":          0.01,
		"min_trade_size":          0.001,
		"min_balance_to_copy":     0.005,
		"max_transaction_size":    0.0,
		"max_balance_percentage":  0.5,
		"fee_buffer_ratio":        0.01,
		"slippage_tolerance":      0.005,
		"take_profit":             0.4,
		"stop_loss":               0.2,
		"price_check_interval_ms": 2000,
		"rpc_cooldown_ms":         2000,
		"rpc_backoff_base_ms":     1000,
		"rpc_backoff_cap_ms":      30000,
		"retry_delay_ms":          2000,
		"shutdown_timeout_ms":     30000,
		"max_retries":             10,
		"compute_unit_price":      421197,
		"compute_unit_limit":      101337,
		"confirm_transactions":    true,
		"skip_preflight":          true,
		"swap_leg_policy":         LegPolicyFirst,
		"event_queue_size":        256,
		"event_buffer_size":       128,
		"jupiter_url":             DefaultJupiterURL,
		"quote_mint":              WrappedSOLMint,
		"debug":                   false,
		"log.file":                "bot.log",
		"log.max_size":            100,
		"log.max_age":             7,
		"log.max_backups":         3,
		"log.compress":            true,
		"log.pretty":              false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// LoadConfig reads configuration from path (optional when empty) and the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	cfg.applyDurations()
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = deriveWebSocketURL(cfg.RPCURL)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnv makes Unmarshal see env-only keys that have no default.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{"websocket_url", "target_wallet", "private_key", "metrics_addr", "jupiter_api_key"} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) applyDurations() {
	c.PriceCheckInterval = time.Duration(c.PriceCheckIntervalMS) * time.Millisecond
	c.RPCCooldown = time.Duration(c.RPCCooldownMS) * time.Millisecond
	c.RPCBackoffBase = time.Duration(c.RPCBackoffBaseMS) * time.Millisecond
	c.RPCBackoffCap = time.Duration(c.RPCBackoffCapMS) * time.Millisecond
	c.RetryDelay = time.Duration(c.RetryDelayMS) * time.Millisecond
	c.ShutdownTimeout = time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

func (c *Config) validate() error {
	if c.TargetWallet == "" {
		return errors.New("target_wallet is required")
	}
	if c.PrivateKey == "" {
		return errors.New("private_key is required")
	}
	if err := validateURL(c.RPCURL, "http"); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if err := validateURL(c.WebSocketURL, "ws"); err != nil {
		return fmt.Errorf("invalid websocket_url: %w", err)
	}
	if err := validateURL(c.JupiterURL, "http"); err != nil {
		return fmt.Errorf("invalid jupiter_url: %w", err)
	}
	return c.validateNumericParams()
}

func (c *Config) validateNumericParams() error {
	if c.ScalingFactor <= 0 {
		return errors.New("scaling_factor must be positive")
	}
	if c.MinTradeSize <= 0 {
		return errors.New("min_trade_size must be positive")
	}
	if c.MinBalanceToCopy < 0 {
		return errors.New("min_balance_to_copy must not be negative")
	}
	// 0 отключает верхнюю границу
	if c.MaxTransactionSize < 0 || (c.MaxTransactionSize > 0 && c.MaxTransactionSize < c.MinBalanceToCopy) {
		return errors.New("max_transaction_size must be 0 or not below min_balance_to_copy")
	}
	for name, ratio := range map[string]float64{
		"max_balance_percentage": c.MaxBalancePercentage,
		"take_profit":            c.TakeProfit,
		"stop_loss":              c.StopLoss,
	} {
		if ratio <= 0 || ratio > 1 {
			return fmt.Errorf("%s must be in (0, 1]", name)
		}
	}
	if c.FeeBufferRatio < 0 {
		return errors.New("fee_buffer_ratio must not be negative")
	}
	if c.SlippageTolerance < 0 || c.SlippageTolerance >= 1 {
		return errors.New("slippage_tolerance must be in [0, 1)")
	}
	if c.PriceCheckInterval <= 0 {
		return errors.New("invalid price_check_interval_ms")
	}
	if c.RPCCooldown < 0 || c.RPCBackoffBase <= 0 || c.RPCBackoffCap < c.RPCBackoffBase {
		return errors.New("invalid rpc throttle settings")
	}
	if c.RetryDelay < 0 {
		return errors.New("invalid retry_delay_ms")
	}
	if c.MaxRetries < 0 {
		return errors.New("invalid max_retries")
	}
	if c.SwapLegPolicy != LegPolicyFirst && c.SwapLegPolicy != LegPolicyLargest {
		return fmt.Errorf("unknown swap_leg_policy %q", c.SwapLegPolicy)
	}
	if c.EventQueueSize <= 0 || c.EventBufferSize <= 0 {
		return errors.New("event queue and buffer sizes must be positive")
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func deriveWebSocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}

// Decimal accessors keep float config values out of trade arithmetic.

func (c *Config) ScalingFactorDec() decimal.Decimal { return decimal.NewFromFloat(c.ScalingFactor) }
func (c *Config) MinTradeSizeDec() decimal.Decimal  { return decimal.NewFromFloat(c.MinTradeSize) }
func (c *Config) MinBalanceToCopyDec() decimal.Decimal {
	return decimal.NewFromFloat(c.MinBalanceToCopy)
}
func (c *Config) MaxTransactionSizeDec() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxTransactionSize)
}
func (c *Config) MaxBalancePercentageDec() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxBalancePercentage)
}
func (c *Config) FeeBufferRatioDec() decimal.Decimal { return decimal.NewFromFloat(c.FeeBufferRatio) }
func (c *Config) SlippageDec() decimal.Decimal       { return decimal.NewFromFloat(c.SlippageTolerance) }
func (c *Config) TakeProfitDec() decimal.Decimal     { return decimal.NewFromFloat(c.TakeProfit) }
func (c *Config) StopLossDec() decimal.Decimal       { return decimal.NewFromFloat(c.StopLoss) }
