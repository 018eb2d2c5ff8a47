// internal/monitor/price.go
package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource returns the price of mint denominated in quoteMint.
type PriceSource interface {
	Price(ctx context.Context, mint, quoteMint string) (decimal.Decimal, error)
}

// PriceUpdateCallback is called with every successfully fetched price.
type PriceUpdateCallback func(price decimal.Decimal)

// PriceMonitor polls a price source on a fixed interval.
type PriceMonitor struct {
	source    PriceSource
	interval  time.Duration
	timeout   time.Duration
	tokenMint string
	quoteMint string
	logger    *zap.Logger
	callback  PriceUpdateCallback
}

// NewPriceMonitor creates a new price monitor
func NewPriceMonitor(source PriceSource, tokenMint, quoteMint string, interval time.Duration,
	logger *zap.Logger, callback PriceUpdateCallback) *PriceMonitor {
	timeout := 10 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &PriceMonitor{
		source:    source,
		interval:  interval,
		timeout:   timeout,
		tokenMint: tokenMint,
		quoteMint: quoteMint,
		logger:    logger,
		callback:  callback,
	}
}

// Run ticks until ctx is cancelled.
func (pm *PriceMonitor) Run(ctx context.Context) {
	pm.logger.Debug("Starting price monitor",
		zap.String("token_mint", pm.tokenMint),
		zap.Duration("interval", pm.interval))

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.updatePrice(ctx)
		case <-ctx.Done():
			pm.logger.Debug("Price monitor stopped")
			return
		}
	}
}

// updatePrice fetches the current price and calls the callback.
// A panic in the source or the callback only skips this tick.
func (pm *PriceMonitor) updatePrice(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			pm.logger.Error("Panic during price check, skipping tick", zap.Any("panic", r))
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, pm.timeout)
	defer cancel()

	price, err := pm.source.Price(reqCtx, pm.tokenMint, pm.quoteMint)
	if err != nil {
		if ctx.Err() == nil {
			pm.logger.Warn("Failed to get token price", zap.Error(err))
		}
		return
	}
	if pm.callback != nil {
		pm.callback(price)
	}
}
