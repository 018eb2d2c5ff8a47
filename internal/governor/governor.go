// internal/governor/governor.go
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Config bounds how fast and how persistently the ledger is called.
type Config struct {
	Cooldown    time.Duration // minimum spacing between call starts
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxRetries  int // rate-limit retries per call
}

// RateState is the process-wide throttling state shared by every governed call.
type RateState struct {
	LastCallAt            time.Time
	ConsecutiveErrorCount int
}

// Metrics receives governor observations; metrics.Collector implements it.
type Metrics interface {
	ObserveRPCCall(method string, err error)
	ObserveRateLimit(method string, wait time.Duration)
	ObserveRPCExhausted(method string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRPCCall(string, error)           {}
func (nopMetrics) ObserveRateLimit(string, time.Duration) {}
func (nopMetrics) ObserveRPCExhausted(string)             {}

// Governor serializes call starts behind a cooldown and backs off on rate limits.
type Governor struct {
	cfg     Config
	logger  *zap.Logger
	metrics Metrics

	mu    sync.Mutex
	state RateState
	now   func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Governor) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a governor. One instance must be shared by every caller of a ledger endpoint.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Governor {
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	g := &Governor{
		cfg:     cfg,
		logger:  logger.Named("governor"),
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Snapshot returns a copy of the current rate state.
func (g *Governor) Snapshot() RateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do runs op under the governor, discarding any result.
func (g *Governor) Do(ctx context.Context, method string, op func(ctx context.Context) error) error {
	_, err := Call(ctx, g, method, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Call runs op once the cooldown allows it. Rate-limit failures are retried with
// exponential backoff up to MaxRetries times; any other failure is returned as is.
func Call[T any](ctx context.Context, g *Governor, method string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	next := &pendingBackOff{}

	operation := func() (T, error) {
		if err := g.waitTurn(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}

		result, err := op(ctx)
		g.metrics.ObserveRPCCall(method, err)
		if err == nil {
			g.resetErrors()
			return result, nil
		}
		if !IsRateLimitError(err) {
			return zero, backoff.Permanent(err)
		}
		next.wait = g.recordRateLimit()
		return zero, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(next),
		backoff.WithMaxTries(uint(g.cfg.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			g.metrics.ObserveRateLimit(method, wait)
			g.logger.Warn("⏳ RPC rate limited, backing off",
				zap.String("method", method),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err == nil {
		return result, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return zero, permanent.Err
	}
	if IsRateLimitError(err) {
		g.metrics.ObserveRPCExhausted(method)
		g.logger.Error("RPC retries exhausted",
			zap.String("method", method),
			zap.Int("max_retries", g.cfg.MaxRetries),
			zap.Error(err))
		return zero, fmt.Errorf("%w: %s after %d retries: %w", ErrRPCExhausted, method, g.cfg.MaxRetries, err)
	}
	return zero, err
}

// waitTurn reserves the next call slot under the lock, then sleeps outside it.
func (g *Governor) waitTurn(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	slot := g.state.LastCallAt.Add(g.cfg.Cooldown)
	if slot.Before(now) {
		slot = now
	}
	g.state.LastCallAt = slot
	g.mu.Unlock()

	return sleepCtx(ctx, slot.Sub(now))
}

func (g *Governor) recordRateLimit() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ConsecutiveErrorCount++
	return g.backoffFor(g.state.ConsecutiveErrorCount)
}

func (g *Governor) resetErrors() {
	g.mu.Lock()
	g.state.ConsecutiveErrorCount = 0
	g.mu.Unlock()
}

// backoffFor returns min(base*2^n, cap).
func (g *Governor) backoffFor(n int) time.Duration {
	wait := g.cfg.BackoffBase
	for i := 0; i < n; i++ {
		if wait >= g.cfg.BackoffCap {
			return g.cfg.BackoffCap
		}
		wait *= 2
	}
	if wait > g.cfg.BackoffCap {
		return g.cfg.BackoffCap
	}
	return wait
}

// pendingBackOff hands backoff.Retry the wait computed from the shared error count.
type pendingBackOff struct {
	wait time.Duration
}

func (b *pendingBackOff) NextBackOff() time.Duration { return b.wait }
func (b *pendingBackOff) Reset()                     {}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
