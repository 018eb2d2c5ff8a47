package governor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingMetrics struct {
	mu        sync.Mutex
	calls     int
	waits     []time.Duration
	exhausted int
}

func (m *recordingMetrics) ObserveRPCCall(string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveRateLimit(_ string, wait time.Duration) {
	m.mu.Lock()
	m.waits = append(m.waits, wait)
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveRPCExhausted(string) {
	m.mu.Lock()
	m.exhausted++
	m.mu.Unlock()
}

var errTooMany = &jsonrpc.RPCError{Code: 429, Message: "Too many requests for a specific RPC call"}

func newTestGovernor(t *testing.T, cfg Config) (*Governor, *recordingMetrics) {
	m := &recordingMetrics{}
	return New(cfg, zaptest.NewLogger(t), WithMetrics(m)), m
}

func TestBackoffFor(t *testing.T) {
	g := New(Config{BackoffBase: 100 * time.Millisecond, BackoffCap: 30 * time.Second}, zaptest.NewLogger(t))

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{8, 25600 * time.Millisecond},
		{9, 30 * time.Second},
		{64, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.backoffFor(tt.n), "n=%d", tt.n)
	}
}

func TestCallBacksOffOnRateLimitThenSucceeds(t *testing.T) {
	g, m := newTestGovernor(t, Config{
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  30 * time.Second,
		MaxRetries:  10,
	})

	attempts := 0
	start := time.Now()
	got, err := Call(context.Background(), g, "getBalance", func(context.Context) (uint64, error) {
		attempts++
		if attempts <= 3 {
			return 0, errTooMany
		}
		return 42, nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, m.waits)
	assert.GreaterOrEqual(t, elapsed, 1400*time.Millisecond)
	assert.Zero(t, g.Snapshot().ConsecutiveErrorCount)
}

func TestCallExhaustsRetries(t *testing.T) {
	g, m := newTestGovernor(t, Config{
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
		MaxRetries:  2,
	})

	attempts := 0
	_, err := Call(context.Background(), g, "getTransaction", func(context.Context) (string, error) {
		attempts++
		return "", errors.New("server responded with 429 Too Many Requests")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRPCExhausted)
	assert.True(t, IsRateLimitError(err))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, m.exhausted)
	assert.Equal(t, 3, g.Snapshot().ConsecutiveErrorCount)
}

func TestCallPropagatesOtherErrors(t *testing.T) {
	g, m := newTestGovernor(t, Config{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond, MaxRetries: 5})
	boom := errors.New("account not found")

	attempts := 0
	err := g.Do(context.Background(), "getBalance", func(context.Context) error {
		attempts++
		return boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, m.waits)
	assert.NotErrorIs(t, err, ErrRPCExhausted)
}

func TestCooldownSpacesConcurrentCalls(t *testing.T) {
	const cooldown = 50 * time.Millisecond
	g, _ := newTestGovernor(t, Config{Cooldown: cooldown, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond})

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), "getBalance", func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, starts, 4)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), cooldown-5*time.Millisecond)
	}
}

func TestCallHonoursContextDuringBackoff(t *testing.T) {
	g, _ := newTestGovernor(t, Config{BackoffBase: time.Second, BackoffCap: time.Second, MaxRetries: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Do(ctx, "getBalance", func(context.Context) error { return errTooMany })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrRateLimited, true},
		{"rpc code", &jsonrpc.RPCError{Code: 429}, true},
		{"other rpc code", &jsonrpc.RPCError{Code: -32002, Message: "blockhash not found"}, false},
		{"text", errors.New("HTTP 429"), true},
		{"phrase", errors.New("Too Many Requests"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}
