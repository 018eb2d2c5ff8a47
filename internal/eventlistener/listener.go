// internal/eventlistener/listener.go
package eventlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	defaultReconnectBase = time.Second
	defaultReconnectMax  = 30 * time.Second
	defaultBuffer        = 64
)

// Options tune reconnect behaviour and buffering.
type Options struct {
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Buffer        int
	Commitment    rpc.CommitmentType
}

// EventListener streams transactions mentioning an account over the
// websocket logsSubscribe endpoint, reconnecting until the context ends.
type EventListener struct {
	wsURL  string
	dial   dialFunc
	opts   Options
	logger *zap.Logger
}

// NewEventListener creates a listener for wsURL.
func NewEventListener(wsURL string, logger *zap.Logger, opts Options) *EventListener {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = defaultReconnectMax
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	return &EventListener{
		wsURL:  wsURL,
		dial:   dialWS,
		opts:   opts,
		logger: logger.Named("event_listener"),
	}
}

// Subscribe opens the first subscription synchronously and then keeps it alive
// in the background. The returned channel is closed once ctx is done.
func (el *EventListener) Subscribe(ctx context.Context, account string) (<-chan Notification, error) {
	pk, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return nil, fmt.Errorf("invalid account %q: %w", account, err)
	}

	conn, stream, err := el.connect(ctx, pk)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification, el.opts.Buffer)
	go el.run(ctx, pk, conn, stream, out)
	return out, nil
}

func (el *EventListener) connect(ctx context.Context, account solana.PublicKey) (logConn, logStream, error) {
	conn, err := el.dial(ctx, el.wsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket connect: %w", err)
	}
	stream, err := conn.LogsSubscribeMentions(account, el.opts.Commitment)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("logsSubscribe: %w", err)
	}
	el.logger.Info("📡 Subscribed to account activity",
		zap.String("account", account.String()),
		zap.String("commitment", string(el.opts.Commitment)))
	return conn, stream, nil
}

func (el *EventListener) run(ctx context.Context, account solana.PublicKey, conn logConn, stream logStream, out chan<- Notification) {
	defer close(out)
	defer func() {
		if stream != nil {
			stream.Unsubscribe()
		}
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		res, err := stream.Recv(ctx)
		if err == nil {
			select {
			case out <- notificationFrom(res):
			case <-ctx.Done():
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		el.logger.Warn("Subscription dropped, reconnecting", zap.Error(err))
		stream.Unsubscribe()
		conn.Close()
		stream, conn = nil, nil

		conn, stream, err = el.reconnect(ctx, account)
		if err != nil {
			// only ctx cancellation stops reconnecting
			return
		}
	}
}

// reconnect retries connect with exponential backoff until it succeeds or ctx ends.
func (el *EventListener) reconnect(ctx context.Context, account solana.PublicKey) (logConn, logStream, error) {
	type session struct {
		conn   logConn
		stream logStream
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = el.opts.ReconnectBase
	b.MaxInterval = el.opts.ReconnectMax
	b.Multiplier = 2

	s, err := backoff.Retry(ctx, func() (session, error) {
		conn, stream, err := el.connect(ctx, account)
		if err != nil {
			return session{}, err
		}
		return session{conn: conn, stream: stream}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			el.logger.Warn("Reconnect failed",
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			el.logger.Error("Giving up on subscription", zap.Error(err))
		}
		return nil, nil, err
	}
	return s.conn, s.stream, nil
}
