// internal/eventlistener/types.go
package eventlistener

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// Notification is one transaction that mentioned the watched account.
type Notification struct {
	Signature  string
	Slot       uint64
	Failed     bool // transaction carried an on-chain error
	Logs       []string
	ReceivedAt time.Time
}

func notificationFrom(res *ws.LogResult) Notification {
	return Notification{
		Signature:  res.Value.Signature.String(),
		Slot:       res.Context.Slot,
		Failed:     res.Value.Err != nil,
		Logs:       res.Value.Logs,
		ReceivedAt: time.Now(),
	}
}

// logStream is the subset of *ws.LogSubscription the listener reads from.
type logStream interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

// logConn is one websocket connection able to open a mentions subscription.
type logConn interface {
	LogsSubscribeMentions(account solana.PublicKey, commitment rpc.CommitmentType) (logStream, error)
	Close()
}

type dialFunc func(ctx context.Context, url string) (logConn, error)

// wsConn adapts *ws.Client to logConn.
type wsConn struct {
	client *ws.Client
}

func (c wsConn) LogsSubscribeMentions(account solana.PublicKey, commitment rpc.CommitmentType) (logStream, error) {
	sub, err := c.client.LogsSubscribeMentions(account, commitment)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c wsConn) Close() {
	c.client.Close()
}

func dialWS(ctx context.Context, url string) (logConn, error) {
	client, err := ws.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return wsConn{client: client}, nil
}
