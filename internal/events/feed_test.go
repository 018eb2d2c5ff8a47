package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeedDeliversToAllSubscribers(t *testing.T) {
	feed := NewFeed("test", zaptest.NewLogger(t))
	a, subA := feed.Subscribe(4)
	b, _ := feed.Subscribe(4)
	assert.NotEqual(t, "", subA.ID())
	assert.Equal(t, 2, feed.Subscribers())

	feed.Publish(NewStatus("test", "hello"))

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, Status, ev.Type())
			status, ok := ev.(StatusEvent)
			require.True(t, ok)
			assert.Equal(t, "hello", status.Message)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestFeedDropsForSlowSubscriber(t *testing.T) {
	feed := NewFeed("test", zaptest.NewLogger(t))
	var observed []EventType
	feed.OnDrop(func(name string, et EventType) {
		assert.Equal(t, "test", name)
		observed = append(observed, et)
	})
	ch, _ := feed.Subscribe(1)

	feed.Publish(NewStatus("test", "first"))
	feed.Publish(TradeFailedEvent{BaseEvent: NewBase(TradeFailed)})

	assert.Equal(t, uint64(1), feed.Dropped())
	assert.Equal(t, []EventType{TradeFailed}, observed)
	ev := <-ch
	assert.Equal(t, Status, ev.Type())
}

func TestFeedUnsubscribeAndClose(t *testing.T) {
	feed := NewFeed("test", zaptest.NewLogger(t))
	ch, sub := feed.Subscribe(1)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel closed after unsubscribe")
	assert.Equal(t, 0, feed.Subscribers())

	other, _ := feed.Subscribe(1)
	feed.Close()
	feed.Close()
	_, ok = <-other
	assert.False(t, ok)

	// publishing and subscribing after close must not panic
	feed.Publish(NewStatus("test", "late"))
	late, _ := feed.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestDispatch(t *testing.T) {
	feed := NewFeed("test", zaptest.NewLogger(t))
	ch, _ := feed.Subscribe(4)

	boom := errors.New("boom")
	var handled, failed int
	h := HandlerFunc(func(_ context.Context, ev Event) error {
		handled++
		if ev.Type() == TradeFailed {
			return boom
		}
		return nil
	})

	feed.Publish(NewStatus("test", "one"))
	feed.Publish(TradeFailedEvent{BaseEvent: NewBase(TradeFailed)})
	feed.Close()

	Dispatch(context.Background(), ch, h, func(_ Event, err error) {
		assert.ErrorIs(t, err, boom)
		failed++
	})
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, failed)
}
