// internal/events/handler.go
package events

import (
	"context"
)

// Handler processes events received from a feed.
type Handler interface {
	// Handle processes an event. Should not block.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to a feed.
type Subscription interface {
	// ID returns the subscription identifier.
	ID() string
	// Unsubscribe removes the subscription and closes its channel.
	Unsubscribe()
}

type subscription struct {
	id   string
	feed *Feed
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() {
	s.feed.unsubscribe(s.id)
}

// Dispatch calls h for every event on ch until ch is closed or ctx is done.
// Handler errors are passed to onErr when it is non-nil.
func Dispatch(ctx context.Context, ch <-chan Event, h Handler, onErr func(Event, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := h.Handle(ctx, ev); err != nil && onErr != nil {
				onErr(ev, err)
			}
		}
	}
}
