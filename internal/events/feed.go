// internal/events/feed.go
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DropObserver is notified whenever a slow subscriber misses an event.
type DropObserver func(feed string, t EventType)

// Feed fans events out to channel subscribers. Each producing component
// owns its own Feed; there is no process-wide bus.
type Feed struct {
	name   string
	mu     sync.RWMutex
	subs   map[string]chan Event
	closed bool

	dropped atomic.Uint64
	onDrop  DropObserver
	logger  *zap.Logger
}

// NewFeed creates a feed named after its producer.
func NewFeed(name string, logger *zap.Logger) *Feed {
	return &Feed{
		name:   name,
		subs:   make(map[string]chan Event),
		logger: logger.Named("feed").With(zap.String("feed", name)),
	}
}

// OnDrop registers a callback for dropped events (metrics hook).
func (f *Feed) OnDrop(fn DropObserver) {
	f.mu.Lock()
	f.onDrop = fn
	f.mu.Unlock()
}

// Subscribe returns a buffered channel receiving every event published after the call.
// On a closed feed the returned channel is already closed.
func (f *Feed) Subscribe(buffer int) (<-chan Event, Subscription) {
	if buffer < 0 {
		buffer = 0
	}
	id := uuid.New().String()
	ch := make(chan Event, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(ch)
		return ch, &subscription{id: id, feed: f}
	}
	f.subs[id] = ch

	f.logger.Debug("Subscriber added", zap.String("subscription_id", id))
	return ch, &subscription{id: id, feed: f}
}

// Publish delivers ev to every subscriber without blocking. A subscriber whose
// buffer is full misses the event; the drop is counted and logged.
func (f *Feed) Publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for id, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped.Add(1)
			f.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("event_type", string(ev.Type())),
				zap.String("subscription_id", id))
			if f.onDrop != nil {
				f.onDrop(f.name, ev.Type())
			}
		}
	}
}

// Dropped returns how many deliveries were dropped so far.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	f.logger.Debug("Feed closed", zap.Uint64("dropped", f.dropped.Load()))
}

func (f *Feed) unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.subs[id]; ok {
		close(ch)
		delete(f.subs, id)
		f.logger.Debug("Subscriber removed", zap.String("subscription_id", id))
	}
}
