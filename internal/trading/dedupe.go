// internal/trading/dedupe.go
package trading

import (
	"sync"
	"time"
)

// seenSet remembers signatures for ttl so redelivered notifications are ignored.
type seenSet struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time
	lastPrune time.Time
}

func newSeenSet(ttl time.Duration) *seenSet {
	return &seenSet{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

// firstSeen records sig and reports whether it was not seen within ttl.
func (s *seenSet) firstSeen(sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastPrune) > s.ttl {
		for k, at := range s.seen {
			if now.Sub(at) > s.ttl {
				delete(s.seen, k)
			}
		}
		s.lastPrune = now
	}

	if at, ok := s.seen[sig]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	s.seen[sig] = now
	return true
}

func (s *seenSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
