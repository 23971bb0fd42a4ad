package email

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between IMAP fetches per mailbox.
// It is shared by every user's refresh path.
type RateLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	inflight map[string]bool
	interval time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing one fetch per interval
func NewRateLimiter(interval time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		last:     make(map[string]time.Time),
		inflight: make(map[string]bool),
		interval: interval,
		now:      now,
	}
}

// Acquire reports whether key may be fetched now. A successful Acquire must be
// followed by Release; concurrent callers for the same key are refused meanwhile.
func (l *RateLimiter) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[key] {
		return false
	}
	if last, ok := l.last[key]; ok && l.now().Sub(last) < l.interval {
		return false
	}
	l.inflight[key] = true
	return true
}

// Release ends a fetch. The fetch time is recorded only when attempted is true,
// so abandoned calls leave the previous timestamp in place.
func (l *RateLimiter) Release(key string, attempted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inflight, key)
	if attempted {
		l.last[key] = l.now()
	}
}

// Prune forgets timestamps that no longer restrict anything
func (l *RateLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, last := range l.last {
		if now.Sub(last) >= l.interval {
			delete(l.last, key)
		}
	}
}
