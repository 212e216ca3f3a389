// Package ratelimit throttles inbound slash commands per workspace user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		RequestsPerMinute: 60,
		Burst:             10,
	}
}

// Limiter keeps one token bucket per user id.
type Limiter struct {
	config Config
	limit  rate.Limit
	burst  int
	users  sync.Map // map[string]*entry
}

type entry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config Config) *Limiter {
	l := &Limiter{config: config}
	if config.RequestsPerMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}
	l.burst = config.Burst
	if l.burst <= 0 {
		l.burst = 1
	}
	return l
}

// AllowRequest reports whether userID may issue another request now.
// Requests without a user id share a single bucket.
func (l *Limiter) AllowRequest(userID string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	e := l.entryFor(userID)
	e.mu.Lock()
	e.lastSeen = time.Now()
	e.mu.Unlock()
	return e.limiter.Allow()
}

func (l *Limiter) entryFor(userID string) *entry {
	if cached, ok := l.users.Load(userID); ok {
		return cached.(*entry)
	}
	fresh := &entry{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: time.Now()}
	actual, _ := l.users.LoadOrStore(userID, fresh)
	return actual.(*entry)
}

// Cleanup drops buckets that have been idle for longer than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	l.users.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > maxAge
		e.mu.Unlock()
		if idle {
			l.users.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
