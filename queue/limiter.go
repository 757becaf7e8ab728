package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Manager controls per-name dispatch rate limiting with token buckets.
// Names without a configured limit are never throttled. It is safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates a Manager with no limits configured.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*rate.Limiter)}
}

// Configure sets (or replaces) the rate limit for a name. A
// non-positive perSecond removes the limit. Burst defaults to 1.
func (m *Manager) Configure(name string, perSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if perSecond <= 0 {
		delete(m.limiters, name)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	m.limiters[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Allow reports whether a job of the given name may be dispatched now,
// consuming one token when it may.
func (m *Manager) Allow(name string) bool {
	m.mu.Lock()
	limiter := m.limiters[name]
	m.mu.Unlock()

	return limiter == nil || limiter.Allow()
}
