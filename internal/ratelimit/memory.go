package ratelimit

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	count       int
	nextAllowed time.Time
	lastSeen    time.Time
}

// MemoryLimiter is a process-local Limiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	policy Policy
	delays []time.Duration
	keys   map[string]*attempts
	now    func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{
		policy: policy,
		delays: policy.schedule(),
		keys:   make(map[string]*attempts),
		now:    time.Now,
	}
}

// Check records one attempt for key.
func (l *MemoryLimiter) Check(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.keys[key]
	if !ok || now.Sub(st.lastSeen) >= l.policy.IdleExpiry {
		st = &attempts{}
		l.keys[key] = st
	}

	st.count++
	st.lastSeen = now

	decision := throttle(l.delays, l.policy.FreeAttempts, st.count, now, st.nextAllowed)
	if !decision.NextAllowedAt.IsZero() {
		st.nextAllowed = decision.NextAllowedAt
	}
	return decision, nil
}

// Reset forgets key.
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.keys, key)
	return nil
}

// DeleteIdle drops keys untouched for longer than the idle expiry.
func (l *MemoryLimiter) DeleteIdle(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	count := 0
	for key, st := range l.keys {
		if now.Sub(st.lastSeen) >= l.policy.IdleExpiry {
			delete(l.keys, key)
			count++
		}
	}
	return count, nil
}
