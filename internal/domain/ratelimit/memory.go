package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is the in-process fixed-window limiter for single-instance
// deployments.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     Config
	now     func() time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, tenant, class string) (Decision, error) {
	policy := l.cfg.PolicyFor(tenant, class)
	now := l.now()
	key := tenant + ":" + class

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= policy.Window {
		w = &window{start: now.Truncate(policy.Window)}
		l.windows[key] = w
	}

	if w.count >= policy.Limit {
		return Decision{
			Allowed:    false,
			RetryAfter: w.start.Add(policy.Window).Sub(now),
		}, nil
	}

	w.count++
	if len(l.windows) > 4096 {
		l.prune(now)
	}
	return Decision{Allowed: true, Remaining: policy.Limit - w.count}, nil
}

// prune drops windows that ended more than the longest plausible window ago.
// Called with the mutex held.
func (l *MemoryLimiter) prune(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) > 2*l.cfg.Default.Window {
			delete(l.windows, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
