package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket limiter used when Redis is not
// configured. Limits apply per replica.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limiters: map[string]*localEntry{},
		now:      time.Now,
	}
}

// ConsumeRateLimit takes one token for scope/subject. When the bucket is empty
// the returned count exceeds limit.
func (l *LocalLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	now := l.now()
	key := scope + ":" + subject

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	if entry.limiter.AllowN(now, 1) {
		return limit - int(entry.limiter.TokensAt(now)), 0, nil
	}

	reservation := entry.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return limit + 1, retryAfterFromMillis(delay.Milliseconds()), nil
}

// Prune drops buckets idle for longer than maxIdle.
func (l *LocalLimiter) Prune(maxIdle time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}
