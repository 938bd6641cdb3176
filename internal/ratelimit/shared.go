package ratelimit

import (
	"context"
	"time"

	"github.com/argushq/argus/internal/cache"
)

// SharedLimiter enforces limits through an external counter store (Redis or
// the database) so multiple processes observe one budget. The store exposes
// INCR-with-TTL, which gives fixed-window rather than sliding-window
// semantics: a burst at a window boundary may briefly see up to twice the
// limit. That trade-off is accepted for cross-process deployments.
type SharedLimiter struct {
	store  cache.Store
	window time.Duration
	now    func() time.Time
}

// NewSharedLimiter wraps a cache store in a limiter. Returns nil when the
// store is nil so callers can fall back to the in-memory limiter.
func NewSharedLimiter(store cache.Store, window time.Duration) *SharedLimiter {
	if store == nil {
		return nil
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &SharedLimiter{store: store, window: window, now: time.Now}
}

// Check increments the identity's counter and compares it to the limit.
// Store failures fail closed: a limiter that cannot count cannot admit.
func (l *SharedLimiter) Check(ctx context.Context, identity string, limit int) (Result, error) {
	now := l.now()

	if limit <= 0 {
		return Result{Allowed: true, Limit: limit, Remaining: 0, ResetAt: now.Add(l.window)}, nil
	}

	count, ttl, err := l.store.IncrementWithTTL(ctx, "ratelimit:"+identity, l.window)
	if err != nil {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: now.Add(l.window)}, err
	}

	resetAt := now.Add(ttl)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
