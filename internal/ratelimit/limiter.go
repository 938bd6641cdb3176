package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// DefaultWindow is the trailing interval requests are counted over.
const DefaultWindow = time.Minute

const shardCount = 32

// Result describes the outcome of a single rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds a rejected caller should wait before
// retrying, never less than one.
func (r Result) RetryAfter(now time.Time) int {
	seconds := int(r.ResetAt.Sub(now).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}

type entry struct {
	at    time.Time
	count int
}

type window struct {
	entries []entry
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter counts requests per credential identity over a continuously sliding
// trailing window. State is process-local: a restart resets all counters,
// which is acceptable for single-instance deployments; multi-process setups
// should use SharedLimiter instead.
//
// Identities are sharded so concurrent checks for unrelated credentials do
// not contend on one lock; checks for the same identity serialise on their
// shard, preserving window accuracy under concurrent requests.
type Limiter struct {
	window time.Duration
	now    func() time.Time
	shards [shardCount]shard

	stop     chan struct{}
	stopOnce sync.Once
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithWindow overrides the sliding window duration.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLimiter constructs a sliding-window limiter and starts its idle-entry
// janitor. Call Close when the limiter is no longer needed.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		window: DefaultWindow,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.janitor()
	return l
}

// Close stops the background janitor.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Check applies the sliding-window algorithm for one identity: prune entries
// older than the window, sum what remains, reject without recording when the
// sum has reached the limit, otherwise record this request. ResetAt is always
// window-start plus the window, a stable retry hint even as the window slides.
//
// A non-positive limit disables throttling for the identity.
func (l *Limiter) Check(identity string, limit int) Result {
	now := l.now()

	if limit <= 0 {
		return Result{Allowed: true, Limit: limit, Remaining: 0, ResetAt: now.Add(l.window)}
	}

	sh := l.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[identity]
	if !ok {
		w = &window{}
		sh.windows[identity] = w
	}

	w.prune(now.Add(-l.window))

	sum := 0
	for _, e := range w.entries {
		sum += e.count
	}

	windowStart := now
	if len(w.entries) > 0 {
		windowStart = w.entries[0].at
	}
	resetAt := windowStart.Add(l.window)

	if sum >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	w.entries = append(w.entries, entry{at: now, count: 1})
	remaining := limit - sum - 1
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

func (w *window) prune(cutoff time.Time) {
	keep := 0
	for ; keep < len(w.entries); keep++ {
		if w.entries[keep].at.After(cutoff) {
			break
		}
	}
	if keep > 0 {
		w.entries = append(w.entries[:0], w.entries[keep:]...)
	}
}

func (l *Limiter) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &l.shards[h.Sum32()%shardCount]
}

// janitor drops identities with no activity inside the window to keep memory
// bounded for keys that stop calling.
func (l *Limiter) janitor() {
	tick := time.NewTicker(l.window)
	defer tick.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-tick.C:
			cutoff := l.now().Add(-l.window)
			for i := range l.shards {
				sh := &l.shards[i]
				sh.mu.Lock()
				for identity, w := range sh.windows {
					w.prune(cutoff)
					if len(w.entries) == 0 {
						delete(sh.windows, identity)
					}
				}
				sh.mu.Unlock()
			}
		}
	}
}
