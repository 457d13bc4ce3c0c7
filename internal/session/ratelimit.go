package session

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles failed login attempts per identifier (normalized
// email, origin address). Each key owns a token bucket sized to the allowed
// burst over a rolling window; every failure consumes a token, and a drained
// bucket blocks further attempts for that key until it refills. Blocking is
// applied before credentials are checked, and keys are tracked whether or
// not the account exists, so the limiter gives no enumeration signal.
type loginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket
	burst   int
	window  time.Duration
	now     func() time.Time
}

type loginBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLoginLimiter(burst int, window time.Duration, now func() time.Time) *loginLimiter {
	if burst <= 0 {
		burst = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &loginLimiter{
		buckets: make(map[string]*loginBucket),
		burst:   burst,
		window:  window,
		now:     now,
	}
}

func (l *loginLimiter) bucket(key string) *loginBucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &loginBucket{lim: rate.NewLimiter(rate.Every(l.window/time.Duration(l.burst)), l.burst)}
		l.buckets[key] = b
	}
	b.seen = l.now()
	return b
}

// blocked reports whether any of the keys has exhausted its failure budget.
func (l *loginLimiter) blocked(keys ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, key := range keys {
		key = normalizeKey(key)
		if key == "" {
			continue
		}
		if l.bucket(key).lim.TokensAt(now) < 1 {
			return true
		}
	}
	return false
}

// fail consumes one failure from every key's budget.
func (l *loginLimiter) fail(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, key := range keys {
		key = normalizeKey(key)
		if key == "" {
			continue
		}
		_ = l.bucket(key).lim.AllowN(now, 1)
	}
}

// sweep drops buckets idle longer than ttl. Run periodically; losing a
// bucket only resets a window that had already lapsed.
func (l *loginLimiter) sweep(ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.seen) > ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func normalizeKey(key string) string {
	return strings.TrimSpace(strings.ToLower(key))
}
