package evaluator

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cached decision stays fresh. Assignments are
// sticky on the external side, so a short TTL only bounds how quickly a
// remote reassignment becomes visible here.
const DefaultTTL = 30 * time.Second

type cacheEntry struct {
	decision Decision
	err      error
	expires  time.Time
}

// Cached wraps an Evaluator with a per-(user, feature) decision cache.
// Negative results (ErrNoDecision) are cached too, so an unassigned user does
// not hit the external service on every request.
type Cached struct {
	inner Evaluator
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCached wraps inner with a TTL cache. A non-positive ttl uses DefaultTTL.
func NewCached(inner Evaluator, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Evaluate returns the cached decision when fresh, otherwise delegates to the
// wrapped evaluator and caches the result.
func (c *Cached) Evaluate(ctx context.Context, feature, userID string) (Decision, error) {
	key := userID + "~" + feature

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.decision, entry.err
	}

	d, err := c.inner.Evaluate(ctx, feature, userID)
	if err != nil && err != ErrNoDecision {
		// Transient failures are not cached.
		return Decision{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{decision: d, err: err, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return d, err
}

// SendMetric passes through to the wrapped evaluator.
func (c *Cached) SendMetric(ctx context.Context, m Metric) error {
	return c.inner.SendMetric(ctx, m)
}
