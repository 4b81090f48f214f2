package sources

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
)

// DefaultCacheTTL is how long adapter results are reused.
const DefaultCacheTTL = 20 * time.Minute

type cacheEntry struct {
	count     int64
	series    []models.BucketedCount
	targets   []string
	expiresAt time.Time
}

// CacheStats summarizes cache usage.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Cached memoizes an adapter's successful results for a fixed TTL.
// Failures are never cached.
type Cached struct {
	next Adapter
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

// WithCache wraps next with a TTL cache. A non-positive ttl uses DefaultCacheTTL.
func WithCache(next Adapter, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Name returns the wrapped adapter's name.
func (c *Cached) Name() string { return c.next.Name() }

// Unwrap returns the wrapped adapter.
func (c *Cached) Unwrap() Adapter { return c.next }

func (c *Cached) key(op, target string, param any) string {
	return fmt.Sprintf("%s|%s|%s|%v", c.next.Name(), op, target, param)
}

func (c *Cached) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expiresAt) {
		c.hits++
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return entry, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	metrics.CacheRequests.WithLabelValues("miss").Inc()
	return cacheEntry{}, false
}

func (c *Cached) store(key string, entry cacheEntry) {
	entry.expiresAt = c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Count returns a cached count or queries the wrapped adapter.
func (c *Cached) Count(ctx context.Context, target string, lookbackHours int) (int64, error) {
	key := c.key(OpCount, target, lookbackHours)
	if entry, ok := c.lookup(key); ok {
		return entry.count, nil
	}

	count, err := c.next.Count(ctx, target, lookbackHours)
	if err != nil {
		return 0, err
	}
	c.store(key, cacheEntry{count: count})
	return count, nil
}

// HourlySeries returns a cached series or queries the wrapped adapter.
func (c *Cached) HourlySeries(ctx context.Context, target string) ([]models.BucketedCount, error) {
	key := c.key(OpHourlySeries, target, "24h")
	if entry, ok := c.lookup(key); ok {
		return slices.Clone(entry.series), nil
	}

	series, err := c.next.HourlySeries(ctx, target)
	if err != nil {
		return nil, err
	}
	c.store(key, cacheEntry{series: slices.Clone(series)})
	return series, nil
}

// ListTargets returns cached targets or queries the wrapped adapter.
func (c *Cached) ListTargets(ctx context.Context, filter string) ([]string, error) {
	key := c.key(OpListTargets, filter, "")
	if entry, ok := c.lookup(key); ok {
		return slices.Clone(entry.targets), nil
	}

	targets, err := c.next.ListTargets(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.store(key, cacheEntry{targets: slices.Clone(targets)})
	return targets, nil
}

// Purge drops every entry.
func (c *Cached) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Stats returns current cache statistics.
func (c *Cached) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
