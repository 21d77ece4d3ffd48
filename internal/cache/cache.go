// Package cache provides an in-memory TTL cache with pattern invalidation.
//
// The drive facade keys entries as "file:<key>" and "list:<prefix>" and
// invalidates whole cached subtrees with a single wildcard pattern, e.g.
// "list:pubky://owner/pub/notes/*". Entries expire lazily: Get evicts and
// misses once an entry is past its TTL, so the background janitor is an
// optimisation, never a correctness requirement.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Config holds cache tuning.
type Config struct {
	// DefaultTTL applies to entries stored with Set.
	DefaultTTL time.Duration

	// MaxEntries caps the cache size; the oldest entries are evicted when
	// the cap is reached. 0 means unbounded.
	MaxEntries int

	// JanitorInterval is how often StartJanitor sweeps expired entries.
	JanitorInterval time.Duration
}

// DefaultConfig returns production-ready cache settings.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      30 * time.Second,
		MaxEntries:      1000,
		JanitorInterval: time.Minute,
	}
}

// Stats reports cache occupancy for observability.
type Stats struct {
	TotalEntries int // everything held, including not-yet-swept expired entries
	ValidEntries int // entries still inside their TTL
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry is outside its TTL at now.
// A TTL <= 0 means the entry was never valid.
func (e *entry[V]) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return true
	}
	return now.Sub(e.createdAt) >= e.ttl
}

// Cache is a generic expiring string-keyed store.
// It is safe for concurrent use by multiple goroutines.
type Cache[V any] struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry[V]
}

// New creates a Cache with the given config.
func New[V any](cfg Config) *Cache[V] {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	return &Cache[V]{
		cfg:     cfg,
		entries: make(map[string]*entry[V]),
	}
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.cfg.DefaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
// A TTL of zero produces an entry that is already expired and can never
// be read back.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.MaxEntries > 0 && len(c.entries) >= c.cfg.MaxEntries {
		if _, exists := c.entries[key]; !exists {
			c.makeRoomLocked()
		}
	}

	c.entries[key] = &entry[V]{
		value:     value,
		createdAt: time.Now(),
		ttl:       ttl,
	}
}

// Get returns the value stored under key. Expired entries are evicted on
// access and reported as a miss; the caller falls back to the remote store.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	if e.expired(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock: the entry may have been replaced.
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

// Delete removes the entry stored under key, if any.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// InvalidatePattern removes every entry whose key matches pattern.
// '*' matches any substring; all other characters match literally.
func (c *Cache[V]) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if matchPattern(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Cleanup sweeps and removes all expired entries.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns current occupancy numbers.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	valid := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			valid++
		}
	}
	return Stats{TotalEntries: len(c.entries), ValidEntries: valid}
}

// StartJanitor sweeps expired entries on the configured interval until ctx
// is cancelled.
func (c *Cache[V]) StartJanitor(ctx context.Context) {
	interval := c.cfg.JanitorInterval
	if interval <= 0 {
		interval = DefaultConfig().JanitorInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// makeRoomLocked frees one slot: expired entries go first, then the oldest
// live entry. Caller holds the write lock.
func (c *Cache[V]) makeRoomLocked() {
	now := time.Now()
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			return
		}
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// matchPattern reports whether s matches pattern, where '*' matches any
// substring (including the empty one).
func matchPattern(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}

	// First part is anchored at the start, last part at the end.
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}
