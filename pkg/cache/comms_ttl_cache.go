// Package cache provides a two-level (memory + optional Redis) TTL cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// TTLCache - L1 (local memory) + optional L2 (Redis)
// =============================================================================

// Config holds cache configuration.
type Config struct {
	MaxEntries    int           // L1 capacity (default: 10000)
	TTL           time.Duration // entry lifetime (default: 15m)
	SweepInterval time.Duration // background expiry sweep period (default: 5m)
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    10000,
		TTL:           15 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// TTLCache is a concurrency-safe byte cache. Redis is optional; with no
// client configured the cache degrades to L1-only. Expired entries are
// removed by a periodic background sweep that never blocks callers for
// the duration of a full pass.
type TTLCache struct {
	cfg   Config
	redis *redis.Client

	mu    sync.RWMutex
	items map[string]*entry
	order []string // insertion order for capacity eviction

	stop chan struct{}
	once sync.Once
}

// New creates a TTL cache and starts its sweeper.
func New(redisClient *redis.Client, cfg Config) *TTLCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	c := &TTLCache{
		cfg:   cfg,
		redis: redisClient,
		items: make(map[string]*entry),
		order: make([]string, 0, cfg.MaxEntries),
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get retrieves a cached value.
func (c *TTLCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if ok {
		if time.Now().Before(e.expiresAt) {
			return e.data, true
		}
		// expired, leave removal to the sweeper
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			c.setL1(key, data)
			return data, true
		}
	}

	return nil, false
}

// Set stores a value in both levels.
func (c *TTLCache) Set(ctx context.Context, key string, data []byte) {
	c.setL1(key, data)
	if c.redis != nil {
		c.redis.Set(ctx, key, data, c.cfg.TTL)
	}
}

// Delete removes a key from both levels. The order slot is dropped too so
// a later Set of the same key cannot leave a stale duplicate that would
// evict the fresh entry first.
func (c *TTLCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if c.redis != nil {
		c.redis.Del(ctx, key)
	}
}

// Len returns the number of L1 entries, including not-yet-swept expired ones.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the background sweeper.
func (c *TTLCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache) setL1(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		// Evict oldest insertions when at capacity.
		for len(c.items) >= c.cfg.MaxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}

	c.items[key] = &entry{
		data:      data,
		expiresAt: time.Now().Add(c.cfg.TTL),
	}
}

func (c *TTLCache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired entries in small batches so request-handling
// goroutines are never blocked behind a full pass.
func (c *TTLCache) sweep() {
	now := time.Now()

	c.mu.RLock()
	expired := make([]string, 0)
	for key, e := range c.items {
		if now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	const batch = 128
	for i := 0; i < len(expired); i += batch {
		end := i + batch
		if end > len(expired) {
			end = len(expired)
		}
		c.mu.Lock()
		for _, key := range expired[i:end] {
			if e, ok := c.items[key]; ok && now.After(e.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}

	if len(expired) > 0 {
		c.compactOrder()
	}
}

// compactOrder drops order entries whose keys were deleted.
func (c *TTLCache) compactOrder() {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		if _, ok := c.items[key]; ok {
			kept = append(kept, key)
		}
	}
	c.order = kept
}
