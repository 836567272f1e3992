package orchestration

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/halcyonlabs/patternflow/core"
)

// ExecutionCache memoizes step results under their fingerprints. Stored
// results are treated as read-only by every consumer. A zero ttl on Set is a
// no-op; the orchestrator never caches results of no-cache steps.
type ExecutionCache interface {
	Get(ctx context.Context, fingerprint string) (*StepResult, bool)
	Set(ctx context.Context, fingerprint string, result *StepResult, ttl time.Duration)
}

// CacheStats reports cache effectiveness for introspection endpoints.
type CacheStats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// MemoryCache is the in-process execution cache: per-entry TTL expiry under
// a process-wide LRU capacity ceiling.
type MemoryCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	lru      *list.List // front = most recently used
	capacity int
	stats    CacheStats
	clock    func() time.Time
}

type cacheEntry struct {
	key       string
	result    *StepResult
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 4096
	}
	return &MemoryCache{
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		capacity: capacity,
		clock:    time.Now,
	}
}

// Get returns the live entry for a fingerprint. Expired entries are removed
// on access.
func (c *MemoryCache) Get(_ context.Context, fingerprint string) (*StepResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fingerprint]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.clock().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return entry.result, true
}

// Set stores a result for ttl. A non-positive ttl bypasses the cache.
func (c *MemoryCache) Set(_ context.Context, fingerprint string, result *StepResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fingerprint]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = c.clock().Add(ttl)
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&cacheEntry{
		key:       fingerprint,
		result:    result,
		expiresAt: c.clock().Add(ttl),
	})
	c.items[fingerprint] = elem

	for len(c.items) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.stats.Evictions++
	}
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.items, entry.key)
}

const execCacheKeyPrefix = "patternflow:exec:"

// RedisCache is the shared execution cache for multi-process deployments.
// Redis errors degrade to cache misses; the cache is an optimization, never
// a correctness dependency.
type RedisCache struct {
	client *redis.Client
	logger core.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(redisURL string, logger core.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisCache{client: client, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*StepResult, bool) {
	data, err := c.client.Get(ctx, execCacheKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Execution cache read failed", map[string]interface{}{
				"operation": "cache_get",
				"error":     err.Error(),
			})
		}
		return nil, false
	}
	var result StepResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, result *StepResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, execCacheKeyPrefix+fingerprint, data, ttl).Err(); err != nil {
		c.logger.Debug("Execution cache write failed", map[string]interface{}{
			"operation": "cache_set",
			"error":     err.Error(),
		})
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ ExecutionCache = (*MemoryCache)(nil)
	_ ExecutionCache = (*RedisCache)(nil)
)
