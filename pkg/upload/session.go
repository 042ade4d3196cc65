package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache stores server upload-session tokens keyed by the composite
// destination-and-account key, so a later upload to the same destination can
// reuse the session instead of renegotiating one.
type SessionCache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, session string) error
	Evict(ctx context.Context, olderThan time.Duration) error
}

type memoryEntry struct {
	session  string
	storedAt time.Time
}

// MemorySessionCache is the default in-process cache: a synchronized map,
// evicted by the manager's periodic sweep.
type MemorySessionCache struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

// NewMemorySessionCache creates an empty in-process session cache.
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{m: make(map[string]memoryEntry)}
}

func (c *MemorySessionCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key].session, nil
}

func (c *MemorySessionCache) Put(_ context.Context, key, session string) error {
	c.mu.Lock()
	c.m[key] = memoryEntry{session: session, storedAt: time.Now()}
	c.mu.Unlock()
	return nil
}

func (c *MemorySessionCache) Evict(_ context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	c.mu.Lock()
	for k, e := range c.m {
		if e.storedAt.Before(cutoff) {
			delete(c.m, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// RedisSessionCache keeps session tokens in Redis with a TTL, sharing them
// across processes. Eviction is handled by Redis expiry.
type RedisSessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionCache creates a Redis-backed session cache.
func NewRedisSessionCache(rdb *redis.Client, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{rdb: rdb, ttl: ttl}
}

func (c *RedisSessionCache) Get(ctx context.Context, key string) (string, error) {
	s, err := c.rdb.Get(ctx, "upload_session:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s, nil
}

func (c *RedisSessionCache) Put(ctx context.Context, key, session string) error {
	return c.rdb.Set(ctx, "upload_session:"+key, session, c.ttl).Err()
}

func (c *RedisSessionCache) Evict(context.Context, time.Duration) error {
	return nil
}
