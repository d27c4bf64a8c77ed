package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReferenceCache memoizes reference lists across validation passes.
type ReferenceCache interface {
	GetOrLoad(ctx context.Context, key string, load func(context.Context) ([]ReferenceItem, error)) ([]ReferenceItem, error)
}

// MemoryReferenceCache is an in-memory TTL cache. A non-positive TTL disables it.
type MemoryReferenceCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cachedReferences
}

type cachedReferences struct {
	items   []ReferenceItem
	expires time.Time
}

// NewMemoryReferenceCache builds a cache with the provided TTL.
func NewMemoryReferenceCache(ttl time.Duration) *MemoryReferenceCache {
	return &MemoryReferenceCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedReferences),
	}
}

// GetOrLoad returns a cached list or loads and stores a new one. Failed loads
// are not cached.
func (c *MemoryReferenceCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) ([]ReferenceItem, error)) ([]ReferenceItem, error) {
	if items, ok := c.get(key); ok {
		return items, nil
	}
	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.set(key, items)
	return slices.Clone(items), nil
}

// Invalidate drops a single key.
func (c *MemoryReferenceCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryReferenceCache) get(key string) ([]ReferenceItem, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		if ok {
			c.Invalidate(key)
		}
		return nil, false
	}
	return slices.Clone(entry.items), true
}

func (c *MemoryReferenceCache) set(key string, items []ReferenceItem) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cachedReferences{
		items:   slices.Clone(items),
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// RedisReferenceCache stores reference lists as JSON in Redis so several
// processes share one copy.
type RedisReferenceCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisReferenceCache builds a Redis-backed cache. Keys are namespaced with prefix.
func NewRedisReferenceCache(client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *RedisReferenceCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisReferenceCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// GetOrLoad implements ReferenceCache. Redis failures degrade to a direct load.
func (c *RedisReferenceCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) ([]ReferenceItem, error)) ([]ReferenceItem, error) {
	fullKey := c.prefix + key
	data, err := c.client.Get(ctx, fullKey).Bytes()
	switch {
	case err == nil:
		var items []ReferenceItem
		if uerr := json.Unmarshal(data, &items); uerr == nil {
			return items, nil
		}
		c.logger.Warn("discarding undecodable reference cache entry", zap.String("key", fullKey))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("reference cache read failed", zap.String("key", fullKey), zap.Error(err))
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		if serr := c.store(ctx, fullKey, items); serr != nil {
			c.logger.Warn("reference cache write failed", zap.String("key", fullKey), zap.Error(serr))
		}
	}
	return items, nil
}

func (c *RedisReferenceCache) store(ctx context.Context, key string, items []ReferenceItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("dashboard: encode reference list: %w", err)
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
