package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"product-recommender/internal/common/logger"
)

const cacheKeyPrefix = "recommender:retrieval:"

// cacheNamespace scopes the name-based UUIDs used as cache keys.
var cacheNamespace = uuid.MustParse("6f1c2a52-8c1e-4a53-9b4e-1f0a6b7c9d21")

// Cache stores per-source fetch results. A miss or a backend error both
// report false; the cache never fails a request.
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) bool
	Set(ctx context.Context, key string, value interface{})
}

// CacheKey derives a stable key from the fetch parameters.
func CacheKey(in cacheKeyInput) string {
	payload, _ := json.Marshal(in)
	return cacheKeyPrefix + string(in.Source) + ":" + uuid.NewSHA1(cacheNamespace, payload).String()
}

// RedisCache keeps fetch results in Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: log}
}

func (c *RedisCache) Get(ctx context.Context, key string, out interface{}) bool {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("retrieval cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.logger.Warn("retrieval cache entry unreadable", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("retrieval cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// MemoryCache is the in-process fallback when Redis is not configured.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string, out interface{}) bool {
	raw, ok := c.store.Get(key)
	if !ok {
		return false
	}
	data, ok := raw.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.store.SetDefault(key, data)
}
