package intent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

const redisKeyPrefix = "sori:intent:"

// Cache memoizes resolved intents by normalized transcript. The in-process
// LRU is authoritative; an optional Redis layer shares warm entries across
// gateway instances. The cache is strictly a shortcut: any miss or Redis
// failure just means the pipeline runs again, so Redis errors are logged
// and swallowed rather than surfaced.
type Cache struct {
	lru *lru.Cache[string, models.IntentResult]
	rdb *redis.Client
	ttl time.Duration
}

// NewCache builds a cache of the given size, optionally backed by Redis.
// rdb may be nil.
func NewCache(size int, rdb *redis.Client, ttl time.Duration) *Cache {
	if size <= 0 {
		size = models.DefaultCacheSize
	}
	// lru.New only fails on a non-positive size, which is guarded above.
	l, _ := lru.New[string, models.IntentResult](size)
	return &Cache{lru: l, rdb: rdb, ttl: ttl}
}

// Get looks up a normalized transcript, promoting Redis hits into the LRU.
func (c *Cache) Get(ctx context.Context, key string) (models.IntentResult, bool) {
	if res, ok := c.lru.Get(key); ok {
		return res, true
	}
	if c.rdb == nil {
		return models.IntentResult{}, false
	}

	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Debug("Redis cache read failed", zap.Error(err))
		}
		return models.IntentResult{}, false
	}
	var res models.IntentResult
	if err := json.Unmarshal(data, &res); err != nil {
		zap.L().Debug("Discarding corrupt Redis cache entry", zap.String("key", key), zap.Error(err))
		return models.IntentResult{}, false
	}
	c.lru.Add(key, res)
	return res, true
}

// Put stores a resolved intent under its normalized transcript.
func (c *Cache) Put(ctx context.Context, key string, res models.IntentResult) {
	c.lru.Add(key, res)
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		zap.L().Debug("Redis cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Len reports how many entries the in-process layer holds.
func (c *Cache) Len() int { return c.lru.Len() }
