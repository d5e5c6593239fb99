package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"enrich/internal/constants"
)

// ResultCache is a distributed cache for enrichment results, keyed by
// the enrichment's own cache key (typically its name plus the field
// value it looked up). It exists so the same lookup value doesn't
// repeat an HTTP or SQL round trip from every worker in the fleet
// within the same TTL window.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache returns nil when client is nil, so callers always
// have a cache to call and it simply never hits on a miss.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached value and true on a hit, or false on a miss
// or any cache error — a cache error must never fail the enrichment,
// only fall through to the underlying lookup.
func (c *ResultCache) Get(ctx context.Context, key string, out any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, constants.CacheKeyPrefixEnrich+key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (c *ResultCache) Set(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, constants.CacheKeyPrefixEnrich+key, data, c.ttl)
}
