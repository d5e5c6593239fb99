package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"enrich/internal/constants"
)

// NegativeCache is a small distributed "this key is known bad" cache
// that fronts the schema validator's in-process LRU. Its only job is
// to stop every process in a fleet from individually retrying the
// same broken schema resolution; it is never consulted for anything
// other than ResolutionError outcomes.
type NegativeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNegativeCache returns nil if client is nil so callers can wire
// it unconditionally and have the cache degrade to a no-op when Redis
// isn't configured.
func NewNegativeCache(client *redis.Client, ttl time.Duration) *NegativeCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &NegativeCache{client: client, ttl: ttl}
}

func (c *NegativeCache) IsKnownBad(ctx context.Context, schemaKey string) bool {
	if c == nil {
		return false
	}
	n, err := c.client.Exists(ctx, constants.CacheKeyPrefixSchema+schemaKey).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (c *NegativeCache) MarkBad(ctx context.Context, schemaKey string) {
	if c == nil {
		return
	}
	c.client.Set(ctx, constants.CacheKeyPrefixSchema+schemaKey, "1", c.ttl)
}
