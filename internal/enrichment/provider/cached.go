package provider

import (
	"context"
	"fmt"

	"enrich/internal/enrichment"
	"enrich/internal/model"
	"enrich/pkg/cache"
)

// KeyFunc derives a cache key for one event from whatever field the
// wrapped enrichment looks up on. The builder supplies this using the
// same field-parameter configuration it hands the inner enrichment,
// so the cache key always matches what the inner enrichment actually
// keyed its lookup on.
type KeyFunc func(raw model.RawEvent) string

// cachedResult is the JSON shape stored in the distributed cache: a
// Result's two slices, nil-safe either way.
type cachedResult struct {
	Contexts   []model.DerivedContext `json:"contexts"`
	PiiUpdates []model.PiiField       `json:"pii_updates"`
}

// CachingEnrichment wraps any Enrichment with a distributed
// result cache: a cache hit skips the inner Run entirely; a miss runs
// it and stores a successful result before returning. Failures are
// never cached, so a transient lookup failure doesn't poison the
// cache for the TTL window. If the inner enrichment is asset-backed,
// CachingEnrichment forwards AssetURIs/ReloadAssets so wrapping it
// doesn't drop that behavior from the Registry's build step.
type CachingEnrichment struct {
	inner enrichment.Enrichment
	cache *cache.ResultCache
	key   KeyFunc
}

func NewCachingEnrichment(inner enrichment.Enrichment, resultCache *cache.ResultCache, key KeyFunc) *CachingEnrichment {
	return &CachingEnrichment{inner: inner, cache: resultCache, key: key}
}

func (e *CachingEnrichment) Name() string { return e.inner.Name() }

func (e *CachingEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	cacheKey := fmt.Sprintf("%s:%s", e.inner.Name(), e.key(raw))

	var cached cachedResult
	if e.cache.Get(ctx, cacheKey, &cached) {
		return &enrichment.Result{Contexts: cached.Contexts, PiiUpdates: cached.PiiUpdates}, nil
	}

	result, failure := e.inner.Run(ctx, raw, partial)
	if failure != nil {
		return nil, failure
	}

	e.cache.Set(ctx, cacheKey, cachedResult{Contexts: result.Contexts, PiiUpdates: result.PiiUpdates})
	return result, nil
}

func (e *CachingEnrichment) AssetURIs() []string {
	if ab, ok := e.inner.(enrichment.AssetBackedEnrichment); ok {
		return ab.AssetURIs()
	}
	return nil
}

func (e *CachingEnrichment) ReloadAssets(localPaths map[string]string) error {
	if ab, ok := e.inner.(enrichment.AssetBackedEnrichment); ok {
		return ab.ReloadAssets(localPaths)
	}
	return nil
}
