package registry

import (
	"fmt"
	"sync/atomic"
	"time"

	"enrich/internal/config"
	"enrich/internal/enrichment"
)

// EnrichmentRegistry holds the currently-active Registry behind an
// atomic pointer: Snapshot is a plain load, Swap is a plain store.
// Readers that have captured a snapshot keep its enrichments (and
// whatever file handles/DB pools those enrichments hold) alive for as
// long as they hold the pointer; nothing here reference-counts that,
// it relies on Go's GC plus the fact that the enrichments themselves
// (HTTP clients, *sql.DB, asset tables) are either shared across
// Registry generations or hold their own data by value.
type EnrichmentRegistry struct {
	current atomic.Pointer[Registry]
}

func NewEnrichmentRegistry() *EnrichmentRegistry {
	return &EnrichmentRegistry{}
}

func (r *EnrichmentRegistry) Snapshot() *Registry {
	return r.current.Load()
}

func (r *EnrichmentRegistry) Swap(next *Registry) {
	r.current.Store(next)
}

// Build constructs a new Registry from configs against pre-downloaded
// assets. assetPaths maps asset URI to its current local path.
// Failure of any one enrichment's builder fails the whole build — the
// caller decides whether that's fatal (startup) or merely logged and
// discarded in favor of the old Registry (refresh).
func Build(configs []config.EnrichmentConfEntry, assetPaths map[string]string, deps BuildDeps) (*Registry, error) {
	enrichments := make([]enrichment.Enrichment, 0, len(configs))
	active := make([]config.EnrichmentConfEntry, 0, len(configs))

	for _, entry := range configs {
		if !entry.Enabled {
			continue
		}

		e, err := buildOne(entry, deps)
		if err != nil {
			return nil, fmt.Errorf("build enrichment %s: %w", entry.Name, err)
		}

		if ab, ok := e.(enrichment.AssetBackedEnrichment); ok {
			localPaths := make(map[string]string, len(ab.AssetURIs()))
			for _, uri := range ab.AssetURIs() {
				path, ok := assetPaths[uri]
				if !ok {
					return nil, fmt.Errorf("build enrichment %s: no local path resolved for asset %s", entry.Name, uri)
				}
				localPaths[uri] = path
			}
			if err := ab.ReloadAssets(localPaths); err != nil {
				return nil, fmt.Errorf("build enrichment %s: load assets: %w", entry.Name, err)
			}
		}

		enrichments = append(enrichments, e)
		active = append(active, entry)
	}

	return &Registry{
		Enrichments: enrichments,
		Configs:     active,
		BuiltAt:     time.Now().UTC(),
	}, nil
}

// AssetURIs collects every asset URI declared across an enabled
// config set, deduplicated.
func AssetURIs(configs []config.EnrichmentConfEntry) []string {
	seen := make(map[string]struct{})
	var uris []string
	for _, entry := range configs {
		if !entry.Enabled {
			continue
		}
		for _, a := range entry.Assets {
			if _, ok := seen[a.URI]; ok {
				continue
			}
			seen[a.URI] = struct{}{}
			uris = append(uris, a.URI)
		}
	}
	return uris
}
