package registry

import (
	"time"

	"enrich/internal/config"
	"enrich/internal/enrichment"
)

// AssetState is the AssetManager's bookkeeping record for one remote
// asset URI: where it landed locally, when it was last fetched, and
// the content hash used to decide whether a re-fetch actually changed
// anything.
type AssetState struct {
	URI         string
	LocalPath   string
	LastFetched time.Time
	ContentHash string
}

// Registry is an immutable snapshot: the enrichments built from a
// particular set of configs and asset files, in declaration order
// (config validation rejects the legacy-order feature flag). Readers
// that capture one keep it alive for exactly one event's enrichment.
type Registry struct {
	Enrichments []enrichment.Enrichment
	Configs     []config.EnrichmentConfEntry
	BuiltAt     time.Time
}
