package enrichment

import (
	"context"
	"fmt"

	"enrich/internal/model"
)

// Result is what a successful enrichment run contributes: contexts
// to append (in the enrichment's own output order) and any PII field
// updates to merge into the event.
type Result struct {
	Contexts   []model.DerivedContext
	PiiUpdates []model.PiiField
}

// Failure describes why one enrichment failed for one event. It is
// always a value, never a panic — Pipeline.Run recovers anything an
// Enrichment implementation panics with and converts it into a
// Failure of kind "Panic" so the pipeline's own invariant (no
// exceptions escape per-event processing) holds regardless of how
// well-behaved the enrichment is.
type Failure struct {
	EnrichmentName string
	Kind           string
	Messages       []string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("enrichment %q failed (%s): %v", f.EnrichmentName, f.Kind, f.Messages)
}

const (
	FailureKindTimeout    = "Timeout"
	FailureKindIOError    = "IOError"
	FailureKindConfigError = "ConfigError"
	FailureKindPanic      = "Panic"
)

// Enrichment is a unit with declared configuration and a run
// contract. Implementations must be safe for concurrent use across
// events (they are shared across every worker holding the same
// Registry snapshot) but never need to be safe against their own
// asset files changing mid-run — ReloadAssets is only ever called
// between Registry snapshots, never concurrently with Run on the
// same instance.
type Enrichment interface {
	Name() string
	Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*Result, *Failure)
}

// AssetBackedEnrichment additionally declares the remote assets it
// depends on. The AssetManager downloads these to AssetURIs' local
// paths and calls ReloadAssets with the resolved paths before the
// enrichment is placed into a new Registry snapshot.
type AssetBackedEnrichment interface {
	Enrichment
	AssetURIs() []string
	ReloadAssets(localPaths map[string]string) error
}
