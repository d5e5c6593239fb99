package schema

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryResolver is a fixed map of known schema keys to documents,
// used in tests and as the default resolver when no Iglu-backed
// transport is configured. Unknown keys resolve NotFound; keys
// present in failing can be flipped to simulate transport errors.
type MemoryResolver struct {
	mu       sync.RWMutex
	docs     map[string]json.RawMessage
	failing  map[string]bool
	calls    int
}

func NewMemoryResolver(docs map[string]json.RawMessage) *MemoryResolver {
	return &MemoryResolver{docs: docs, failing: make(map[string]bool)}
}

func (r *MemoryResolver) SetFailing(schemaKey string, failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[schemaKey] = failing
}

func (r *MemoryResolver) Calls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

func (r *MemoryResolver) Resolve(ctx context.Context, schemaKey string) (json.RawMessage, ResolveOutcome, error) {
	r.mu.Lock()
	r.calls++
	failing := r.failing[schemaKey]
	doc, ok := r.docs[schemaKey]
	r.mu.Unlock()

	if failing {
		return nil, ResolveTransportError, nil
	}
	if !ok {
		return nil, ResolveNotFound, nil
	}
	return doc, ResolveFound, nil
}
