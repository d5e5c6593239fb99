package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileResolver loads a fixed set of schema documents from a local
// JSON file at startup: {"schemaKey": {<json schema>}, ...}. Real
// Iglu registry transport (HTTP/embedded resolver chains, priority
// ordering across repositories) is out of scope here; this is the
// static stand-in a deployment points --iglu at when it wants schema
// validation without standing up a registry.
type FileResolver struct {
	inner *MemoryResolver
}

func NewFileResolver(path string) (*FileResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read iglu schema file %s: %w", path, err)
	}

	var docs map[string]json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse iglu schema file %s: %w", path, err)
	}

	return &FileResolver{inner: NewMemoryResolver(docs)}, nil
}

func (r *FileResolver) Resolve(ctx context.Context, schemaKey string) (json.RawMessage, ResolveOutcome, error) {
	return r.inner.Resolve(ctx, schemaKey)
}
