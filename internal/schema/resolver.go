package schema

import (
	"context"
	"encoding/json"
)

// ResolveOutcome is the three-way result a Resolver can return. A
// transport error is distinct from NotFound: one is retried, the
// other is a definitive answer.
type ResolveOutcome int

const (
	ResolveFound ResolveOutcome = iota
	ResolveNotFound
	ResolveTransportError
)

// Resolver fetches a schema document by its self-describing key. The
// core never talks to a schema registry transport directly; it only
// knows this contract.
type Resolver interface {
	Resolve(ctx context.Context, schemaKey string) (doc json.RawMessage, outcome ResolveOutcome, err error)
}
