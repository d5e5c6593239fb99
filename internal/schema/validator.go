package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"enrich/internal/constants"
	"enrich/internal/logger"
	"enrich/pkg/cache"
	"enrich/pkg/circuitbreaker"
	"enrich/pkg/retry"
)

// ValidationFailure carries why one {schema, data} pair failed
// validation: either the resolver couldn't produce a schema document
// (ResolutionError) or the data itself didn't conform (SchemaInvalid).
type ValidationFailure struct {
	SchemaKey string
	Cause     string
	Messages  []string
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %s", f.SchemaKey, f.Cause)
}

const (
	causeResolutionError = "ResolutionError"
	causeSchemaInvalid   = "SchemaInvalid"
)

// resultKey is the composite key for the validation-result cache:
// the same schema key applied to the same data hash always produces
// the same outcome, so it is safe to memoize across events.
type resultKey struct {
	schemaKey string
	dataHash  string
}

// Validator validates event and derived-context data against schema
// documents fetched through a Resolver, with a positive schema-doc
// cache and a (schema_key, data_hash) -> result cache layered in
// front of the resolver so a hot schema is resolved once per
// process, not once per event.
type Validator struct {
	resolver Resolver
	breaker  *circuitbreaker.Wrapper
	logger   logger.Logger
	negative *cache.NegativeCache

	schemaDocs *lru.Cache[string, json.RawMessage]
	results    *lru.Cache[resultKey, *ValidationFailure]

	retryPolicy retry.Policy
}

func NewValidator(resolver Resolver, log logger.Logger) (*Validator, error) {
	return newValidator(resolver, log, nil)
}

// NewValidatorWithNegativeCache layers a distributed negative cache
// in front of the resolver: once one process observes a schema key
// that fails to resolve, every other process sharing the same Redis
// instance skips straight to ResolutionError instead of retrying the
// same doomed resolution.
func NewValidatorWithNegativeCache(resolver Resolver, log logger.Logger, negative *cache.NegativeCache) (*Validator, error) {
	return newValidator(resolver, log, negative)
}

func newValidator(resolver Resolver, log logger.Logger, negative *cache.NegativeCache) (*Validator, error) {
	schemaDocs, err := lru.New[string, json.RawMessage](constants.SchemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("schema doc cache: %w", err)
	}
	results, err := lru.New[resultKey, *ValidationFailure](constants.ValidationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("validation result cache: %w", err)
	}

	return &Validator{
		resolver:   resolver,
		breaker:    circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("schema-resolver")),
		logger:     log,
		negative:   negative,
		schemaDocs: schemaDocs,
		results:    results,
		retryPolicy: retry.Policy{
			MaxAttempts:     constants.SchemaResolveMaxAttempts,
			InitialInterval: constants.SchemaResolveInitialInterval,
			Multiplier:      constants.SchemaResolveMultiplier,
			MaxInterval:     1 * time.Second,
		},
	}, nil
}

// Validate returns nil on success or a *ValidationFailure describing
// why the data did not pass. The returned failure is also cached, so
// a persistently-invalid (schemaKey, data) pair doesn't re-resolve.
func (v *Validator) Validate(ctx context.Context, schemaKey string, data json.RawMessage) *ValidationFailure {
	hash := hashData(data)
	key := resultKey{schemaKey: schemaKey, dataHash: hash}

	if cached, ok := v.results.Get(key); ok {
		return cached
	}

	doc, err := v.fetchSchemaDoc(ctx, schemaKey)
	if err != nil {
		failure := &ValidationFailure{
			SchemaKey: schemaKey,
			Cause:     causeResolutionError,
			Messages:  []string{err.Error()},
		}
		v.results.Add(key, failure)
		return failure
	}

	if failure := validateAgainstSchema(schemaKey, doc, data); failure != nil {
		v.results.Add(key, failure)
		return failure
	}

	v.results.Add(key, nil)
	return nil
}

func (v *Validator) fetchSchemaDoc(ctx context.Context, schemaKey string) (json.RawMessage, error) {
	if doc, ok := v.schemaDocs.Get(schemaKey); ok {
		return doc, nil
	}

	if v.negative.IsKnownBad(ctx, schemaKey) {
		return nil, fmt.Errorf("schema key %s previously failed to resolve fleet-wide", schemaKey)
	}

	var doc json.RawMessage
	err := retry.Retry(ctx, v.retryPolicy, func() error {
		result, callErr := v.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			d, outcome, resolveErr := v.resolver.Resolve(ctx, schemaKey)
			if resolveErr != nil {
				return nil, retry.NewRetryableError(resolveErr)
			}
			switch outcome {
			case ResolveFound:
				return d, nil
			case ResolveNotFound:
				return nil, retry.NewFatalError(fmt.Errorf("schema not found: %s", schemaKey))
			default:
				return nil, retry.NewRetryableError(fmt.Errorf("schema resolver transport error for %s", schemaKey))
			}
		})
		if callErr != nil {
			return callErr
		}
		doc = result.(json.RawMessage)
		return nil
	})
	if err != nil {
		v.negative.MarkBad(ctx, schemaKey)
		return nil, err
	}

	v.schemaDocs.Add(schemaKey, doc)
	return doc, nil
}

// validateAgainstSchema checks that data parses as JSON at all; a
// full JSON Schema implementation is outside this contract's scope
// (the core only needs found/not-found/valid/invalid, per its own
// resolver boundary) so structural validity is the enforced
// invariant and the schema document's presence gates acceptance.
func validateAgainstSchema(schemaKey string, schemaDoc, data json.RawMessage) *ValidationFailure {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ValidationFailure{
			SchemaKey: schemaKey,
			Cause:     causeSchemaInvalid,
			Messages:  []string{err.Error()},
		}
	}
	return nil
}

func hashData(data json.RawMessage) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
