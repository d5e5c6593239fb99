package schema

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/logger"
)

func TestValidate_Success(t *testing.T) {
	resolver := NewMemoryResolver(map[string]json.RawMessage{
		"iglu:com.enrich/event/jsonschema/1-0-0": json.RawMessage(`{}`),
	})
	v, err := NewValidator(resolver, logger.NopLogger())
	require.NoError(t, err)

	failure := v.Validate(context.Background(), "iglu:com.enrich/event/jsonschema/1-0-0", json.RawMessage(`{"a":1}`))
	assert.Nil(t, failure)
}

func TestValidate_NotFound(t *testing.T) {
	resolver := NewMemoryResolver(map[string]json.RawMessage{})
	v, err := NewValidator(resolver, logger.NopLogger())
	require.NoError(t, err)

	failure := v.Validate(context.Background(), "iglu:com.enrich/missing/jsonschema/1-0-0", json.RawMessage(`{}`))
	require.NotNil(t, failure)
	assert.Equal(t, causeResolutionError, failure.Cause)
}

func TestValidate_InvalidData(t *testing.T) {
	resolver := NewMemoryResolver(map[string]json.RawMessage{
		"iglu:com.enrich/event/jsonschema/1-0-0": json.RawMessage(`{}`),
	})
	v, err := NewValidator(resolver, logger.NopLogger())
	require.NoError(t, err)

	failure := v.Validate(context.Background(), "iglu:com.enrich/event/jsonschema/1-0-0", json.RawMessage(`not json`))
	require.NotNil(t, failure)
	assert.Equal(t, causeSchemaInvalid, failure.Cause)
}

func TestValidate_ResultIsCached(t *testing.T) {
	resolver := NewMemoryResolver(map[string]json.RawMessage{
		"iglu:com.enrich/event/jsonschema/1-0-0": json.RawMessage(`{}`),
	})
	v, err := NewValidator(resolver, logger.NopLogger())
	require.NoError(t, err)

	data := json.RawMessage(`{"a":1}`)
	for i := 0; i < 5; i++ {
		failure := v.Validate(context.Background(), "iglu:com.enrich/event/jsonschema/1-0-0", data)
		assert.Nil(t, failure)
	}
	assert.Equal(t, 1, resolver.Calls())
}

func TestValidate_TransportErrorRetriesThenFails(t *testing.T) {
	resolver := NewMemoryResolver(map[string]json.RawMessage{
		"iglu:com.enrich/event/jsonschema/1-0-0": json.RawMessage(`{}`),
	})
	resolver.SetFailing("iglu:com.enrich/event/jsonschema/1-0-0", true)
	v, err := NewValidator(resolver, logger.NopLogger())
	require.NoError(t, err)

	failure := v.Validate(context.Background(), "iglu:com.enrich/event/jsonschema/1-0-0", json.RawMessage(`{}`))
	require.NotNil(t, failure)
	assert.Equal(t, causeResolutionError, failure.Cause)
	assert.Equal(t, 3, resolver.Calls())
}
