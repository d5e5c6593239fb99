package badrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/model"
)

func TestAdapterFailure(t *testing.T) {
	b := NewBuilder("enrich", "0.1.0")
	row := b.AdapterFailure([]byte("not json"), "p-0", errors.New("malformed collector payload"))

	require.NotNil(t, row)
	assert.Equal(t, model.SchemaKeyFor(model.FailureAdapterFailure), row.Schema)
	assert.Equal(t, "enrich", row.Data.Processor.Artifact)
	assert.Equal(t, "not json", row.Data.Payload.RawBytes)
	assert.Equal(t, "p-0", row.Data.Payload.PartitionID)
}

func TestSizeViolationTruncatesPreview(t *testing.T) {
	b := NewBuilder("enrich", "0.1.0")
	oversized := make([]byte, 1000)
	for i := range oversized {
		oversized[i] = 'a'
	}

	row := b.SizeViolation(oversized, "p-1", 500)

	assert.Equal(t, model.SchemaKeyFor(model.FailureSizeViolation), row.Schema)
	assert.LessOrEqual(t, len(row.Data.Payload.RawBytes), truncatedPreviewLen)
	assert.Contains(t, row.Data.Failure.Messages[0], "1000")
	assert.Contains(t, row.Data.Failure.Messages[0], "500")
}

func TestEnrichmentFailureAndSchemaViolationUseDistinctSchemas(t *testing.T) {
	b := NewBuilder("enrich", "0.1.0")
	raw := model.RawEvent{Parameters: map[string]string{"e": "pv"}}

	enrichRow := b.EnrichmentFailure(raw, "", []string{"lookup failed"})
	schemaRow := b.SchemaViolation(raw, "", []string{"invalid context"})

	assert.Equal(t, model.SchemaKeyFor(model.FailureEnrichmentFailure), enrichRow.Schema)
	assert.Equal(t, model.SchemaKeyFor(model.FailureSchemaViolation), schemaRow.Schema)
	assert.NotEqual(t, enrichRow.Schema, schemaRow.Schema)
}

func TestGenericHasNoPayload(t *testing.T) {
	b := NewBuilder("enrich", "0.1.0")
	row := b.Generic([]string{"unclassified failure"})

	assert.Equal(t, model.SchemaKeyFor(model.FailureGeneric), row.Schema)
	assert.Empty(t, row.Data.Payload.RawBytes)
}
