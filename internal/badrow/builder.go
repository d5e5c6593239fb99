package badrow

import (
	"encoding/json"
	"fmt"
	"time"

	"enrich/internal/model"
)

const truncatedPreviewLen = 256

// Builder assembles the canonical self-describing JSON bad rows.
// Every failure site in the process — the decoder, the enrichment
// pipeline, the schema validator's exhausted-retry path — goes
// through one Builder so the processor identity and the five-class
// schema table are never duplicated ad hoc at the call site.
type Builder struct {
	processor model.ProcessorIdentity
}

func NewBuilder(artifact, version string) *Builder {
	return &Builder{processor: model.ProcessorIdentity{Artifact: artifact, Version: version}}
}

func (b *Builder) build(class model.FailureClass, messages []string, payload model.PayloadRef) *model.BadRow {
	return &model.BadRow{
		Schema: model.SchemaKeyFor(class),
		Data: model.BadRowData{
			Processor: b.processor,
			Failure: model.FailureDetail{
				Timestamp: time.Now().UTC(),
				Messages:  messages,
			},
			Payload: payload,
		},
	}
}

// AdapterFailure covers a payload that could not be decoded at all.
func (b *Builder) AdapterFailure(raw []byte, partitionID string, cause error) *model.BadRow {
	return b.build(model.FailureAdapterFailure, []string{cause.Error()}, model.NewPayloadRef(raw, partitionID))
}

// SizeViolation covers a payload that exceeded maxRecordSize. Its
// payload reference carries only a truncated preview, never the full
// oversized body.
func (b *Builder) SizeViolation(raw []byte, partitionID string, maxRecordSize int) *model.BadRow {
	preview := raw
	if len(preview) > truncatedPreviewLen {
		preview = preview[:truncatedPreviewLen]
	}
	message := previewMessage(len(raw), maxRecordSize)
	return b.build(model.FailureSizeViolation, []string{message}, model.NewPayloadRef(preview, partitionID))
}

// EnrichmentFailure covers one or more enrichments that returned a
// Failure for this event. messages is the already-formatted set of
// per-enrichment failure descriptions.
func (b *Builder) EnrichmentFailure(raw model.RawEvent, partitionID string, messages []string) *model.BadRow {
	return b.build(model.FailureEnrichmentFailure, messages, payloadFromRawEvent(raw, partitionID))
}

// SchemaViolation covers validation failures against the event schema
// or a derived context's schema. Takes precedence over
// EnrichmentFailure when both occur for the same event.
func (b *Builder) SchemaViolation(raw model.RawEvent, partitionID string, messages []string) *model.BadRow {
	return b.build(model.FailureSchemaViolation, messages, payloadFromRawEvent(raw, partitionID))
}

// Generic covers failures with no more specific class and no payload
// to attach — used by the runtime when the registry has no active
// snapshot to enrich an event with.
func (b *Builder) Generic(messages []string) *model.BadRow {
	return b.build(model.FailureGeneric, messages, model.PayloadRef{})
}

func payloadFromRawEvent(raw model.RawEvent, partitionID string) model.PayloadRef {
	data, err := json.Marshal(raw.Parameters)
	if err != nil {
		return model.NewPayloadRef(nil, partitionID)
	}
	return model.NewPayloadRef(data, partitionID)
}

func previewMessage(size, maxSize int) string {
	return fmt.Sprintf("payload size %d exceeds maxRecordSize %d", size, maxSize)
}
