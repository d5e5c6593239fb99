package model

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// FailureClass names one of the fixed bad-row schema keys. A
// BadRowBuilder chooses exactly one per failure.
type FailureClass string

const (
	FailureAdapterFailure    FailureClass = "adapter_failure"
	FailureSizeViolation     FailureClass = "size_violation"
	FailureEnrichmentFailure FailureClass = "enrichment_failure"
	FailureSchemaViolation   FailureClass = "schema_violation"
	FailureGeneric           FailureClass = "generic"
)

// schemaKeys maps each failure class to the self-describing schema
// key written into the bad row's "schema" field. Kept as a fixed
// table, not derived, so the wire contract never drifts silently.
var schemaKeys = map[FailureClass]string{
	FailureAdapterFailure:    "iglu:com.enrich/adapter_failure/jsonschema/1-0-0",
	FailureSizeViolation:     "iglu:com.enrich/size_violation/jsonschema/1-0-0",
	FailureEnrichmentFailure: "iglu:com.enrich/enrichment_failure/jsonschema/1-0-0",
	FailureSchemaViolation:   "iglu:com.enrich/schema_violation/jsonschema/1-0-0",
	FailureGeneric:           "iglu:com.enrich/generic_error/jsonschema/1-0-0",
}

// EventSchemaKey is the top-level schema every EnrichedEvent is
// validated against, independent of whatever schemas its derived
// contexts declare.
const EventSchemaKey = "iglu:com.enrich/event/jsonschema/1-0-0"

func SchemaKeyFor(class FailureClass) string {
	if key, ok := schemaKeys[class]; ok {
		return key
	}
	return schemaKeys[FailureGeneric]
}

// BadRow is the canonical self-describing JSON failure record
// written to the bad sink.
type BadRow struct {
	Schema string      `json:"schema"`
	Data   BadRowData  `json:"data"`
}

type BadRowData struct {
	Processor ProcessorIdentity `json:"processor"`
	Failure   FailureDetail     `json:"failure"`
	Payload   PayloadRef        `json:"payload"`
}

type ProcessorIdentity struct {
	Artifact string `json:"artifact"`
	Version  string `json:"version"`
}

type FailureDetail struct {
	Timestamp time.Time `json:"timestamp"`
	Messages  []string  `json:"messages"`
}

// PayloadRef carries the original input that produced the failure.
// Binary payloads are base64-encoded; textual ones are left as-is so
// the bad row stays human-readable where possible.
type PayloadRef struct {
	RawBytes    string `json:"raw_bytes,omitempty"`
	Base64      bool   `json:"base64,omitempty"`
	PartitionID string `json:"partition_id,omitempty"`
}

func NewPayloadRef(raw []byte, partitionID string) PayloadRef {
	if isPrintableASCII(raw) {
		return PayloadRef{RawBytes: string(raw), PartitionID: partitionID}
	}
	return PayloadRef{
		RawBytes:    base64.StdEncoding.EncodeToString(raw),
		Base64:      true,
		PartitionID: partitionID,
	}
}

func (p PayloadRef) Decode() ([]byte, error) {
	if !p.Base64 {
		return []byte(p.RawBytes), nil
	}
	return base64.StdEncoding.DecodeString(p.RawBytes)
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) || c > 0x7e {
			return false
		}
	}
	return true
}

func (b BadRow) MarshalBytes() ([]byte, error) {
	return json.Marshal(b)
}
