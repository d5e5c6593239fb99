package decoder

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"enrich/internal/badrow"
	"enrich/internal/model"
)

// wirePayload is the decoded shape of a CollectorPayload. Decode
// reads the bytes as a JSON document of this shape (optionally after
// a base64 decode); no other wire envelope is parsed here.
type wirePayload struct {
	CollectorName   string            `json:"collector_name"`
	CollectorTstamp int64             `json:"collector_tstamp"`
	UserAgent       string            `json:"user_agent"`
	RemoteIP        string            `json:"remote_ip"`
	Events          []wireEvent       `json:"events"`
}

type wireEvent struct {
	Parameters  map[string]string `json:"parameters"`
	RefererURI  string            `json:"referer_uri,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Headers     []string          `json:"headers,omitempty"`
}

// Decoder parses collector payload bytes into RawEvents. It is pure
// and safe for concurrent use — no shared mutable state, no I/O.
type Decoder struct {
	maxRecordSize     int
	tryBase64Decoding bool
	badRows           *badrow.Builder
}

func New(maxRecordSize int, tryBase64Decoding bool) *Decoder {
	return &Decoder{
		maxRecordSize:     maxRecordSize,
		tryBase64Decoding: tryBase64Decoding,
		badRows:           badrow.NewBuilder(artifactName, artifactVersion),
	}
}

// Decode returns either the payload's list of RawEvents or a BadRow
// describing exactly why decoding failed, never both. A well-formed
// payload that carries zero events returns an empty list and no
// BadRow.
func (d *Decoder) Decode(raw []byte, partitionID string) ([]model.RawEvent, *model.BadRow) {
	if d.maxRecordSize > 0 && len(raw) > d.maxRecordSize {
		return nil, d.badRows.SizeViolation(raw, partitionID, d.maxRecordSize)
	}

	payload, err := d.unmarshal(raw)
	if err != nil {
		return nil, d.badRows.AdapterFailure(raw, partitionID, err)
	}

	events := make([]model.RawEvent, 0, len(payload.Events))
	for _, we := range payload.Events {
		events = append(events, model.RawEvent{
			Parameters:      we.Parameters,
			CollectorTstamp: payload.CollectorTstamp,
			UserAgent:       payload.UserAgent,
			RemoteIP:        payload.RemoteIP,
			RefererURI:      we.RefererURI,
			Headers:         we.Headers,
			ContentType:     we.ContentType,
		})
	}
	return events, nil
}

func (d *Decoder) unmarshal(raw []byte) (*wirePayload, error) {
	var payload wirePayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		return &payload, nil
	}

	if d.tryBase64Decoding {
		decoded, decErr := base64.StdEncoding.DecodeString(string(raw))
		if decErr == nil {
			var payload2 wirePayload
			if err := json.Unmarshal(decoded, &payload2); err == nil {
				return &payload2, nil
			}
		}
	}

	return nil, fmt.Errorf("malformed collector payload")
}

// artifactName and artifactVersion are stamped into every bad row's
// processor identity.
const (
	artifactName    = "enrich"
	artifactVersion = "0.1.0"
)
