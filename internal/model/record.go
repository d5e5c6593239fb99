package model

// Record is an opaque element pulled from the source. The core never
// inspects AckHandle; it is returned to the checkpointer unexamined.
type Record struct {
	Bytes       []byte
	PartitionID string
	AckHandle   any
}

// CollectorPayload is the decoded form of a Record's bytes: shared
// envelope fields plus the one or more raw events bundled inside it.
type CollectorPayload struct {
	CollectorName string
	CollectorTstamp int64 // epoch millis, as presented on the wire
	UserAgent     string
	RemoteIP      string
	RawEvents     []RawEvent
}

// RawEvent is the unenriched per-event structure produced by the
// decoder: an HTTP-form-like parameter map plus the envelope fields
// copied down from its parent CollectorPayload.
type RawEvent struct {
	Parameters      map[string]string
	CollectorTstamp int64
	UserAgent       string
	RemoteIP        string
	RefererURI      string
	Headers         []string
	ContentType     string
}

func (e RawEvent) Param(key string) string {
	return e.Parameters[key]
}
