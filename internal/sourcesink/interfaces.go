package sourcesink

import (
	"context"
	"io"

	"enrich/internal/model"
)

// RecordSource is a pull-based, cancellable stream of Records.
// Records may arrive in any order across partitions but in order
// within a partition. The source owns flow control upstream; Next
// blocks until a record is available, the context is cancelled, or
// the stream is exhausted (io.EOF).
type RecordSource interface {
	Next(ctx context.Context) (model.Record, error)
	Close() error
}

// AttributedSink writes enriched bytes with routing attributes.
// Implementations must be safe for concurrent use; batching, if any,
// is the sink's own concern.
type AttributedSink interface {
	Write(ctx context.Context, data []byte, attributes map[string]string) error
	Close() error
}

// ByteSink is the bad-row sink shape: no attributes required.
type ByteSink interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Checkpointer marks a Record as durably processed. Checkpoint must
// be idempotent: the runtime may call it more than once for the same
// Record under retry.
type Checkpointer interface {
	Checkpoint(ctx context.Context, r model.Record) error
}

// ErrStreamClosed is returned by RecordSource.Next once the
// underlying stream has no more records and will produce none.
var ErrStreamClosed = io.EOF
