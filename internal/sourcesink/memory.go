package sourcesink

import (
	"context"
	"fmt"
	"sync"

	"enrich/internal/model"
)

// MemorySource is a RecordSource over a fixed, preloaded slice of
// records, returned in slice order. Each record keeps the PartitionID
// it was built with, so tests can exercise per-partition FIFO
// checkpointing without a real broker.
type MemorySource struct {
	mu      sync.Mutex
	records []model.Record
	pos     int
}

func NewMemorySource(records []model.Record) *MemorySource {
	return &MemorySource{records: records}
}

func (s *MemorySource) Next(ctx context.Context) (model.Record, error) {
	select {
	case <-ctx.Done():
		return model.Record{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.records) {
		return model.Record{}, ErrStreamClosed
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *MemorySource) Close() error { return nil }

// MemoryCheckpointer records the order in which Checkpoint was called
// per partition, so tests can assert the FIFO invariant directly.
type MemoryCheckpointer struct {
	mu    sync.Mutex
	order map[string][]model.Record
}

func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{order: make(map[string][]model.Record)}
}

func (c *MemoryCheckpointer) Checkpoint(ctx context.Context, r model.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order[r.PartitionID] = append(c.order[r.PartitionID], r)
	return nil
}

func (c *MemoryCheckpointer) CheckpointedFor(partitionID string) []model.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Record, len(c.order[partitionID]))
	copy(out, c.order[partitionID])
	return out
}

// MemorySink collects every write it receives. Safe for concurrent
// use, matching AttributedSink/ByteSink's concurrency requirement.
type MemorySink struct {
	mu         sync.Mutex
	writes     [][]byte
	attributes []map[string]string
	failNext   int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailNext makes the next n writes return an error, for exercising
// sink-failure/shutdown behavior in tests.
func (s *MemorySink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *MemorySink) Write(ctx context.Context, data []byte, attributes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("memory sink: simulated write failure")
	}
	s.writes = append(s.writes, data)
	s.attributes = append(s.attributes, attributes)
	return nil
}

func (s *MemorySink) Close() error { return nil }

func (s *MemorySink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *MemorySink) All() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// MemoryByteSink is the ByteSink-shaped twin of MemorySink, used for
// the bad sink in tests.
type MemoryByteSink struct {
	inner *MemorySink
}

func NewMemoryByteSink() *MemoryByteSink {
	return &MemoryByteSink{inner: NewMemorySink()}
}

func (s *MemoryByteSink) Write(ctx context.Context, data []byte) error {
	return s.inner.Write(ctx, data, nil)
}

func (s *MemoryByteSink) Close() error { return nil }

func (s *MemoryByteSink) Count() int   { return s.inner.Count() }
func (s *MemoryByteSink) All() [][]byte { return s.inner.All() }
