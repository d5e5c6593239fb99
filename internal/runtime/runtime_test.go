package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/config"
	"enrich/internal/decoder"
	"enrich/internal/enrichment"
	"enrich/internal/logger"
	"enrich/internal/model"
	"enrich/internal/registry"
	"enrich/internal/schema"
	"enrich/internal/sourcesink"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func testValidator(t *testing.T) *schema.Validator {
	t.Helper()
	resolver := schema.NewMemoryResolver(map[string]json.RawMessage{
		model.EventSchemaKey: json.RawMessage(`{"type":"object"}`),
	})
	v, err := schema.NewValidator(resolver, testLogger(t))
	require.NoError(t, err)
	return v
}

func recordFor(partitionID string, params map[string]string) model.Record {
	payload := map[string]any{
		"collector_name":   "test",
		"collector_tstamp": time.Now().UnixMilli(),
		"events": []map[string]any{
			{"parameters": params},
		},
	}
	data, _ := json.Marshal(payload)
	return model.Record{Bytes: data, PartitionID: partitionID}
}

func openRuntime(t *testing.T, records []model.Record, sinks Sinks) (*Runtime, *registry.EnrichmentRegistry, *registry.PauseGate) {
	t.Helper()

	source := sourcesink.NewMemorySource(records)
	checkpointer := sourcesink.NewMemoryCheckpointer()
	dec := decoder.New(0, false)
	pipeline := enrichment.NewPipeline(testValidator(t), testLogger(t), time.Second)

	reg := registry.NewEnrichmentRegistry()
	reg.Swap(&registry.Registry{BuiltAt: time.Now()})

	gate := registry.NewPauseGate()
	gate.Open()

	rt := New(source, checkpointer, dec, pipeline, reg, gate, sinks,
		config.ConcurrencyConfig{Enrich: 4, Sink: 4},
		config.FeatureFlagsConfig{},
		testLogger(t))

	return rt, reg, gate
}

func TestRunRoutesGoodEventsToGoodSink(t *testing.T) {
	records := []model.Record{
		recordFor("p-0", map[string]string{"e": "pv"}),
		recordFor("p-0", map[string]string{"e": "pp"}),
	}
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, records, Sinks{Good: good, Bad: bad})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	assert.Equal(t, 2, good.Count())
	assert.Equal(t, 0, bad.Count())
}

func TestRunRoutesUndecodableRecordsToBadSink(t *testing.T) {
	records := []model.Record{
		{Bytes: []byte("not json"), PartitionID: "p-0"},
	}
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, records, Sinks{Good: good, Bad: bad})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	assert.Equal(t, 0, good.Count())
	assert.Equal(t, 1, bad.Count())
}

func TestRunCheckpointsRecordsInArrivalOrder(t *testing.T) {
	records := []model.Record{
		recordFor("p-0", map[string]string{"e": "pv", "id": "1"}),
		recordFor("p-0", map[string]string{"e": "pv", "id": "2"}),
		recordFor("p-0", map[string]string{"e": "pv", "id": "3"}),
	}
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, records, Sinks{Good: good, Bad: bad})
	checkpointer := rt.checkpointer.(*sourcesink.MemoryCheckpointer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	committed := checkpointer.CheckpointedFor("p-0")
	require.Len(t, committed, 3)
	for i, rec := range committed {
		assert.Equal(t, records[i].Bytes, rec.Bytes)
	}
}

func TestProcessEventWaitsForClosedGate(t *testing.T) {
	records := []model.Record{recordFor("p-0", map[string]string{"e": "pv"})}
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, gate := openRuntime(t, records, Sinks{Good: good, Bad: bad})
	gate.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = rt.Run(ctx)

	assert.Equal(t, 0, good.Count())
	assert.Equal(t, 0, bad.Count())
}

func TestShutdownClosesSinks(t *testing.T) {
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, nil, Sinks{Good: good, Bad: bad})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	assert.NoError(t, rt.Shutdown(ctx))
}

func TestZeroEventPayloadCheckpointsWithNoSinkWrites(t *testing.T) {
	records := []model.Record{
		{Bytes: []byte(`{"collector_name":"ssc","events":[]}`), PartitionID: "p-0"},
	}
	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, records, Sinks{Good: good, Bad: bad})
	checkpointer := rt.checkpointer.(*sourcesink.MemoryCheckpointer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	assert.Equal(t, 0, good.Count())
	assert.Equal(t, 0, bad.Count())
	assert.Len(t, checkpointer.CheckpointedFor("p-0"), 1)
}

func TestTerminalSinkFailureSkipsCheckpointAndStopsRun(t *testing.T) {
	records := []model.Record{
		recordFor("p-0", map[string]string{"e": "pv", "id": "1"}),
		recordFor("p-0", map[string]string{"e": "pv", "id": "2"}),
	}
	good := sourcesink.NewMemorySink()
	good.FailNext(1)
	bad := sourcesink.NewMemoryByteSink()
	rt, _, _ := openRuntime(t, records, Sinks{Good: good, Bad: bad})
	checkpointer := rt.checkpointer.(*sourcesink.MemoryCheckpointer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runErr := rt.Run(ctx)

	require.Error(t, runErr)
	assert.Empty(t, checkpointer.CheckpointedFor("p-0"))
}
