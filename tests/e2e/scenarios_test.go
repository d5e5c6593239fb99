// Package e2e exercises the full decode -> enrich -> validate ->
// route path through Runtime against in-memory fakes, matching the
// end-to-end behaviors the engine is expected to satisfy in
// production: correct counts, correct derived-context ordering, and
// a bad row that round-trips back to its original bytes.
package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/decoder"
	"enrich/internal/enrichment"
	"enrich/internal/logger"
	"enrich/internal/model"
	"enrich/internal/registry"
	"enrich/internal/runtime"
	"enrich/internal/schema"
	"enrich/internal/sourcesink"
	"enrich/pkg/cel"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func wellFormedRecord(partitionID string, remoteIP, userAgent string, params map[string]string) model.Record {
	payload := map[string]any{
		"collector_name":   "ssc",
		"collector_tstamp": time.Now().UnixMilli(),
		"remote_ip":        remoteIP,
		"user_agent":       userAgent,
		"events": []map[string]any{
			{"parameters": params},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return model.Record{Bytes: data, PartitionID: partitionID}
}

// TestCountsScenario feeds a mix of well-formed and malformed
// payloads through Runtime with no enrichments configured and checks
// every record lands in exactly one of good/bad, with the source
// fully checkpointed.
func TestCountsScenario(t *testing.T) {
	const wellFormed = 1000
	const malformed = 100
	partitions := 4

	var records []model.Record
	for i := 0; i < wellFormed; i++ {
		p := fmt.Sprintf("p-%d", i%partitions)
		records = append(records, wellFormedRecord(p, "10.0.0.1", "curl/8.0", map[string]string{"e": "pv", "id": fmt.Sprintf("%d", i)}))
	}
	for i := 0; i < malformed; i++ {
		p := fmt.Sprintf("p-%d", i%partitions)
		records = append(records, model.Record{Bytes: []byte(fmt.Sprintf("not-json-%d", i)), PartitionID: p})
	}

	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	checkpointer := sourcesink.NewMemoryCheckpointer()

	rt := newTestRuntime(t, records, checkpointer, runtime.Sinks{Good: good, Bad: bad}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	assert.Equal(t, wellFormed, good.Count())
	assert.Equal(t, malformed, bad.Count())

	totalCheckpointed := 0
	for i := 0; i < partitions; i++ {
		totalCheckpointed += len(checkpointer.CheckpointedFor(fmt.Sprintf("p-%d", i)))
	}
	assert.Equal(t, wellFormed+malformed, totalCheckpointed)
}

// TestEnrichmentContextsScenario feeds well-formed payloads through
// Runtime with four enrichments configured (HTTP lookup, GeoIP,
// user-agent parsing, a CEL expression) and checks every good event
// carries exactly those four derived contexts, in declaration order.
func TestEnrichmentContextsScenario(t *testing.T) {
	const eventCount = 25
	dir := t.TempDir()

	apiSchema := "iglu:com.enrich/api_context/jsonschema/1-0-0"
	geoSchema := "iglu:com.enrich/geo_context/jsonschema/1-0-0"
	uaSchema := "iglu:com.enrich/ua_context/jsonschema/1-0-0"
	exprSchema := "iglu:com.enrich/expr_context/jsonschema/1-0-0"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tier":"gold"}`))
	}))
	defer srv.Close()

	geoPath := filepath.Join(dir, "geo.csv")
	require.NoError(t, os.WriteFile(geoPath, []byte("203.0.113.9,US,CA,San Francisco\n"), 0o644))

	uaPath := filepath.Join(dir, "ua.tsv")
	require.NoError(t, os.WriteFile(uaPath, []byte("Mozilla.*\tFirefox\tLinux\tdesktop\n"), 0o644))

	configs := []config.EnrichmentConfEntry{
		{
			Type: constants.SourceTypeHTTP, Name: "api_request", Enabled: true,
			Parameters: map[string]any{"schema": apiSchema, "url_template": srv.URL + "/lookup/{value}", "field": "uid"},
		},
		{
			Type: constants.SourceTypeGeoIP, Name: "geo", Enabled: true,
			Parameters: map[string]any{"schema": geoSchema},
			Assets:     []config.AssetRef{{URI: "file://geo-table", LocalPath: geoPath}},
		},
		{
			Type: constants.SourceTypeUserAgent, Name: "ua", Enabled: true,
			Parameters: map[string]any{"schema": uaSchema},
			Assets:     []config.AssetRef{{URI: "file://ua-table", LocalPath: uaPath}},
		},
		{
			Type: constants.SourceTypeExpression, Name: "tag", Enabled: true,
			Parameters: map[string]any{"schema": exprSchema, "expression": `raw.parameters["e"]`, "result_name": "event_type"},
		},
	}

	evaluator, err := cel.NewEvaluator()
	require.NoError(t, err)

	reg := registry.NewEnrichmentRegistry()
	built, err := registry.Build(configs, map[string]string{"file://geo-table": geoPath, "file://ua-table": uaPath}, registry.BuildDeps{Evaluator: evaluator})
	require.NoError(t, err)
	reg.Swap(built)

	var records []model.Record
	for i := 0; i < eventCount; i++ {
		records = append(records, wellFormedRecord("p-0", "203.0.113.9", "Mozilla/5.0", map[string]string{"e": "pv", "uid": fmt.Sprintf("%d", i)}))
	}

	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	checkpointer := sourcesink.NewMemoryCheckpointer()

	rt := newTestRuntimeWithRegistry(t, records, checkpointer, runtime.Sinks{Good: good, Bad: bad}, reg,
		[]string{apiSchema, geoSchema, uaSchema, exprSchema})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	require.Equal(t, eventCount, good.Count())
	require.Equal(t, 0, bad.Count())

	for _, raw := range good.All() {
		var e model.EnrichedEvent
		require.NoError(t, json.Unmarshal(raw, &e))
		require.Len(t, e.DerivedContexts, 4)
		assert.Equal(t, []string{apiSchema, geoSchema, uaSchema, exprSchema},
			[]string{e.DerivedContexts[0].Schema, e.DerivedContexts[1].Schema, e.DerivedContexts[2].Schema, e.DerivedContexts[3].Schema})
	}
}

// TestBadRowRoundTripScenario feeds one malformed, non-printable
// payload through Runtime and checks the bad row it produces decodes
// back to the original bytes.
func TestBadRowRoundTripScenario(t *testing.T) {
	malformed := []byte{0xff, 0xfe, 'x', 'y', 'z'}
	records := []model.Record{{Bytes: malformed, PartitionID: "p-0"}}

	good := sourcesink.NewMemorySink()
	bad := sourcesink.NewMemoryByteSink()
	checkpointer := sourcesink.NewMemoryCheckpointer()

	rt := newTestRuntime(t, records, checkpointer, runtime.Sinks{Good: good, Bad: bad}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Run(ctx))
	require.NoError(t, rt.Drain(ctx))

	require.Equal(t, 1, bad.Count())
	var row model.BadRow
	require.NoError(t, json.Unmarshal(bad.All()[0], &row))

	assert.Equal(t, model.SchemaKeyFor(model.FailureAdapterFailure), row.Schema)
	assert.NotEmpty(t, row.Data.Processor.Artifact)
	assert.NotEmpty(t, row.Data.Failure.Messages)

	decoded, err := row.Data.Payload.Decode()
	require.NoError(t, err)
	assert.Equal(t, malformed, decoded)

	if row.Data.Payload.Base64 {
		reEncoded, err := base64.StdEncoding.DecodeString(row.Data.Payload.RawBytes)
		require.NoError(t, err)
		assert.Equal(t, malformed, reEncoded)
	}
}

func newTestRuntime(t *testing.T, records []model.Record, checkpointer sourcesink.Checkpointer, sinks runtime.Sinks, extraSchemas []string) *runtime.Runtime {
	t.Helper()
	reg := registry.NewEnrichmentRegistry()
	reg.Swap(&registry.Registry{BuiltAt: time.Now()})
	return newTestRuntimeWithRegistry(t, records, checkpointer, sinks, reg, extraSchemas)
}

func newTestRuntimeWithRegistry(t *testing.T, records []model.Record, checkpointer sourcesink.Checkpointer, sinks runtime.Sinks, reg *registry.EnrichmentRegistry, extraSchemas []string) *runtime.Runtime {
	t.Helper()

	docs := map[string]json.RawMessage{model.EventSchemaKey: json.RawMessage(`{"type":"object"}`)}
	for _, s := range extraSchemas {
		docs[s] = json.RawMessage(`{"type":"object"}`)
	}
	resolver := schema.NewMemoryResolver(docs)
	validator, err := schema.NewValidator(resolver, testLogger(t))
	require.NoError(t, err)

	source := sourcesink.NewMemorySource(records)
	dec := decoder.New(0, false)
	pipeline := enrichment.NewPipeline(validator, testLogger(t), 5*time.Second)

	gate := registry.NewPauseGate()
	gate.Open()

	return runtime.New(source, checkpointer, dec, pipeline, reg, gate, sinks,
		config.ConcurrencyConfig{Enrich: 8, Sink: 8},
		config.FeatureFlagsConfig{},
		testLogger(t))
}
