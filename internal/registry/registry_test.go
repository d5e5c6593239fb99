package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/config"
	"enrich/internal/constants"
)

func httpConfig(name string, enabled bool) config.EnrichmentConfEntry {
	return config.EnrichmentConfEntry{
		Type:    constants.SourceTypeHTTP,
		Name:    name,
		Enabled: enabled,
		Parameters: map[string]any{
			"url_template": "https://lookup.example/{{value}}",
			"field":        "user_id",
			"schema":       "iglu:com.enrich/http_lookup/jsonschema/1-0-0",
		},
	}
}

func TestBuildSkipsDisabledEnrichments(t *testing.T) {
	configs := []config.EnrichmentConfEntry{
		httpConfig("enabled-one", true),
		httpConfig("disabled-one", false),
	}

	reg, err := Build(configs, nil, BuildDeps{})
	require.NoError(t, err)
	assert.Len(t, reg.Enrichments, 1)
}

func TestBuildFailsOnUnknownType(t *testing.T) {
	configs := []config.EnrichmentConfEntry{
		{Type: "not-a-real-type", Name: "bad", Enabled: true},
	}

	_, err := Build(configs, nil, BuildDeps{})
	assert.Error(t, err)
}

func TestAssetURIsDeduplicatesAcrossEnabledConfigs(t *testing.T) {
	configs := []config.EnrichmentConfEntry{
		{
			Type: constants.SourceTypeGeoIP, Name: "geo-a", Enabled: true,
			Assets: []config.AssetRef{{URI: "https://assets.example/geo.csv"}},
		},
		{
			Type: constants.SourceTypeGeoIP, Name: "geo-b", Enabled: true,
			Assets: []config.AssetRef{{URI: "https://assets.example/geo.csv"}},
		},
		{
			Type: constants.SourceTypeGeoIP, Name: "geo-c", Enabled: false,
			Assets: []config.AssetRef{{URI: "https://assets.example/other.csv"}},
		},
	}

	uris := AssetURIs(configs)
	assert.Equal(t, []string{"https://assets.example/geo.csv"}, uris)
}

func TestEnrichmentRegistrySnapshotAndSwap(t *testing.T) {
	reg := NewEnrichmentRegistry()
	assert.Nil(t, reg.Snapshot())

	first := &Registry{BuiltAt: time.Now()}
	reg.Swap(first)
	assert.Same(t, first, reg.Snapshot())

	second := &Registry{BuiltAt: time.Now().Add(time.Second)}
	reg.Swap(second)
	assert.Same(t, second, reg.Snapshot())
}

func TestPauseGateStartsClosed(t *testing.T) {
	gate := NewPauseGate()
	assert.False(t, gate.IsOpen())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := gate.Wait(ctx)
	assert.Error(t, err)
}

func TestPauseGateOpenReleasesWaiters(t *testing.T) {
	gate := NewPauseGate()

	done := make(chan error, 1)
	go func() {
		done <- gate.Wait(context.Background())
	}()

	gate.Open()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Open")
	}
	assert.True(t, gate.IsOpen())
}

func TestPauseGateCloseBlocksSubsequentWaiters(t *testing.T) {
	gate := NewPauseGate()
	gate.Open()
	require.True(t, gate.IsOpen())

	gate.Close()
	assert.False(t, gate.IsOpen())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, gate.Wait(ctx))

	gate.Open()
	assert.NoError(t, gate.Wait(context.Background()))
}
