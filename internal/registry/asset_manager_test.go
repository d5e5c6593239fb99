package registry

import (
	"context"
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
	"enrich/internal/logger"
)

func testLog(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func geoAssetConfig(name, uri, localPath string) config.EnrichmentConfEntry {
	return config.EnrichmentConfEntry{
		Type:    constants.SourceTypeGeoIP,
		Name:    name,
		Enabled: true,
		Parameters: map[string]any{
			"schema": "iglu:com.enrich/geo/jsonschema/1-0-0",
		},
		Assets: []config.AssetRef{{URI: uri, LocalPath: localPath}},
	}
}

func TestAssetManagerStartupFetchesAndBuildsRegistry(t *testing.T) {
	dir := t.TempDir()
	body := "1.2.3.4,US,CA,San Francisco\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	localPath := filepath.Join(dir, "geo.csv")
	configs := []config.EnrichmentConfEntry{geoAssetConfig("geo", srv.URL, localPath)}

	reg := NewEnrichmentRegistry()
	gate := NewPauseGate()
	mgr := NewAssetManager(reg, gate, configs, config.AssetsConfig{CacheDir: dir, DownloadConcurrency: 2}, BuildDeps{}, nil, testLog(t))

	require.NoError(t, mgr.Startup(context.Background()))

	snapshot := reg.Snapshot()
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Enrichments, 1)
	assert.True(t, gate.IsOpen())

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestAssetManagerRefreshSkipsUnchangedAssets(t *testing.T) {
	dir := t.TempDir()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("1.2.3.4,US,CA,San Francisco\n"))
	}))
	defer srv.Close()

	localPath := filepath.Join(dir, "geo.csv")
	configs := []config.EnrichmentConfEntry{geoAssetConfig("geo", srv.URL, localPath)}

	reg := NewEnrichmentRegistry()
	gate := NewPauseGate()
	mgr := NewAssetManager(reg, gate, configs, config.AssetsConfig{CacheDir: dir, DownloadConcurrency: 2}, BuildDeps{}, nil, testLog(t))

	require.NoError(t, mgr.Startup(context.Background()))
	firstSnapshot := reg.Snapshot()

	require.NoError(t, mgr.refresh(context.Background()))

	assert.Same(t, firstSnapshot, reg.Snapshot())
	assert.True(t, gate.IsOpen())
}

func TestAssetManagerRefreshSwapsOnChange(t *testing.T) {
	dir := t.TempDir()
	content := "1.2.3.4,US,CA,San Francisco\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer srv.Close()

	localPath := filepath.Join(dir, "geo.csv")
	configs := []config.EnrichmentConfEntry{geoAssetConfig("geo", srv.URL, localPath)}

	reg := NewEnrichmentRegistry()
	gate := NewPauseGate()
	drained := false
	drain := func(ctx context.Context) error {
		drained = true
		return nil
	}
	mgr := NewAssetManager(reg, gate, configs, config.AssetsConfig{CacheDir: dir, DownloadConcurrency: 2}, BuildDeps{}, drain, testLog(t))
	require.NoError(t, mgr.Startup(context.Background()))
	firstSnapshot := reg.Snapshot()

	content = "5.6.7.8,DE,BE,Berlin\n"
	require.NoError(t, mgr.refresh(context.Background()))

	assert.NotSame(t, firstSnapshot, reg.Snapshot())
	assert.True(t, drained)
	assert.True(t, gate.IsOpen())

	data, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestAssetManagerRefreshRollsBackOnRebuildFailure(t *testing.T) {
	dir := t.TempDir()
	content := "1.2.3.4,US,CA,San Francisco\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer srv.Close()

	localPath := filepath.Join(dir, "geo.csv")
	configs := []config.EnrichmentConfEntry{geoAssetConfig("geo", srv.URL, localPath)}

	reg := NewEnrichmentRegistry()
	gate := NewPauseGate()
	mgr := NewAssetManager(reg, gate, configs, config.AssetsConfig{CacheDir: dir, DownloadConcurrency: 2}, BuildDeps{}, nil, testLog(t))
	require.NoError(t, mgr.Startup(context.Background()))
	firstSnapshot := reg.Snapshot()

	content = "5.6.7.8,DE,BE,Berlin\n"
	mgr.configs[0].Type = "not-a-real-type"
	err := mgr.refresh(context.Background())
	assert.Error(t, err)

	assert.Same(t, firstSnapshot, reg.Snapshot())
	assert.True(t, gate.IsOpen())

	data, readErr := os.ReadFile(localPath)
	require.NoError(t, readErr)
	assert.Equal(t, "1.2.3.4,US,CA,San Francisco\n", string(data), "rollback must restore the previous asset file")
	assert.NoFileExists(t, localPath+".bak")
}

func TestAssetManagerInertWithoutPeriod(t *testing.T) {
	reg := NewEnrichmentRegistry()
	gate := NewPauseGate()
	mgr := NewAssetManager(reg, gate, nil, config.AssetsConfig{}, BuildDeps{}, nil, testLog(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, mgr.Run(ctx))
}
