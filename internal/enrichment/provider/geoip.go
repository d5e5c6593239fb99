package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"enrich/internal/enrichment"
	"enrich/internal/model"
)

// GeoIPEnrichment looks up the event's remote IP against an
// asset-backed lookup table: one CIDR-free "ip,country,region,city"
// row per line. This is not a MaxMind-format reader — no such
// library exists anywhere in the reference pack — it is a plain
// asset-provided table, refreshed the same way a real GeoIP database
// would be: ReloadAssets swaps the table wholesale on registry
// rebuild, so an in-flight lookup never observes a half-loaded file.
type GeoIPEnrichment struct {
	name      string
	schema    string
	assetURI  string

	mu    sync.RWMutex
	table map[string]geoRecord
}

type geoRecord struct {
	Country string `json:"geo_country"`
	Region  string `json:"geo_region"`
	City    string `json:"geo_city"`
}

func NewGeoIPEnrichment(name, schema, assetURI string) *GeoIPEnrichment {
	return &GeoIPEnrichment{name: name, schema: schema, assetURI: assetURI, table: make(map[string]geoRecord)}
}

func (e *GeoIPEnrichment) Name() string { return e.name }

func (e *GeoIPEnrichment) AssetURIs() []string { return []string{e.assetURI} }

func (e *GeoIPEnrichment) ReloadAssets(localPaths map[string]string) error {
	path, ok := localPaths[e.assetURI]
	if !ok {
		return fmt.Errorf("geoip enrichment %s: no local path for asset %s", e.name, e.assetURI)
	}

	table, err := loadGeoTable(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.table = table
	e.mu.Unlock()
	return nil
}

func loadGeoTable(path string) (map[string]geoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip asset: %w", err)
	}
	defer f.Close()

	table := make(map[string]geoRecord)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			continue
		}
		table[fields[0]] = geoRecord{Country: fields[1], Region: fields[2], City: fields[3]}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read geoip asset: %w", err)
	}
	return table, nil
}

func (e *GeoIPEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	e.mu.RLock()
	record, found := e.table[raw.RemoteIP]
	e.mu.RUnlock()

	if !found {
		return &enrichment.Result{}, nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindConfigError, Messages: []string{err.Error()}}
	}

	return &enrichment.Result{
		Contexts: []model.DerivedContext{{Schema: e.schema, Data: data}},
	}, nil
}
