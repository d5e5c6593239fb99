package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"enrich/internal/enrichment"
	"enrich/internal/model"
)

// UserAgentEnrichment parses the event's user agent string into
// browser/OS/device fields using a regex table loaded from an asset
// file, one "regex\tbr_family\tos_family\tdvce_type" row per line.
// This plays the role a vendor UA-parser database would, without
// depending on one — no UA-parsing library exists anywhere in the
// reference pack — and is asset-backed for the same reason GeoIP is:
// its table refreshes on the same AssetManager cycle as every other
// reference database.
type UserAgentEnrichment struct {
	name     string
	schema   string
	assetURI string

	mu    sync.RWMutex
	rules []uaRule
}

type uaRule struct {
	pattern  *regexp.Regexp
	brFamily string
	osFamily string
	dvceType string
}

func NewUserAgentEnrichment(name, schema, assetURI string) *UserAgentEnrichment {
	return &UserAgentEnrichment{name: name, schema: schema, assetURI: assetURI}
}

func (e *UserAgentEnrichment) Name() string { return e.name }

func (e *UserAgentEnrichment) AssetURIs() []string { return []string{e.assetURI} }

func (e *UserAgentEnrichment) ReloadAssets(localPaths map[string]string) error {
	path, ok := localPaths[e.assetURI]
	if !ok {
		return fmt.Errorf("useragent enrichment %s: no local path for asset %s", e.name, e.assetURI)
	}

	rules, err := loadUARules(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	return nil
}

func loadUARules(path string) ([]uaRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open useragent asset: %w", err)
	}
	defer f.Close()

	var rules []uaRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		pattern, compileErr := regexp.Compile(fields[0])
		if compileErr != nil {
			return nil, fmt.Errorf("useragent asset: invalid pattern %q: %w", fields[0], compileErr)
		}
		rules = append(rules, uaRule{pattern: pattern, brFamily: fields[1], osFamily: fields[2], dvceType: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read useragent asset: %w", err)
	}
	return rules, nil
}

func (e *UserAgentEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, rule := range rules {
		if rule.pattern.MatchString(raw.UserAgent) {
			data, err := json.Marshal(map[string]string{
				"br_family":   rule.brFamily,
				"os_family":   rule.osFamily,
				"dvce_type":   rule.dvceType,
			})
			if err != nil {
				return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindConfigError, Messages: []string{err.Error()}}
			}
			return &enrichment.Result{
				Contexts: []model.DerivedContext{{Schema: e.schema, Data: data}},
			}, nil
		}
	}

	return &enrichment.Result{}, nil
}
