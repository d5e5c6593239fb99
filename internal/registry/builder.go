package registry

import (
	"database/sql"
	"fmt"

	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/enrichment"
	"enrich/internal/enrichment/provider"
	"enrich/internal/model"
	"enrich/pkg/cache"
	"enrich/pkg/cel"
)

// BuildDeps carries the shared resources concrete enrichments need at
// construction time. They are owned by the Runtime and outlive any
// single Registry; only the Enrichment instances built against them
// are swapped.
type BuildDeps struct {
	Postgres    *sql.DB
	Evaluator   *cel.Evaluator
	ResultCache *cache.ResultCache
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// buildOne constructs one Enrichment from its static declaration.
// Asset-backed types are built with ReloadAssets deferred to the
// caller, which must call it once localPaths is known. HTTP and SQL
// providers are wrapped in a distributed result cache whenever the
// declaration sets cache_ttl_seconds and deps.ResultCache is
// configured; everything else is looked up cheaply enough (CEL,
// local asset tables) that a cache layer would only add a round trip.
func buildOne(entry config.EnrichmentConfEntry, deps BuildDeps) (enrichment.Enrichment, error) {
	schema := stringParam(entry.Parameters, "schema")

	switch entry.Type {
	case constants.SourceTypeHTTP:
		url := stringParam(entry.Parameters, "url_template")
		field := stringParam(entry.Parameters, "field")
		timeout := constants.DefaultHTTPTimeout
		return maybeCached(provider.NewHTTPLookupEnrichment(entry.Name, schema, url, field, timeout), entry, field, deps), nil

	case constants.SourceTypeSQL:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("enrichment %s: sql provider requires a postgres connection", entry.Name)
		}
		query := stringParam(entry.Parameters, "query")
		field := stringParam(entry.Parameters, "field")
		return maybeCached(provider.NewSQLQueryEnrichment(entry.Name, schema, query, field, deps.Postgres), entry, field, deps), nil

	case constants.SourceTypeGeoIP:
		if len(entry.Assets) == 0 {
			return nil, fmt.Errorf("enrichment %s: geoip provider requires an asset", entry.Name)
		}
		return provider.NewGeoIPEnrichment(entry.Name, schema, entry.Assets[0].URI), nil

	case constants.SourceTypeUserAgent:
		if len(entry.Assets) == 0 {
			return nil, fmt.Errorf("enrichment %s: useragent provider requires an asset", entry.Name)
		}
		return provider.NewUserAgentEnrichment(entry.Name, schema, entry.Assets[0].URI), nil

	case constants.SourceTypeExpression:
		if deps.Evaluator == nil {
			return nil, fmt.Errorf("enrichment %s: expression provider requires a CEL evaluator", entry.Name)
		}
		expr := stringParam(entry.Parameters, "expression")
		resultName := stringParam(entry.Parameters, "result_name")
		if resultName == "" {
			resultName = entry.Name
		}
		return provider.NewExpressionEnrichment(entry.Name, schema, expr, resultName, deps.Evaluator)

	default:
		return nil, fmt.Errorf("enrichment %s: unknown type %q", entry.Name, entry.Type)
	}
}

// maybeCached wraps a lookup-shaped enrichment in CachingEnrichment
// when the declaration opts in via cache_ttl_seconds and a result
// cache is configured; otherwise it returns the enrichment unwrapped.
func maybeCached(inner enrichment.Enrichment, entry config.EnrichmentConfEntry, field string, deps BuildDeps) enrichment.Enrichment {
	ttl := intParam(entry.Parameters, "cache_ttl_seconds")
	if ttl <= 0 || deps.ResultCache == nil {
		return inner
	}
	return provider.NewCachingEnrichment(inner, deps.ResultCache, func(raw model.RawEvent) string {
		return raw.Param(field)
	})
}

func intParam(params map[string]any, key string) int {
	v, ok := params[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
