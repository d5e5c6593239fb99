package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"enrich/internal/enrichment"
	"enrich/internal/model"
	"enrich/pkg/circuitbreaker"
)

// SQLQueryEnrichment runs a parameterized query against a shared
// *sql.DB pool, one result row mapped to one derived context.
type SQLQueryEnrichment struct {
	name       string
	schema     string
	query      string
	fieldParam string
	db         *sql.DB
	breaker    *circuitbreaker.Wrapper
}

func NewSQLQueryEnrichment(name, schema, query, fieldParam string, db *sql.DB) *SQLQueryEnrichment {
	return &SQLQueryEnrichment{
		name:       name,
		schema:     schema,
		query:      query,
		fieldParam: fieldParam,
		db:         db,
		breaker:    circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("sql-query-" + name)),
	}
}

func (e *SQLQueryEnrichment) Name() string { return e.name }

func (e *SQLQueryEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	fieldValue := raw.Param(e.fieldParam)

	result, err := e.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		row := e.db.QueryRowContext(ctx, e.query, fieldValue)
		return scanRowToMap(row)
	})
	e.breaker.RecordRequest(err == nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &enrichment.Result{}, nil
		}
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindIOError, Messages: []string{err.Error()}}
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindConfigError, Messages: []string{marshalErr.Error()}}
	}

	return &enrichment.Result{
		Contexts: []model.DerivedContext{{Schema: e.schema, Data: data}},
	}, nil
}

// scanRowToMap scans the first column of a single row as a JSON
// document and decodes it into a map; the query is expected to select
// one JSON object column (e.g. via row_to_json). A missing row surfaces
// as a wrapped sql.ErrNoRows.
func scanRowToMap(row *sql.Row) (map[string]any, error) {
	var raw json.RawMessage
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("scan sql result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("sql result is not a json object: %w", err)
	}
	return m, nil
}
