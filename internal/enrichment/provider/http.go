package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"enrich/internal/enrichment"
	"enrich/internal/model"
	"enrich/pkg/circuitbreaker"
)

// HTTPLookupEnrichment calls a configured URL template with one
// RawEvent parameter substituted in, and parses a JSON response body
// into a derived context.
type HTTPLookupEnrichment struct {
	name        string
	schema      string
	urlTemplate string
	fieldParam  string
	client      *http.Client
	breaker     *circuitbreaker.Wrapper
}

func NewHTTPLookupEnrichment(name, schema, urlTemplate, fieldParam string, timeout time.Duration) *HTTPLookupEnrichment {
	return &HTTPLookupEnrichment{
		name:        name,
		schema:      schema,
		urlTemplate: urlTemplate,
		fieldParam:  fieldParam,
		client:      &http.Client{Timeout: timeout},
		breaker:     circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("http-lookup-" + name)),
	}
}

func (e *HTTPLookupEnrichment) Name() string { return e.name }

func (e *HTTPLookupEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	fieldValue := raw.Param(e.fieldParam)
	url := strings.ReplaceAll(e.urlTemplate, "{value}", fieldValue)

	result, err := e.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		resp, doErr := e.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("http lookup %s: status %d", e.name, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	e.breaker.RecordRequest(err == nil)
	if err != nil {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindIOError, Messages: []string{err.Error()}}
	}

	body, _ := result.([]byte)
	var data json.RawMessage = body
	if !json.Valid(data) {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindIOError, Messages: []string{"response body is not valid json"}}
	}

	return &enrichment.Result{
		Contexts: []model.DerivedContext{{Schema: e.schema, Data: data}},
	}, nil
}
