package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"enrich/internal/model"
)

// Evaluator compiles and runs CEL expressions against a RawEvent and
// the EnrichedEvent accumulated so far. It plays the role of a
// sandboxed expression language where the upstream system would use
// a full JavaScript runtime: safe, non-Turing-complete, one
// expression evaluated per event.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("raw", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("enriched", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// Evaluate runs a compiled program against one event, exposing its
// raw parameters and the EnrichedEvent fields contributed by
// enrichments that ran earlier in declaration order.
func (e *Evaluator) Evaluate(ctx context.Context, program cel.Program, raw model.RawEvent, partial *model.EnrichedEvent) (any, error) {
	vars := map[string]interface{}{
		"raw":      rawEventToMap(raw),
		"enriched": enrichedEventToMap(partial),
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	return result.Value(), nil
}

func rawEventToMap(raw model.RawEvent) map[string]interface{} {
	params := make(map[string]interface{}, len(raw.Parameters))
	for k, v := range raw.Parameters {
		params[k] = v
	}
	return map[string]interface{}{
		"parameters":       params,
		"user_agent":       raw.UserAgent,
		"remote_ip":        raw.RemoteIP,
		"referer_uri":      raw.RefererURI,
		"content_type":     raw.ContentType,
		"collector_tstamp": raw.CollectorTstamp,
	}
}

func enrichedEventToMap(e *model.EnrichedEvent) map[string]interface{} {
	if e == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"event_id":         e.EventID,
		"app_id":           e.AppID,
		"platform":         e.Platform,
		"user_ipaddress":   e.UserIpAddress,
		"geo_country":      e.GeoCountry,
		"geo_region":       e.GeoRegion,
		"geo_city":         e.GeoCity,
		"page_url":         e.PageURL,
		"page_referrer":    e.PageReferrer,
		"br_family":        e.BrFamily,
		"os_family":        e.OsFamily,
		"derived_contexts": len(e.DerivedContexts),
	}
}
