package provider

import (
	"context"
	"encoding/json"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"enrich/internal/enrichment"
	"enrich/internal/model"
	"enrich/pkg/cel"
)

// ExpressionEnrichment evaluates a CEL expression against the raw
// event and the EnrichedEvent fields contributed by enrichments that
// ran earlier in declaration order, and attaches the result as a
// derived context. It stands in for arbitrary script execution
// without an embedded interpreter capable of running untrusted code
// outside a sandbox.
type ExpressionEnrichment struct {
	name       string
	schema     string
	resultName string
	program    celgo.Program
	evaluator  *cel.Evaluator
}

func NewExpressionEnrichment(name, schema, expression, resultName string, evaluator *cel.Evaluator) (*ExpressionEnrichment, error) {
	program, err := evaluator.CompileExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("expression enrichment %s: %w", name, err)
	}
	return &ExpressionEnrichment{
		name:       name,
		schema:     schema,
		resultName: resultName,
		program:    program,
		evaluator:  evaluator,
	}, nil
}

func (e *ExpressionEnrichment) Name() string { return e.name }

func (e *ExpressionEnrichment) Run(ctx context.Context, raw model.RawEvent, partial *model.EnrichedEvent) (*enrichment.Result, *enrichment.Failure) {
	value, err := e.evaluator.Evaluate(ctx, e.program, raw, partial)
	if err != nil {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindConfigError, Messages: []string{err.Error()}}
	}

	data, err := json.Marshal(map[string]any{e.resultName: value})
	if err != nil {
		return nil, &enrichment.Failure{EnrichmentName: e.name, Kind: enrichment.FailureKindConfigError, Messages: []string{err.Error()}}
	}

	return &enrichment.Result{
		Contexts: []model.DerivedContext{{Schema: e.schema, Data: data}},
	}, nil
}
