package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enrich/internal/badrow"
	"enrich/internal/config"
	"enrich/internal/logger"
	"enrich/internal/model"
	"enrich/internal/schema"
	"enrich/pkg/errors"
	"enrich/pkg/tracing"
)

const (
	diagnosticContextSchema = "iglu:com.enrich/validation_diagnostic/jsonschema/1-0-0"
	artifactName            = "enrich"
	artifactVersion         = "0.1.0"
)

// Outcome is exactly one of Good, Pii (alongside Good, never alone),
// or Bad, matching the pipeline's three-way classification.
type Outcome struct {
	Good *model.EnrichedEvent
	Pii  *model.EnrichedEvent
	Bad  *model.BadRow
}

// Pipeline runs the ordered per-event algorithm: apply every
// enrichment in the given order, validate, classify. It holds no
// mutable state of its own — the ordered enrichment slice and
// feature flags are supplied per call, always drawn from a single
// Registry snapshot the caller captured before starting the event.
type Pipeline struct {
	validator     *schema.Validator
	logger        logger.Logger
	enrichTimeout time.Duration
	badRows       *badrow.Builder
}

func NewPipeline(validator *schema.Validator, log logger.Logger, enrichTimeout time.Duration) *Pipeline {
	return &Pipeline{
		validator:     validator,
		logger:        log,
		enrichTimeout: enrichTimeout,
		badRows:       badrow.NewBuilder(artifactName, artifactVersion),
	}
}

func (p *Pipeline) Run(ctx context.Context, raw model.RawEvent, enrichments []Enrichment, flags config.FeatureFlagsConfig) *Outcome {
	ctx, span := tracing.GetTracer("enrichment-pipeline").Start(ctx, "pipeline.run")
	defer span.End()

	enriched := model.NewEnrichedEvent(raw)
	enriched.EventID = uuid.NewString()
	enriched.EtlTstamp = time.Now().UTC()

	var failures []*Failure
	for _, e := range enrichments {
		result, failure := p.runOne(ctx, e, raw, enriched)
		if failure != nil {
			failures = append(failures, failure)
			continue
		}
		enriched.DerivedContexts = append(enriched.DerivedContexts, result.Contexts...)
		enriched.Pii = append(enriched.Pii, result.PiiUpdates...)
	}

	enriched.DerivedTstamp = time.Now().UTC()

	validationFailures := p.validate(ctx, enriched)

	return p.classify(enriched, raw, failures, validationFailures, flags)
}

func (p *Pipeline) runOne(ctx context.Context, e Enrichment, raw model.RawEvent, partial *model.EnrichedEvent) (*Result, *Failure) {
	runCtx, cancel := context.WithTimeout(ctx, p.enrichTimeout)
	defer cancel()

	type outcome struct {
		result  *Result
		failure *Failure
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{failure: &Failure{
					EnrichmentName: e.Name(),
					Kind:           FailureKindPanic,
					Messages:       []string{errors.RecoverPanic(r).Error()},
				}}
			}
		}()
		result, failure := e.Run(runCtx, raw, partial)
		done <- outcome{result: result, failure: failure}
	}()

	select {
	case out := <-done:
		return out.result, out.failure
	case <-runCtx.Done():
		return nil, &Failure{
			EnrichmentName: e.Name(),
			Kind:           FailureKindTimeout,
			Messages:       []string{fmt.Sprintf("enrichment exceeded %s", p.enrichTimeout)},
		}
	}
}

func (p *Pipeline) validate(ctx context.Context, enriched *model.EnrichedEvent) []*schema.ValidationFailure {
	var failures []*schema.ValidationFailure

	eventData, err := json.Marshal(enriched)
	if err == nil {
		if f := p.validator.Validate(ctx, model.EventSchemaKey, eventData); f != nil {
			failures = append(failures, f)
		}
	}

	for _, dc := range enriched.DerivedContexts {
		if f := p.validator.Validate(ctx, dc.Schema, dc.Data); f != nil {
			failures = append(failures, f)
		}
	}

	return failures
}

func (p *Pipeline) classify(enriched *model.EnrichedEvent, raw model.RawEvent, failures []*Failure, validationFailures []*schema.ValidationFailure, flags config.FeatureFlagsConfig) *Outcome {
	if len(failures) == 0 && len(validationFailures) == 0 {
		return p.good(enriched)
	}

	if len(failures) == 0 && flags.AcceptInvalid {
		enriched.DerivedContexts = append(enriched.DerivedContexts, diagnosticContext(validationFailures))
		return p.good(enriched)
	}

	return &Outcome{Bad: p.buildBadRow(raw, failures, validationFailures)}
}

func (p *Pipeline) good(enriched *model.EnrichedEvent) *Outcome {
	out := &Outcome{Good: enriched}
	if len(enriched.Pii) > 0 {
		twin := *enriched
		out.Pii = &twin
	}
	return out
}

func diagnosticContext(failures []*schema.ValidationFailure) model.DerivedContext {
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, f.Error())
	}
	data, _ := json.Marshal(map[string]any{"messages": messages})
	return model.DerivedContext{Schema: diagnosticContextSchema, Data: data}
}

// buildBadRow classifies a failed event as schema_violation or
// enrichment_failure. Schema failures take precedence when both
// classes occur for the same event; the row then carries the
// enrichment messages followed by the validation messages.
func (p *Pipeline) buildBadRow(raw model.RawEvent, failures []*Failure, validationFailures []*schema.ValidationFailure) *model.BadRow {
	var messages []string
	for _, f := range failures {
		messages = append(messages, f.Error())
	}

	if len(validationFailures) > 0 {
		for _, f := range validationFailures {
			messages = append(messages, f.Error())
		}
		return p.badRows.SchemaViolation(raw, "", messages)
	}

	return p.badRows.EnrichmentFailure(raw, "", messages)
}
