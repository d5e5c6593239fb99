package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/model"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid field access",
			expr:      `raw.parameters["e"] == "pv"`,
			wantError: false,
		},
		{
			name:      "valid numeric comparison",
			expr:      `enriched.derived_contexts > 0`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `undefinedVar == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func rawEventFixture() model.RawEvent {
	return model.RawEvent{
		Parameters: map[string]string{
			"e":  "pv",
			"tv": "js-3.0.0",
		},
		UserAgent:   "test-agent/1.0",
		RemoteIP:    "203.0.113.5",
		RefererURI:  "https://example.com/",
		ContentType: "application/json",
	}
}

func TestEvaluateAgainstRawEvent(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ctx := context.Background()
	raw := rawEventFixture()
	enriched := model.NewEnrichedEvent(raw)

	tests := []struct {
		name      string
		expr      string
		want      interface{}
		wantError bool
	}{
		{
			name: "parameter equality true",
			expr: `raw.parameters["e"] == "pv"`,
			want: true,
		},
		{
			name: "parameter equality false",
			expr: `raw.parameters["e"] == "se"`,
			want: false,
		},
		{
			name: "user agent contains",
			expr: `raw.user_agent.contains("test-agent")`,
			want: true,
		},
		{
			name: "referer field access",
			expr: `raw.referer_uri`,
			want: "https://example.com/",
		},
		{
			name: "enriched field access",
			expr: `enriched.platform`,
			want: enriched.Platform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, compileErr := eval.CompileExpression(tt.expr)
			require.NoError(t, compileErr)

			result, evalErr := eval.Evaluate(ctx, program, raw, enriched)
			if tt.wantError {
				assert.Error(t, evalErr)
				return
			}
			assert.NoError(t, evalErr)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestEvaluateWithNilEnriched(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ctx := context.Background()
	raw := rawEventFixture()

	program, err := eval.CompileExpression(`raw.parameters["e"]`)
	require.NoError(t, err)

	result, err := eval.Evaluate(ctx, program, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "pv", result)
}

func TestStringMethodsAvailable(t *testing.T) {
	ctx := context.Background()
	raw := rawEventFixture()
	eval, err := NewEvaluator()
	require.NoError(t, err)
	enriched := model.NewEnrichedEvent(raw)

	stringMethods := []struct {
		name string
		expr string
	}{
		{"contains", `raw.user_agent.contains("test")`},
		{"size", `raw.user_agent.size()`},
		{"indexOf", `raw.user_agent.indexOf("/")`},
		{"upperAscii", `raw.user_agent.upperAscii()`},
		{"lowerAscii", `raw.user_agent.lowerAscii()`},
		{"startsWith", `raw.user_agent.startsWith("test")`},
		{"endsWith", `raw.content_type.endsWith("json")`},
		{"matches", `raw.user_agent.matches(".*")`},
	}

	for _, method := range stringMethods {
		t.Run(method.name, func(t *testing.T) {
			program, err := eval.CompileExpression(method.expr)
			require.NoError(t, err)

			_, err = eval.Evaluate(ctx, program, raw, enriched)
			assert.NoError(t, err)
		})
	}
}
