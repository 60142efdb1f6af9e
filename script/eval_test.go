package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplate(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		globals     map[string]any
		wantErr     bool
		want        string
		errContains string
	}{
		{
			name:    "plain string without template variables",
			input:   "run the pipeline",
			globals: nil,
			want:    "run the pipeline",
		},
		{
			name:  "single template variable",
			input: "deploy ${inputs.region}",
			globals: map[string]any{
				"inputs": map[string]any{
					"region": "us-east-1",
				},
			},
			want: "deploy us-east-1",
		},
		{
			name:  "multiple template variables",
			input: "${upstream.fetch.count} rows from ${inputs.source}, batch ${40 + 2}",
			globals: map[string]any{
				"inputs": map[string]any{
					"source": "orders",
				},
				"upstream": map[string]any{
					"fetch": map[string]any{"count": 18},
				},
			},
			want: "18 rows from orders, batch 42",
		},
		{
			name:    "nested arithmetic",
			input:   "total: ${1 + (2 * 3)}",
			globals: nil,
			want:    "total: 7",
		},
		{
			name:        "unclosed brace",
			input:       "deploy ${region",
			globals:     map[string]any{"region": "us-east-1"},
			wantErr:     true,
			errContains: "unclosed template expression",
		},
		{
			name:        "invalid expression inside template",
			input:       "count ${1 +}",
			globals:     nil,
			wantErr:     true,
			errContains: "invalid expression",
		},
		{
			name:        "undefined variable",
			input:       "deploy ${undefined_var}",
			globals:     nil,
			wantErr:     true,
			errContains: "undefined variable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewTemplate(NewRisorScriptingEngine(DefaultRisorGlobals()), tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tmpl)
			got, err := tmpl.Eval(context.Background(), tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRisorPredicates(t *testing.T) {
	engine := NewRisorScriptingEngine(DefaultRisorGlobals())
	ctx := context.Background()

	t.Run("boolean predicate over upstream output", func(t *testing.T) {
		compiled, err := engine.Compile(ctx, `input.score >= 0.8`)
		require.NoError(t, err)
		value, err := compiled.Evaluate(ctx, map[string]any{
			"input": map[string]any{"score": 0.91},
		})
		require.NoError(t, err)
		require.Equal(t, true, value.Value())
		require.True(t, value.IsTruthy())
		require.Equal(t, "true", value.String())
	})

	t.Run("string-valued predicate becomes a branch label", func(t *testing.T) {
		compiled, err := engine.Compile(ctx, `input.tier`)
		require.NoError(t, err)
		value, err := compiled.Evaluate(ctx, map[string]any{
			"input": map[string]any{"tier": "premium"},
		})
		require.NoError(t, err)
		require.Equal(t, "premium", value.String())
	})

	t.Run("compile error surfaces", func(t *testing.T) {
		_, err := engine.Compile(ctx, `input >`)
		require.Error(t, err)
	})

	t.Run("nondeterministic builtins are not exposed", func(t *testing.T) {
		_, err := engine.Compile(ctx, `rand.float()`)
		require.Error(t, err)
	})
}
