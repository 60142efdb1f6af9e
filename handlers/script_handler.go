// Package handlers provides built-in node capabilities for compute and task
// nodes: script evaluation, console output, HTTP calls, timed waits, and
// intentional failure for testing.
package handlers

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/dagflow"
	"github.com/deepnoodle-ai/dagflow/script"
)

// ScriptHandler evaluates a Risor expression from the node config key
// "code". The expression sees the run inputs and upstream outputs and its
// result becomes the node output.
type ScriptHandler struct {
	compiler script.Compiler
}

// NewScriptHandler creates a script handler. A nil compiler defers to the
// compiler on the execution context, so the handler shares the dispatcher's
// scripting engine by default.
func NewScriptHandler(compiler script.Compiler) *ScriptHandler {
	return &ScriptHandler{compiler: compiler}
}

func (h *ScriptHandler) Name() string {
	return "script"
}

func (h *ScriptHandler) resolveCompiler(ctx context.Context) script.Compiler {
	if h.compiler != nil {
		return h.compiler
	}
	if compiler, ok := dagflow.GetCompilerFromContext(ctx); ok {
		return compiler
	}
	return script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
}

func (h *ScriptHandler) Start(ctx context.Context, input *dagflow.HandlerInput) (*dagflow.HandlerResult, error) {
	code, _ := input.Config["code"].(string)
	if code == "" {
		return nil, fmt.Errorf("script node %q has no code", input.Node.ID)
	}
	compiled, err := h.resolveCompiler(ctx).Compile(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"inputs":   input.Inputs,
		"upstream": input.Upstream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return &dagflow.HandlerResult{Output: value.Value()}, nil
}
