package dagflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/dagflow/script"
)

// NodeResultKind tags the outcome of dispatching a single node.
type NodeResultKind string

const (
	// NodeResultCompleted means the node ran to completion with an output.
	NodeResultCompleted NodeResultKind = "completed"

	// NodeResultPending means completion will arrive via an inbound signal.
	NodeResultPending NodeResultKind = "pending"

	// NodeResultErrored means the node failed; Err carries the detail.
	NodeResultErrored NodeResultKind = "errored"
)

// NodeResult is the outcome of executing one node.
type NodeResult struct {
	NodeID    string
	Kind      NodeResultKind
	Output    any
	Branch    string
	Awaiting  PendingKind
	Handle    string
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Handlers       []Handler
	ScriptCompiler script.Compiler
	Logger         *slog.Logger

	// DefaultTaskTimeout bounds task nodes that declare no timeout of
	// their own. Zero means no default window.
	DefaultTaskTimeout time.Duration
}

// Dispatcher executes a single node according to its declared kind. It is
// the only component that talks to the registered capability handlers. The
// dispatcher performs no automatic retries: any failure is captured as an
// errored result and retry is an operator-level resume decision.
type Dispatcher struct {
	handlers           HandlerRegistry
	compiler           script.Compiler
	logger             *slog.Logger
	defaultTaskTimeout time.Duration
}

// NewDispatcher creates a dispatcher over the given handler registry.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	handlers := make(HandlerRegistry, len(opts.Handlers))
	for _, handler := range opts.Handlers {
		if handler.Name() == "" {
			return nil, fmt.Errorf("handler name required")
		}
		handlers[handler.Name()] = handler
	}
	return &Dispatcher{
		handlers:           handlers,
		compiler:           opts.ScriptCompiler,
		logger:             opts.Logger,
		defaultTaskTimeout: opts.DefaultTaskTimeout,
	}, nil
}

// Execute dispatches one node and never returns an error directly: failures
// are folded into an errored NodeResult so the coordinator can record,
// checkpoint, and halt uniformly.
func (d *Dispatcher) Execute(ctx context.Context, g *Graph, node *Node, ec *ExecutionContext) *NodeResult {
	result := &NodeResult{NodeID: node.ID, StartTime: time.Now()}

	upstream := d.upstreamOutputs(g, node, ec)
	config, err := d.resolveConfig(ctx, node, ec.Inputs(), upstream)
	if err != nil {
		return d.errored(result, node, err)
	}

	switch node.Kind {
	case NodeKindCompute:
		d.executeHandler(ctx, node, config, upstream, ec, result, false)
	case NodeKindTask:
		d.executeHandler(ctx, node, config, upstream, ec, result, true)
	case NodeKindApproval:
		// Gates start no external work; completion arrives only via an
		// approve/reject signal or an auto-resolve timer.
		result.Kind = NodeResultPending
		result.Awaiting = PendingApproval
	case NodeKindConditional:
		d.executeConditional(ctx, node, config, upstream, ec, result)
	default:
		return d.errored(result, node, fmt.Errorf("unknown node kind %q", node.Kind))
	}

	result.EndTime = time.Now()
	return result
}

func (d *Dispatcher) errored(result *NodeResult, node *Node, err error) *NodeResult {
	result.Kind = NodeResultErrored
	result.Err = AsNodeError(node.ID, err)
	result.EndTime = time.Now()
	return result
}

// executeHandler runs the node's registered handler. Task nodes may return
// pending; a compute handler returning pending is a contract violation.
func (d *Dispatcher) executeHandler(ctx context.Context, node *Node, config map[string]any, upstream map[string]any, ec *ExecutionContext, result *NodeResult, allowPending bool) {
	handlerName := node.Handler
	if handlerName == "" {
		handlerName = string(node.Kind)
	}
	handler, ok := d.handlers[handlerName]
	if !ok {
		d.errored(result, node, fmt.Errorf("no handler registered for %q", handlerName))
		return
	}

	// Handlers pull the logger and compiler from the context rather than
	// taking constructor dependencies on the dispatcher.
	ctx = WithLogger(ctx, d.logger)
	ctx = WithCompiler(ctx, d.compiler)

	timeout := nodeTimeout(config)
	if timeout == 0 && allowPending {
		timeout = d.defaultTaskTimeout
	}
	if timeout > 0 && !allowPending {
		// Task windows are enforced by the engine's timers after the
		// handler returns pending; compute windows bound the call itself.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := handler.Start(ctx, &HandlerInput{
		Node:     node,
		Config:   config,
		Inputs:   ec.Inputs(),
		Upstream: upstream,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = AsNodeError(node.ID, &TimeoutError{NodeID: node.ID, Window: timeout})
		}
		d.errored(result, node, err)
		return
	}
	if output == nil {
		output = &HandlerResult{}
	}

	if output.Pending {
		if !allowPending {
			d.errored(result, node, fmt.Errorf("handler %q returned pending for a compute node", handlerName))
			return
		}
		result.Kind = NodeResultPending
		result.Awaiting = PendingTask
		result.Handle = output.Handle
		return
	}

	result.Kind = NodeResultCompleted
	result.Output = output.Output
}

// executeConditional evaluates the node's predicate against the output of a
// referenced upstream node and completes with a branch label.
func (d *Dispatcher) executeConditional(ctx context.Context, node *Node, config map[string]any, upstream map[string]any, ec *ExecutionContext, result *NodeResult) {
	condition, _ := config["condition"].(string)
	if condition == "" {
		d.errored(result, node, fmt.Errorf("conditional node %q has no condition", node.ID))
		return
	}

	compiled, err := d.compiler.Compile(ctx, condition)
	if err != nil {
		d.errored(result, node, fmt.Errorf("failed to compile condition: %w", err))
		return
	}

	// "input" names the upstream node whose output the predicate examines.
	// With a single upstream it may be omitted.
	var subject any
	if ref, _ := config["input"].(string); ref != "" {
		value, ok := upstream[ref]
		if !ok {
			d.errored(result, node, fmt.Errorf("condition input %q has no recorded output", ref))
			return
		}
		subject = value
	} else if len(upstream) == 1 {
		for _, value := range upstream {
			subject = value
		}
	}

	value, err := compiled.Evaluate(ctx, map[string]any{
		"input":    subject,
		"upstream": upstream,
		"inputs":   ec.Inputs(),
	})
	if err != nil {
		d.errored(result, node, fmt.Errorf("failed to evaluate condition: %w", err))
		return
	}

	branch := value.String()
	if boolean, ok := value.Value().(bool); ok {
		if boolean {
			branch = "true"
		} else {
			branch = "false"
		}
	}

	result.Kind = NodeResultCompleted
	result.Branch = branch
	result.Output = value.Value()
}

// upstreamOutputs collects the outputs of all completed upstream nodes.
func (d *Dispatcher) upstreamOutputs(g *Graph, node *Node, ec *ExecutionContext) map[string]any {
	upstream := map[string]any{}
	seen := map[string]bool{}
	for _, edge := range g.Incoming(node.ID) {
		if seen[edge.From] {
			continue
		}
		seen[edge.From] = true
		if output, ok := ec.OutputOf(edge.From); ok {
			upstream[edge.From] = output
		}
	}
	return upstream
}

// resolveConfig applies ${...} templating to string config values against
// the run inputs and upstream outputs.
func (d *Dispatcher) resolveConfig(ctx context.Context, node *Node, inputs, upstream map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(node.Config))
	globals := map[string]any{
		"inputs":   inputs,
		"upstream": upstream,
	}
	for key, value := range node.Config {
		text, ok := value.(string)
		if !ok {
			resolved[key] = value
			continue
		}
		template, err := script.NewTemplate(d.compiler, text)
		if err != nil {
			return nil, fmt.Errorf("invalid template in config %q of node %q: %w", key, node.ID, err)
		}
		rendered, err := template.Eval(ctx, globals)
		if err != nil {
			return nil, fmt.Errorf("failed to render config %q of node %q: %w", key, node.ID, err)
		}
		resolved[key] = rendered
	}
	return resolved, nil
}

// nodeTimeout reads a node's timeout from config: either seconds (number)
// or a duration string such as "90s".
func nodeTimeout(config map[string]any) time.Duration {
	switch v := config["timeout"].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 0
}
