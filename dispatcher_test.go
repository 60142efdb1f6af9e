package dagflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, handlers ...Handler) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherOptions{Handlers: handlers})
	require.NoError(t, err)
	return d
}

func TestDispatchCompute(t *testing.T) {
	double := NewHandlerFunc("double", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		n := input.Config["n"].(int)
		return &HandlerResult{Output: n * 2}, nil
	})
	d := newTestDispatcher(t, double)

	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindCompute, Handler: "double", Config: map[string]any{"n": 21}}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultCompleted, result.Kind)
	require.Equal(t, 42, result.Output)
	require.False(t, result.EndTime.Before(result.StartTime))
}

func TestDispatchComputeHandlerError(t *testing.T) {
	boom := NewHandlerFunc("boom", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		return nil, errors.New("kaput")
	})
	d := newTestDispatcher(t, boom)

	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindCompute, Handler: "boom"}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultErrored, result.Kind)

	var nodeErr *NodeExecutionError
	require.ErrorAs(t, result.Err, &nodeErr)
	require.Equal(t, "a", nodeErr.NodeID)
	require.Contains(t, nodeErr.Error(), "kaput")
}

func TestDispatchUnknownHandler(t *testing.T) {
	d := newTestDispatcher(t)
	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindCompute, Handler: "nope"}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultErrored, result.Kind)
	require.Contains(t, result.Err.Error(), "no handler registered")
}

func TestDispatchComputeTimeout(t *testing.T) {
	slow := NewHandlerFunc("slow", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &HandlerResult{}, nil
		}
	})
	d := newTestDispatcher(t, slow)

	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindCompute, Handler: "slow", Config: map[string]any{"timeout": "10ms"}}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultErrored, result.Kind)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, result.Err, &timeoutErr)
	require.Equal(t, 10*time.Millisecond, timeoutErr.Window)
}

func TestDispatchComputeRejectsPending(t *testing.T) {
	sneaky := NewHandlerFunc("sneaky", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		return &HandlerResult{Pending: true, Handle: "job-1"}, nil
	})
	d := newTestDispatcher(t, sneaky)

	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindCompute, Handler: "sneaky"}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultErrored, result.Kind)
	require.Contains(t, result.Err.Error(), "returned pending for a compute node")
}

func TestDispatchTaskPending(t *testing.T) {
	launch := NewHandlerFunc("launch", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		return &HandlerResult{Pending: true, Handle: "job-42"}, nil
	})
	d := newTestDispatcher(t, launch)

	g := buildGraph(t, []string{"a"}, nil)
	node := &Node{ID: "a", Kind: NodeKindTask, Handler: "launch"}
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultPending, result.Kind)
	require.Equal(t, PendingTask, result.Awaiting)
	require.Equal(t, "job-42", result.Handle)
}

func TestDispatchApprovalIsImmediatelyPending(t *testing.T) {
	d := newTestDispatcher(t)
	g, err := New(Options{
		Name:  "t",
		Nodes: []*Node{{ID: "gate", Kind: NodeKindApproval}},
	})
	require.NoError(t, err)
	ec := NewExecutionContext(NewRunID(), g, nil)

	result := d.Execute(context.Background(), g, g.Nodes()[0], ec)
	require.Equal(t, NodeResultPending, result.Kind)
	require.Equal(t, PendingApproval, result.Awaiting)
}

func TestDispatchConditional(t *testing.T) {
	g, err := New(Options{
		Name: "t",
		Nodes: []*Node{
			{ID: "score", Kind: NodeKindCompute},
			{ID: "gate", Kind: NodeKindConditional, Config: map[string]any{
				"condition": "input.score >= 0.8",
				"input":     "score",
			}},
		},
		Edges: []*Edge{{From: "score", To: "gate"}},
	})
	require.NoError(t, err)

	d := newTestDispatcher(t)
	ec := NewExecutionContext(NewRunID(), g, nil)
	require.NoError(t, ec.RecordStart("score"))
	require.NoError(t, ec.RecordCompletion("score", map[string]any{"score": 0.91}))

	gate, _ := g.GetNode("gate")
	result := d.Execute(context.Background(), g, gate, ec)
	require.Equal(t, NodeResultCompleted, result.Kind)
	require.Equal(t, "true", result.Branch)
}

func TestDispatchConditionalStringBranch(t *testing.T) {
	g, err := New(Options{
		Name: "t",
		Nodes: []*Node{
			{ID: "classify", Kind: NodeKindCompute},
			{ID: "route", Kind: NodeKindConditional, Config: map[string]any{
				// Single upstream, so "input" may be omitted.
				"condition": "input.tier",
			}},
		},
		Edges: []*Edge{{From: "classify", To: "route"}},
	})
	require.NoError(t, err)

	d := newTestDispatcher(t)
	ec := NewExecutionContext(NewRunID(), g, nil)
	require.NoError(t, ec.RecordStart("classify"))
	require.NoError(t, ec.RecordCompletion("classify", map[string]any{"tier": "premium"}))

	route, _ := g.GetNode("route")
	result := d.Execute(context.Background(), g, route, ec)
	require.Equal(t, NodeResultCompleted, result.Kind)
	require.Equal(t, "premium", result.Branch)
}

func TestDispatchConditionalMissingCondition(t *testing.T) {
	g, err := New(Options{
		Name:  "t",
		Nodes: []*Node{{ID: "gate", Kind: NodeKindConditional}},
	})
	require.NoError(t, err)

	d := newTestDispatcher(t)
	ec := NewExecutionContext(NewRunID(), g, nil)
	result := d.Execute(context.Background(), g, g.Nodes()[0], ec)
	require.Equal(t, NodeResultErrored, result.Kind)
	require.Contains(t, result.Err.Error(), "no condition")
}

func TestDispatchConfigTemplating(t *testing.T) {
	echo := NewHandlerFunc("echo", func(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
		return &HandlerResult{Output: input.Config["message"]}, nil
	})
	d := newTestDispatcher(t, echo)

	g := buildGraph(t, []string{"a", "b"}, []*Edge{{From: "a", To: "b"}})
	ec := NewExecutionContext(NewRunID(), g, map[string]any{"region": "us-east-1"})
	require.NoError(t, ec.RecordStart("a"))
	require.NoError(t, ec.RecordCompletion("a", map[string]any{"rows": 18}))

	node := &Node{ID: "b", Kind: NodeKindCompute, Handler: "echo", Config: map[string]any{
		"message": "loaded ${upstream.a.rows} rows into ${inputs.region}",
	}}
	result := d.Execute(context.Background(), g, node, ec)
	require.Equal(t, NodeResultCompleted, result.Kind)
	require.Equal(t, "loaded 18 rows into us-east-1", result.Output)
}
