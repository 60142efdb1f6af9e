package dagflow

import (
	"context"
	"time"
)

// RunCallbacks defines the callback interface for run execution events
type RunCallbacks interface {
	// Run-level callbacks
	BeforeRunExecution(ctx context.Context, event *RunExecutionEvent)
	AfterRunExecution(ctx context.Context, event *RunExecutionEvent)

	// Node-level callbacks
	BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent)
	AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent)
}

// RunExecutionEvent provides context for run-level execution events
type RunExecutionEvent struct {
	RunID     string
	GraphName string
	Status    RunStatus
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Inputs    map[string]any
	Outputs   map[string]any
	Error     error
}

// NodeExecutionEvent provides context for node-level execution events
type NodeExecutionEvent struct {
	RunID     string
	GraphName string
	NodeID    string
	Kind      NodeKind
	Status    NodeStatus
	Output    any
	Branch    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// BaseRunCallbacks provides a default implementation that does nothing
type BaseRunCallbacks struct{}

func (n *BaseRunCallbacks) BeforeRunExecution(ctx context.Context, event *RunExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterRunExecution(ctx context.Context, event *RunExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	// noop
}

// NewBaseRunCallbacks creates a new no-op callbacks implementation.
// Embed this in your own callbacks to get a default implementation that does nothing.
func NewBaseRunCallbacks() RunCallbacks {
	return &BaseRunCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []RunCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...RunCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback RunCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeRunExecution(ctx context.Context, event *RunExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeRunExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterRunExecution(ctx context.Context, event *RunExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterRunExecution(ctx, event)
	}
}

func (c *CallbackChain) BeforeNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeNodeExecution(ctx, event)
	}
}

func (c *CallbackChain) AfterNodeExecution(ctx context.Context, event *NodeExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterNodeExecution(ctx, event)
	}
}
