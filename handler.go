package dagflow

import (
	"context"
)

// HandlerInput carries everything a capability handler may need to start
// work for a node.
type HandlerInput struct {
	// Node is the graph node being executed.
	Node *Node

	// Config is the node's static configuration with string templates
	// already resolved against run inputs and upstream outputs.
	Config map[string]any

	// Inputs holds the run's input values.
	Inputs map[string]any

	// Upstream maps each completed upstream node id to its output.
	Upstream map[string]any
}

// HandlerResult is what a handler returns from Start. Pending indicates the
// work continues out of process; Handle identifies the external job so a
// later completion signal (or poll) can be correlated with it.
type HandlerResult struct {
	Output  any
	Pending bool
	Handle  string
}

// Handler is a registered node capability: the engine invokes it
// polymorphically by name but does not implement its logic. Handlers for
// compute nodes must run to completion within Start; handlers for task
// nodes may return a pending result instead.
type Handler interface {

	// Name returns the name the handler is registered under.
	Name() string

	// Start begins the node's work. Blocking handlers should respect
	// ctx cancellation and deadlines.
	Start(ctx context.Context, input *HandlerInput) (*HandlerResult, error)
}

// HandlerRegistry is a map of handler names to handlers.
type HandlerRegistry map[string]Handler

// HandlerFunc is a function that can be used as a Handler.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, input *HandlerInput) (*HandlerResult, error)
}

// NewHandlerFunc creates a new HandlerFunc.
func NewHandlerFunc(name string, fn func(ctx context.Context, input *HandlerInput) (*HandlerResult, error)) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

func (h *HandlerFunc) Name() string {
	return h.name
}

func (h *HandlerFunc) Start(ctx context.Context, input *HandlerInput) (*HandlerResult, error) {
	return h.fn(ctx, input)
}
