package dagflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome is how a coordinator pass over a run ended.
type Outcome string

const (
	// OutcomeCompleted means every node reached a terminal status and none
	// errored.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed means a node errored and the run halted.
	OutcomeFailed Outcome = "failed"

	// OutcomeSuspended means no node is dispatchable and at least one is
	// awaiting an external signal. The process holds no thread for the
	// run; an inbound signal re-enters the loop.
	OutcomeSuspended Outcome = "suspended"

	// OutcomeCancelled means the run context was cancelled. Interrupted
	// nodes were returned to pending so a resume can redispatch them.
	OutcomeCancelled Outcome = "cancelled"
)

// Coordinator drives one run's dataflow loop: it computes the ready set,
// dispatches ready nodes concurrently, applies results one at a time, and
// checkpoints after every node state transition. The caller must serialize
// entries into Run; the engine holds a per-run lock for this.
type Coordinator struct {
	graph        *Graph
	router       *Router
	dispatcher   *Dispatcher
	checkpointer Checkpointer
	emitter      ProgressEmitter
	callbacks    RunCallbacks
	logger       *slog.Logger
	ec           *ExecutionContext
	started      bool
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Graph        *Graph
	Dispatcher   *Dispatcher
	Checkpointer Checkpointer
	Emitter      ProgressEmitter
	Callbacks    RunCallbacks
	Logger       *slog.Logger
	Execution    *ExecutionContext
}

// NewCoordinator creates a coordinator bound to one run's execution context.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if opts.Execution == nil {
		return nil, fmt.Errorf("execution context required")
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.Emitter == nil {
		opts.Emitter = NewNullEmitter()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewBaseRunCallbacks()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		graph:        opts.Graph,
		router:       NewRouter(opts.Graph),
		dispatcher:   opts.Dispatcher,
		checkpointer: opts.Checkpointer,
		emitter:      opts.Emitter,
		callbacks:    opts.Callbacks,
		logger:       opts.Logger,
		ec:           opts.Execution,
	}, nil
}

// Run advances the run until it completes, fails, suspends on external
// signals, or is cancelled. A PersistenceError freezes the run immediately:
// no further dispatch happens after a failed checkpoint.
func (c *Coordinator) Run(ctx context.Context) (Outcome, error) {
	c.ec.SetStatus(RunStatusRunning)
	if !c.started {
		c.started = true
		c.callbacks.BeforeRunExecution(ctx, c.runEvent(nil))
	}
	outcome, err := c.run(ctx)
	if outcome != OutcomeSuspended {
		c.callbacks.AfterRunExecution(ctx, c.runEvent(err))
	}
	return outcome, err
}

func (c *Coordinator) run(ctx context.Context) (Outcome, error) {
	if err := c.checkpoint(ctx); err != nil {
		return OutcomeFailed, err
	}

	for {
		if ctx.Err() != nil {
			return c.cancel(ctx)
		}

		// An error recorded by an inbound signal or timer halts the run
		// before anything else dispatches.
		if c.hasErroredNode() {
			return c.settle(ctx)
		}

		ready := c.router.Ready(c.ec)
		if len(ready) == 0 {
			return c.settle(ctx)
		}

		if outcome, err, done := c.dispatchReady(ctx, ready); done {
			return outcome, err
		}

		skipped, err := c.router.PropagateSkips(c.ec)
		if err != nil {
			return OutcomeFailed, err
		}
		for _, nodeID := range skipped {
			c.emit(ctx, &ProgressEvent{NodeID: nodeID, Kind: EventNodeSkipped})
			if err := c.checkpoint(ctx); err != nil {
				return OutcomeFailed, err
			}
		}
	}
}

// dispatchReady starts every ready node, runs them concurrently, and applies
// results serially. Returns done=true when the run must stop here.
func (c *Coordinator) dispatchReady(ctx context.Context, ready []string) (Outcome, error, bool) {
	for _, nodeID := range ready {
		node, _ := c.graph.GetNode(nodeID)
		c.callbacks.BeforeNodeExecution(ctx, &NodeExecutionEvent{
			RunID:     c.ec.RunID(),
			GraphName: c.ec.GraphName(),
			NodeID:    nodeID,
			Kind:      node.Kind,
			Status:    NodeStatusRunning,
			StartTime: time.Now(),
		})
		if err := c.ec.RecordStart(nodeID); err != nil {
			return OutcomeFailed, err, true
		}
		if err := c.checkpoint(ctx); err != nil {
			return OutcomeFailed, err, true
		}
		c.emit(ctx, &ProgressEvent{NodeID: nodeID, Kind: EventNodeStart})
	}

	results := make(chan *NodeResult, len(ready))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, nodeID := range ready {
		node, _ := c.graph.GetNode(nodeID)
		group.Go(func() error {
			results <- c.dispatcher.Execute(groupCtx, c.graph, node, c.ec)
			return nil
		})
	}
	group.Wait()
	close(results)

	var firstErr error
	for result := range results {
		if ctx.Err() != nil && result.Kind == NodeResultErrored && errors.Is(result.Err, context.Canceled) {
			// The handler was interrupted by cancellation, not by its own
			// failure: return the node to pending for a later resume.
			if err := c.ec.ResetForRedispatch(result.NodeID); err != nil {
				return OutcomeFailed, err, true
			}
			continue
		}
		if err := c.apply(ctx, result); err != nil {
			return OutcomeFailed, err, true
		}
		if result.Kind == NodeResultErrored && firstErr == nil {
			firstErr = result.Err
		}
	}
	if firstErr != nil {
		return c.fail(ctx, firstErr)
	}
	return "", nil, false
}

// apply records one dispatch result and checkpoints the transition.
func (c *Coordinator) apply(ctx context.Context, result *NodeResult) error {
	node, _ := c.graph.GetNode(result.NodeID)
	event := &NodeExecutionEvent{
		RunID:     c.ec.RunID(),
		GraphName: c.ec.GraphName(),
		NodeID:    result.NodeID,
		Kind:      node.Kind,
		StartTime: result.StartTime,
		EndTime:   result.EndTime,
		Duration:  result.EndTime.Sub(result.StartTime),
	}

	switch result.Kind {
	case NodeResultCompleted:
		var err error
		if node.Kind == NodeKindConditional {
			err = c.ec.RecordDecision(result.NodeID, result.Branch, result.Output)
		} else {
			err = c.ec.RecordCompletion(result.NodeID, result.Output)
		}
		if err != nil {
			return err
		}
		event.Status = NodeStatusCompleted
		event.Output = result.Output
		event.Branch = result.Branch
		c.emit(ctx, &ProgressEvent{
			NodeID: result.NodeID,
			Kind:   EventNodeComplete,
			Label:  result.Branch,
			Output: result.Output,
		})

	case NodeResultPending:
		if err := c.ec.RecordAwaiting(result.NodeID, result.Awaiting, result.Handle); err != nil {
			return err
		}
		event.Status = NodeStatusRunning

	case NodeResultErrored:
		if err := c.ec.RecordError(result.NodeID, result.Err); err != nil {
			return err
		}
		event.Status = NodeStatusError
		event.Error = result.Err
		c.emit(ctx, &ProgressEvent{
			NodeID: result.NodeID,
			Kind:   EventNodeError,
			Error:  result.Err.Error(),
		})
	}

	c.callbacks.AfterNodeExecution(ctx, event)
	return c.checkpoint(ctx)
}

// settle decides the run's fate when nothing is dispatchable: suspended when
// a node awaits a signal, failed when a node errored (a rejection or timeout
// signal can introduce one without a dispatch), completed otherwise.
func (c *Coordinator) settle(ctx context.Context) (Outcome, error) {
	states := c.ec.States()
	var waiting []string
	pausedOn := ""
	var nodeErr error
	for _, nodeID := range c.graph.Order() {
		state := states[nodeID]
		if state == nil {
			continue
		}
		if state.Status == NodeStatusError && nodeErr == nil {
			// The recorded error string already names the node.
			nodeErr = errors.New(state.Error)
		}
		if !state.AwaitingSignal() {
			continue
		}
		waiting = append(waiting, nodeID)
		if pausedOn == "" && state.Awaiting == PendingApproval {
			pausedOn = nodeID
		}
	}

	if nodeErr != nil {
		outcome, err, _ := c.fail(ctx, nodeErr)
		return outcome, err
	}

	if len(waiting) > 0 {
		if pausedOn != "" {
			c.ec.SetStatus(RunStatusPaused)
			if err := c.checkpoint(ctx); err != nil {
				return OutcomeFailed, err
			}
			c.emit(ctx, &ProgressEvent{NodeID: pausedOn, Kind: EventRunPaused})
		}
		c.logger.Info("run suspended on external signals",
			"run_id", c.ec.RunID(), "waiting_nodes", waiting)
		return OutcomeSuspended, nil
	}

	c.ec.SetStatus(RunStatusCompleted)
	c.ec.SetTiming(c.ec.StartTime(), time.Now())
	if err := c.checkpoint(ctx); err != nil {
		return OutcomeFailed, err
	}
	c.emit(ctx, &ProgressEvent{Kind: EventRunCompleted})
	return OutcomeCompleted, nil
}

// fail records a run-level error and halts. In-flight results were already
// applied before this is called, so the checkpoint reflects all of them.
func (c *Coordinator) fail(ctx context.Context, cause error) (Outcome, error, bool) {
	c.ec.SetError(cause)
	c.ec.SetTiming(c.ec.StartTime(), time.Now())
	if err := c.checkpoint(ctx); err != nil {
		return OutcomeFailed, err, true
	}
	c.emit(ctx, &ProgressEvent{Kind: EventRunError, Error: cause.Error()})
	return OutcomeFailed, cause, true
}

// cancel returns running nodes that hold no external handle to pending so a
// later resume can redispatch them, then checkpoints.
func (c *Coordinator) cancel(ctx context.Context) (Outcome, error) {
	for nodeID, state := range c.ec.States() {
		if state.Status == NodeStatusRunning && !state.AwaitingSignal() {
			if err := c.ec.ResetForRedispatch(nodeID); err != nil {
				return OutcomeFailed, err
			}
		}
	}
	c.ec.SetError(ErrRunCancelled)
	c.ec.SetTiming(c.ec.StartTime(), time.Now())
	// Checkpoint with a fresh context: the run's own context is cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.checkpoint(saveCtx); err != nil {
		return OutcomeFailed, err
	}
	c.emit(saveCtx, &ProgressEvent{Kind: EventRunError, Error: ErrRunCancelled.Error()})
	return OutcomeCancelled, ErrRunCancelled
}

func (c *Coordinator) hasErroredNode() bool {
	for _, state := range c.ec.States() {
		if state.Status == NodeStatusError {
			return true
		}
	}
	return false
}

func (c *Coordinator) runEvent(err error) *RunExecutionEvent {
	endTime := time.Now()
	startTime := c.ec.StartTime()
	if startTime.IsZero() {
		startTime = endTime
	}
	return &RunExecutionEvent{
		RunID:     c.ec.RunID(),
		GraphName: c.ec.GraphName(),
		Status:    c.ec.Status(),
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
		Inputs:    c.ec.Inputs(),
		Outputs:   c.ec.Outputs(),
		Error:     err,
	}
}

func (c *Coordinator) checkpoint(ctx context.Context) error {
	if err := c.checkpointer.SaveCheckpoint(ctx, c.ec.ToCheckpoint()); err != nil {
		return &PersistenceError{Op: "save checkpoint", Wrapped: err}
	}
	return nil
}

func (c *Coordinator) emit(ctx context.Context, event *ProgressEvent) {
	event.ID = NewEventID()
	event.RunID = c.ec.RunID()
	event.Percent = c.ec.Progress() * 100
	event.Time = time.Now()
	c.emitter.Emit(ctx, event)
}
