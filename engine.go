package dagflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepnoodle-ai/dagflow/script"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Graphs are the workflow definitions the engine can run, keyed by name.
	Graphs []*Graph

	// Handlers are the registered node capabilities.
	Handlers []Handler

	// Checkpointer persists run snapshots. Defaults to NullCheckpointer,
	// which makes runs non-resumable across restarts.
	Checkpointer Checkpointer

	// RunStore holds run records. Defaults to an in-memory store.
	RunStore RunStore

	// EventLog records progress events for replay. Defaults to in-memory.
	EventLog EventLog

	// Emitter receives progress events in addition to the event log and
	// the subscription broker. Optional.
	Emitter ProgressEmitter

	// Callbacks receive run and node lifecycle notifications. Optional.
	Callbacks RunCallbacks

	// ScriptCompiler compiles conditional predicates and config templates.
	// Defaults to the Risor engine with deterministic builtins.
	ScriptCompiler script.Compiler

	// DefaultTaskTimeout bounds task nodes with no timeout of their own.
	DefaultTaskTimeout time.Duration

	// SubscriberBuffer is the per-subscriber event buffer size.
	SubscriberBuffer int

	Logger *slog.Logger
}

// Engine runs workflow graphs: it validates definitions, starts and resumes
// runs, applies external completion and approval signals, and exposes
// progress via subscriptions and the event log. All signal application is
// serialized per run behind a single lock, so node state never sees two
// writers.
type Engine struct {
	graphs       map[string]*Graph
	dispatcher   *Dispatcher
	checkpointer Checkpointer
	runStore     RunStore
	eventLog     EventLog
	broker       *Broker
	emitter      ProgressEmitter
	callbacks    RunCallbacks
	logger       *slog.Logger

	mu       sync.Mutex
	runtimes map[string]*runRuntime
}

// runRuntime is the in-process state of one run: its execution context, the
// lock serializing all writers, and the timers arming timeouts while the run
// is suspended.
type runRuntime struct {
	mu          sync.Mutex
	graph       *Graph
	ec          *ExecutionContext
	coordinator *Coordinator
	runCtx      context.Context
	cancelRun   context.CancelFunc
	timers      map[string]*time.Timer

	doneMu  sync.Mutex
	done    chan struct{}
	doneSet bool
}

// settle marks the run terminal, releasing Wait callers.
func (rt *runRuntime) settle() {
	rt.doneMu.Lock()
	defer rt.doneMu.Unlock()
	if !rt.doneSet {
		close(rt.done)
		rt.doneSet = true
	}
}

// reopen re-arms the settle channel so a resumed run can be waited on again.
func (rt *runRuntime) reopen() {
	rt.doneMu.Lock()
	defer rt.doneMu.Unlock()
	if rt.doneSet {
		rt.done = make(chan struct{})
		rt.doneSet = false
	}
}

func (rt *runRuntime) doneCh() <-chan struct{} {
	rt.doneMu.Lock()
	defer rt.doneMu.Unlock()
	return rt.done
}

// NewEngine creates an engine from the given options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = NewLogger()
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.RunStore == nil {
		opts.RunStore = NewMemoryRunStore()
	}
	if opts.EventLog == nil {
		opts.EventLog = NewMemoryEventLog()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewBaseRunCallbacks()
	}

	graphs := make(map[string]*Graph, len(opts.Graphs))
	for _, graph := range opts.Graphs {
		if _, ok := graphs[graph.Name()]; ok {
			return nil, fmt.Errorf("duplicate graph name %q", graph.Name())
		}
		graphs[graph.Name()] = graph
	}

	dispatcher, err := NewDispatcher(DispatcherOptions{
		Handlers:           opts.Handlers,
		ScriptCompiler:     opts.ScriptCompiler,
		Logger:             opts.Logger,
		DefaultTaskTimeout: opts.DefaultTaskTimeout,
	})
	if err != nil {
		return nil, err
	}

	broker := NewBroker(opts.SubscriberBuffer)
	emitters := []ProgressEmitter{
		NewStoreEmitter(opts.EventLog, opts.Logger),
		broker,
	}
	if opts.Emitter != nil {
		emitters = append(emitters, opts.Emitter)
	}

	return &Engine{
		graphs:       graphs,
		dispatcher:   dispatcher,
		checkpointer: opts.Checkpointer,
		runStore:     opts.RunStore,
		eventLog:     opts.EventLog,
		broker:       broker,
		emitter:      NewEmitterChain(emitters...),
		callbacks:    opts.Callbacks,
		logger:       opts.Logger,
		runtimes:     map[string]*runRuntime{},
	}, nil
}

// RegisterGraph adds a workflow definition after construction.
func (e *Engine) RegisterGraph(graph *Graph) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.graphs[graph.Name()]; ok {
		return fmt.Errorf("duplicate graph name %q", graph.Name())
	}
	e.graphs[graph.Name()] = graph
	return nil
}

// GetGraph returns a registered graph by name.
func (e *Engine) GetGraph(name string) (*Graph, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	graph, ok := e.graphs[name]
	return graph, ok
}

// Validate checks a graph definition without registering or running it.
func (e *Engine) Validate(opts Options) error {
	_, err := New(opts)
	return err
}

// Start validates inputs, creates a new run over the named graph, and begins
// executing it in the background. The returned run record reflects the run
// at creation time.
func (e *Engine) Start(ctx context.Context, graphName string, inputs map[string]any) (*Run, error) {
	graph, ok := e.GetGraph(graphName)
	if !ok {
		return nil, NewGraphError(fmt.Sprintf("unknown graph %q", graphName), nil)
	}
	resolved, err := resolveInputs(graph, inputs)
	if err != nil {
		return nil, err
	}

	runID := NewRunID()
	ec := NewExecutionContext(runID, graph, resolved)
	ec.SetTiming(time.Now(), time.Time{})

	now := time.Now()
	run := &Run{
		ID:        runID,
		GraphName: graphName,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.runStore.CreateRun(ctx, run); err != nil {
		return nil, &PersistenceError{Op: "create run", Wrapped: err}
	}

	rt, err := e.newRuntime(graph, ec)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.runtimes[runID] = rt
	e.mu.Unlock()

	go e.advance(rt)
	return run.Copy(), nil
}

// Resume continues a run from its latest checkpoint. Completed and skipped
// nodes keep their recorded state; errored and interrupted nodes return to
// pending and are redispatched. Nodes still awaiting external signals keep
// waiting, with their timeout windows re-armed from the checkpoint.
func (e *Engine) Resume(ctx context.Context, runID string) (*Run, error) {
	rt, err := e.runtime(ctx, runID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if rt.ec.Status() == RunStatusCompleted {
		rt.mu.Unlock()
		return nil, fmt.Errorf("run %q already completed", runID)
	}
	for nodeID, state := range rt.ec.States() {
		interrupted := state.Status == NodeStatusRunning && !state.AwaitingSignal()
		if state.Status == NodeStatusError || interrupted {
			if err := rt.ec.ResetForRedispatch(nodeID); err != nil {
				rt.mu.Unlock()
				return nil, err
			}
		}
	}
	rt.ec.SetStatus(RunStatusRunning)
	rt.reopen()
	rt.mu.Unlock()

	run, err := e.updateRunRecord(ctx, rt)
	if err != nil {
		return nil, err
	}
	go e.advance(rt)
	return run, nil
}

// Cancel stops a run. In-flight handlers see their context cancelled, the
// interrupted nodes return to pending, and the run ends in the error status
// with ErrRunCancelled so a later Resume can pick it back up.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	rt, ok := e.runtimes[runID]
	e.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	rt.cancelRun()
	return nil
}

// CompleteNode applies an external completion signal to a task node that is
// awaiting one. A duplicate signal for an already-completed node is a no-op;
// any other status is a conflict.
func (e *Engine) CompleteNode(ctx context.Context, runID, nodeID string, output any) error {
	return e.signal(ctx, runID, nodeID, PendingTask, func(rt *runRuntime) error {
		if err := rt.ec.RecordCompletion(nodeID, output); err != nil {
			return err
		}
		e.emitSignal(ctx, rt, &ProgressEvent{
			NodeID: nodeID,
			Kind:   EventNodeComplete,
			Output: output,
		})
		return nil
	})
}

// ApproveNode resolves an approval gate positively. The gate's output
// records the decision and the optional note.
func (e *Engine) ApproveNode(ctx context.Context, runID, nodeID, note string) error {
	return e.signal(ctx, runID, nodeID, PendingApproval, func(rt *runRuntime) error {
		output := map[string]any{"approved": true}
		if note != "" {
			output["note"] = note
		}
		if err := rt.ec.RecordCompletion(nodeID, output); err != nil {
			return err
		}
		e.emitSignal(ctx, rt, &ProgressEvent{
			NodeID: nodeID,
			Kind:   EventNodeComplete,
			Output: output,
		})
		return nil
	})
}

// RejectNode resolves an approval gate negatively. The gate errors and the
// run halts at it.
func (e *Engine) RejectNode(ctx context.Context, runID, nodeID, note string) error {
	return e.signal(ctx, runID, nodeID, PendingApproval, func(rt *runRuntime) error {
		cause := "approval rejected"
		if note != "" {
			cause = fmt.Sprintf("approval rejected: %s", note)
		}
		rejection := NewNodeExecutionError(nodeID, cause)
		if err := rt.ec.RecordError(nodeID, rejection); err != nil {
			return err
		}
		e.emitSignal(ctx, rt, &ProgressEvent{
			NodeID: nodeID,
			Kind:   EventNodeError,
			Error:  rejection.Error(),
		})
		return nil
	})
}

// FailNode applies an external failure signal to a task node that is
// awaiting completion, recording the reason as the node's error.
func (e *Engine) FailNode(ctx context.Context, runID, nodeID, reason string) error {
	return e.signal(ctx, runID, nodeID, PendingTask, func(rt *runRuntime) error {
		failure := NewNodeExecutionError(nodeID, reason)
		if err := rt.ec.RecordError(nodeID, failure); err != nil {
			return err
		}
		e.emitSignal(ctx, rt, &ProgressEvent{
			NodeID: nodeID,
			Kind:   EventNodeError,
			Error:  failure.Error(),
		})
		return nil
	})
}

// signal applies one inbound signal under the run lock: verify the node is
// awaiting the expected kind, apply the transition, checkpoint, then advance
// the run in the background.
func (e *Engine) signal(ctx context.Context, runID, nodeID string, kind PendingKind, apply func(*runRuntime) error) error {
	rt, err := e.runtime(ctx, runID)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	state, ok := rt.ec.StateOf(nodeID)
	if !ok {
		rt.mu.Unlock()
		return ErrNodeNotFound
	}
	if state.Status == NodeStatusCompleted {
		// Duplicate signal after completion: idempotent no-op.
		rt.mu.Unlock()
		return nil
	}
	if !state.AwaitingSignal() || state.Awaiting != kind {
		rt.mu.Unlock()
		return &SignalConflictError{RunID: runID, NodeID: nodeID, Status: state.Status}
	}

	if err := apply(rt); err != nil {
		rt.mu.Unlock()
		return err
	}
	e.stopTimer(rt, nodeID)
	if err := e.checkpoint(ctx, rt); err != nil {
		rt.mu.Unlock()
		return err
	}
	rt.mu.Unlock()

	go e.advance(rt)
	return nil
}

// RunSnapshot is a point-in-time view of a run for the control surface.
type RunSnapshot struct {
	Run        *Run                  `json:"run"`
	NodeStates map[string]*NodeState `json:"node_states"`
	Outputs    map[string]any        `json:"outputs"`
	Progress   float64               `json:"progress"`
}

// Status returns the run record together with its node states.
func (e *Engine) Status(ctx context.Context, runID string) (*RunSnapshot, error) {
	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	rt, err := e.runtime(ctx, runID)
	if err != nil {
		return nil, err
	}
	// Reads go straight to the execution context, which is internally
	// synchronized; taking the run lock here would block behind an active
	// coordinator pass.
	return &RunSnapshot{
		Run:        run,
		NodeStates: rt.ec.States(),
		Outputs:    rt.ec.Outputs(),
		Progress:   rt.ec.Progress(),
	}, nil
}

// ListRuns returns all run records, newest first.
func (e *Engine) ListRuns(ctx context.Context) ([]*Run, error) {
	return e.runStore.ListRuns(ctx)
}

// PollPending returns the node states currently awaiting external signals,
// including the opaque handles of out-of-process jobs.
func (e *Engine) PollPending(ctx context.Context, runID string) ([]*NodeState, error) {
	rt, err := e.runtime(ctx, runID)
	if err != nil {
		return nil, err
	}
	var pending []*NodeState
	for _, nodeID := range rt.graph.Order() {
		if state, ok := rt.ec.StateOf(nodeID); ok && state.AwaitingSignal() {
			pending = append(pending, state)
		}
	}
	return pending, nil
}

// Subscribe returns a live subscription to a run's progress events.
func (e *Engine) Subscribe(runID string) *Subscriber {
	return e.broker.Subscribe(runID)
}

// Events returns a run's recorded progress events in order.
func (e *Engine) Events(ctx context.Context, runID string) ([]*ProgressEvent, error) {
	return e.eventLog.ListByRun(ctx, runID)
}

// Wait blocks until the run reaches a terminal status or ctx is done. It
// returns the run's error, if any. A suspended run does not settle until its
// signals arrive, so callers waiting on one should also watch the context.
func (e *Engine) Wait(ctx context.Context, runID string) error {
	e.mu.Lock()
	rt, ok := e.runtimes[runID]
	e.mu.Unlock()
	if !ok {
		run, err := e.runStore.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if !run.Status.Terminal() {
			return fmt.Errorf("run %q is not loaded", runID)
		}
		if run.Error != "" {
			return errors.New(run.Error)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rt.doneCh():
	}
	return rt.ec.Err()
}

// DeleteRun removes a terminal run: its checkpoints, its events, and its
// record go together. Active runs cannot be deleted.
func (e *Engine) DeleteRun(ctx context.Context, runID string) error {
	run, err := e.runStore.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("run %q is still active", runID)
	}
	if err := e.checkpointer.DeleteCheckpoints(ctx, runID); err != nil {
		return err
	}
	if err := e.eventLog.DeleteByRun(ctx, runID); err != nil {
		return err
	}
	if err := e.runStore.DeleteRun(ctx, runID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.runtimes, runID)
	e.mu.Unlock()
	return nil
}

// newRuntime builds the in-process state for one run.
func (e *Engine) newRuntime(graph *Graph, ec *ExecutionContext) (*runRuntime, error) {
	runCtx, cancelRun := context.WithCancel(context.Background())
	rt := &runRuntime{
		graph:     graph,
		ec:        ec,
		runCtx:    runCtx,
		cancelRun: cancelRun,
		timers:    map[string]*time.Timer{},
		done:      make(chan struct{}),
	}
	coordinator, err := NewCoordinator(CoordinatorOptions{
		Graph:        graph,
		Dispatcher:   e.dispatcher,
		Checkpointer: e.checkpointer,
		Emitter:      e.emitter,
		Callbacks:    e.callbacks,
		Logger:       e.logger,
		Execution:    ec,
	})
	if err != nil {
		cancelRun()
		return nil, err
	}
	rt.coordinator = coordinator
	return rt, nil
}

// runtime returns a run's in-process state, hydrating it from the latest
// checkpoint when the run is not already loaded.
func (e *Engine) runtime(ctx context.Context, runID string) (*runRuntime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rt, ok := e.runtimes[runID]; ok {
		return rt, nil
	}

	checkpoint, err := e.checkpointer.LoadCheckpoint(ctx, runID)
	if err != nil {
		return nil, &PersistenceError{Op: "load checkpoint", Wrapped: err}
	}
	if checkpoint == nil {
		return nil, ErrRunNotFound
	}
	graph, ok := e.graphs[checkpoint.GraphName]
	if !ok {
		return nil, NewGraphError(fmt.Sprintf("unknown graph %q", checkpoint.GraphName), nil)
	}

	ec := &ExecutionContext{}
	ec.FromCheckpoint(checkpoint)
	rt, err := e.newRuntime(graph, ec)
	if err != nil {
		return nil, err
	}
	e.runtimes[runID] = rt
	// Timers fire under rt.mu; arming them must hold the same lock, since
	// an already expired window fires immediately.
	rt.mu.Lock()
	e.armTimers(rt)
	rt.mu.Unlock()

	// The run record may be missing after a restart with an ephemeral
	// store; recreate it from the checkpoint.
	if _, err := e.runStore.GetRun(ctx, runID); errors.Is(err, ErrRunNotFound) {
		record := &Run{
			ID:        runID,
			GraphName: checkpoint.GraphName,
			Status:    RunStatus(checkpoint.Status),
			Error:     checkpoint.Error,
			CreatedAt: checkpoint.StartTime,
			UpdatedAt: checkpoint.CheckpointAt,
		}
		if err := e.runStore.CreateRun(ctx, record); err != nil {
			return nil, &PersistenceError{Op: "create run", Wrapped: err}
		}
	}
	return rt, nil
}

// advance runs the coordinator loop under the run lock and applies the
// outcome: run record update, timer arming on suspension, stream closure on
// settlement.
func (e *Engine) advance(rt *runRuntime) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.ec.Status().Terminal() {
		return
	}

	outcome, err := rt.coordinator.Run(rt.runCtx)

	var persistErr *PersistenceError
	if err != nil && errors.As(err, &persistErr) {
		// Checkpoint-or-nothing: the run freezes where the last durable
		// checkpoint left it. The record keeps its prior status so a
		// resume can retry once persistence recovers.
		e.logger.Error("run frozen by persistence failure",
			"run_id", rt.ec.RunID(), "error", err)
		rt.settle()
		return
	}

	ctx := context.Background()
	if _, err := e.updateRunRecord(ctx, rt); err != nil {
		e.logger.Error("failed to update run record",
			"run_id", rt.ec.RunID(), "error", err)
	}

	switch outcome {
	case OutcomeSuspended:
		e.armTimers(rt)
	case OutcomeCompleted, OutcomeFailed, OutcomeCancelled:
		e.stopAllTimers(rt)
		e.broker.CloseRun(rt.ec.RunID())
		rt.settle()
	}
}

// updateRunRecord projects the execution context onto the run record.
func (e *Engine) updateRunRecord(ctx context.Context, rt *runRuntime) (*Run, error) {
	run, err := e.runStore.GetRun(ctx, rt.ec.RunID())
	if err != nil {
		return nil, err
	}
	run.Status = rt.ec.Status()
	run.Error = ""
	if runErr := rt.ec.Err(); runErr != nil {
		run.Error = runErr.Error()
	}
	run.WaitingNodeID = ""
	for _, nodeID := range rt.graph.Order() {
		if state, ok := rt.ec.StateOf(nodeID); ok && state.AwaitingSignal() && state.Awaiting == PendingApproval {
			run.WaitingNodeID = nodeID
			break
		}
	}
	if err := e.runStore.UpdateRun(ctx, run); err != nil {
		return nil, &PersistenceError{Op: "update run", Wrapped: err}
	}
	return run.Copy(), nil
}

// armTimers arms timeout and auto-resolve timers for every node awaiting an
// external signal. Windows are measured from the node's recorded start time,
// so re-arming after a restart honors the original deadline; an already
// expired window fires immediately.
func (e *Engine) armTimers(rt *runRuntime) {
	for nodeID, state := range rt.ec.States() {
		if !state.AwaitingSignal() {
			continue
		}
		if _, armed := rt.timers[nodeID]; armed {
			continue
		}
		node, ok := rt.graph.GetNode(nodeID)
		if !ok {
			continue
		}
		window, onFire := e.timerFor(rt, node, state)
		if onFire == nil {
			continue
		}
		delay := time.Until(state.StartTime.Add(window))
		if delay < 0 {
			delay = 0
		}
		rt.timers[nodeID] = time.AfterFunc(delay, onFire)
	}
}

// timerFor picks the window and expiry behavior for one awaiting node: task
// windows fail the node with a TimeoutError; approval gates configured with
// auto_approve_after complete with auto_approve_output instead.
func (e *Engine) timerFor(rt *runRuntime, node *Node, state *NodeState) (time.Duration, func()) {
	nodeID := node.ID
	switch state.Awaiting {
	case PendingTask:
		window := nodeTimeout(node.Config)
		if window == 0 {
			window = e.dispatcher.defaultTaskTimeout
		}
		if window == 0 {
			return 0, nil
		}
		return window, func() {
			e.expireNode(rt, nodeID, func() error {
				return rt.ec.RecordError(nodeID, AsNodeError(nodeID, &TimeoutError{NodeID: nodeID, Window: window}))
			})
		}
	case PendingApproval:
		window := autoApproveWindow(node.Config)
		if window == 0 {
			return 0, nil
		}
		output := node.Config["auto_approve_output"]
		if output == nil {
			output = map[string]any{"approved": true, "auto": true}
		}
		return window, func() {
			e.expireNode(rt, nodeID, func() error {
				return rt.ec.RecordCompletion(nodeID, output)
			})
		}
	}
	return 0, nil
}

// expireNode applies a timer expiry under the run lock, skipping it if the
// node was signalled in the meantime.
func (e *Engine) expireNode(rt *runRuntime, nodeID string, apply func() error) {
	ctx := context.Background()
	rt.mu.Lock()
	delete(rt.timers, nodeID)
	state, ok := rt.ec.StateOf(nodeID)
	if !ok || !state.AwaitingSignal() {
		rt.mu.Unlock()
		return
	}
	if err := apply(); err != nil {
		e.logger.Error("failed to apply timer expiry",
			"run_id", rt.ec.RunID(), "node_id", nodeID, "error", err)
		rt.mu.Unlock()
		return
	}
	if err := e.checkpoint(ctx, rt); err != nil {
		e.logger.Error("failed to checkpoint timer expiry",
			"run_id", rt.ec.RunID(), "node_id", nodeID, "error", err)
		rt.mu.Unlock()
		return
	}
	rt.mu.Unlock()
	go e.advance(rt)
}

func (e *Engine) stopTimer(rt *runRuntime, nodeID string) {
	if timer, ok := rt.timers[nodeID]; ok {
		timer.Stop()
		delete(rt.timers, nodeID)
	}
}

func (e *Engine) stopAllTimers(rt *runRuntime) {
	for nodeID, timer := range rt.timers {
		timer.Stop()
		delete(rt.timers, nodeID)
	}
}

func (e *Engine) checkpoint(ctx context.Context, rt *runRuntime) error {
	if err := e.checkpointer.SaveCheckpoint(ctx, rt.ec.ToCheckpoint()); err != nil {
		return &PersistenceError{Op: "save checkpoint", Wrapped: err}
	}
	return nil
}

// emitSignal emits a progress event for a transition applied by an inbound
// signal rather than by the coordinator.
func (e *Engine) emitSignal(ctx context.Context, rt *runRuntime, event *ProgressEvent) {
	event.ID = NewEventID()
	event.RunID = rt.ec.RunID()
	event.Percent = rt.ec.Progress() * 100
	event.Time = time.Now()
	e.emitter.Emit(ctx, event)
}

// autoApproveWindow reads an approval gate's auto-resolve window from its
// config, in the same forms nodeTimeout accepts.
func autoApproveWindow(config map[string]any) time.Duration {
	switch v := config["auto_approve_after"].(type) {
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

// resolveInputs validates supplied inputs against the graph's declarations
// and applies defaults.
func resolveInputs(graph *Graph, inputs map[string]any) (map[string]any, error) {
	resolved := copyMap(inputs)
	for _, input := range graph.Inputs() {
		if _, ok := resolved[input.Name]; ok {
			continue
		}
		if input.Default != nil {
			resolved[input.Name] = input.Default
			continue
		}
		if input.Required {
			return nil, fmt.Errorf("missing required input %q", input.Name)
		}
	}
	return resolved, nil
}
