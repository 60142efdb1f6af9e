package dagflow

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ExecutionContext consolidates all mutable per-run state: node statuses,
// accumulated outputs, and timing. Mutations through its record methods are
// the only way node state changes; no other component reads or writes
// NodeState directly. All data is serializable for checkpointing.
type ExecutionContext struct {
	runID      string
	graphName  string
	status     RunStatus
	inputs     map[string]any
	states     map[string]*NodeState
	startTime  time.Time
	endTime    time.Time
	err        string
	lastNodeID string
	mutex      sync.RWMutex
}

// NewExecutionContext creates the execution context for a fresh run: every
// graph node starts pending.
func NewExecutionContext(runID string, graph *Graph, inputs map[string]any) *ExecutionContext {
	states := make(map[string]*NodeState, len(graph.Nodes()))
	for _, node := range graph.Nodes() {
		states[node.ID] = &NodeState{NodeID: node.ID, Status: NodeStatusPending}
	}
	return &ExecutionContext{
		runID:     runID,
		graphName: graph.Name(),
		status:    RunStatusDraft,
		inputs:    copyMap(inputs),
		states:    states,
	}
}

// RunID returns the owning run's id.
func (c *ExecutionContext) RunID() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.runID
}

// GraphName returns the name of the graph being executed.
func (c *ExecutionContext) GraphName() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.graphName
}

// Status returns the current run status.
func (c *ExecutionContext) Status() RunStatus {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status
}

// SetStatus updates the run status.
func (c *ExecutionContext) SetStatus(status RunStatus) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status = status
	if status != RunStatusError {
		c.err = ""
	}
}

// SetError records a run-level error and moves the run to the error status.
func (c *ExecutionContext) SetError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err != nil {
		c.err = err.Error()
		c.status = RunStatusError
	} else {
		c.err = ""
	}
}

// Err returns the run-level error, if any.
func (c *ExecutionContext) Err() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.err == "" {
		return nil
	}
	return errors.New(c.err)
}

// StartTime returns the run start time.
func (c *ExecutionContext) StartTime() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.startTime
}

// SetTiming updates the run timing.
func (c *ExecutionContext) SetTiming(startTime, endTime time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.startTime = startTime
	c.endTime = endTime
}

// Inputs returns a copy of the run inputs.
func (c *ExecutionContext) Inputs() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyMap(c.inputs)
}

// RecordStart transitions a node from pending to running. Starting a node
// in any other status is illegal: a node executes at most once per run.
func (c *ExecutionContext) RecordStart(nodeID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusPending {
		return fmt.Errorf("node %q cannot start from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusRunning
	state.StartTime = time.Now()
	c.lastNodeID = nodeID
	return nil
}

// RecordAwaiting marks a running node as suspended on an external signal of
// the given kind. The opaque handle identifies the out-of-process job, when
// one was started.
func (c *ExecutionContext) RecordAwaiting(nodeID string, kind PendingKind, handle string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusRunning {
		return fmt.Errorf("node %q cannot await a signal from status %q", nodeID, state.Status)
	}
	state.Awaiting = kind
	state.Handle = handle
	return nil
}

// RecordCompletion transitions a running node to completed, setting its
// output exactly once.
func (c *ExecutionContext) RecordCompletion(nodeID string, output any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusRunning {
		return fmt.Errorf("node %q cannot complete from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusCompleted
	state.Output = output
	state.Awaiting = ""
	state.EndTime = time.Now()
	c.lastNodeID = nodeID
	return nil
}

// RecordDecision completes a conditional node with the branch label that
// selects its live outgoing edges.
func (c *ExecutionContext) RecordDecision(nodeID, branch string, output any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusRunning {
		return fmt.Errorf("node %q cannot complete from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusCompleted
	state.Branch = branch
	state.Output = output
	state.Awaiting = ""
	state.EndTime = time.Now()
	c.lastNodeID = nodeID
	return nil
}

// RecordError transitions a pending or running node to error.
func (c *ExecutionContext) RecordError(nodeID string, err error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusRunning && state.Status != NodeStatusPending {
		return fmt.Errorf("node %q cannot fail from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusError
	state.Error = err.Error()
	state.Awaiting = ""
	state.EndTime = time.Now()
	c.lastNodeID = nodeID
	return nil
}

// RecordSkip transitions a pending node to skipped via conditional routing.
func (c *ExecutionContext) RecordSkip(nodeID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusPending {
		return fmt.Errorf("node %q cannot be skipped from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusSkipped
	state.EndTime = time.Now()
	c.lastNodeID = nodeID
	return nil
}

// ResetForRedispatch returns an errored or interrupted node to pending so a
// resume can dispatch it again. Completed and skipped nodes are never reset.
func (c *ExecutionContext) ResetForRedispatch(nodeID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	state, ok := c.states[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if state.Status != NodeStatusError && state.Status != NodeStatusRunning {
		return fmt.Errorf("node %q cannot be reset from status %q", nodeID, state.Status)
	}
	state.Status = NodeStatusPending
	state.Error = ""
	state.Awaiting = ""
	state.Handle = ""
	state.StartTime = time.Time{}
	state.EndTime = time.Time{}
	return nil
}

// OutputOf returns the recorded output of a completed node.
func (c *ExecutionContext) OutputOf(nodeID string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.states[nodeID]
	if !ok || state.Status != NodeStatusCompleted {
		return nil, false
	}
	return state.Output, true
}

// StateOf returns a copy of a node's state.
func (c *ExecutionContext) StateOf(nodeID string) (*NodeState, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	state, ok := c.states[nodeID]
	if !ok {
		return nil, false
	}
	return state.Copy(), true
}

// States returns a copy of all node states.
func (c *ExecutionContext) States() map[string]*NodeState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copyNodeStates(c.states)
}

// Outputs returns the outputs of all completed nodes, keyed by node id.
func (c *ExecutionContext) Outputs() map[string]any {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	outputs := make(map[string]any)
	for id, state := range c.states {
		if state.Status == NodeStatusCompleted {
			outputs[id] = state.Output
		}
	}
	return outputs
}

// Progress returns the fraction of nodes in a terminal status, in [0, 1].
func (c *ExecutionContext) Progress() float64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if len(c.states) == 0 {
		return 0
	}
	terminal := 0
	for _, state := range c.states {
		if state.Status.Terminal() {
			terminal++
		}
	}
	return float64(terminal) / float64(len(c.states))
}

// ToCheckpoint converts the execution context to a durable snapshot.
func (c *ExecutionContext) ToCheckpoint() *Checkpoint {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return &Checkpoint{
		ID:           NewCheckpointID(),
		RunID:        c.runID,
		GraphName:    c.graphName,
		Status:       string(c.status),
		LastNodeID:   c.lastNodeID,
		Inputs:       copyMap(c.inputs),
		NodeStates:   copyNodeStates(c.states),
		Error:        c.err,
		StartTime:    c.startTime,
		EndTime:      c.endTime,
		CheckpointAt: time.Now(),
	}
}

// FromCheckpoint restores the execution context exactly from a checkpoint.
func (c *ExecutionContext) FromCheckpoint(checkpoint *Checkpoint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.runID = checkpoint.RunID
	c.graphName = checkpoint.GraphName
	c.status = RunStatus(checkpoint.Status)
	c.lastNodeID = checkpoint.LastNodeID
	c.inputs = copyMap(checkpoint.Inputs)
	c.states = copyNodeStates(checkpoint.NodeStates)
	c.err = checkpoint.Error
	c.startTime = checkpoint.StartTime
	c.endTime = checkpoint.EndTime
}
