package dagflow

import (
	"time"
)

// NodeStatus represents the lifecycle status of a node within a run.
// Legal transitions are pending→running→{completed|error} and
// pending→skipped; a node executes at most once per run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusSkipped   NodeStatus = "skipped"
	NodeStatusError     NodeStatus = "error"
)

// Terminal reports whether the status is final for readiness purposes.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusSkipped || s == NodeStatusError
}

// PendingKind identifies which inbound signal resolves a node that is
// awaiting external completion.
type PendingKind string

const (
	// PendingTask means an out-of-process job was started; a completion
	// signal (or poll result) finishes the node.
	PendingTask PendingKind = "task"

	// PendingApproval means the node is a gate awaiting an approve or
	// reject signal, or an auto-resolve timer.
	PendingApproval PendingKind = "approval"
)

// NodeState tracks a node's execution within a single run. The struct is
// fully JSON-serializable so checkpoints can carry it verbatim.
//
// A node awaiting an external signal keeps status "running" with Awaiting
// set: the work is in progress out of process, and the checkpoint is always
// sufficient to know which signal the node is waiting for.
type NodeState struct {
	NodeID    string      `json:"node_id"`
	Status    NodeStatus  `json:"status"`
	Output    any         `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Branch    string      `json:"branch,omitempty"`
	Awaiting  PendingKind `json:"awaiting,omitempty"`
	Handle    string      `json:"handle,omitempty"`
	StartTime time.Time   `json:"start_time,omitzero"`
	EndTime   time.Time   `json:"end_time,omitzero"`
}

// AwaitingSignal reports whether the node is suspended on an external
// completion or approval signal.
func (s *NodeState) AwaitingSignal() bool {
	return s.Status == NodeStatusRunning && s.Awaiting != ""
}

// Copy returns a shallow copy of the node state.
func (s *NodeState) Copy() *NodeState {
	copied := *s
	return &copied
}

func copyNodeStates(m map[string]*NodeState) map[string]*NodeState {
	copied := make(map[string]*NodeState, len(m))
	for k, v := range m {
		copied[k] = v.Copy()
	}
	return copied
}

// copyMap creates a shallow copy of a map.
func copyMap(m map[string]any) map[string]any {
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}
