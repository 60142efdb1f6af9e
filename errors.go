package dagflow

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the control surface and stores.
var (
	// ErrRunNotFound indicates the referenced run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrNodeNotFound indicates the referenced node does not exist in the
	// run's graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrRunCancelled marks a run that was explicitly cancelled. The run
	// ends in the error status with this marker as its error detail.
	ErrRunCancelled = errors.New("run cancelled")
)

// GraphError reports a structural problem with a workflow graph: a cycle, a
// dangling edge reference, a duplicate node id. Graph errors are fatal to
// Validate and Start and are never retried.
type GraphError struct {
	Detail  string
	Wrapped error
}

func NewGraphError(detail string, wrapped error) *GraphError {
	return &GraphError{Detail: detail, Wrapped: wrapped}
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("invalid graph: %s", e.Detail)
}

func (e *GraphError) Unwrap() error {
	return e.Wrapped
}

// NodeExecutionError reports that a node handler failed, timed out, or
// returned an error payload. It halts the run at that node; recovery is an
// operator-level Resume after external correction.
type NodeExecutionError struct {
	NodeID  string
	Cause   string
	Wrapped error
}

func NewNodeExecutionError(nodeID, cause string) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Cause: cause}
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed: %s", e.NodeID, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Wrapped
}

// PersistenceError reports a failed checkpoint or store write. The
// coordinator never proceeds past a transition whose checkpoint did not
// durably succeed, so a persistence error freezes the run.
type PersistenceError struct {
	Op      string
	Wrapped error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Wrapped)
}

func (e *PersistenceError) Unwrap() error {
	return e.Wrapped
}

// SignalConflictError reports an inbound completion or approval signal for a
// node that is not awaiting one. Duplicate signals for already-completed
// nodes are a silent no-op instead; a conflict means the signal can never
// legally apply (for example, completing a node that errored).
type SignalConflictError struct {
	RunID  string
	NodeID string
	Status NodeStatus
}

func (e *SignalConflictError) Error() string {
	return fmt.Sprintf("signal conflict: node %q in run %q has status %q", e.NodeID, e.RunID, e.Status)
}

// TimeoutError reports that a task node or approval gate exceeded its
// configured window. Unless the gate is configured to auto-resolve, it is
// converted to a NodeExecutionError.
type TimeoutError struct {
	NodeID string
	Window time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %q timed out after %s", e.NodeID, e.Window)
}

// AsNodeError converts an arbitrary dispatch failure into a
// *NodeExecutionError, preserving an existing one if err already is one.
func AsNodeError(nodeID string, err error) *NodeExecutionError {
	var nodeErr *NodeExecutionError
	if errors.As(err, &nodeErr) {
		return nodeErr
	}
	return &NodeExecutionError{NodeID: nodeID, Cause: err.Error(), Wrapped: err}
}
