package dagflow

import (
	"time"

	"go.jetify.com/typeid"
)

// NewCheckpointID returns a new typed UUID for checkpoint identification.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("chk")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Checkpoint contains a complete snapshot of run state, created after every
// node transition. The latest checkpoint for a run is the sole source of
// truth for resume; older checkpoints may be retained for audit but are
// never mutated.
type Checkpoint struct {
	ID           string                `json:"id"`
	RunID        string                `json:"run_id"`
	GraphName    string                `json:"graph_name"`
	Status       string                `json:"status"`
	LastNodeID   string                `json:"last_node_id,omitempty"`
	Inputs       map[string]any        `json:"inputs"`
	NodeStates   map[string]*NodeState `json:"node_states"`
	Error        string                `json:"error,omitempty"`
	StartTime    time.Time             `json:"start_time,omitzero"`
	EndTime      time.Time             `json:"end_time,omitzero"`
	CheckpointAt time.Time             `json:"checkpoint_at"`
}
