package dagflow

// Router decides which outgoing edges are live after a node settles and
// propagates skips through the graph. It is stateless over an immutable
// Graph, so a single Router backs any number of runs.
type Router struct {
	graph *Graph
}

// NewRouter creates a router for the given graph.
func NewRouter(graph *Graph) *Router {
	return &Router{graph: graph}
}

// LiveEdges returns the outgoing edges of a completed node that remain live
// given the branch it completed with. Edges with no branch label are always
// live; labeled edges are live only when the label matches.
func (r *Router) LiveEdges(nodeID, branch string) []*Edge {
	var live []*Edge
	for _, edge := range r.graph.Outgoing(nodeID) {
		if edge.Branch == "" || edge.Branch == branch {
			live = append(live, edge)
		}
	}
	return live
}

// Ready returns the ids of pending nodes whose every inbound edge is settled
// and at least one inbound edge is live, in topological order. Nodes with no
// inbound edges are ready immediately.
//
// An edge is settled when its source node completed or was skipped. It is
// live when the source completed and the edge's branch restriction (if any)
// matches the source's recorded branch. An errored source settles nothing:
// no node downstream of an error executes until a resume clears it.
func (r *Router) Ready(ec *ExecutionContext) []string {
	states := ec.States()
	var ready []string
	for _, nodeID := range r.graph.Order() {
		state := states[nodeID]
		if state == nil || state.Status != NodeStatusPending {
			continue
		}
		if r.readyGiven(nodeID, states) {
			ready = append(ready, nodeID)
		}
	}
	return ready
}

func (r *Router) readyGiven(nodeID string, states map[string]*NodeState) bool {
	inbound := r.graph.Incoming(nodeID)
	if len(inbound) == 0 {
		return true
	}
	live := false
	for _, edge := range inbound {
		from := states[edge.From]
		if from == nil || (from.Status != NodeStatusCompleted && from.Status != NodeStatusSkipped) {
			return false
		}
		if from.Status == NodeStatusCompleted && (edge.Branch == "" || edge.Branch == from.Branch) {
			live = true
		}
	}
	return live
}

// PropagateSkips marks as skipped every pending node whose inbound edges are
// all settled with none live, repeating until no new skips appear. It returns
// the ids of the nodes skipped, in the order they were marked.
func (r *Router) PropagateSkips(ec *ExecutionContext) ([]string, error) {
	var skipped []string
	for {
		states := ec.States()
		progressed := false
		for _, nodeID := range r.graph.Order() {
			state := states[nodeID]
			if state == nil || state.Status != NodeStatusPending {
				continue
			}
			if !r.deadGiven(nodeID, states) {
				continue
			}
			if err := ec.RecordSkip(nodeID); err != nil {
				return skipped, err
			}
			skipped = append(skipped, nodeID)
			progressed = true
		}
		if !progressed {
			return skipped, nil
		}
	}
}

// deadGiven reports whether every inbound edge of the node is settled with
// none live. A node with no inbound edges is never dead. An errored upstream
// blocks the skip: a resume may return it to pending, and skipped is final.
func (r *Router) deadGiven(nodeID string, states map[string]*NodeState) bool {
	inbound := r.graph.Incoming(nodeID)
	if len(inbound) == 0 {
		return false
	}
	for _, edge := range inbound {
		from := states[edge.From]
		if from == nil {
			return false
		}
		if from.Status != NodeStatusCompleted && from.Status != NodeStatusSkipped {
			return false
		}
		if from.Status == NodeStatusCompleted && (edge.Branch == "" || edge.Branch == from.Branch) {
			return false
		}
	}
	return true
}
