package dagflow

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports that a graph is not acyclic. Nodes holds the indegree
// residue after Kahn's algorithm ran out of ready nodes: every node that
// still had an unsatisfied inbound edge, which is exactly the subgraph
// containing the cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving nodes: %s", strings.Join(e.Nodes, ", "))
}

// Sequence produces a topological execution order for the graph using
// Kahn's algorithm. Branch labels are ignored for ordering purposes: a
// conditional edge still constrains order even when it may later be skipped.
// Returns a *CycleError (wrapped in a GraphError) if the graph is cyclic.
func Sequence(g *Graph) ([]string, error) {
	order, _, err := sequence(g)
	return order, err
}

// Levels groups node ids by topological level: level 0 holds the roots, and
// every node at level N depends only on nodes at levels below N. Nodes within
// a level have no ordering constraints between them and may be dispatched
// concurrently.
func Levels(g *Graph) ([][]string, error) {
	_, levels, err := sequence(g)
	return levels, err
}

func sequence(g *Graph) ([]string, [][]string, error) {
	// Positions by declaration order keep the output deterministic when
	// nodes are mutually unconstrained.
	position := make(map[string]int, len(g.nodes))
	inDegree := make(map[string]int, len(g.nodes))
	for i, node := range g.nodes {
		position[node.ID] = i
		inDegree[node.ID] = len(g.Incoming(node.ID))
	}

	byPosition := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			return position[ids[i]] < position[ids[j]]
		})
	}

	var frontier []string
	for id, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, id)
		}
	}
	byPosition(frontier)

	order := make([]string, 0, len(g.nodes))
	var levels [][]string
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		order = append(order, frontier...)

		var next []string
		for _, id := range frontier {
			for _, edge := range g.Outgoing(id) {
				inDegree[edge.To]--
				if inDegree[edge.To] == 0 {
					next = append(next, edge.To)
				}
			}
		}
		byPosition(next)
		frontier = next
	}

	if len(order) != len(g.nodes) {
		var residue []string
		for id, degree := range inDegree {
			if degree > 0 {
				residue = append(residue, id)
			}
		}
		sort.Strings(residue)
		cycleErr := &CycleError{Nodes: residue}
		return nil, nil, NewGraphError(cycleErr.Error(), cycleErr)
	}

	return order, levels, nil
}
