package dagflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// NodeKind identifies how a node is dispatched. The set of kinds is closed:
// new capabilities are added by registering handlers, not by new kinds.
type NodeKind string

const (
	// NodeKindCompute runs a handler to completion within the dispatch call.
	NodeKindCompute NodeKind = "compute"

	// NodeKindTask starts an out-of-process job. Completion arrives later
	// via an inbound signal naming the run and node.
	NodeKindTask NodeKind = "task"

	// NodeKindApproval waits for an explicit approve or reject signal,
	// optionally auto-resolving after a configured window.
	NodeKindApproval NodeKind = "approval"

	// NodeKindConditional evaluates a predicate against an upstream output
	// and completes with a branch label used to select outgoing edges.
	NodeKindConditional NodeKind = "conditional"
)

// Input defines a run input parameter.
type Input struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Node is a single step in a workflow graph.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        NodeKind       `json:"kind" yaml:"kind"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Handler     string         `json:"handler,omitempty" yaml:"handler,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge is a directed connection between two nodes. A non-empty Branch
// restricts the edge to runs where the source conditional node completed
// with a matching branch label.
type Edge struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// Options are used to configure a workflow graph.
type Options struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*Node  `json:"nodes" yaml:"nodes"`
	Edges       []*Edge  `json:"edges,omitempty" yaml:"edges,omitempty"`
	Inputs      []*Input `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Graph is an immutable description of a workflow: a set of typed nodes and
// the directed edges between them. A Graph is validated at construction time
// and never mutated afterwards, so a single instance can back any number of
// concurrent runs.
type Graph struct {
	name        string
	description string
	nodes       []*Node
	nodesByID   map[string]*Node
	edges       []*Edge
	inputs      []*Input
	outgoing    map[string][]*Edge
	incoming    map[string][]*Edge
	order       []string
}

// New returns a new Graph configured with the given options. The graph is
// validated structurally (unique IDs, known kinds, resolvable edge endpoints)
// and for acyclicity; any violation is reported as a GraphError.
func New(opts Options) (*Graph, error) {
	if opts.Name == "" {
		return nil, NewGraphError("graph name required", nil)
	}
	if len(opts.Nodes) == 0 {
		return nil, NewGraphError("graph must have at least one node", nil)
	}

	nodesByID := make(map[string]*Node, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.ID == "" {
			return nil, NewGraphError("node id required", nil)
		}
		if _, ok := nodesByID[node.ID]; ok {
			return nil, NewGraphError(fmt.Sprintf("duplicate node id %q", node.ID), nil)
		}
		switch node.Kind {
		case NodeKindCompute, NodeKindTask, NodeKindApproval, NodeKindConditional:
		case "":
			return nil, NewGraphError(fmt.Sprintf("node %q has no kind", node.ID), nil)
		default:
			return nil, NewGraphError(fmt.Sprintf("node %q has unknown kind %q", node.ID, node.Kind), nil)
		}
		nodesByID[node.ID] = node
	}

	outgoing := make(map[string][]*Edge, len(opts.Nodes))
	incoming := make(map[string][]*Edge, len(opts.Nodes))
	seen := make(map[string]bool, len(opts.Edges))
	for _, edge := range opts.Edges {
		if _, ok := nodesByID[edge.From]; !ok {
			return nil, NewGraphError(fmt.Sprintf("edge references unknown source node %q", edge.From), nil)
		}
		if _, ok := nodesByID[edge.To]; !ok {
			return nil, NewGraphError(fmt.Sprintf("edge references unknown target node %q", edge.To), nil)
		}
		if edge.From == edge.To {
			return nil, NewGraphError(fmt.Sprintf("node %q has an edge to itself", edge.From), nil)
		}
		key := edge.From + "\x00" + edge.To + "\x00" + edge.Branch
		if seen[key] {
			return nil, NewGraphError(fmt.Sprintf("duplicate edge from %q to %q", edge.From, edge.To), nil)
		}
		seen[key] = true
		outgoing[edge.From] = append(outgoing[edge.From], edge)
		incoming[edge.To] = append(incoming[edge.To], edge)
	}

	g := &Graph{
		name:        opts.Name,
		description: opts.Description,
		nodes:       opts.Nodes,
		nodesByID:   nodesByID,
		edges:       opts.Edges,
		inputs:      opts.Inputs,
		outgoing:    outgoing,
		incoming:    incoming,
	}

	// The sequencer doubles as the cycle check. The resulting order is
	// cached so runs don't recompute it.
	order, err := Sequence(g)
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Description returns the graph description.
func (g *Graph) Description() string {
	return g.description
}

// Inputs returns the declared run input parameters.
func (g *Graph) Inputs() []*Input {
	return g.inputs
}

// Nodes returns the graph nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Edges returns all edges in the graph.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// GetNode returns a node by id.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, ok := g.nodesByID[id]
	return node, ok
}

// NodeIDs returns the ids of all nodes, sorted.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodesByID))
	for id := range g.nodesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Outgoing returns the edges leaving the given node.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}

// Incoming returns the edges entering the given node.
func (g *Graph) Incoming(nodeID string) []*Edge {
	return g.incoming[nodeID]
}

// Order returns node ids in topological order, computed at construction.
func (g *Graph) Order() []string {
	return g.order
}

// LoadFile loads a graph from a YAML file.
func LoadFile(path string) (*Graph, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(yamlData, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph file: %w", err)
	}
	return New(opts)
}

// LoadString loads a graph from a YAML string.
func LoadString(data string) (*Graph, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph definition: %w", err)
	}
	return New(opts)
}
