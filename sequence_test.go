package dagflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, ids []string, edges []*Edge) *Graph {
	t.Helper()
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = &Node{ID: id, Kind: NodeKindCompute}
	}
	g, err := New(Options{Name: "t", Nodes: nodes, Edges: edges})
	require.NoError(t, err)
	return g
}

func TestSequenceDiamond(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c", "d"},
		[]*Edge{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		})

	order, err := Sequence(g)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, order)

	levels, err := Levels(g)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, levels)
}

func TestSequenceDeterministicByDeclaration(t *testing.T) {
	// z declared before m; both are roots, so z must come first even
	// though m sorts lower lexically.
	g := buildGraph(t, []string{"z", "m", "end"}, []*Edge{
		{From: "z", To: "end"},
		{From: "m", To: "end"},
	})
	for range 10 {
		order, err := Sequence(g)
		require.NoError(t, err)
		require.Equal(t, []string{"z", "m", "end"}, order)
	}
}

func TestSequenceIgnoresBranchLabels(t *testing.T) {
	g := buildGraph(t, []string{"gate", "yes", "no"}, []*Edge{
		{From: "gate", To: "yes", Branch: "true"},
		{From: "gate", To: "no", Branch: "false"},
	})
	order, err := Sequence(g)
	require.NoError(t, err)
	require.Equal(t, []string{"gate", "yes", "no"}, order)
}

func TestSequenceCycleDetection(t *testing.T) {
	nodes := []*Node{
		{ID: "a", Kind: NodeKindCompute},
		{ID: "b", Kind: NodeKindCompute},
		{ID: "c", Kind: NodeKindCompute},
		{ID: "solo", Kind: NodeKindCompute},
	}
	_, err := New(Options{
		Name:  "cyclic",
		Nodes: nodes,
		Edges: []*Edge{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "c", To: "a"},
		},
	})
	require.Error(t, err)

	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Nodes)
	require.NotContains(t, cycleErr.Nodes, "solo")
	require.Contains(t, err.Error(), "cycle detected")
}
