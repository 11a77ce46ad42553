package algorithms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

// chainGraph builds a1 -married_to-> a2 -parent_of-> a3, disconnected a4.
func chainGraph() graph.KnowledgeGraph {
	return graph.FromData(&graph.KnowledgeGraphData{
		Nodes: []graph.Node{
			{ID: "a1", Label: "Aragorn", Type: "PERSON"},
			{ID: "a2", Label: "Arwen", Type: "PERSON"},
			{ID: "a3", Label: "Eldarion", Type: "PERSON"},
			{ID: "a4", Label: "Gondor", Type: "PLACE"},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "a1", Target: "a2", Type: "married_to", Weight: 0.9},
			{ID: "e2", Source: "a2", Target: "a3", Type: "parent_of", Weight: 0.85},
		},
		GeneratedAt: time.Unix(0, 0).UTC(),
	})
}

func TestBFSReachesConnectedComponent(t *testing.T) {
	tr := NewGraphTraversal(chainGraph())

	nodes, err := tr.Traverse(context.Background(), "a1", 3, BFS, "")
	require.NoError(t, err)

	labels := make(map[string]bool)
	for _, n := range nodes {
		labels[n.Label] = true
	}
	assert.True(t, labels["Aragorn"])
	assert.True(t, labels["Arwen"])
	assert.True(t, labels["Eldarion"])
	assert.False(t, labels["Gondor"], "disconnected node is unreachable")
}

func TestBFSDepthLimit(t *testing.T) {
	tr := NewGraphTraversal(chainGraph())

	nodes, err := tr.Traverse(context.Background(), "a1", 1, BFS, "")
	require.NoError(t, err)
	require.Len(t, nodes, 1, "depth 1 visits only the start node")
	assert.Equal(t, "Aragorn", nodes[0].Label)
}

func TestDFSVisitsAllReachable(t *testing.T) {
	tr := NewGraphTraversal(chainGraph())

	nodes, err := tr.Traverse(context.Background(), "a1", 5, DFS, "")
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestTraversePredicateRestriction(t *testing.T) {
	tr := NewGraphTraversal(chainGraph())

	nodes, err := tr.Traverse(context.Background(), "a1", 5, BFS, graph.Predicate("married_to"))
	require.NoError(t, err)

	labels := make(map[string]bool)
	for _, n := range nodes {
		labels[n.Label] = true
	}
	assert.True(t, labels["Arwen"])
	assert.False(t, labels["Eldarion"], "parent_of edges are not followed")
}

func TestTraverseUnknownType(t *testing.T) {
	tr := NewGraphTraversal(chainGraph())
	_, err := tr.Traverse(context.Background(), "a1", 3, TraversalType("WALK"), "")
	assert.Error(t, err)
}
