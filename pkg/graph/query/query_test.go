package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func testData() *graph.KnowledgeGraphData {
	return &graph.KnowledgeGraphData{
		Nodes: []graph.Node{
			{ID: "n1", Label: "Aragorn", Type: "PERSON", MentionCount: 5},
			{ID: "n2", Label: "Arwen", Type: "PERSON", MentionCount: 2},
			{ID: "n3", Label: "Gondor", Type: "PLACE", MentionCount: 3},
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "n1", Target: "n2", Type: "married_to", Weight: 0.9},
			{ID: "e2", Source: "n1", Target: "n3", Type: "rules", Weight: 0.75},
		},
		GeneratedAt: time.Unix(0, 0).UTC(),
	}
}

func TestMatchNodesByType(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	nodes, err := ex.ExecuteNodes(NewQuery(MatchNodes).WithNodeType("PERSON"))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, "PERSON", n.Type)
	}
}

func TestMatchNodesWithFilter(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	q := NewQuery(MatchNodes).
		WithNodeType("PERSON").
		AddFilter(Filter{Field: "mention_count", Operator: "gt", Value: 3})

	nodes, err := ex.ExecuteNodes(q)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Aragorn", nodes[0].Label)
}

func TestMatchEdgesByPredicate(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	edges, err := ex.ExecuteEdges(NewQuery(MatchEdges).WithPredicate("married_to"))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "n2", edges[0].Target)
}

func TestMatchEdgesByWeight(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	q := NewQuery(MatchEdges).AddFilter(Filter{Field: "weight", Operator: "gte", Value: 0.8})
	edges, err := ex.ExecuteEdges(q)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "married_to", edges[0].Type)
}

func TestLimitAndSkip(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	nodes, err := ex.ExecuteNodes(NewQuery(MatchNodes).SetLimit(2))
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	nodes, err = ex.ExecuteNodes(NewQuery(MatchNodes).SetSkip(2))
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = ex.ExecuteNodes(NewQuery(MatchNodes).SetSkip(99))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestNoMatchesReturnsEmpty(t *testing.T) {
	ex, err := NewExecutor(testData())
	require.NoError(t, err)

	nodes, err := ex.ExecuteNodes(NewQuery(MatchNodes).WithNodeType("SPECIES"))
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestQueryStringRendersJSON(t *testing.T) {
	q := NewQuery(MatchNodes).WithNodeType("PERSON").SetLimit(5)
	s := q.String()
	assert.Contains(t, s, "MATCH_NODES")
	assert.Contains(t, s, "PERSON")
}
