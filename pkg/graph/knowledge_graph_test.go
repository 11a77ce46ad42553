package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *ExtractionResult {
	return &ExtractionResult{
		Entities: []Entity{
			{ID: "e1", Type: EntityPerson, Canonical: "Aragorn", MentionCount: 3, EID: 1, AID: 1, SP: []int{1}},
			{ID: "e2", Type: EntityPerson, Canonical: "Arwen", MentionCount: 2, EID: 2, AID: 2, SP: []int{1}},
		},
		Relations: []Relation{
			{
				ID: "r1", Subj: "e1", Pred: PredMarriedTo, Obj: "e2",
				Confidence: 0.9, Extractor: ExtractorDep,
				Evidence: []Evidence{{Start: 0, End: 24, Text: "Aragorn married Arwen."}},
			},
		},
	}
}

func TestAddResultBuildsNodesAndEdges(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	require.NoError(t, g.AddResult(context.Background(), "doc1", 100, sampleResult()))

	data := g.Data()
	assert.Len(t, data.Nodes, 2)
	assert.Len(t, data.Edges, 1)
	require.Len(t, data.Documents, 1)
	assert.Equal(t, "doc1", data.Documents[0].ID)

	edge := data.Edges[0]
	assert.Equal(t, string(PredMarriedTo), edge.Type)
	assert.Equal(t, 0.9, edge.Weight)
	require.Len(t, edge.Evidence, 1)
	assert.Equal(t, "doc1", edge.Evidence[0].DocID)
}

func TestAddResultMergesAcrossDocuments(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))

	second := sampleResult()
	second.Entities[0].ID = "x1" // per-document IDs differ
	second.Entities[1].ID = "x2"
	second.Relations[0].Subj = "x1"
	second.Relations[0].Obj = "x2"
	require.NoError(t, g.AddResult(ctx, "doc2", 80, second))

	data := g.Data()
	assert.Len(t, data.Nodes, 2, "same (type, canonical) must merge")
	assert.Len(t, data.Edges, 1, "same triple must merge")

	node, err := g.GetNode(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 6, node.MentionCount)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, node.Sources)

	edge := data.Edges[0]
	assert.Len(t, edge.Evidence, 2, "evidence accumulates per document")
}

func TestAddResultIdempotentPerDocument(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))

	assert.Len(t, g.Data().Nodes, 2)
	assert.Len(t, g.Data().Edges, 1)
	assert.Len(t, g.Data().Documents, 1)
}

func TestGetRelatedNodes(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))

	related, err := g.GetRelatedNodes(ctx, "e1", "")
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "Arwen", related[0].Label)

	// Reverse direction is followed too.
	related, err = g.GetRelatedNodes(ctx, "e2", PredMarriedTo)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "Aragorn", related[0].Label)

	related, err = g.GetRelatedNodes(ctx, "e1", PredLivesIn)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestFromDataSupportsLookups(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))

	rebuilt := FromData(g.Data())

	node, err := rebuilt.GetNode(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Aragorn", node.Label)

	related, err := rebuilt.GetRelatedNodes(ctx, "e1", "")
	require.NoError(t, err)
	assert.Len(t, related, 1)

	// A document already in the data is not re-merged.
	require.NoError(t, rebuilt.AddResult(ctx, "doc1", 100, sampleResult()))
	assert.Len(t, rebuilt.Data().Documents, 1)
}

func TestQueryGJSON(t *testing.T) {
	g := NewMemoryKnowledgeGraph()
	ctx := context.Background()
	require.NoError(t, g.AddResult(ctx, "doc1", 100, sampleResult()))

	raw, err := g.Query(ctx, `entities.#(type=="PERSON")#.label`)
	require.NoError(t, err)
	assert.Contains(t, raw, "Aragorn")
	assert.Contains(t, raw, "Arwen")

	raw, err = g.Query(ctx, `relations.#(weight>0.8)#`)
	require.NoError(t, err)
	assert.Contains(t, raw, string(PredMarriedTo))
}
