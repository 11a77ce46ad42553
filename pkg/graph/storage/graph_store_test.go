package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func storedResult() *graph.ExtractionResult {
	return &graph.ExtractionResult{
		Entities: []graph.Entity{
			{ID: "e1", Type: graph.EntityPerson, Canonical: "Aragorn", MentionCount: 2, EID: 1, SP: []int{1}},
			{ID: "e2", Type: graph.EntityPlace, Canonical: "Gondor", MentionCount: 1, EID: 2, SP: []int{1}},
		},
		Spans: []graph.Span{
			{EntityID: "e1", Start: 0, End: 7},
			{EntityID: "e2", Start: 17, End: 23},
		},
		Relations: []graph.Relation{
			{
				ID: "r1", Subj: "e1", Pred: graph.PredRules, Obj: "e2",
				Confidence: 0.88, Extractor: graph.ExtractorDep,
				Evidence: []graph.Evidence{{Start: 0, End: 24, Text: "Aragorn ruled Gondor."}},
			},
		},
	}
}

func TestJSONGraphStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	store := NewJSONGraphStore(path)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.StoreResult(ctx, "doc1", storedResult()))
	require.NoError(t, store.Close())

	loaded, err := NewJSONGraphStore(path).LoadGraph(ctx)
	require.NoError(t, err)

	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	require.Len(t, loaded.Documents, 1)

	edge := loaded.Edges[0]
	assert.Equal(t, string(graph.PredRules), edge.Type)
	assert.Equal(t, 0.88, edge.Weight)
	require.Len(t, edge.Evidence, 1)
	assert.Equal(t, "doc1", edge.Evidence[0].DocID)
	assert.Equal(t, 0, edge.Evidence[0].Start)
	assert.Equal(t, 24, edge.Evidence[0].End)

	var person *graph.Node
	for i := range loaded.Nodes {
		if loaded.Nodes[i].Type == string(graph.EntityPerson) {
			person = &loaded.Nodes[i]
		}
	}
	require.NotNil(t, person)
	assert.Equal(t, "Aragorn", person.Label)
	assert.Equal(t, 1, person.EID)
}

func TestJSONGraphStoreMergesDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	store := NewJSONGraphStore(path)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.StoreResult(ctx, "doc1", storedResult()))
	require.NoError(t, store.StoreResult(ctx, "doc2", storedResult()))
	require.NoError(t, store.Close())

	loaded, err := NewJSONGraphStore(path).LoadGraph(ctx)
	require.NoError(t, err)

	assert.Len(t, loaded.Nodes, 2, "same canonical entities merge across documents")
	assert.Len(t, loaded.Documents, 2)
}

func TestXLSXExporterWritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.xlsx")
	exporter := NewXLSXExporter(path)
	ctx := context.Background()

	require.NoError(t, exporter.Connect(ctx))
	require.NoError(t, exporter.StoreResult(ctx, "doc1", storedResult()))
	require.NoError(t, exporter.Close())

	assert.FileExists(t, path)
}

func TestXLSXExporterRequiresConnect(t *testing.T) {
	exporter := NewXLSXExporter(filepath.Join(t.TempDir(), "graph.xlsx"))
	err := exporter.StoreResult(context.Background(), "doc1", storedResult())
	assert.Error(t, err)
}
