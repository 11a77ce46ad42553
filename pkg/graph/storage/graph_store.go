// Package storage provides persistence backends for extraction results:
// a JSON file store (the recommended layout of spec.md §6), a Neo4j
// adapter, and an XLSX exporter for analyst consumption.
package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/narrative-kg/extract/pkg/graph"
)

// GraphStore defines an interface for storing merged knowledge graphs.
type GraphStore interface {
	// StoreGraph persists a knowledge graph
	StoreGraph(ctx context.Context, data *graph.KnowledgeGraphData) error

	// LoadGraph loads a knowledge graph from storage
	LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error)
}

// JSONGraphStore implements GraphStore and graph.KnowledgeGraphStore
// using a single JSON file: top-level entities, relations and documents
// arrays, evidence spans carrying document IDs and absolute offsets.
type JSONGraphStore struct {
	filePath string
	mu       sync.Mutex
	merged   *graph.MemoryKnowledgeGraph
}

// NewJSONGraphStore creates a new JSON graph store.
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
		merged:   graph.NewMemoryKnowledgeGraph(),
	}
}

// Connect implements graph.KnowledgeGraphStore. Nothing to open for a
// file store.
func (s *JSONGraphStore) Connect(ctx context.Context) error { return nil }

// Close flushes the accumulated graph to disk.
func (s *JSONGraphStore) Close() error {
	return s.StoreGraph(context.Background(), s.merged.Data())
}

// StoreResult merges one document's result into the accumulated graph
// and rewrites the file.
func (s *JSONGraphStore) StoreResult(ctx context.Context, docID string, result *graph.ExtractionResult) error {
	docLen := 0
	for _, sp := range result.Spans {
		if sp.End > docLen {
			docLen = sp.End
		}
	}
	if err := s.merged.AddResult(ctx, docID, docLen, result); err != nil {
		return err
	}
	return s.StoreGraph(ctx, s.merged.Data())
}

// StoreGraph stores the knowledge graph as JSON.
func (s *JSONGraphStore) StoreGraph(ctx context.Context, data *graph.KnowledgeGraphData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, encoded, 0644)
}

// LoadGraph loads a knowledge graph from a JSON file.
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, err
	}

	var data graph.KnowledgeGraphData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
