package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Node is the persisted/visualized projection of an Entity. JSON tags
// match what the D3 visualizer template and the inspect TUI expect.
type Node struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"` // canonical name
	Type         string   `json:"type"`
	Aliases      []string `json:"aliases,omitempty"`
	MentionCount int      `json:"mention_count"`
	EID          int      `json:"eid,omitempty"`
	AID          int      `json:"aid,omitempty"`
	SP           []int    `json:"sp,omitempty"`
	Sources      []string `json:"sources,omitempty"` // document IDs
}

// EdgeEvidence is one evidence citation on an Edge, carrying the owning
// document so cross-document merges stay attributable (spec.md §6
// "each relation carries its evidence spans by document id").
type EdgeEvidence struct {
	DocID string `json:"doc_id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text,omitempty"`
}

// Edge is the persisted projection of a Relation.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"` // predicate
	Weight     float64        `json:"weight"`
	Extractor  string         `json:"extractor,omitempty"`
	Evidence   []EdgeEvidence `json:"evidence,omitempty"`
	Qualifiers []Qualifier    `json:"qualifiers,omitempty"`
}

// DocumentRecord is the per-document entry of a persisted graph.
type DocumentRecord struct {
	ID     string `json:"id"`
	Length int    `json:"length"`
}

// KnowledgeGraphData is the recommended persisted layout (spec.md §6):
// one JSON object with entities, relations and documents arrays.
type KnowledgeGraphData struct {
	Nodes       []Node           `json:"entities"`
	Edges       []Edge           `json:"relations"`
	Documents   []DocumentRecord `json:"documents"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// KnowledgeGraph is the in-memory graph contract consumed by the
// traversal algorithms and the inspect tooling.
type KnowledgeGraph interface {
	AddResult(ctx context.Context, docID string, docLen int, result *ExtractionResult) error
	GetNode(ctx context.Context, id string) (*Node, error)
	GetRelatedNodes(ctx context.Context, id string, pred Predicate) ([]Node, error)
	Query(ctx context.Context, path string) (string, error)
	Data() *KnowledgeGraphData
}

// MemoryKnowledgeGraph accumulates extraction results into one merged
// graph, deduplicating nodes by (type, lowercased canonical) so a second
// document mentioning the same entity extends the existing node.
type MemoryKnowledgeGraph struct {
	data      *KnowledgeGraphData
	nodeIdx   map[string]int    // node ID -> index into data.Nodes
	nodeByKey map[string]string // type|lower(canonical) -> node ID
	edgeIdx   map[string]int    // edge ID -> index into data.Edges
	docSeen   map[string]bool
	mutex     sync.RWMutex
	logger    *logrus.Logger

	// queryJSON caches the marshaled graph for gjson lookups; cleared on
	// every mutation.
	queryJSON []byte
}

// NewMemoryKnowledgeGraph creates an empty in-memory knowledge graph.
func NewMemoryKnowledgeGraph() *MemoryKnowledgeGraph {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &MemoryKnowledgeGraph{
		data: &KnowledgeGraphData{
			Nodes:       make([]Node, 0),
			Edges:       make([]Edge, 0),
			Documents:   make([]DocumentRecord, 0),
			GeneratedAt: time.Now(),
		},
		nodeIdx:   make(map[string]int),
		nodeByKey: make(map[string]string),
		edgeIdx:   make(map[string]int),
		docSeen:   make(map[string]bool),
		logger:    logger,
	}
}

// FromData rehydrates a MemoryKnowledgeGraph from a persisted graph,
// so loaded JSON files support the same lookups and traversals as a
// freshly built graph.
func FromData(data *KnowledgeGraphData) *MemoryKnowledgeGraph {
	g := NewMemoryKnowledgeGraph()
	if data == nil {
		return g
	}
	g.data = data
	for i := range data.Nodes {
		g.nodeIdx[data.Nodes[i].ID] = i
		g.nodeByKey[nodeKey(data.Nodes[i].Type, data.Nodes[i].Label)] = data.Nodes[i].ID
	}
	for i := range data.Edges {
		g.edgeIdx[data.Edges[i].ID] = i
	}
	for _, d := range data.Documents {
		g.docSeen[d.ID] = true
	}
	return g
}

func nodeKey(entType, canonical string) string {
	return entType + "|" + lowerASCII(canonical)
}

func lowerASCII(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] >= 'A' && out[i] <= 'Z' {
			out[i] += 'a' - 'A'
		}
	}
	return string(out)
}

// AddResult merges one document's ExtractionResult into the graph.
// Already-seen documents are skipped so re-ingestion is idempotent.
func (g *MemoryKnowledgeGraph) AddResult(ctx context.Context, docID string, docLen int, result *ExtractionResult) error {
	if result == nil {
		return fmt.Errorf("cannot add nil result to graph")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.docSeen[docID] {
		return nil
	}
	g.docSeen[docID] = true
	g.data.Documents = append(g.data.Documents, DocumentRecord{ID: docID, Length: docLen})

	// entityID (per-document) -> merged node ID.
	idMap := make(map[string]string, len(result.Entities))

	for i := range result.Entities {
		ent := &result.Entities[i]
		key := nodeKey(string(ent.Type), ent.Canonical)

		if existingID, ok := g.nodeByKey[key]; ok {
			node := &g.data.Nodes[g.nodeIdx[existingID]]
			node.MentionCount += ent.MentionCount
			node.Sources = appendUnique(node.Sources, docID)
			node.Aliases = mergeAliases(node.Aliases, ent.AliasSlice())
			if node.EID == 0 && ent.EID != 0 {
				node.EID, node.AID, node.SP = ent.EID, ent.AID, ent.SP
			}
			idMap[ent.ID] = existingID
			continue
		}

		node := Node{
			ID:           ent.ID,
			Label:        ent.Canonical,
			Type:         string(ent.Type),
			Aliases:      ent.AliasSlice(),
			MentionCount: ent.MentionCount,
			EID:          ent.EID,
			AID:          ent.AID,
			SP:           ent.SP,
			Sources:      []string{docID},
		}
		g.data.Nodes = append(g.data.Nodes, node)
		g.nodeIdx[node.ID] = len(g.data.Nodes) - 1
		g.nodeByKey[key] = node.ID
		idMap[ent.ID] = node.ID
	}

	for _, rel := range result.Relations {
		source, okS := idMap[rel.Subj]
		target, okT := idMap[rel.Obj]
		if !okS || !okT {
			g.logger.WithFields(logrus.Fields{
				"doc_id":    docID,
				"predicate": rel.Pred,
			}).Warn("Skipping relation with unknown entities")
			continue
		}

		evidence := make([]EdgeEvidence, 0, len(rel.Evidence))
		for _, ev := range rel.Evidence {
			evidence = append(evidence, EdgeEvidence{DocID: docID, Start: ev.Start, End: ev.End, Text: ev.Text})
		}

		edgeID := fmt.Sprintf("%s-%s-%s", source, rel.Pred, target)
		if idx, ok := g.edgeIdx[edgeID]; ok {
			existing := &g.data.Edges[idx]
			existing.Evidence = append(existing.Evidence, evidence...)
			if rel.Confidence > existing.Weight {
				existing.Weight = rel.Confidence
			}
			continue
		}

		g.edgeIdx[edgeID] = len(g.data.Edges)
		g.data.Edges = append(g.data.Edges, Edge{
			ID:         edgeID,
			Source:     source,
			Target:     target,
			Type:       string(rel.Pred),
			Weight:     rel.Confidence,
			Extractor:  string(rel.Extractor),
			Evidence:   evidence,
			Qualifiers: rel.Qualifiers,
		})
	}

	g.queryJSON = nil
	return nil
}

// GetNode retrieves a node by merged node ID.
func (g *MemoryKnowledgeGraph) GetNode(ctx context.Context, id string) (*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	idx, ok := g.nodeIdx[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	cp := g.data.Nodes[idx]
	return &cp, nil
}

// GetRelatedNodes returns neighbors of id, optionally restricted to one
// predicate. Both edge directions are followed.
func (g *MemoryKnowledgeGraph) GetRelatedNodes(ctx context.Context, id string, pred Predicate) ([]Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	related := make([]Node, 0)
	for _, edge := range g.data.Edges {
		if pred != "" && edge.Type != string(pred) {
			continue
		}
		var otherID string
		switch id {
		case edge.Source:
			otherID = edge.Target
		case edge.Target:
			otherID = edge.Source
		default:
			continue
		}
		if idx, ok := g.nodeIdx[otherID]; ok {
			related = append(related, g.data.Nodes[idx])
		}
	}
	return related, nil
}

// Query evaluates a gjson path against the graph's JSON form, e.g.
// `entities.#(type=="PERSON")#.label` or `relations.#(weight>0.8)#`.
func (g *MemoryKnowledgeGraph) Query(ctx context.Context, path string) (string, error) {
	g.mutex.Lock()
	if g.queryJSON == nil {
		data, err := json.Marshal(g.data)
		if err != nil {
			g.mutex.Unlock()
			return "", err
		}
		g.queryJSON = data
	}
	raw := g.queryJSON
	g.mutex.Unlock()

	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return "", fmt.Errorf("query matched nothing: %s", path)
	}
	return res.Raw, nil
}

// Data returns the underlying graph data for serialization or
// visualization. Callers must treat it as read-only.
func (g *MemoryKnowledgeGraph) Data() *KnowledgeGraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.data
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func mergeAliases(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			a = append(a, v)
		}
	}
	return a
}
