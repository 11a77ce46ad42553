package algorithms

import (
	"context"
	"fmt"

	"github.com/narrative-kg/extract/pkg/graph"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// GraphTraversal walks a knowledge graph outward from a start node,
// following relation edges in both directions.
type GraphTraversal struct {
	graph graph.KnowledgeGraph
}

func NewGraphTraversal(g graph.KnowledgeGraph) *GraphTraversal {
	return &GraphTraversal{graph: g}
}

// Traverse visits nodes reachable from startID within maxDepth hops.
// pred restricts which edges are followed; empty follows all.
func (t *GraphTraversal) Traverse(ctx context.Context, startID string, maxDepth int, traversalType TraversalType, pred graph.Predicate) ([]graph.Node, error) {
	visited := make(map[string]bool)
	result := make([]graph.Node, 0)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startID, maxDepth, pred, visited)
	case DFS:
		return t.dfs(ctx, startID, maxDepth, pred, visited, &result)
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(ctx context.Context, startID string, maxDepth int, pred graph.Predicate, visited map[string]bool) ([]graph.Node, error) {
	queue := []string{startID}
	result := make([]graph.Node, 0)
	depth := 0

	for len(queue) > 0 && depth < maxDepth {
		levelSize := len(queue)
		for i := 0; i < levelSize; i++ {
			current := queue[0]
			queue = queue[1:]

			if visited[current] {
				continue
			}
			visited[current] = true

			node, err := t.graph.GetNode(ctx, current)
			if err != nil {
				return nil, err
			}
			result = append(result, *node)

			related, err := t.graph.GetRelatedNodes(ctx, current, pred)
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				if !visited[r.ID] {
					queue = append(queue, r.ID)
				}
			}
		}
		depth++
	}

	return result, nil
}

func (t *GraphTraversal) dfs(ctx context.Context, currentID string, maxDepth int, pred graph.Predicate, visited map[string]bool, result *[]graph.Node) ([]graph.Node, error) {
	if maxDepth < 0 || visited[currentID] {
		return *result, nil
	}

	visited[currentID] = true
	node, err := t.graph.GetNode(ctx, currentID)
	if err != nil {
		return nil, err
	}
	*result = append(*result, *node)

	related, err := t.graph.GetRelatedNodes(ctx, currentID, pred)
	if err != nil {
		return nil, err
	}
	for _, r := range related {
		if !visited[r.ID] {
			if _, err := t.dfs(ctx, r.ID, maxDepth-1, pred, visited, result); err != nil {
				return nil, err
			}
		}
	}

	return *result, nil
}
