// Package query offers a small structured query layer over a merged
// knowledge graph: a fluent builder plus a gjson-backed executor.
package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/narrative-kg/extract/pkg/graph"
)

type QueryType string

const (
	MatchNodes QueryType = "MATCH_NODES"
	MatchEdges QueryType = "MATCH_EDGES"
)

// Filter is one field comparison applied to the matched collection.
// Operators: eq, neq, gt, gte, lt, lte, contains.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Query selects nodes or edges, filtered and paginated.
type Query struct {
	Type     QueryType `json:"type"`
	NodeType string    `json:"node_type,omitempty"`
	Pred     string    `json:"predicate,omitempty"`
	Filters  []Filter  `json:"filters"`
	Limit    int       `json:"limit"`
	Skip     int       `json:"skip"`
}

func NewQuery(queryType QueryType) *Query {
	return &Query{
		Type:    queryType,
		Filters: make([]Filter, 0),
	}
}

func (q *Query) WithNodeType(t string) *Query {
	q.NodeType = t
	return q
}

func (q *Query) WithPredicate(p string) *Query {
	q.Pred = p
	return q
}

func (q *Query) AddFilter(filter Filter) *Query {
	q.Filters = append(q.Filters, filter)
	return q
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetSkip(skip int) *Query {
	q.Skip = skip
	return q
}

func (q *Query) String() string {
	data, _ := json.MarshalIndent(q, "", "  ")
	return string(data)
}

// gjsonPath renders the query as a gjson multi-match path over the
// persisted graph layout ("entities"/"relations" arrays).
func (q *Query) gjsonPath() string {
	var b strings.Builder
	switch q.Type {
	case MatchEdges:
		b.WriteString("relations")
	default:
		b.WriteString("entities")
	}

	conds := make([]string, 0, len(q.Filters)+1)
	if q.Type == MatchNodes && q.NodeType != "" {
		conds = append(conds, fmt.Sprintf(`type=="%s"`, q.NodeType))
	}
	if q.Type == MatchEdges && q.Pred != "" {
		conds = append(conds, fmt.Sprintf(`type=="%s"`, q.Pred))
	}
	for _, f := range q.Filters {
		op, ok := gjsonOperators[f.Operator]
		if !ok {
			continue
		}
		switch v := f.Value.(type) {
		case string:
			conds = append(conds, fmt.Sprintf(`%s%s"%s"`, f.Field, op, v))
		default:
			conds = append(conds, fmt.Sprintf(`%s%s%v`, f.Field, op, v))
		}
	}

	for i, cond := range conds {
		// "|" applies the next query to the filtered array as a whole;
		// "." would apply it to each element instead.
		if i == 0 {
			b.WriteString(".#(")
		} else {
			b.WriteString("|#(")
		}
		b.WriteString(cond)
		b.WriteString(")#")
	}
	return b.String()
}

var gjsonOperators = map[string]string{
	"eq":       "==",
	"neq":      "!=",
	"gt":       ">",
	"gte":      ">=",
	"lt":       "<",
	"lte":      "<=",
	"contains": "%",
}

// Executor evaluates queries against one graph snapshot.
type Executor struct {
	raw []byte
}

// NewExecutor snapshots data for querying.
func NewExecutor(data *graph.KnowledgeGraphData) (*Executor, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Executor{raw: raw}, nil
}

// Execute runs q and returns the matched items as raw JSON messages.
func (e *Executor) Execute(q *Query) ([]json.RawMessage, error) {
	res := gjson.GetBytes(e.raw, q.gjsonPath())
	if !res.Exists() {
		return nil, nil
	}

	var out []json.RawMessage
	res.ForEach(func(_, item gjson.Result) bool {
		out = append(out, json.RawMessage(item.Raw))
		return true
	})

	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return nil, nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// ExecuteNodes runs a node query and unmarshals the matches.
func (e *Executor) ExecuteNodes(q *Query) ([]graph.Node, error) {
	raw, err := e.Execute(q)
	if err != nil {
		return nil, err
	}
	nodes := make([]graph.Node, 0, len(raw))
	for _, item := range raw {
		var n graph.Node
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ExecuteEdges runs an edge query and unmarshals the matches.
func (e *Executor) ExecuteEdges(q *Query) ([]graph.Edge, error) {
	raw, err := e.Execute(q)
	if err != nil {
		return nil, err
	}
	edges := make([]graph.Edge, 0, len(raw))
	for _, item := range raw {
		var ed graph.Edge
		if err := json.Unmarshal(item, &ed); err != nil {
			return nil, err
		}
		edges = append(edges, ed)
	}
	return edges, nil
}
