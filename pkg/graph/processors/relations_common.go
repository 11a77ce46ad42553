package processors

import (
	"fmt"
	"math"
	"strings"

	"github.com/narrative-kg/extract/pkg/graph"
)

// RelationStats counts what a relation inducer produced and silently
// dropped, for diagnostics (spec.md §7: GuardViolation/LowConfidence
// never surface as errors).
type RelationStats struct {
	Candidates   int
	GuardDropped int
}

// mention is an entity span scoped to the sentence it falls in, with its
// resolved head token index (the token that best anchors the mention in
// the dependency graph).
type mention struct {
	EntityID  string
	Canonical string
	Type      graph.EntityType
	Start     int
	End       int
	HeadTok   int // index into the owning sentence's Tokens
}

// mentionsInSentence collects every non-virtual entity span (plus,
// optionally, coref-resolved virtual spans) whose range falls inside
// sent, resolving each to its head token.
func mentionsInSentence(sent graph.ParsedSentence, entitiesByID map[string]*graph.Entity, spans []graph.Span) []mention {
	var out []mention
	for _, sp := range spans {
		if sp.Start < sent.Start || sp.End > sent.End {
			continue
		}
		e, ok := entitiesByID[sp.EntityID]
		if !ok {
			continue
		}
		head := headTokenFor(sent, sp.Start, sp.End)
		if head < 0 {
			continue
		}
		out = append(out, mention{
			EntityID:  e.ID,
			Canonical: e.Canonical,
			Type:      e.Type,
			Start:     sp.Start,
			End:       sp.End,
			HeadTok:   head,
		})
	}
	return out
}

// headTokenFor picks the rightmost token inside [start,end) — for a
// multi-word proper noun mention ("Harry Potter") the last token is
// conventionally the syntactic head under prose's POS-adjacency parse.
func headTokenFor(sent graph.ParsedSentence, start, end int) int {
	best := -1
	for i, t := range sent.Tokens {
		if t.Start >= start && t.End <= end {
			best = i
		}
	}
	return best
}

// shortestDepPath runs an undirected BFS over the sentence's head/dep
// edges between token indices a and b, capped at maxLen edges. It
// returns the path's token indices (inclusive) or nil if none within cap.
func shortestDepPath(sent graph.ParsedSentence, a, b, maxLen int) []int {
	if a == b {
		return []int{a}
	}
	n := len(sent.Tokens)
	adj := make([][]int, n)
	for i, t := range sent.Tokens {
		if t.HeadIndex != i {
			adj[i] = append(adj[i], t.HeadIndex)
			adj[t.HeadIndex] = append(adj[t.HeadIndex], i)
		}
	}

	prev := make(map[int]int)
	visited := make(map[int]bool)
	queue := []int{a}
	visited[a] = true
	depth := map[int]int{a: 0}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if depth[cur] >= maxLen {
			continue
		}
		for _, next := range adj[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			depth[next] = depth[cur] + 1
			if next == b {
				return reconstructPath(prev, a, b)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reconstructPath(prev map[int]int, a, b int) []int {
	path := []int{b}
	cur := b
	for cur != a {
		cur = prev[cur]
		path = append([]int{cur}, path...)
	}
	return path
}

// pathSignature compresses a token-index path into "pos:dep:pos:dep:..."
// for PathPattern matching (spec.md §4.7(a)).
func pathSignature(sent graph.ParsedSentence, path []int) string {
	var b strings.Builder
	for i, idx := range path {
		t := sent.Tokens[idx]
		if i > 0 {
			b.WriteString(":")
		}
		b.WriteString(t.POS)
		if i < len(path)-1 {
			b.WriteString(":")
			b.WriteString(depEdgeLabel(sent, idx, path[i+1]))
		}
	}
	return b.String()
}

func depEdgeLabel(sent graph.ParsedSentence, from, to int) string {
	if sent.Tokens[from].HeadIndex == to {
		return sent.Tokens[from].DepLabel
	}
	if sent.Tokens[to].HeadIndex == from {
		return sent.Tokens[to].DepLabel
	}
	return "dep"
}

// PathPattern declares one closed-library shortest-path signature that
// implies a predicate (spec.md §4.7(a)).
type PathPattern struct {
	Signature    string
	Pred         graph.Predicate
	SubjectFirst bool
	BaseConf     float64
}

// pathPatterns is deliberately small: prose's POS-adjacency parse can't
// support the breadth a real UD treebank would, so only high-precision
// subject-verb-object shapes are listed. Everything else falls through
// to trigger-pattern matching (b).
var pathPatterns = []PathPattern{
	{Signature: "NNP:nsubj:VB:dobj:NNP", Pred: PredFor("member_of"), SubjectFirst: true, BaseConf: 0.88},
	{Signature: "NNP:nsubj:VBD:dobj:NNP", Pred: PredFor("member_of"), SubjectFirst: true, BaseConf: 0.88},
}

// PredFor is a small indirection so pathPatterns above reads as data; it
// just validates the predicate exists in the closed table.
func PredFor(s string) graph.Predicate {
	p := graph.Predicate(s)
	if _, ok := graph.Predicates[p]; !ok {
		panic(fmt.Sprintf("unknown predicate in path pattern table: %s", s))
	}
	return p
}

// confidenceFromDistance implements spec.md §4.7 "Confidence":
// min(1, 0.9 · type_bonus · exp(−char_dist/80)).
func confidenceFromDistance(charDist int, typeBonus float64) float64 {
	c := 0.9 * typeBonus * math.Exp(-float64(charDist)/80.0)
	if c > 1 {
		c = 1
	}
	return c
}

// passesTypeGuard checks the predicate's (subj_type, obj_type) guard.
func passesTypeGuard(pred graph.Predicate, subjType, objType graph.EntityType) bool {
	def, ok := graph.Predicates[pred]
	if !ok {
		return false
	}
	return def.AllowsTypes(subjType, objType)
}

// extractQualifiers implements spec.md §4.7 "Qualifier extraction":
// DATE entities within ±80 chars of the trigger become time qualifiers;
// PLACE entities farther than 15 chars from the trigger (avoiding the
// object itself) become place qualifiers.
func extractQualifiers(triggerPos int, objStart, objEnd int, allMentions []mention) []graph.Qualifier {
	var out []graph.Qualifier
	for _, m := range allMentions {
		dist := charDistance(triggerPos, m.Start, m.End)
		if dist > 80 {
			continue
		}
		if m.Start >= objStart && m.End <= objEnd {
			continue
		}
		switch m.Type {
		case graph.EntityDate:
			out = append(out, graph.Qualifier{
				Kind:     graph.QualifierTime,
				Value:    m.Canonical,
				EntityID: m.EntityID,
				Span:     graph.Evidence{Start: m.Start, End: m.End, Text: m.Canonical},
			})
		case graph.EntityPlace:
			if dist > 15 {
				out = append(out, graph.Qualifier{
					Kind:     graph.QualifierPlace,
					Value:    m.Canonical,
					EntityID: m.EntityID,
					Span:     graph.Evidence{Start: m.Start, End: m.End, Text: m.Canonical},
				})
			}
		}
	}
	return out
}

func charDistance(pos, start, end int) int {
	if pos < start {
		return start - pos
	}
	if pos > end {
		return pos - end
	}
	return 0
}

// coordinatedMentions returns mentions sharing a "conj" chain with the
// head mention's head token (spec.md §4.7(c)).
func coordinatedMentions(sent graph.ParsedSentence, head mention, all []mention) []mention {
	var out []mention
	for _, m := range all {
		if m.EntityID == head.EntityID {
			continue
		}
		if sent.Tokens[m.HeadTok].DepLabel == "conj" && sent.Tokens[m.HeadTok].HeadIndex == head.HeadTok {
			out = append(out, m)
		}
		if sent.Tokens[head.HeadTok].DepLabel == "conj" && sent.Tokens[head.HeadTok].HeadIndex == m.HeadTok {
			out = append(out, m)
		}
	}
	return out
}

func newRelation(id string, subj graph.Entity, pred graph.Predicate, obj graph.Entity, conf float64, extractor graph.Extractor, evidence graph.Evidence, qualifiers []graph.Qualifier) graph.Relation {
	return graph.Relation{
		ID:         id,
		Subj:       subj.ID,
		Pred:       pred,
		Obj:        obj.ID,
		Evidence:   []graph.Evidence{evidence},
		Confidence: conf,
		Extractor:  extractor,
		Qualifiers: qualifiers,
	}
}
