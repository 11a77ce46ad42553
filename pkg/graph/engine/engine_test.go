package engine

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/identity"
)

func TestExtractEmptyDocument(t *testing.T) {
	e := New(nil)

	result, err := e.Extract(context.Background(), "doc1", "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Spans)
	assert.Empty(t, result.Relations)
}

func TestExtractRejectsInvalidUTF8(t *testing.T) {
	e := New(nil)

	_, err := e.Extract(context.Background(), "doc1", "bad \xff\xfe bytes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrMalformedInput))
}

func TestExtractCancelledContext(t *testing.T) {
	e := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, "doc1", "Harry went to London.")
	require.Error(t, err)
}

// sampleText exercises NER, coreference, relation induction and the
// global pass without depending on any single extraction firing.
const sampleText = `Barack Obama studied at Harvard University. Barack Obama lived in Washington.

Michelle Obama married Barack Obama. She traveled to Chicago.`

func TestExtractUniversalInvariants(t *testing.T) {
	cfg := graph.DefaultConfig()
	e := New(cfg)

	result, err := e.Extract(context.Background(), "doc1", sampleText)
	require.NoError(t, err)
	require.NotNil(t, result)

	byID := make(map[string]*graph.Entity)
	seenCanonical := make(map[string]bool)
	for i := range result.Entities {
		ent := &result.Entities[i]
		byID[ent.ID] = ent

		// Invariant 2: canonical non-empty, not a pronoun, unique per type.
		require.NotEmpty(t, strings.TrimSpace(ent.Canonical))
		key := string(ent.Type) + "|" + strings.ToLower(ent.Canonical)
		assert.False(t, seenCanonical[key], "duplicate canonical %q", ent.Canonical)
		seenCanonical[key] = true

		// Pronouns never appear in alias sets (invariant 8).
		for alias := range ent.Aliases {
			assert.NotContains(t, []string{"he", "she", "it", "they"}, strings.ToLower(alias))
		}
	}

	for _, sp := range result.Spans {
		assert.False(t, sp.Virtual, "virtual spans are never exported")
		require.LessOrEqual(t, 0, sp.Start)
		require.LessOrEqual(t, sp.End, len(sampleText))
		_, ok := byID[sp.EntityID]
		assert.True(t, ok, "span references a surviving entity")
	}

	tripleSeen := make(map[string]bool)
	for _, r := range result.Relations {
		// Invariant 1: subj != obj and type guard holds.
		assert.NotEqual(t, r.Subj, r.Obj)
		subj, okS := byID[r.Subj]
		obj, okO := byID[r.Obj]
		require.True(t, okS && okO)
		def, ok := graph.Predicates[r.Pred]
		require.True(t, ok, "unknown predicate %s", r.Pred)
		assert.True(t, def.AllowsTypes(subj.Type, obj.Type),
			"%s(%s,%s) violates the guard", r.Pred, subj.Type, obj.Type)

		// Invariant 7: confidence at or above the floor.
		assert.GreaterOrEqual(t, r.Confidence, cfg.MinConfidence)

		// Invariant 6: no duplicate triples after dedup.
		key := r.Subj + "|" + string(r.Pred) + "|" + r.Obj
		assert.False(t, tripleSeen[key], "duplicate triple %s", key)
		tripleSeen[key] = true

		// At least one evidence span inside the document.
		require.NotEmpty(t, r.Evidence)
		for _, ev := range r.Evidence {
			assert.LessOrEqual(t, 0, ev.Start)
			assert.LessOrEqual(t, ev.End, len(sampleText))
		}
	}

	// Invariants 4 and 5: inverses and symmetric mirrors exist.
	for _, r := range result.Relations {
		def := graph.Predicates[r.Pred]
		if def.Inverse != "" {
			assert.True(t, tripleSeen[r.Obj+"|"+string(def.Inverse)+"|"+r.Subj],
				"missing inverse for %s", r.Pred)
		}
		if def.Symmetric {
			assert.True(t, tripleSeen[r.Obj+"|"+string(r.Pred)+"|"+r.Subj],
				"missing symmetric mirror for %s", r.Pred)
		}
	}
}

func canonicalTriples(result *graph.ExtractionResult) []string {
	byID := make(map[string]string)
	for _, e := range result.Entities {
		byID[e.ID] = strings.ToLower(e.Canonical)
	}
	var out []string
	for _, r := range result.Relations {
		out = append(out, byID[r.Subj]+"|"+string(r.Pred)+"|"+byID[r.Obj])
	}
	sort.Strings(out)
	return out
}

func TestExtractIsDeterministic(t *testing.T) {
	e := New(nil)
	ctx := context.Background()

	first, err := e.Extract(ctx, "doc1", sampleText)
	require.NoError(t, err)
	second, err := e.Extract(ctx, "doc1", sampleText)
	require.NoError(t, err)

	assert.Equal(t, canonicalTriples(first), canonicalTriples(second))
	assert.Equal(t, len(first.Entities), len(second.Entities))
}

func TestExtractStableIDs(t *testing.T) {
	cfg := graph.DefaultConfig()
	registry := identity.NewRegistry()
	e := New(cfg, WithRegistry(registry))

	result, err := e.Extract(context.Background(), "doc1", sampleText)
	require.NoError(t, err)

	require.Len(t, result.StableIDs, len(result.Entities))
	for i, ent := range result.Entities {
		assert.NotZero(t, ent.EID)
		assert.NotEmpty(t, ent.SP)
		assert.Equal(t, ent.ID, result.StableIDs[i].EntityID)
		assert.Equal(t, ent.EID, result.StableIDs[i].EID)
	}

	// Identity-registry idempotence: re-extracting the same document
	// leaves every EID unchanged.
	again, err := e.Extract(context.Background(), "doc1", sampleText)
	require.NoError(t, err)
	eidByCanonical := make(map[string]int)
	for _, ent := range result.Entities {
		eidByCanonical[ent.Canonical] = ent.EID
	}
	for _, ent := range again.Entities {
		if prior, ok := eidByCanonical[ent.Canonical]; ok {
			assert.Equal(t, prior, ent.EID, "EID for %q must be stable", ent.Canonical)
		}
	}
}

func TestBatchExtract(t *testing.T) {
	e := New(nil)

	results, err := e.BatchExtract(context.Background(), map[string]string{
		"a": "Harry went to London.",
		"b": "",
		"c": "Ron stayed home.",
	}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for id, result := range results {
		assert.NotNil(t, result, "missing result for %s", id)
	}
}

func TestRemapRelations(t *testing.T) {
	from := []graph.Entity{
		{ID: "w1", Type: graph.EntityPerson, Canonical: "Harry"},
		{ID: "w2", Type: graph.EntityPlace, Canonical: "London"},
	}
	to := []graph.Entity{
		{ID: "p1", Type: graph.EntityPerson, Canonical: "Harry"},
		{ID: "p2", Type: graph.EntityPlace, Canonical: "London"},
	}
	relations := []graph.Relation{
		{ID: "r1", Subj: "w1", Pred: graph.PredTraveledTo, Obj: "w2", Confidence: 0.9},
		{ID: "r2", Subj: "w1", Pred: graph.PredTraveledTo, Obj: "w-unknown", Confidence: 0.9},
	}

	out := remapRelations(relations, from, to)

	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].Subj)
	assert.Equal(t, "p2", out[0].Obj)
}

func TestVirtualSpans(t *testing.T) {
	links := []graph.CorefLink{
		{MentionStart: 5, MentionEnd: 7, MentionText: "he", EntityID: "e1"},
	}
	spans := virtualSpans(links)
	require.Len(t, spans, 1)
	assert.True(t, spans[0].Virtual)
	assert.Equal(t, "e1", spans[0].EntityID)
	assert.Equal(t, 5, spans[0].Start)
}
