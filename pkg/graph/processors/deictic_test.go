package processors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func TestRewriteSubstitutesThere(t *testing.T) {
	text := "Harry studied at Hogwarts. There he met Ron."
	entities := []graph.Entity{
		{ID: "hog", Type: graph.EntityOrg, Canonical: "Hogwarts"},
	}
	spans := []graph.Span{
		{EntityID: "hog", Start: strings.Index(text, "Hogwarts"), End: strings.Index(text, "Hogwarts") + len("Hogwarts")},
	}

	got := NewDeicticRewriter().Rewrite(text, entities, spans)

	assert.Contains(t, got, "in Hogwarts he met Ron")
	assert.NotContains(t, got, "There he")
}

func TestRewriteLeavesTextWithoutPriorPlace(t *testing.T) {
	text := "There was nothing to see."
	got := NewDeicticRewriter().Rewrite(text, nil, nil)
	assert.Equal(t, text, got, "no preceding place mention means no substitution")
}

func TestRewriteIgnoresNonPlaceEntities(t *testing.T) {
	text := "Harry waved. There he stood."
	entities := []graph.Entity{
		{ID: "harry", Type: graph.EntityPerson, Canonical: "Harry"},
	}
	spans := []graph.Span{{EntityID: "harry", Start: 0, End: 5}}

	got := NewDeicticRewriter().Rewrite(text, entities, spans)
	assert.Equal(t, text, got)
}

func TestRewriteSegmentsKeepsOffsets(t *testing.T) {
	text := "Harry lived in Hogwarts. There he studied."
	entities := []graph.Entity{
		{ID: "hog", Type: graph.EntityOrg, Canonical: "Hogwarts"},
	}
	hogStart := strings.Index(text, "Hogwarts")
	spans := []graph.Span{{EntityID: "hog", Start: hogStart, End: hogStart + len("Hogwarts")}}
	segments := []graph.Segment{
		{DocID: "d", ParagraphIndex: 0, SentenceIndexInPar: 0, Start: 0, End: 24, Text: text[0:24]},
		{DocID: "d", ParagraphIndex: 0, SentenceIndexInPar: 1, Start: 25, End: 42, Text: text[25:42]},
	}

	derived := NewDeicticRewriter().RewriteSegments(text, segments, entities, spans)

	require.Len(t, derived, 2)
	// Offsets stay anchored to the original document.
	assert.Equal(t, 25, derived[1].Start)
	assert.Equal(t, 42, derived[1].End)
	assert.Equal(t, segments[0].Text, derived[0].Text, "no deictic token in the first segment")
	assert.Contains(t, derived[1].Text, "in Hogwarts he studied")
}
