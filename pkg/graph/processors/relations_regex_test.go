package processors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func regexFixture(text string, types map[string]graph.EntityType) ([]graph.Segment, []graph.Entity, []graph.Span) {
	segments := []graph.Segment{{DocID: "d", Start: 0, End: len(text), Text: text}}
	var entities []graph.Entity
	var spans []graph.Span
	for surface, entType := range types {
		idx := strings.Index(text, surface)
		if idx < 0 {
			continue
		}
		id := strings.ToLower(surface)
		entities = append(entities, graph.Entity{ID: id, Type: entType, Canonical: surface})
		spans = append(spans, graph.Span{EntityID: id, Start: idx, End: idx + len(surface)})
	}
	return segments, entities, spans
}

func TestRegexMarriedPattern(t *testing.T) {
	c := NewRegexRelationInducer()
	segments, entities, spans := regexFixture("Aragorn married Arwen.", map[string]graph.EntityType{
		"Aragorn": graph.EntityPerson,
		"Arwen":   graph.EntityPerson,
	})

	relations, stats := c.Induce(segments, entities, spans)

	require.Len(t, relations, 1)
	r := relations[0]
	assert.Equal(t, "aragorn", r.Subj)
	assert.Equal(t, graph.PredMarriedTo, r.Pred)
	assert.Equal(t, "arwen", r.Obj)
	assert.Equal(t, 0.7, r.Confidence)
	assert.Equal(t, graph.ExtractorRegex, r.Extractor)
	require.Len(t, r.Evidence, 1)
	assert.Equal(t, "Aragorn married Arwen.", r.Evidence[0].Text)
	assert.Equal(t, 1, stats.Candidates)
	assert.Equal(t, 0, stats.GuardDropped)
}

func TestRegexSonOfPattern(t *testing.T) {
	c := NewRegexRelationInducer()
	segments, entities, spans := regexFixture("Aragorn, son of Arathorn, rode north.", map[string]graph.EntityType{
		"Aragorn":  graph.EntityPerson,
		"Arathorn": graph.EntityPerson,
	})

	relations, _ := c.Induce(segments, entities, spans)

	require.Len(t, relations, 1)
	assert.Equal(t, graph.PredChildOf, relations[0].Pred)
	assert.Equal(t, "aragorn", relations[0].Subj)
	assert.Equal(t, "arathorn", relations[0].Obj)
}

func TestRegexWereBrothersPattern(t *testing.T) {
	c := NewRegexRelationInducer()
	segments, entities, spans := regexFixture("Edward and Edmund were brothers.", map[string]graph.EntityType{
		"Edward": graph.EntityPerson,
		"Edmund": graph.EntityPerson,
	})

	relations, _ := c.Induce(segments, entities, spans)

	require.Len(t, relations, 1)
	assert.Equal(t, graph.PredSiblingOf, relations[0].Pred)
}

func TestRegexTypeGuardDropsViolations(t *testing.T) {
	c := NewRegexRelationInducer()
	// "married" requires PERSON on both sides.
	segments, entities, spans := regexFixture("Aragorn married Gondor.", map[string]graph.EntityType{
		"Aragorn": graph.EntityPerson,
		"Gondor":  graph.EntityPlace,
	})

	relations, stats := c.Induce(segments, entities, spans)

	assert.Empty(t, relations)
	assert.Equal(t, 1, stats.Candidates)
	assert.Equal(t, 1, stats.GuardDropped)
}

func TestRegexUnboundSurfaceEmitsNothing(t *testing.T) {
	c := NewRegexRelationInducer()
	// No entity spans at all: the surface pattern alone is not enough.
	segments := []graph.Segment{{DocID: "d", Start: 0, End: 22, Text: "Aragorn married Arwen."}}

	relations, stats := c.Induce(segments, nil, nil)

	assert.Empty(t, relations)
	assert.Equal(t, 0, stats.Candidates)
}
