package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

// buildSentences hand-assembles the parse for:
//
//	"Harry defeated Voldemort. He fled."
//
// so the resolver's behavior doesn't depend on the prose tagger.
func buildSentences() []graph.ParsedSentence {
	return []graph.ParsedSentence{
		{
			Text: "Harry defeated Voldemort.", Start: 0, End: 25,
			Tokens: []graph.Token{
				{Index: 0, Text: "Harry", Lemma: "harry", POS: "NNP", EntType: "PERSON", HeadIndex: 1, DepLabel: "nsubj", Start: 0, End: 5},
				{Index: 1, Text: "defeated", Lemma: "defeat", POS: "VBD", HeadIndex: 1, DepLabel: "root", Start: 6, End: 14},
				{Index: 2, Text: "Voldemort", Lemma: "voldemort", POS: "NNP", EntType: "PERSON", HeadIndex: 1, DepLabel: "dobj", Start: 15, End: 24},
				{Index: 3, Text: ".", Lemma: ".", POS: ".", HeadIndex: 1, DepLabel: "punct", Start: 24, End: 25},
			},
		},
		{
			Text: "He fled.", Start: 26, End: 34,
			Tokens: []graph.Token{
				{Index: 0, Text: "He", Lemma: "he", POS: "PRP", HeadIndex: 1, DepLabel: "nsubj", Start: 26, End: 28},
				{Index: 1, Text: "fled", Lemma: "flee", POS: "VBD", HeadIndex: 1, DepLabel: "root", Start: 29, End: 33},
				{Index: 2, Text: ".", Lemma: ".", POS: ".", HeadIndex: 1, DepLabel: "punct", Start: 33, End: 34},
			},
		},
	}
}

func corefFixture() ([]graph.Entity, []graph.Span, map[string]*graph.EntityProfile) {
	entities := []graph.Entity{
		{ID: "harry", Type: graph.EntityPerson, Canonical: "Harry"},
		{ID: "voldemort", Type: graph.EntityPerson, Canonical: "Voldemort"},
	}
	spans := []graph.Span{
		{EntityID: "harry", Start: 0, End: 5},
		{EntityID: "voldemort", Start: 15, End: 24},
	}
	profiles := map[string]*graph.EntityProfile{
		"Harry":     graph.NewEntityProfile("Harry"),
		"Voldemort": graph.NewEntityProfile("Voldemort"),
	}
	profiles["Harry"].MaleVotes = 2
	profiles["Voldemort"].MaleVotes = 1
	return entities, spans, profiles
}

func TestPronounResolvesToRecentSubject(t *testing.T) {
	r := NewCorefResolver(3)
	entities, spans, profiles := corefFixture()

	links := r.Resolve(buildSentences(), entities, spans, profiles)

	require.Len(t, links, 1)
	link := links[0]
	assert.Equal(t, "harry", link.EntityID, "subject-slot mention outranks the object")
	assert.Equal(t, "He", link.MentionText)
	assert.Equal(t, graph.CorefPronoun, link.Method)
	assert.Equal(t, 26, link.MentionStart)
	assert.Equal(t, 28, link.MentionEnd)
	assert.InDelta(t, 0.7, link.Confidence, 1e-9, "two agreeing candidates")
}

func TestGenderDisagreementFiltersCandidate(t *testing.T) {
	r := NewCorefResolver(3)
	entities, spans, profiles := corefFixture()
	// Make Voldemort read female so "he" can only be Harry.
	profiles["Voldemort"].MaleVotes = 0
	profiles["Voldemort"].FemaleVotes = 3

	links := r.Resolve(buildSentences(), entities, spans, profiles)

	require.Len(t, links, 1)
	assert.Equal(t, "harry", links[0].EntityID)
	assert.InDelta(t, 1.0, links[0].Confidence, 1e-9, "single agreeing candidate")
}

func TestPronounBeyondWindowEmitsNoLink(t *testing.T) {
	r := NewCorefResolver(1)
	entities, spans, profiles := corefFixture()

	sentences := buildSentences()
	// Push the pronoun sentence far beyond the window.
	filler := graph.ParsedSentence{Text: "Nothing happened.", Start: 26, End: 34, Tokens: []graph.Token{
		{Index: 0, Text: "Nothing", Lemma: "nothing", POS: "NN", HeadIndex: 1, DepLabel: "nsubj", Start: 26, End: 28},
		{Index: 1, Text: "happened", Lemma: "happen", POS: "VBD", HeadIndex: 1, DepLabel: "root", Start: 29, End: 33},
	}}
	sentences = []graph.ParsedSentence{sentences[0], filler, filler, sentences[1]}
	sentences[3].Start, sentences[3].End = 40, 48
	for i := range sentences[3].Tokens {
		sentences[3].Tokens[i].Start += 14
		sentences[3].Tokens[i].End += 14
	}

	links := r.Resolve(sentences, entities, spans, profiles)
	assert.Empty(t, links, "antecedent outside K sentences")
}

// descriptorSentences hand-assembles the parse for:
//
//	"Gandalf arrived. The wizard spoke."
func descriptorSentences() []graph.ParsedSentence {
	return []graph.ParsedSentence{
		{
			Text: "Gandalf arrived.", Start: 0, End: 16,
			Tokens: []graph.Token{
				{Index: 0, Text: "Gandalf", Lemma: "gandalf", POS: "NNP", EntType: "PERSON", HeadIndex: 1, DepLabel: "nsubj", Start: 0, End: 7},
				{Index: 1, Text: "arrived", Lemma: "arrive", POS: "VBD", HeadIndex: 1, DepLabel: "root", Start: 8, End: 15},
				{Index: 2, Text: ".", Lemma: ".", POS: ".", HeadIndex: 1, DepLabel: "punct", Start: 15, End: 16},
			},
		},
		{
			Text: "The wizard spoke.", Start: 17, End: 34,
			Tokens: []graph.Token{
				{Index: 0, Text: "The", Lemma: "the", POS: "DT", HeadIndex: 1, DepLabel: "det", Start: 17, End: 20},
				{Index: 1, Text: "wizard", Lemma: "wizard", POS: "NN", HeadIndex: 2, DepLabel: "nsubj", Start: 21, End: 27},
				{Index: 2, Text: "spoke", Lemma: "speak", POS: "VBD", HeadIndex: 2, DepLabel: "root", Start: 28, End: 33},
				{Index: 3, Text: ".", Lemma: ".", POS: ".", HeadIndex: 2, DepLabel: "punct", Start: 33, End: 34},
			},
		},
	}
}

func TestDescriptorResolvesToProfiledEntity(t *testing.T) {
	r := NewCorefResolver(3)
	entities := []graph.Entity{{ID: "gandalf", Type: graph.EntityPerson, Canonical: "Gandalf"}}
	spans := []graph.Span{{EntityID: "gandalf", Start: 0, End: 7}}
	profiles := map[string]*graph.EntityProfile{"Gandalf": graph.NewEntityProfile("Gandalf")}
	profiles["Gandalf"].Descriptors["wizard"] = struct{}{}

	links := r.Resolve(descriptorSentences(), entities, spans, profiles)

	require.Len(t, links, 1)
	link := links[0]
	assert.Equal(t, graph.CorefDescriptor, link.Method)
	assert.Equal(t, "gandalf", link.EntityID)
	assert.Equal(t, "The wizard", link.MentionText)
	assert.Equal(t, 17, link.MentionStart)
	assert.Equal(t, 27, link.MentionEnd)
	assert.InDelta(t, 1.0, link.Confidence, 1e-9, "single profiled candidate")
}

func TestDescriptorWithoutProfileEmitsNoLink(t *testing.T) {
	r := NewCorefResolver(3)
	entities := []graph.Entity{{ID: "gandalf", Type: graph.EntityPerson, Canonical: "Gandalf"}}
	spans := []graph.Span{{EntityID: "gandalf", Start: 0, End: 7}}
	profiles := map[string]*graph.EntityProfile{"Gandalf": graph.NewEntityProfile("Gandalf")}

	links := r.Resolve(descriptorSentences(), entities, spans, profiles)
	assert.Empty(t, links, "no entity was ever described as a wizard")
}

func TestPluralDescriptorLinksBothPartners(t *testing.T) {
	r := NewCorefResolver(3)

	// "Aragorn married Arwen. The couple settled."
	sentences := []graph.ParsedSentence{
		{
			Text: "Aragorn married Arwen.", Start: 0, End: 22,
			Tokens: []graph.Token{
				{Index: 0, Text: "Aragorn", Lemma: "aragorn", POS: "NNP", EntType: "PERSON", HeadIndex: 1, DepLabel: "nsubj", Start: 0, End: 7},
				{Index: 1, Text: "married", Lemma: "marry", POS: "VBD", HeadIndex: 1, DepLabel: "root", Start: 8, End: 15},
				{Index: 2, Text: "Arwen", Lemma: "arwen", POS: "NNP", EntType: "PERSON", HeadIndex: 1, DepLabel: "dobj", Start: 16, End: 21},
				{Index: 3, Text: ".", Lemma: ".", POS: ".", HeadIndex: 1, DepLabel: "punct", Start: 21, End: 22},
			},
		},
		{
			Text: "The couple settled.", Start: 23, End: 42,
			Tokens: []graph.Token{
				{Index: 0, Text: "The", Lemma: "the", POS: "DT", HeadIndex: 1, DepLabel: "det", Start: 23, End: 26},
				{Index: 1, Text: "couple", Lemma: "couple", POS: "NN", HeadIndex: 2, DepLabel: "nsubj", Start: 27, End: 33},
				{Index: 2, Text: "settled", Lemma: "settl", POS: "VBD", HeadIndex: 2, DepLabel: "root", Start: 34, End: 41},
				{Index: 3, Text: ".", Lemma: ".", POS: ".", HeadIndex: 2, DepLabel: "punct", Start: 41, End: 42},
			},
		},
	}
	entities := []graph.Entity{
		{ID: "aragorn", Type: graph.EntityPerson, Canonical: "Aragorn"},
		{ID: "arwen", Type: graph.EntityPerson, Canonical: "Arwen"},
	}
	spans := []graph.Span{
		{EntityID: "aragorn", Start: 0, End: 7},
		{EntityID: "arwen", Start: 16, End: 21},
	}
	profiles := map[string]*graph.EntityProfile{
		"Aragorn": graph.NewEntityProfile("Aragorn"),
		"Arwen":   graph.NewEntityProfile("Arwen"),
	}
	profiles["Aragorn"].Descriptors["couple"] = struct{}{}
	profiles["Arwen"].Descriptors["couple"] = struct{}{}

	links := r.Resolve(sentences, entities, spans, profiles)

	descriptorLinks := make(map[string]bool)
	for _, l := range links {
		if l.Method == graph.CorefDescriptor {
			assert.Equal(t, "The couple", l.MentionText)
			descriptorLinks[l.EntityID] = true
		}
	}
	assert.True(t, descriptorLinks["aragorn"])
	assert.True(t, descriptorLinks["arwen"], "plural descriptor links every partner")
}

func TestDescriptorInsideNamedMentionIsIgnored(t *testing.T) {
	r := NewCorefResolver(3)

	// "The Shire endured." — "Shire" is itself a named mention, not an
	// anaphor, even if some profile carries the lemma.
	sentences := []graph.ParsedSentence{{
		Text: "The Shire endured.", Start: 0, End: 18,
		Tokens: []graph.Token{
			{Index: 0, Text: "The", Lemma: "the", POS: "DT", HeadIndex: 1, DepLabel: "det", Start: 0, End: 3},
			{Index: 1, Text: "Shire", Lemma: "shire", POS: "NNP", EntType: "PLACE", HeadIndex: 2, DepLabel: "nsubj", Start: 4, End: 9},
			{Index: 2, Text: "endured", Lemma: "endure", POS: "VBD", HeadIndex: 2, DepLabel: "root", Start: 10, End: 17},
		},
	}}
	entities := []graph.Entity{{ID: "shire", Type: graph.EntityPlace, Canonical: "Shire"}}
	spans := []graph.Span{{EntityID: "shire", Start: 4, End: 9}}
	profiles := map[string]*graph.EntityProfile{"Shire": graph.NewEntityProfile("Shire")}
	profiles["Shire"].Descriptors["shire"] = struct{}{}

	links := r.Resolve(sentences, entities, spans, profiles)
	assert.Empty(t, links)
}

func TestDemonstrativesAreSkipped(t *testing.T) {
	r := NewCorefResolver(3)
	entities, spans, profiles := corefFixture()

	sentences := buildSentences()
	sentences[1].Tokens[0].Text = "That"
	sentences[1].Tokens[0].Lemma = "that"

	links := r.Resolve(sentences, entities, spans, profiles)
	assert.Empty(t, links)
}
