package processors

import (
	"strings"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// titleWords precede a PERSON's canonical surface and are recorded on the
// profile verbatim (spec.md §4.12).
var titleWords = map[string]struct{}{
	"mr": {}, "mr.": {}, "mrs": {}, "mrs.": {}, "ms": {}, "ms.": {}, "dr": {}, "dr.": {},
	"professor": {}, "prof": {}, "prof.": {}, "king": {}, "queen": {}, "lord": {}, "lady": {},
	"sir": {}, "dame": {}, "captain": {}, "general": {}, "president": {},
}

// ProfileBuilder implements C12: accumulate per-canonical statistics
// from entities, spans and parsed sentences.
type ProfileBuilder struct{}

// NewProfileBuilder creates a C12 profile accumulator.
func NewProfileBuilder() *ProfileBuilder { return &ProfileBuilder{} }

// Build reads entities/spans/sentences and updates existing (merging
// cross-document, per spec.md §4.12's "restartable" requirement) into a
// profile map keyed by canonical.
func (b *ProfileBuilder) Build(doc *graph.Document, entities []graph.Entity, spans []graph.Span, sentences []graph.ParsedSentence, existing map[string]*graph.EntityProfile) map[string]*graph.EntityProfile {
	profiles := existing
	if profiles == nil {
		profiles = make(map[string]*graph.EntityProfile)
	}

	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	sentIndexOf := func(pos int) int {
		for i, s := range sentences {
			if pos >= s.Start && pos < s.End {
				return i
			}
		}
		return -1
	}

	// Group spans by sentence so co-occurrence and descriptor lookups stay
	// within-sentence.
	sentSpans := make(map[int][]graph.Span)
	for _, sp := range spans {
		if sp.Virtual {
			continue
		}
		idx := sentIndexOf(sp.Start)
		if idx < 0 {
			continue
		}
		sentSpans[idx] = append(sentSpans[idx], sp)
	}

	for sentIdx, sps := range sentSpans {
		sent := sentences[sentIdx]
		for _, sp := range sps {
			e, ok := byID[sp.EntityID]
			if !ok {
				continue
			}
			p := profileFor(profiles, e.Canonical)
			p.MentionCount++
			p.SentenceIndices[sentIdx] = struct{}{}

			b.recordTitle(doc, p, sp)
			b.recordDescriptor(doc, sent, p, sp)
			b.recordGender(doc, sent, p, sp)
		}

		for _, sp := range sps {
			e, ok := byID[sp.EntityID]
			if !ok {
				continue
			}
			p := profileFor(profiles, e.Canonical)
			for _, other := range sps {
				if other.EntityID == sp.EntityID {
					continue
				}
				oe, ok := byID[other.EntityID]
				if !ok {
					continue
				}
				switch oe.Type {
				case graph.EntityPlace:
					p.CoOccurringPlaces[oe.Canonical] = struct{}{}
				case graph.EntityOrg:
					p.CoOccurringOrgs[oe.Canonical] = struct{}{}
				}
			}
		}
	}

	return profiles
}

func profileFor(profiles map[string]*graph.EntityProfile, canonical string) *graph.EntityProfile {
	p, ok := profiles[canonical]
	if !ok {
		p = graph.NewEntityProfile(canonical)
		profiles[canonical] = p
	}
	return p
}

// recordTitle looks immediately to the left of the mention for a known
// title word ("Professor McGonagall").
func (b *ProfileBuilder) recordTitle(doc *graph.Document, p *graph.EntityProfile, sp graph.Span) {
	left, err := doc.Slice(max0(sp.Start-16), sp.Start)
	if err != nil {
		return
	}
	fields := strings.Fields(left)
	if len(fields) == 0 {
		return
	}
	last := strings.ToLower(strings.Trim(fields[len(fields)-1], ","))
	if _, ok := titleWords[last]; ok {
		p.Titles[last] = struct{}{}
	}
}

// recordDescriptor looks for "the <noun>" within the same sentence,
// immediately adjacent to the mention, and records the descriptor lemma
// (spec.md §4.12; consumed by C5 descriptor anaphora).
func (b *ProfileBuilder) recordDescriptor(doc *graph.Document, sent graph.ParsedSentence, p *graph.EntityProfile, sp graph.Span) {
	for i, tok := range sent.Tokens {
		if tok.Start != sp.Start {
			continue
		}
		if i >= 2 && strings.ToLower(sent.Tokens[i-1].Text) != "" {
			// "the wizard Gandalf" pattern: DT NN <mention>
			if i >= 2 && isNominalPOS(sent.Tokens[i-1].POS) && lexicon.Articles.Contains(strings.ToLower(sent.Tokens[i-2].Text)) {
				p.Descriptors[sent.Tokens[i-1].Lemma] = struct{}{}
			}
		}
		// "Gandalf, the wizard" pattern: <mention> , DT NN
		if i+2 < len(sent.Tokens) && sent.Tokens[i+1].Text == "," && lexicon.Articles.Contains(strings.ToLower(sent.Tokens[i+2].Text)) {
			for j := i + 3; j < len(sent.Tokens) && j < i+5; j++ {
				if isNominalPOS(sent.Tokens[j].POS) {
					p.Descriptors[sent.Tokens[j].Lemma] = struct{}{}
					break
				}
			}
		}
		return
	}
}

// recordGender votes from gendered pronouns/titles within the same
// sentence as the mention (spec.md §4.5's "accumulated gender votes").
func (b *ProfileBuilder) recordGender(doc *graph.Document, sent graph.ParsedSentence, p *graph.EntityProfile, sp graph.Span) {
	for _, tok := range sent.Tokens {
		lower := strings.ToLower(tok.Text)
		if containsStr(lexicon.MaleIndicators, lower) {
			p.MaleVotes++
		}
		if containsStr(lexicon.FemaleIndicators, lower) {
			p.FemaleVotes++
		}
		if lexicon.PluralPronouns.Contains(lower) {
			p.PluralVotes++
		}
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
