package processors

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// salienceEntry tracks one recently mentioned named entity for the
// pronoun-resolution walk (spec.md §4.5).
type salienceEntry struct {
	EntityID      string
	Canonical     string
	Type          graph.EntityType
	LastSentIndex int
	WasSubject    bool
}

// CorefResolver implements C5: a single forward pass over parsed
// sentences that binds pronouns (and, via descriptors, definite
// noun-phrases) to the most salient matching entity.
type CorefResolver struct {
	logger *logrus.Entry
	// K bounds how many sentences back a pronoun may reach (default 3).
	K int
}

// NewCorefResolver creates a C5 resolver with sentence window k.
func NewCorefResolver(k int) *CorefResolver {
	if k <= 0 {
		k = 3
	}
	return &CorefResolver{logger: logrus.WithField("component", "C5"), K: k}
}

// Resolve produces the document's CorefLinks (spec.md §4.5). entities is
// indexed by ID; spans locate named mentions; profiles supply gender
// and descriptor evidence accumulated by C12.
func (r *CorefResolver) Resolve(sentences []graph.ParsedSentence, entities []graph.Entity, spans []graph.Span, profiles map[string]*graph.EntityProfile) []graph.CorefLink {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	spansBySentence := make([][]graph.Span, len(sentences))
	for _, sp := range spans {
		if sp.Virtual {
			continue
		}
		idx := sentenceIndexAt(sentences, sp.Start)
		if idx < 0 {
			continue
		}
		spansBySentence[idx] = append(spansBySentence[idx], sp)
	}

	subjectSpanAt := func(sentIdx int, sp graph.Span) bool {
		for _, tok := range sentences[sentIdx].Tokens {
			if tok.DepLabel == "nsubj" && tok.Start >= sp.Start && tok.End <= sp.End {
				return true
			}
		}
		return false
	}

	var salience []salienceEntry
	var links []graph.CorefLink

	for sentIdx, sent := range sentences {
		// Register named mentions from this sentence into salience before
		// resolving its own pronouns, so within-sentence antecedents (e.g.
		// "Harry raised his wand") are visible.
		for _, sp := range spansBySentence[sentIdx] {
			e, ok := byID[sp.EntityID]
			if !ok {
				continue
			}
			salience = pushSalience(salience, salienceEntry{
				EntityID:      e.ID,
				Canonical:     e.Canonical,
				Type:          e.Type,
				LastSentIndex: sentIdx,
				WasSubject:    subjectSpanAt(sentIdx, sp),
			})
		}

		for _, tok := range sent.Tokens {
			lower := strings.ToLower(tok.Text)
			if !lexicon.IsPronoun(lower) {
				continue
			}
			if isDemonstrative(lower) {
				continue // "this"/"that" rarely resolve cleanly without a head noun
			}

			candidates := filterAgreement(salience, lower, sentIdx, r.K, profiles)
			if len(candidates) == 0 {
				continue
			}
			best, confidence := rankCandidates(candidates, lower, profiles)
			links = append(links, graph.CorefLink{
				MentionStart: tok.Start,
				MentionEnd:   tok.End,
				MentionText:  tok.Text,
				EntityID:     best.EntityID,
				Method:       graph.CorefPronoun,
				Confidence:   confidence,
			})
		}

		links = append(links, r.resolveDescriptors(sent, sentIdx, salience, spansBySentence[sentIdx], profiles)...)
	}

	r.logger.WithField("link_count", len(links)).Debug("coreference resolution complete")
	return links
}

// pluralDescriptors name more than one referent; for these the two most
// salient matching partners each get a link so downstream expansion
// ("the couple" naming both spouses, spec.md §4.9) sees both.
var pluralDescriptors = map[string]struct{}{
	"couple": {}, "pair": {}, "brother": {}, "sister": {}, "twin": {}, "parent": {},
}

// resolveDescriptors implements descriptor anaphora (spec.md §4.5):
// for every "the <noun>" definite NP whose noun is not itself part of a
// named mention, consult the profiles' accumulated descriptor lemmas
// and bind to the most salient entity that has been described that way.
func (r *CorefResolver) resolveDescriptors(sent graph.ParsedSentence, sentIdx int, salience []salienceEntry, namedSpans []graph.Span, profiles map[string]*graph.EntityProfile) []graph.CorefLink {
	var links []graph.CorefLink

	insideNamedMention := func(tok graph.Token) bool {
		for _, sp := range namedSpans {
			if tok.Start >= sp.Start && tok.End <= sp.End {
				return true
			}
		}
		return false
	}

	for i := 0; i+1 < len(sent.Tokens); i++ {
		art := sent.Tokens[i]
		noun := sent.Tokens[i+1]
		if strings.ToLower(art.Text) != "the" {
			continue
		}
		if !isNominalPOS(noun.POS) || insideNamedMention(noun) {
			continue
		}
		lemma := strings.ToLower(noun.Lemma)
		if lemma == "" {
			continue
		}

		var candidates []salienceEntry
		for _, e := range salience {
			if sentIdx-e.LastSentIndex > r.K || sentIdx < e.LastSentIndex {
				continue
			}
			p := profiles[e.Canonical]
			if p == nil {
				continue
			}
			if _, ok := p.Descriptors[lemma]; ok {
				candidates = append(candidates, e)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		confidence := 0.7
		if len(candidates) == 1 {
			confidence = 1.0
		}
		emit := candidates[:1]
		if _, plural := pluralDescriptors[lemma]; plural && len(candidates) > 1 {
			emit = candidates[:2]
			confidence = 0.7
		}
		for _, c := range emit {
			links = append(links, graph.CorefLink{
				MentionStart: art.Start,
				MentionEnd:   noun.End,
				MentionText:  art.Text + " " + noun.Text,
				EntityID:     c.EntityID,
				Method:       graph.CorefDescriptor,
				Confidence:   confidence,
			})
		}
	}
	return links
}

func sentenceIndexAt(sentences []graph.ParsedSentence, pos int) int {
	for i, s := range sentences {
		if pos >= s.Start && pos < s.End {
			return i
		}
	}
	return -1
}

// pushSalience upserts an entry, moving it to the front (most recent).
func pushSalience(list []salienceEntry, entry salienceEntry) []salienceEntry {
	out := make([]salienceEntry, 0, len(list)+1)
	out = append(out, entry)
	for _, e := range list {
		if e.EntityID == entry.EntityID {
			continue
		}
		out = append(out, e)
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func isDemonstrative(lower string) bool {
	switch lower {
	case "this", "that", "these", "those":
		return true
	default:
		return false
	}
}

// filterAgreement keeps salience entries within K sentences that pass the
// animacy and gender checks (spec.md §4.5 step 2): personal pronouns bind
// only to PERSON entities, and a gendered pronoun skips entities whose
// profile holds more votes for the other gender. Number is not checked,
// and pronouns outside the personal set (e.g. "it") are not restricted
// by entity type.
func filterAgreement(salience []salienceEntry, pronoun string, sentIdx, k int, profiles map[string]*graph.EntityProfile) []salienceEntry {
	var out []salienceEntry
	isPersonPronoun := isPersonalPronoun(pronoun)
	isMale := lexicon.MalePronouns.Contains(pronoun)
	isFemale := lexicon.FemalePronouns.Contains(pronoun)

	for _, e := range salience {
		if sentIdx-e.LastSentIndex > k || sentIdx < e.LastSentIndex {
			continue
		}
		if isPersonPronoun && e.Type != graph.EntityPerson {
			continue
		}
		if !isPersonPronoun && e.Type == graph.EntityPerson && (isMale || isFemale) {
			// "he"/"she" never bind to a non-person even if somehow tagged so.
			continue
		}
		if isMale || isFemale {
			p := profiles[e.Canonical]
			if p != nil {
				if isMale && p.FemaleVotes > p.MaleVotes {
					continue
				}
				if isFemale && p.MaleVotes > p.FemaleVotes {
					continue
				}
			}
		}
		out = append(out, e)
	}
	return out
}

func isPersonalPronoun(lower string) bool {
	switch lower {
	case "he", "him", "his", "himself", "she", "her", "hers", "herself",
		"they", "them", "their", "theirs", "themselves", "who":
		return true
	default:
		return false
	}
}

// rankCandidates implements spec.md §4.5 step 3-4: recency, then
// dependency-subject preference, then salience order (list order already
// is recency-then-insertion). Confidence is 1.0 for an unambiguous
// single agreeing candidate, 0.7 otherwise.
func rankCandidates(candidates []salienceEntry, pronoun string, profiles map[string]*graph.EntityProfile) (salienceEntry, float64) {
	best := candidates[0]
	bestScore := scoreCandidate(candidates[0])
	for _, c := range candidates[1:] {
		s := scoreCandidate(c)
		if s > bestScore {
			best = c
			bestScore = s
		}
	}
	confidence := 0.7
	if len(candidates) == 1 {
		confidence = 1.0
	}
	return best, confidence
}

func scoreCandidate(e salienceEntry) int {
	score := e.LastSentIndex * 10
	if e.WasSubject {
		score += 5
	}
	return score
}
