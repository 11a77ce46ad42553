package processors

import (
	"strings"

	"github.com/narrative-kg/extract/pkg/graph"
)

// DeicticRewriter implements C6: substitutes "there"/"here" with "in
// <entity canonical>" in a derived string consumed only by the
// narrative pattern inducer (spec.md §4.6). The rewrite never changes
// the document's real offsets and is never exported.
type DeicticRewriter struct{}

// NewDeicticRewriter creates a C6 rewriter.
func NewDeicticRewriter() *DeicticRewriter { return &DeicticRewriter{} }

var deicticPlaceTypes = map[graph.EntityType]struct{}{
	graph.EntityPlace: {},
	graph.EntityOrg:   {},
	graph.EntityHouse: {},
}

// Rewrite returns a derived copy of text with "there"/"here" tokens
// replaced by "in <canonical>" of the nearest preceding PLACE/ORG/HOUSE
// mention, leaving text itself and all original offsets untouched.
func (d *DeicticRewriter) Rewrite(text string, entities []graph.Entity, spans []graph.Span) string {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	var placeMentions []deicticMention
	for _, sp := range spans {
		if sp.Virtual {
			continue
		}
		e, ok := byID[sp.EntityID]
		if !ok {
			continue
		}
		if _, ok := deicticPlaceTypes[e.Type]; !ok {
			continue
		}
		placeMentions = append(placeMentions, deicticMention{sp.Start, sp.End, e})
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		word, wlen := nextWord(text, i)
		lower := strings.ToLower(word)
		atWordStart := i == 0 || !isWordRune(rune(text[i-1]))
		if atWordStart && (lower == "there" || lower == "here") {
			if nearest := nearestPrecedingPlace(placeMentions, i); nearest != nil {
				b.WriteString("in ")
				b.WriteString(nearest.Canonical)
				i += wlen
				continue
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

// RewriteSegments returns copies of segments whose Text has been
// deictic-rewritten, keeping each segment's original Start/End so the
// narrative inducer can still anchor evidence in the source document.
// Mentions from earlier segments stay visible as referents.
func (d *DeicticRewriter) RewriteSegments(text string, segments []graph.Segment, entities []graph.Entity, spans []graph.Span) []graph.Segment {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	var placeMentions []deicticMention
	for _, sp := range spans {
		if sp.Virtual {
			continue
		}
		e, ok := byID[sp.EntityID]
		if !ok {
			continue
		}
		if _, ok := deicticPlaceTypes[e.Type]; !ok {
			continue
		}
		placeMentions = append(placeMentions, deicticMention{sp.Start, sp.End, e})
	}

	out := make([]graph.Segment, len(segments))
	for si, seg := range segments {
		var b strings.Builder
		i := seg.Start
		for i < seg.End {
			word, wlen := nextWord(text, i)
			lower := strings.ToLower(word)
			atWordStart := i == 0 || !isWordRune(rune(text[i-1]))
			if atWordStart && (lower == "there" || lower == "here") {
				if nearest := nearestPrecedingPlace(placeMentions, i); nearest != nil {
					b.WriteString("in ")
					b.WriteString(nearest.Canonical)
					i += wlen
					continue
				}
			}
			b.WriteByte(text[i])
			i++
		}
		out[si] = seg
		out[si].Text = b.String()
	}
	return out
}

func nextWord(text string, from int) (string, int) {
	end := from
	for end < len(text) && isWordRune(rune(text[end])) {
		end++
	}
	if end == from {
		return "", 0
	}
	return text[from:end], end - from
}

type deicticMention struct {
	start, end int
	entity     *graph.Entity
}

func nearestPrecedingPlace(mentions []deicticMention, pos int) *graph.Entity {
	var best *graph.Entity
	bestEnd := -1
	for _, m := range mentions {
		if m.end <= pos && m.end > bestEnd {
			bestEnd = m.end
			best = m.entity
		}
	}
	return best
}
