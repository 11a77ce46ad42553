package processors

import (
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
	"github.com/jdkato/prose/v2"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// Harvester implements C3: per-segment NER, type correction,
// canonicalization and cross-segment merge into a deduplicated entity
// registry.
type Harvester struct {
	logger *logrus.Entry
	// NameOverlapThreshold is the matchr Jaro-Winkler similarity above
	// which two PERSON canonicals that don't share a token subset are
	// still considered the same entity (spec.md §4.3's name-overlap
	// merge, generalized with fuzzy matching for spelling variants).
	NameOverlapThreshold float64
}

// NewHarvester creates a C3 harvester with default thresholds.
func NewHarvester() *Harvester {
	return &Harvester{
		logger:               logrus.WithField("component", "C3"),
		NameOverlapThreshold: 0.92,
	}
}

type registryKey struct {
	Type      graph.EntityType
	Canonical string // lowercase
}

// Harvest runs NER over every segment's context window and returns the
// deduplicated entity registry plus every accepted mention span.
func (h *Harvester) Harvest(doc *graph.Document, segments []graph.Segment, contextWindow int) ([]graph.Entity, []graph.Span) {
	registry := make(map[registryKey]*graph.Entity)
	order := make([]*graph.Entity, 0)
	var spans []graph.Span

	for _, seg := range segments {
		winStart := max0(seg.Start - contextWindow)
		winEnd := minLen(seg.End+contextWindow, len(doc.Text))
		window := doc.Text[winStart:winEnd]

		proseDoc, err := prose.NewDocument(window)
		if err != nil {
			h.logger.WithError(err).Warn("NER failed over segment window, skipping segment")
			continue
		}

		entTexts := make([]string, 0)
		entLabels := make([]string, 0)
		for _, ent := range proseDoc.Entities() {
			entTexts = append(entTexts, ent.Text)
			entLabels = append(entLabels, ent.Label)
		}
		located := locateSequential(window, entTexts)

		for i, loc := range located {
			absStart := winStart + loc.Start
			absEnd := winStart + loc.End
			trimStart, trimEnd := trimToWordBoundary(doc.Text, absStart, absEnd)
			if trimStart >= trimEnd {
				continue
			}
			if trimStart < seg.Start || trimEnd > seg.End {
				continue // mention must fall fully inside the segment
			}

			surface := doc.Text[trimStart:trimEnd]
			entType := mapProseLabel(entLabels[i])
			if entType == "" {
				continue
			}

			canonical := canonicalize(surface)
			if canonical == "" {
				continue
			}

			entity := h.resolve(registry, &order, graph.EntityType(entType), canonical, surface)
			if entity == nil {
				continue
			}

			entity.MentionCount++
			if surface != entity.Canonical {
				entity.AddAlias(surface)
			}
			spans = append(spans, graph.Span{EntityID: entity.ID, Start: trimStart, End: trimEnd})
		}
	}

	for _, e := range order {
		correctType(e)
	}

	entities := make([]graph.Entity, len(order))
	for i, e := range order {
		entities[i] = *e
	}
	return entities, spans
}

// resolve implements the registry lookup/merge/create algorithm of
// spec.md §4.3: exact key hit, PERSON name-overlap merge, else validated
// creation.
func (h *Harvester) resolve(registry map[registryKey]*graph.Entity, order *[]*graph.Entity, entType graph.EntityType, canonical, surface string) *graph.Entity {
	key := registryKey{Type: entType, Canonical: strings.ToLower(canonical)}
	if e, ok := registry[key]; ok {
		return e
	}

	if entType == graph.EntityPerson {
		if merged := h.findNameOverlap(registry, canonical); merged != nil {
			h.upgradeCanonical(registry, merged, canonical)
			return merged
		}
	}

	if !passesValidator(canonical) {
		return nil
	}

	e := &graph.Entity{
		ID:        uuid.New().String(),
		Type:      entType,
		Canonical: canonical,
		Aliases:   make(map[string]struct{}),
		Attrs:     make(map[string]interface{}),
		CreatedAt: time.Now(),
	}
	registry[key] = e
	*order = append(*order, e)
	return e
}

// findNameOverlap looks for an existing PERSON entity that shares at
// least one token with candidate where one name is a proper token subset
// of the other, or whose fuzzy similarity exceeds NameOverlapThreshold
// (spelling variants prose's NER fragments differently).
func (h *Harvester) findNameOverlap(registry map[registryKey]*graph.Entity, candidate string) *graph.Entity {
	candTokens := tokenSet(candidate)
	var best *graph.Entity
	for key, e := range registry {
		if key.Type != graph.EntityPerson {
			continue
		}
		existingTokens := tokenSet(e.Canonical)
		if sharesSubsetToken(candTokens, existingTokens) {
			best = e
			break
		}
		if matchr.JaroWinkler(strings.ToLower(candidate), strings.ToLower(e.Canonical), true) >= h.NameOverlapThreshold {
			best = e
			break
		}
	}
	return best
}

func (h *Harvester) upgradeCanonical(registry map[registryKey]*graph.Entity, e *graph.Entity, candidate string) {
	candTokens := strings.Fields(candidate)
	curTokens := strings.Fields(e.Canonical)
	if len(candTokens) > len(curTokens) {
		old := e.Canonical
		oldKey := registryKey{Type: e.Type, Canonical: strings.ToLower(old)}
		delete(registry, oldKey)
		e.Canonical = candidate
		e.AddAlias(old)
		registry[registryKey{Type: e.Type, Canonical: strings.ToLower(candidate)}] = e
	} else if candidate != e.Canonical {
		e.AddAlias(candidate)
	}
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		out[strings.ToLower(tok)] = struct{}{}
	}
	return out
}

func sharesSubsetToken(a, b map[string]struct{}) bool {
	shared := false
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	return isTokenSubset(a, b) || isTokenSubset(b, a)
}

func isTokenSubset(small, big map[string]struct{}) bool {
	if len(small) >= len(big) {
		return false
	}
	for tok := range small {
		if _, ok := big[tok]; !ok {
			return false
		}
	}
	return true
}

// passesValidator implements the C3-inline validator (spec.md §4.3 step
// 3): not a pronoun/common word, capitalized first letter, no
// stopword-only content, >=2 letters, not a generic relational noun.
func passesValidator(canonical string) bool {
	if len(canonical) < 2 {
		return false
	}
	if lexicon.IsPronoun(canonical) {
		return false
	}
	lower := strings.ToLower(canonical)
	if lexicon.Stopwords.Contains(lower) {
		return false
	}
	r := []rune(canonical)[0]
	if !unicode.IsUpper(r) {
		return false
	}
	if genericRelationalNouns.Contains(lower) {
		return false
	}
	return true
}

var genericRelationalNouns = makeSet("mother", "father", "brother", "sister", "son", "daughter", "husband", "wife", "friend", "king", "queen", "lord", "lady")

func makeSet(words ...string) setContains {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return setContains(m)
}

type setContains map[string]struct{}

func (s setContains) Contains(w string) bool {
	_, ok := s[w]
	return ok
}

// canonicalize normalizes a trimmed mention substring per spec.md §4.3:
// strip leading articles, drop a trailing possessive 's, collapse
// whitespace.
func canonicalize(surface string) string {
	fields := strings.Fields(surface)
	if len(fields) == 0 {
		return ""
	}
	if lexicon.Articles.Contains(strings.ToLower(fields[0])) {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return ""
	}
	joined := strings.Join(fields, " ")
	joined = strings.TrimSuffix(joined, "'s")
	joined = strings.TrimSuffix(joined, "’s")
	return strings.TrimSpace(joined)
}

// trimToWordBoundary drops non-word characters from both ends of the span
// and then extends its end right while word characters continue,
// recovering clean boundaries after NER over-or-under-shoots punctuation
// (spec.md §4.3).
func trimToWordBoundary(text string, start, end int) (int, int) {
	for start < end && !isWordRune(rune(text[start])) {
		start++
	}
	for end > start && !isWordRune(rune(text[end-1])) {
		end--
	}
	for end > start && end < len(text) && isWordRune(rune(text[end])) {
		end++
	}
	return start, end
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-'
}

// correctType applies the lexical type corrector (spec.md §4.3): tokens
// ending with a place suffix force PLACE; tokens containing a house
// marker force HOUSE.
func correctType(e *graph.Entity) {
	for _, suffix := range lexicon.PlaceSuffixes {
		if strings.HasSuffix(e.Canonical, suffix) {
			e.Type = graph.EntityPlace
			return
		}
	}
	for _, marker := range lexicon.HouseMarkers {
		if strings.Contains(e.Canonical, marker) {
			e.Type = graph.EntityHouse
			return
		}
	}
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func minLen(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
