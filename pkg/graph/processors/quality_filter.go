package processors

import (
	"regexp"
	"strings"
	"unicode"

	cregex "github.com/mingrammer/commonregex"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// QualityFilter implements C4: a stateless predicate over (canonical,
// type) run after C3 to purge the registry and cascade to spans.
type QualityFilter struct {
	logger        *logrus.Entry
	MinConfidence float64
}

// NewQualityFilter creates a C4 filter with the given confidence floor.
func NewQualityFilter(minConfidence float64) *QualityFilter {
	return &QualityFilter{
		logger:        logrus.WithField("component", "C4"),
		MinConfidence: minConfidence,
	}
}

var monthWord = regexp.MustCompile(`(?i)^(january|february|march|april|may|june|july|august|september|october|november|december)$`)
var anyDigit = regexp.MustCompile(`[0-9]`)
var onlyPunct = regexp.MustCompile(`^[[:punct:][:space:]]+$`)

// Accepts reports whether canonical/type survives the quality filter.
// mentionConfidence is the NER's per-mention score when available; pass
// 1.0 when the upstream NER (prose, here) does not expose one.
func (f *QualityFilter) Accepts(canonical string, entType graph.EntityType, mentionConfidence float64) bool {
	if canonical == "" || strings.TrimSpace(canonical) == "" {
		return false
	}
	lower := strings.ToLower(canonical)

	if lexicon.IsPronoun(canonical) {
		return false
	}
	if lexicon.Stopwords.Contains(lower) {
		return false
	}
	if lexicon.Blocklist.Contains(lower) {
		return false
	}
	if onlyPunct.MatchString(canonical) {
		return false
	}
	if !hasCapital(canonical) {
		return false
	}
	if entType == graph.EntityDate {
		// A bare month word with no number ("May", "in June") is not a
		// usable DATE anchor; commonregex recognizes the full date shapes
		// worth keeping.
		if monthWord.MatchString(strings.TrimSpace(canonical)) && !anyDigit.MatchString(canonical) {
			return false
		}
		if !anyDigit.MatchString(canonical) && len(cregex.Date(canonical)) == 0 {
			return false
		}
	}
	if mentionConfidence < f.MinConfidence {
		return false
	}
	return true
}

func hasCapital(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// Filter purges entities/spans that fail Accepts, cascading span removal
// to match.
func (f *QualityFilter) Filter(entities []graph.Entity, spans []graph.Span) ([]graph.Entity, []graph.Span) {
	kept := make(map[string]struct{}, len(entities))
	out := make([]graph.Entity, 0, len(entities))
	dropped := 0
	for _, e := range entities {
		if f.Accepts(e.Canonical, e.Type, 1.0) {
			kept[e.ID] = struct{}{}
			out = append(out, e)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		f.logger.WithField("dropped", dropped).Debug("quality filter rejected entities")
	}

	outSpans := make([]graph.Span, 0, len(spans))
	for _, s := range spans {
		if _, ok := kept[s.EntityID]; ok {
			outSpans = append(outSpans, s)
		}
	}
	return out, outSpans
}
