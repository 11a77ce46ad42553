package processors

import (
	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
)

// regexRule is one surface pattern from spec.md §4.8. {A} and {B}
// capture groups bind to the nearest entity mention whose span overlaps
// the captured range.
type regexRule struct {
	Pattern *regexp2.Regexp
	Pred    graph.Predicate
}

var regexRules = buildRegexRules()

func buildRegexRules() []regexRule {
	mk := func(pattern string, pred graph.Predicate) regexRule {
		return regexRule{Pattern: regexp2.MustCompile(pattern, regexp2.IgnoreCase), Pred: pred}
	}
	return []regexRule{
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*),?\s+son of\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredChildOf),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*),?\s+daughter of\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredChildOf),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+begat\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredParentOf),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+married\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredMarriedTo),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+traveled to\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredTraveledTo),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+studied at\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredStudiesAt),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+conquered\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)`, graph.PredRules),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+and\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+were friends`, graph.PredFriendsWith),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+and\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+were brothers`, graph.PredSiblingOf),
		mk(`(?<A>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+and\s+(?<B>[A-Z][\w'-]*(?: [A-Z][\w'-]*)*)\s+were siblings`, graph.PredSiblingOf),
	}
}

// RegexRelationInducer implements C8: a small battery of surface
// patterns over the raw segment text, bound to entities via span
// overlap and run through the same type guard as C7.
type RegexRelationInducer struct {
	logger *logrus.Entry
}

// NewRegexRelationInducer creates a C8 inducer.
func NewRegexRelationInducer() *RegexRelationInducer {
	return &RegexRelationInducer{logger: logrus.WithField("component", "C8")}
}

// Induce scans every segment's text against regexRules.
func (c *RegexRelationInducer) Induce(segments []graph.Segment, entities []graph.Entity, spans []graph.Span) ([]graph.Relation, RelationStats) {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	var out []graph.Relation
	stats := RelationStats{}

	for _, seg := range segments {
		segSpans := spansInRange(spans, seg.Start, seg.End)
		for _, rule := range regexRules {
			m, err := rule.Pattern.FindStringMatch(seg.Text)
			for err == nil && m != nil {
				aGroup := m.GroupByName("A")
				bGroup := m.GroupByName("B")
				if aGroup == nil || bGroup == nil {
					break
				}
				aStart := seg.Start + aGroup.Capture.Index
				aEnd := aStart + aGroup.Capture.Length
				bStart := seg.Start + bGroup.Capture.Index
				bEnd := bStart + bGroup.Capture.Length

				subjSpan := spanCovering(segSpans, aStart, aEnd)
				objSpan := spanCovering(segSpans, bStart, bEnd)
				if subjSpan != nil && objSpan != nil && subjSpan.EntityID != objSpan.EntityID {
					subjE, objE := byID[subjSpan.EntityID], byID[objSpan.EntityID]
					if subjE != nil && objE != nil {
						stats.Candidates++
						if passesTypeGuard(rule.Pred, subjE.Type, objE.Type) {
							out = append(out, graph.Relation{
								ID:         uuid.New().String(),
								Subj:       subjE.ID,
								Pred:       rule.Pred,
								Obj:        objE.ID,
								Evidence:   []graph.Evidence{{Start: seg.Start, End: seg.End, Text: seg.Text}},
								Confidence: 0.7,
								Extractor:  graph.ExtractorRegex,
							})
						} else {
							stats.GuardDropped++
						}
					}
				}
				m, err = rule.Pattern.FindNextMatch(m)
			}
		}
	}

	c.logger.WithField("candidate_count", stats.Candidates).Debug("regex relation induction complete")
	return out, stats
}

func spansInRange(spans []graph.Span, start, end int) []graph.Span {
	var out []graph.Span
	for _, s := range spans {
		if s.Start >= start && s.End <= end {
			out = append(out, s)
		}
	}
	return out
}

func spanCovering(spans []graph.Span, start, end int) *graph.Span {
	for i := range spans {
		if spans[i].Start <= start && spans[i].End >= end {
			return &spans[i]
		}
		if spans[i].Start >= start && spans[i].End <= end {
			return &spans[i]
		}
	}
	return nil
}
