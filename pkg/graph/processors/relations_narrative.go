package processors

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
)

// colonListPattern matches "<lead-in>: A, B, and C" / "<lead-in>: A, B, C"
// enumerations (spec.md §4.9).
var colonListPattern = regexp.MustCompile(`([A-Z][\w' ]*?):\s*([A-Z][\w'-]*(?:,\s*(?:and\s+)?[A-Z][\w'-]*)+)`)

// listItemPattern splits a comma/and-separated enumeration into items.
var listItemPattern = regexp.MustCompile(`,\s*(?:and\s+)?|\s+and\s+`)

// NarrativeRelationInducer implements C9: enumeration/colon-list safety
// net plus coref-aware anaphor expansion, run over the deictic-rewritten
// text (spec.md §4.9).
type NarrativeRelationInducer struct {
	logger *logrus.Entry
}

// NewNarrativeRelationInducer creates a C9 inducer.
func NewNarrativeRelationInducer() *NarrativeRelationInducer {
	return &NarrativeRelationInducer{logger: logrus.WithField("component", "C9")}
}

// Induce scans each segment's text for colon-list enumerations and
// "the couple" style anaphora, binding recognized items to entities by
// canonical/alias substring match (coordinates are rarely offset-stable
// after deictic rewriting, so this stage matches by text, not span).
func (c *NarrativeRelationInducer) Induce(segments []graph.Segment, entities []graph.Entity, corefLinks []graph.CorefLink) ([]graph.Relation, RelationStats) {
	var out []graph.Relation
	stats := RelationStats{}

	byCanonical := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byCanonical[strings.ToLower(entities[i].Canonical)] = &entities[i]
		for alias := range entities[i].Aliases {
			if _, exists := byCanonical[strings.ToLower(alias)]; !exists {
				byCanonical[strings.ToLower(alias)] = &entities[i]
			}
		}
	}

	for _, seg := range segments {
		for _, m := range colonListPattern.FindAllStringSubmatch(seg.Text, -1) {
			leadIn := strings.TrimSpace(m[1])
			items := listItemPattern.Split(m[2], -1)

			leadEntity := resolveCanonical(byCanonical, leadIn)
			var itemEntities []*graph.Entity
			for _, item := range items {
				if e := resolveCanonical(byCanonical, strings.TrimSpace(item)); e != nil {
					itemEntities = append(itemEntities, e)
				}
			}
			if len(itemEntities) == 0 {
				continue
			}

			pred, subjectIsLead := narrativePredicateFor(leadIn, leadEntity, itemEntities)
			if pred == "" {
				continue
			}

			ev := graph.Evidence{Start: seg.Start, End: seg.End, Text: seg.Text}
			for _, item := range itemEntities {
				subj, obj := leadEntity, item
				if !subjectIsLead {
					subj, obj = item, leadEntity
				}
				if subj == nil || obj == nil || subj.ID == obj.ID {
					continue
				}
				stats.Candidates++
				if !passesTypeGuard(pred, subj.Type, obj.Type) {
					stats.GuardDropped++
					continue
				}
				out = append(out, graph.Relation{
					ID:         uuid.New().String(),
					Subj:       subj.ID,
					Pred:       pred,
					Obj:        obj.ID,
					Evidence:   []graph.Evidence{ev},
					Confidence: 0.75,
					Extractor:  graph.ExtractorNarrative,
				})
			}
		}
	}

	out = append(out, c.coupleAnaphora(segments, entities, corefLinks, &stats)...)

	c.logger.WithField("candidate_count", stats.Candidates).Debug("narrative relation induction complete")
	return out, stats
}

// narrativePredicateFor guesses the enumeration's predicate from the
// lead-in phrase: "X's children" -> parent_of(X, item); "Members"/"the
// <org>" -> member_of(item, X); otherwise part_of(item, X) when the lead
// resolves to a PLACE/ORG.
func narrativePredicateFor(leadIn string, lead *graph.Entity, items []*graph.Entity) (graph.Predicate, bool) {
	lower := strings.ToLower(leadIn)
	switch {
	case strings.Contains(lower, "children"):
		return graph.PredParentOf, true
	case strings.Contains(lower, "members"):
		return graph.PredMemberOf, false
	case lead != nil && (lead.Type == graph.EntityOrg || lead.Type == graph.EntityPlace):
		return graph.PredPartOf, false
	default:
		return "", false
	}
}

// resolveCanonical looks up text (and its possessive-stripped form)
// against known canonicals/aliases.
func resolveCanonical(byCanonical map[string]*graph.Entity, text string) *graph.Entity {
	text = strings.TrimSuffix(text, "'s")
	text = strings.TrimSuffix(text, "’s")
	text = strings.TrimSpace(text)
	if e, ok := byCanonical[strings.ToLower(text)]; ok {
		return e
	}
	// "X's children" / "the Smith family" style leads: try the last word.
	fields := strings.Fields(text)
	if len(fields) > 0 {
		if e, ok := byCanonical[strings.ToLower(fields[len(fields)-1])]; ok {
			return e
		}
	}
	return nil
}

// coupleAnaphora expands "the couple"-style references into relations
// naming both coref-linked partners as subject (spec.md §4.9).
func (c *NarrativeRelationInducer) coupleAnaphora(segments []graph.Segment, entities []graph.Entity, corefLinks []graph.CorefLink, stats *RelationStats) []graph.Relation {
	var out []graph.Relation
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	for _, seg := range segments {
		lower := strings.ToLower(seg.Text)
		if !strings.Contains(lower, "the couple") {
			continue
		}
		var partners []*graph.Entity
		for _, link := range corefLinks {
			if link.MentionStart < seg.Start || link.MentionEnd > seg.End {
				continue
			}
			if e := byID[link.EntityID]; e != nil {
				partners = append(partners, e)
			}
		}
		if len(partners) < 2 {
			continue
		}
		ev := graph.Evidence{Start: seg.Start, End: seg.End, Text: seg.Text}
		for i := 0; i < len(partners); i++ {
			for j := 0; j < len(partners); j++ {
				if i == j {
					continue
				}
				stats.Candidates++
				if !passesTypeGuard(graph.PredMarriedTo, partners[i].Type, partners[j].Type) {
					stats.GuardDropped++
					continue
				}
				out = append(out, graph.Relation{
					ID:         uuid.New().String(),
					Subj:       partners[i].ID,
					Pred:       graph.PredMarriedTo,
					Obj:        partners[j].ID,
					Evidence:   []graph.Evidence{ev},
					Confidence: 0.75,
					Extractor:  graph.ExtractorNarrative,
				})
			}
		}
	}
	return out
}
