package processors

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
)

// globalPassAllowList restricts a full-document re-run's contribution to
// high-precision predicate families (spec.md §4.10 step 5).
var globalPassAllowList = map[graph.Predicate]bool{
	graph.PredParentOf:   true,
	graph.PredChildOf:    true,
	graph.PredSiblingOf:  true,
	graph.PredMarriedTo:  true,
	graph.PredLivesIn:    true,
	graph.PredMemberOf:   true,
	graph.PredLeads:      true,
	graph.PredPartOf:     true,
}

// PostProcessor implements C10: the fixed pipeline of remap, inverse
// synthesis, appositive filtering, conflict suppression, dedup,
// confidence thresholding and dense-narrative pruning.
type PostProcessor struct {
	logger        *logrus.Entry
	MinConfidence float64
	// Strict raises the effective confidence floor to at least 0.75,
	// trading recall for precision (the precision-mode strict override
	// in spec.md §6).
	Strict bool
	// PruneEntityThreshold is the dense-narrative entity count above
	// which unreferenced low-mention entities are pruned (spec.md §4.10
	// step 8, exposed as configuration per §9).
	PruneEntityThreshold int
	// SkipDedup disables step 6 when the host turns deduplication off.
	SkipDedup bool
}

// NewPostProcessor creates a C10 post-processor with confidence floor
// minConfidence (spec.md §4.10 step 7, default 0.70).
func NewPostProcessor(minConfidence float64) *PostProcessor {
	return &PostProcessor{
		logger:               logrus.WithField("component", "C10"),
		MinConfidence:        minConfidence,
		PruneEntityThreshold: 12,
	}
}

// floor is the effective confidence threshold after the strict override.
func (p *PostProcessor) floor() float64 {
	if p.Strict && p.MinConfidence < 0.75 {
		return 0.75
	}
	return p.MinConfidence
}

// Process runs every step of spec.md §4.10 except step 1 (entity-ID
// remap) and step 5 (global-pass gating), which the pipeline applies
// before calling Process since they need information — a prior merge
// table, a second extraction pass — that doesn't live in this stage.
func (p *PostProcessor) Process(entities []graph.Entity, spans []graph.Span, relations []graph.Relation) ([]graph.Entity, []graph.Span, []graph.Relation, RelationStats) {
	stats := RelationStats{Candidates: len(relations)}

	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	relations = p.synthesizeInverses(relations)
	relations = p.appositiveFilter(relations)
	relations = p.suppressConflicts(relations)
	if !p.SkipDedup {
		relations = p.dedup(relations, byID)
	}

	var kept []graph.Relation
	for _, r := range relations {
		if r.Subj == r.Obj {
			continue
		}
		if r.Confidence < p.floor() {
			stats.GuardDropped++
			continue
		}
		kept = append(kept, r)
	}
	relations = kept

	sort.Slice(relations, func(i, j int) bool {
		if relations[i].Subj != relations[j].Subj {
			return relations[i].Subj < relations[j].Subj
		}
		if relations[i].Pred != relations[j].Pred {
			return relations[i].Pred < relations[j].Pred
		}
		return relations[i].Obj < relations[j].Obj
	})

	entities, spans, relations = p.pruneDenseNarrative(entities, spans, relations)

	p.logger.WithField("final_count", len(relations)).Debug("post-processing complete")
	return entities, spans, relations, stats
}

// synthesizeInverses implements step 2. Predicates with a declared
// inverse get a swapped counterpart under that inverse; symmetric
// predicates get a swapped counterpart under the same predicate so both
// directions survive dedup (spec.md §8 invariant 5).
func (p *PostProcessor) synthesizeInverses(relations []graph.Relation) []graph.Relation {
	out := make([]graph.Relation, 0, len(relations)*2)
	out = append(out, relations...)
	for _, r := range relations {
		def, ok := graph.Predicates[r.Pred]
		if !ok {
			continue
		}
		counterpart := def.Inverse
		if def.Symmetric {
			counterpart = r.Pred
		}
		if counterpart == "" {
			continue
		}
		out = append(out, graph.Relation{
			ID:         r.ID + "-inv",
			Subj:       r.Obj,
			Pred:       counterpart,
			Obj:        r.Subj,
			Evidence:   r.Evidence,
			Confidence: r.Confidence,
			Extractor:  r.Extractor,
			Qualifiers: r.Qualifiers,
		})
	}
	return out
}

// appositiveFilter implements step 3: for every (pred, obj) group with
// >=2 distinct subjects, keep coordinated subjects (close together, no
// substring containment) but collapse apparent appositive clarifications
// down to the first subject.
func (p *PostProcessor) appositiveFilter(relations []graph.Relation) []graph.Relation {
	type key struct {
		Pred graph.Predicate
		Obj  string
	}
	groups := make(map[key][]graph.Relation)
	var order []key
	for _, r := range relations {
		k := key{r.Pred, r.Obj}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var out []graph.Relation
	for _, k := range order {
		group := groups[k]
		subjSeen := make(map[string]bool)
		for _, r := range group {
			subjSeen[r.Subj] = true
		}
		if len(subjSeen) < 2 {
			out = append(out, group...)
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			return evidenceStart(group[i]) < evidenceStart(group[j])
		})

		keep := make(map[string]bool)
		keep[group[0].Subj] = true
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			dist := evidenceStart(cur) - evidenceStart(prev)
			if dist < 0 {
				dist = -dist
			}
			if dist < 50 && !containsSubstring(prev.Subj, cur.Subj) {
				keep[cur.Subj] = true
			}
		}
		for _, r := range group {
			if keep[r.Subj] {
				out = append(out, r)
			}
		}
	}
	return out
}

func evidenceStart(r graph.Relation) int {
	if len(r.Evidence) == 0 {
		return 0
	}
	return r.Evidence[0].Start
}

func containsSubstring(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// suppressConflicts implements step 4: a confident married_to(A,B)
// suppresses a nearby parent_of/child_of(A,B) candidate.
func (p *PostProcessor) suppressConflicts(relations []graph.Relation) []graph.Relation {
	type pair struct{ a, b string }
	married := make(map[pair]int) // evidence start of the married_to relation
	for _, r := range relations {
		if r.Pred == graph.PredMarriedTo && r.Confidence > 0.75 {
			married[pair{r.Subj, r.Obj}] = evidenceStart(r)
		}
	}

	var out []graph.Relation
	for _, r := range relations {
		if r.Pred == graph.PredParentOf || r.Pred == graph.PredChildOf {
			if start, ok := married[pair{r.Subj, r.Obj}]; ok && withinSentenceRange(start, evidenceStart(r), 2) {
				continue
			}
			if start, ok := married[pair{r.Obj, r.Subj}]; ok && withinSentenceRange(start, evidenceStart(r), 2) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// withinSentenceRange approximates "within ±2 sentences" as within 400
// characters, since this stage no longer carries sentence boundaries.
func withinSentenceRange(a, b, sentences int) bool {
	dist := a - b
	if dist < 0 {
		dist = -dist
	}
	return dist <= sentences*200
}

// dedup implements step 6: group by (lowercased subj canonical, pred,
// lowercased obj canonical), merge evidence, take max confidence,
// prefer the higher-priority extractor.
func (p *PostProcessor) dedup(relations []graph.Relation, byID map[string]*graph.Entity) []graph.Relation {
	type key struct {
		Subj string
		Pred graph.Predicate
		Obj  string
	}
	merged := make(map[key]*graph.Relation)
	var order []key

	for _, r := range relations {
		subjE, objE := byID[r.Subj], byID[r.Obj]
		if subjE == nil || objE == nil {
			continue
		}
		k := key{strings.ToLower(subjE.Canonical), r.Pred, strings.ToLower(objE.Canonical)}
		existing, ok := merged[k]
		if !ok {
			cp := r
			merged[k] = &cp
			order = append(order, k)
			continue
		}
		existing.Evidence = mergeEvidence(existing.Evidence, r.Evidence)
		if r.Confidence > existing.Confidence {
			existing.Confidence = r.Confidence
		}
		if graph.ExtractorPriority(r.Extractor, existing.Extractor) {
			existing.Extractor = r.Extractor
		}
		existing.Qualifiers = mergeQualifiers(existing.Qualifiers, r.Qualifiers)
	}

	out := make([]graph.Relation, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}

func mergeEvidence(a, b []graph.Evidence) []graph.Evidence {
	seen := make(map[string]bool, len(a))
	out := make([]graph.Evidence, 0, len(a)+len(b))
	for _, e := range a {
		key := evidenceKey(e)
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	for _, e := range b {
		key := evidenceKey(e)
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}

func evidenceKey(e graph.Evidence) string {
	return strings.Join([]string{itoa(e.Start), itoa(e.End)}, ":")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func mergeQualifiers(a, b []graph.Qualifier) []graph.Qualifier {
	seen := make(map[string]bool, len(a))
	out := make([]graph.Qualifier, 0, len(a)+len(b))
	for _, q := range append(append([]graph.Qualifier{}, a...), b...) {
		key := string(q.Kind) + "|" + q.Value
		if !seen[key] {
			seen[key] = true
			out = append(out, q)
		}
	}
	return out
}

// pruneDenseNarrative implements step 8.
func (p *PostProcessor) pruneDenseNarrative(entities []graph.Entity, spans []graph.Span, relations []graph.Relation) ([]graph.Entity, []graph.Span, []graph.Relation) {
	threshold := p.PruneEntityThreshold
	if threshold <= 0 {
		threshold = 12
	}
	if len(entities) <= threshold || len(relations) < len(entities) {
		return entities, spans, relations
	}

	referenced := make(map[string]bool, len(relations)*2)
	for _, r := range relations {
		referenced[r.Subj] = true
		referenced[r.Obj] = true
	}

	keep := make(map[string]bool, len(entities))
	var keptEntities []graph.Entity
	for _, e := range entities {
		if referenced[e.ID] || e.MentionCount >= 3 {
			keep[e.ID] = true
			keptEntities = append(keptEntities, e)
		}
	}

	var keptSpans []graph.Span
	for _, s := range spans {
		if keep[s.EntityID] {
			keptSpans = append(keptSpans, s)
		}
	}

	var keptRelations []graph.Relation
	for _, r := range relations {
		if keep[r.Subj] && keep[r.Obj] {
			keptRelations = append(keptRelations, r)
		}
	}

	return keptEntities, keptSpans, keptRelations
}

// FilterGlobalPass implements step 5: a full-document re-run only
// contributes relations on the allow-list, above the confidence floor
// (max(baseFloor, existing-triple-confidence+0.01)), that pass the type
// guard. baseFloor is the pass-wide floor, resolved by the caller as
// ExtractionConfig.GlobalPassConfidenceFloor (max(min_confidence, 0.8)).
func FilterGlobalPass(globalRelations []graph.Relation, existingByTriple map[string]float64, byID map[string]*graph.Entity, baseFloor float64) []graph.Relation {
	var out []graph.Relation
	for _, r := range globalRelations {
		if !globalPassAllowList[r.Pred] {
			continue
		}
		subjE, objE := byID[r.Subj], byID[r.Obj]
		if subjE == nil || objE == nil {
			continue
		}
		if !passesTypeGuard(r.Pred, subjE.Type, objE.Type) {
			continue
		}
		triple := strings.ToLower(subjE.Canonical) + "|" + string(r.Pred) + "|" + strings.ToLower(objE.Canonical)
		floor := baseFloor
		if existing, ok := existingByTriple[triple]; ok && existing+0.01 > floor {
			floor = existing + 0.01
		}
		if r.Confidence < floor {
			continue
		}
		out = append(out, r)
	}
	return out
}
