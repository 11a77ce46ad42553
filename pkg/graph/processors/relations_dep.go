package processors

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// classRule maps one lexicon.RelationClass to how a trigger of that
// class turns into a Relation: which predicate it implies, and whether
// the trigger's grammatical subject plays the predicate's subject role
// (false means subject/object are swapped, e.g. "X advised Y" emits
// advised_by(Y, X)).
type classRule struct {
	Pred       graph.Predicate
	SubjIsTrig bool
	AltPred    graph.Predicate // used when the lemma matches AltLemmas
	AltLemmas  map[string]bool
}

var classRules = map[lexicon.RelationClass]classRule{
	lexicon.ClassParentChild: {Pred: graph.PredParentOf, SubjIsTrig: true},
	lexicon.ClassMarriage:    {Pred: graph.PredMarriedTo, SubjIsTrig: true},
	lexicon.ClassMembership:  {Pred: graph.PredMemberOf, SubjIsTrig: true},
	lexicon.ClassLeadership:  {Pred: graph.PredLeads, SubjIsTrig: true},
	lexicon.ClassTravel:      {Pred: graph.PredTraveledTo, SubjIsTrig: true},
	lexicon.ClassEducation: {Pred: graph.PredStudiesAt, SubjIsTrig: true,
		AltPred: graph.PredAttended, AltLemmas: map[string]bool{"attend": true, "graduate": true}},
	lexicon.ClassTeaching:   {Pred: graph.PredTeachesAt, SubjIsTrig: true},
	lexicon.ClassRule:       {Pred: graph.PredRules, SubjIsTrig: true},
	lexicon.ClassCombat:     {Pred: graph.PredEnemyOf, SubjIsTrig: true},
	lexicon.ClassAdvice:     {Pred: graph.PredAdvisedBy, SubjIsTrig: false},
	lexicon.ClassInvestment: {Pred: graph.PredInvestedIn, SubjIsTrig: true},
	lexicon.ClassResidence:  {Pred: graph.PredLivesIn, SubjIsTrig: true},
}

// DependencyRelationInducer implements C7.
type DependencyRelationInducer struct {
	logger  *logrus.Entry
	PathCap int
}

// NewDependencyRelationInducer creates a C7 inducer with the default
// shortest-path cap (4 edges, spec.md §4.7(a)).
func NewDependencyRelationInducer() *DependencyRelationInducer {
	return &DependencyRelationInducer{logger: logrus.WithField("component", "C7"), PathCap: 4}
}

// Induce runs (a)-(d) over every sentence and returns relation
// candidates plus diagnostic stats. corefLinks supply the resolved entity
// for a pronoun subject, implementing the "subject resolution policy"
// fallback.
func (c *DependencyRelationInducer) Induce(sentences []graph.ParsedSentence, entities []graph.Entity, spans []graph.Span, corefLinks []graph.CorefLink) ([]graph.Relation, RelationStats) {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	var allMentions []mention
	mentionsBySentence := make([][]mention, len(sentences))
	for i, sent := range sentences {
		ms := mentionsInSentence(sent, byID, spans)
		mentionsBySentence[i] = ms
		allMentions = append(allMentions, ms...)
	}

	lastNamedSubject := make(map[string]string) // agreement-class key -> entity ID, most recent
	var out []graph.Relation
	stats := RelationStats{}

	for sentIdx, sent := range sentences {
		ms := mentionsBySentence[sentIdx]
		if len(ms) == 0 {
			continue
		}

		// (a) path-based extraction between every pair, shortest distance first.
		out = append(out, c.pathBased(sent, ms, byID, &stats)...)

		// (b)+(c)+(d) trigger, coordination, enumeration.
		out = append(out, c.triggerBased(sentIdx, sent, ms, byID, corefLinks, lastNamedSubject, allMentions, &stats)...)
		out = append(out, c.enumerationPatterns(sent, ms, byID, &stats)...)

		for _, m := range ms {
			if m.Type == graph.EntityPerson && sent.Tokens[m.HeadTok].DepLabel == "nsubj" {
				lastNamedSubject["default"] = m.EntityID
			}
		}
	}

	out = append(out, c.livesInPropagation(out, entities)...)
	return out, stats
}

// pathBased implements spec.md §4.7(a).
func (c *DependencyRelationInducer) pathBased(sent graph.ParsedSentence, ms []mention, byID map[string]*graph.Entity, stats *RelationStats) []graph.Relation {
	var out []graph.Relation
	type pair struct {
		a, b mention
		path []int
	}
	var pairs []pair
	for i := 0; i < len(ms); i++ {
		for j := i + 1; j < len(ms); j++ {
			path := shortestDepPath(sent, ms[i].HeadTok, ms[j].HeadTok, c.PathCap)
			if path == nil {
				continue
			}
			pairs = append(pairs, pair{ms[i], ms[j], path})
		}
	}
	// shortest-to-longest.
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			if len(pairs[j].path) < len(pairs[i].path) {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}

	for _, p := range pairs {
		sig := pathSignature(sent, p.path)
		for _, pp := range pathPatterns {
			if pp.Signature != sig {
				continue
			}
			subj, obj := p.a, p.b
			if !pp.SubjectFirst {
				subj, obj = obj, subj
			}
			stats.Candidates++
			if !passesTypeGuard(pp.Pred, subj.Type, obj.Type) {
				stats.GuardDropped++
				continue
			}
			subjE, objE := byID[subj.EntityID], byID[obj.EntityID]
			if subjE == nil || objE == nil || subjE.ID == objE.ID {
				continue
			}
			ev := graph.Evidence{Start: sent.Start, End: sent.End, Text: sent.Text}
			out = append(out, newRelation(uuid.New().String(), *subjE, pp.Pred, *objE, pp.BaseConf, graph.ExtractorDep, ev, nil))
			break
		}
	}
	return out
}

// triggerBased implements spec.md §4.7(b),(c).
func (c *DependencyRelationInducer) triggerBased(sentIdx int, sent graph.ParsedSentence, ms []mention, byID map[string]*graph.Entity, corefLinks []graph.CorefLink, lastNamedSubject map[string]string, allMentions []mention, stats *RelationStats) []graph.Relation {
	var out []graph.Relation

	for _, tok := range sent.Tokens {
		class, ok := lexicon.ClassFor(tok.Lemma)
		if !ok {
			continue
		}
		rule, ok := classRules[class]
		if !ok {
			continue
		}
		pred := rule.Pred
		if rule.AltLemmas != nil && (rule.AltLemmas[tok.Lemma] || rule.AltLemmas[tok.Lemma+"e"]) {
			pred = rule.AltPred
		}

		subjMention := c.resolveSubject(sent, tok, ms, byID, corefLinks, lastNamedSubject)
		objMention := c.resolveObject(sent, tok, ms)
		if subjMention == nil || objMention == nil || subjMention.EntityID == objMention.EntityID {
			continue
		}

		subj, obj := *subjMention, *objMention
		if !rule.SubjIsTrig {
			subj, obj = obj, subj
		}

		stats.Candidates++
		if !passesTypeGuard(pred, subj.Type, obj.Type) {
			stats.GuardDropped++
			continue
		}

		subjE, objE := byID[subj.EntityID], byID[obj.EntityID]
		if subjE == nil || objE == nil {
			continue
		}

		dist := charDistance(tok.Start, obj.Start, obj.End)
		typeBonus := 1.0
		conf := confidenceFromDistance(dist, typeBonus)
		qualifiers := extractQualifiers(tok.Start, obj.Start, obj.End, allMentions)
		ev := graph.Evidence{Start: sent.Start, End: sent.End, Text: sent.Text}

		out = append(out, newRelation(uuid.New().String(), *subjE, pred, *objE, conf, graph.ExtractorDep, ev, qualifiers))

		// (c) coordination expansion.
		for _, co := range coordinatedMentions(sent, *objMention, ms) {
			coE := byID[co.EntityID]
			if coE == nil || coE.ID == subjE.ID {
				continue
			}
			coSubj, coObj := subj, co
			if !rule.SubjIsTrig {
				coSubj, coObj = co, subj
			}
			if !passesTypeGuard(pred, coSubj.Type, coObj.Type) {
				stats.GuardDropped++
				continue
			}
			coSubjE, coObjE := byID[coSubj.EntityID], byID[coObj.EntityID]
			if coSubjE == nil || coObjE == nil {
				continue
			}
			out = append(out, newRelation(uuid.New().String(), *coSubjE, pred, *coObjE, conf*0.95, graph.ExtractorDep, ev, qualifiers))
		}
		for _, co := range coordinatedMentions(sent, *subjMention, ms) {
			coE := byID[co.EntityID]
			if coE == nil || coE.ID == objE.ID {
				continue
			}
			coSubj, coObj := co, obj
			if !rule.SubjIsTrig {
				coSubj, coObj = obj, co
			}
			if !passesTypeGuard(pred, coSubj.Type, coObj.Type) {
				stats.GuardDropped++
				continue
			}
			coSubjE, coObjE := byID[coSubj.EntityID], byID[coObj.EntityID]
			if coSubjE == nil || coObjE == nil {
				continue
			}
			out = append(out, newRelation(uuid.New().String(), *coSubjE, pred, *coObjE, conf*0.95, graph.ExtractorDep, ev, qualifiers))
		}
	}
	return out
}

// resolveSubject implements the trigger's subject recovery: nearest
// nsubj, else the pronoun's coref-resolved entity, else the last named
// subject (spec.md §4.7 "Subject resolution policy").
func (c *DependencyRelationInducer) resolveSubject(sent graph.ParsedSentence, trigger graph.Token, ms []mention, byID map[string]*graph.Entity, corefLinks []graph.CorefLink, lastNamedSubject map[string]string) *mention {
	for i := range ms {
		if sent.Tokens[ms[i].HeadTok].DepLabel == "nsubj" {
			return &ms[i]
		}
	}
	// Pronoun subject: look for a coref link whose mention sits before the
	// trigger in this sentence.
	for _, tok := range sent.Tokens {
		if tok.DepLabel != "nsubj" || !lexicon.IsPronoun(tok.Text) {
			continue
		}
		for _, link := range corefLinks {
			if link.MentionStart == tok.Start && link.MentionEnd == tok.End {
				if e := byID[link.EntityID]; e != nil {
					return &mention{EntityID: e.ID, Canonical: e.Canonical, Type: e.Type, HeadTok: ms[0].HeadTok}
				}
			}
		}
	}
	if eid, ok := lastNamedSubject["default"]; ok {
		for i := range ms {
			if ms[i].EntityID == eid {
				return &ms[i]
			}
		}
		if e := byID[eid]; e != nil {
			return &mention{EntityID: e.ID, Canonical: e.Canonical, Type: e.Type}
		}
	}
	return nil
}

// resolveObject recovers the trigger's object via dobj, pobj-through-
// preposition, or the nearest following mention as a fallback.
func (c *DependencyRelationInducer) resolveObject(sent graph.ParsedSentence, trigger graph.Token, ms []mention) *mention {
	for i := range ms {
		lbl := sent.Tokens[ms[i].HeadTok].DepLabel
		if (lbl == "dobj" || lbl == "pobj") && ms[i].HeadTok > trigger.Index {
			return &ms[i]
		}
	}
	var best *mention
	for i := range ms {
		if ms[i].HeadTok <= trigger.Index {
			continue
		}
		if best == nil || ms[i].HeadTok < best.HeadTok {
			best = &ms[i]
		}
	}
	return best
}

// enumerationPatterns implements spec.md §4.7(d): children-include,
// members-include and colon-list templates.
func (c *DependencyRelationInducer) enumerationPatterns(sent graph.ParsedSentence, ms []mention, byID map[string]*graph.Entity, stats *RelationStats) []graph.Relation {
	var out []graph.Relation
	lower := strings.ToLower(sent.Text)

	if strings.Contains(lower, "children include") || strings.Contains(lower, "children:") {
		parent := firstMentionOfType(ms, graph.EntityPerson)
		if parent != nil {
			for _, m := range ms {
				if m.EntityID == parent.EntityID || m.Type != graph.EntityPerson {
					continue
				}
				stats.Candidates++
				if !passesTypeGuard(graph.PredParentOf, parent.Type, m.Type) {
					stats.GuardDropped++
					continue
				}
				pE, cE := byID[parent.EntityID], byID[m.EntityID]
				if pE == nil || cE == nil {
					continue
				}
				ev := graph.Evidence{Start: sent.Start, End: sent.End, Text: sent.Text}
				out = append(out, newRelation(uuid.New().String(), *pE, graph.PredParentOf, *cE, 0.85, graph.ExtractorDep, ev, nil))
			}
		}
	}

	if strings.Contains(lower, "members include") {
		org := firstMentionOfAnyType(ms, graph.EntityOrg, graph.EntityHouse, graph.EntityTribe)
		if org != nil {
			for _, m := range ms {
				if m.EntityID == org.EntityID || m.Type != graph.EntityPerson {
					continue
				}
				stats.Candidates++
				if !passesTypeGuard(graph.PredMemberOf, m.Type, org.Type) {
					stats.GuardDropped++
					continue
				}
				mE, oE := byID[m.EntityID], byID[org.EntityID]
				if mE == nil || oE == nil {
					continue
				}
				ev := graph.Evidence{Start: sent.Start, End: sent.End, Text: sent.Text}
				out = append(out, newRelation(uuid.New().String(), *mE, graph.PredMemberOf, *oE, 0.85, graph.ExtractorDep, ev, nil))
			}
		}
	}

	return out
}

func firstMentionOfType(ms []mention, t graph.EntityType) *mention {
	for i := range ms {
		if ms[i].Type == t {
			return &ms[i]
		}
	}
	return nil
}

func firstMentionOfAnyType(ms []mention, types ...graph.EntityType) *mention {
	want := make(map[graph.EntityType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for i := range ms {
		if want[ms[i].Type] {
			return &ms[i]
		}
	}
	return nil
}

// livesInPropagation implements spec.md §4.7 "Lives-in propagation":
// lives_in(family, place) propagates to every PERSON sharing the
// family's surname token.
func (c *DependencyRelationInducer) livesInPropagation(relations []graph.Relation, entities []graph.Entity) []graph.Relation {
	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}

	var out []graph.Relation
	for _, r := range relations {
		if r.Pred != graph.PredLivesIn {
			continue
		}
		subj := byID[r.Subj]
		if subj == nil || subj.Type != graph.EntityHouse {
			continue
		}
		surname := surnameOf(subj.Canonical)
		if surname == "" {
			continue
		}
		for _, e := range entities {
			if e.Type != graph.EntityPerson || e.ID == subj.ID {
				continue
			}
			if !strings.Contains(strings.ToLower(e.Canonical), strings.ToLower(surname)) {
				continue
			}
			out = append(out, graph.Relation{
				ID:         uuid.New().String(),
				Subj:       e.ID,
				Pred:       graph.PredLivesIn,
				Obj:        r.Obj,
				Evidence:   r.Evidence,
				Confidence: r.Confidence * 0.9,
				Extractor:  graph.ExtractorDep,
			})
		}
	}
	return out
}

func surnameOf(canonical string) string {
	fields := strings.Fields(canonical)
	for _, f := range fields {
		if strings.EqualFold(f, "family") || strings.EqualFold(f, "house") || strings.EqualFold(f, "clan") {
			continue
		}
		return f
	}
	return ""
}
