package graph

import (
	"context"
	"time"

	"github.com/narrative-kg/extract/pkg/graph/lexicon"
)

// EntityType is the closed set of entity categories the harvester (C3)
// and type corrector can assign.
type EntityType string

const (
	EntityPerson  EntityType = "PERSON"
	EntityOrg     EntityType = "ORG"
	EntityPlace   EntityType = "PLACE"
	EntityDate    EntityType = "DATE"
	EntityWork    EntityType = "WORK"
	EntityItem    EntityType = "ITEM"
	EntitySpecies EntityType = "SPECIES"
	EntityHouse   EntityType = "HOUSE"
	EntityTribe   EntityType = "TRIBE"
	EntityTitle   EntityType = "TITLE"
	EntityEvent   EntityType = "EVENT"
)

// Predicate is the closed relation vocabulary from spec.md §3. Each
// predicate knows its own symmetry/inverse and subject/object type guard.
type Predicate string

const (
	PredParentOf    Predicate = "parent_of"
	PredChildOf     Predicate = "child_of"
	PredFriendsWith Predicate = "friends_with"
	PredMarriedTo   Predicate = "married_to"
	PredEnemyOf     Predicate = "enemy_of"
	PredSiblingOf   Predicate = "sibling_of"
	PredLivesIn     Predicate = "lives_in"
	PredStudiesAt   Predicate = "studies_at"
	PredAttended    Predicate = "attended"
	PredTeachesAt   Predicate = "teaches_at"
	PredLeads       Predicate = "leads"
	PredMemberOf    Predicate = "member_of"
	PredPartOf      Predicate = "part_of"
	PredRules       Predicate = "rules"
	PredTraveledTo  Predicate = "traveled_to"
	PredFoughtIn    Predicate = "fought_in"
	PredInvestedIn  Predicate = "invested_in"
	PredAdvisedBy   Predicate = "advised_by"
)

// PredicateDef declares everything the post-processor and type guard need
// to know about one predicate: its allowed subject/object types, whether
// it is symmetric, and its inverse (if any).
type PredicateDef struct {
	Pred      Predicate
	Symmetric bool
	Inverse   Predicate // "" if none
	SubjTypes []EntityType
	ObjTypes  []EntityType
}

// Predicates is the closed enumeration table (spec.md §3, "Predicate").
var Predicates = map[Predicate]PredicateDef{
	PredParentOf: {Pred: PredParentOf, Inverse: PredChildOf,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredChildOf: {Pred: PredChildOf, Inverse: PredParentOf,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredFriendsWith: {Pred: PredFriendsWith, Symmetric: true,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredMarriedTo: {Pred: PredMarriedTo, Symmetric: true,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredEnemyOf: {Pred: PredEnemyOf, Symmetric: true,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredSiblingOf: {Pred: PredSiblingOf, Symmetric: true,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
	PredLivesIn: {Pred: PredLivesIn,
		SubjTypes: []EntityType{EntityPerson, EntityHouse, EntityTribe},
		ObjTypes:  []EntityType{EntityPlace, EntityHouse}},
	PredStudiesAt: {Pred: PredStudiesAt,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityOrg, EntityPlace}},
	PredAttended: {Pred: PredAttended,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityOrg, EntityEvent, EntityPlace}},
	PredTeachesAt: {Pred: PredTeachesAt,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityOrg, EntityPlace}},
	PredLeads: {Pred: PredLeads,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityOrg, EntityHouse, EntityTribe, EntityPlace}},
	PredMemberOf: {Pred: PredMemberOf,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityOrg, EntityHouse, EntityTribe}},
	PredPartOf: {Pred: PredPartOf,
		SubjTypes: []EntityType{EntityPerson, EntityOrg, EntityPlace, EntityItem},
		ObjTypes:  []EntityType{EntityOrg, EntityPlace, EntityHouse, EntityTribe}},
	PredRules: {Pred: PredRules,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPlace, EntityOrg, EntityHouse, EntityTribe}},
	PredTraveledTo: {Pred: PredTraveledTo,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPlace}},
	PredFoughtIn: {Pred: PredFoughtIn,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityEvent, EntityPlace}},
	PredInvestedIn: {Pred: PredInvestedIn,
		SubjTypes: []EntityType{EntityPerson, EntityOrg}, ObjTypes: []EntityType{EntityOrg}},
	PredAdvisedBy: {Pred: PredAdvisedBy,
		SubjTypes: []EntityType{EntityPerson}, ObjTypes: []EntityType{EntityPerson}},
}

// AllowsTypes reports whether (subjType, objType) satisfies this
// predicate's type guard (spec.md §3, §4.7 "Type guard").
func (d PredicateDef) AllowsTypes(subjType, objType EntityType) bool {
	return containsType(d.SubjTypes, subjType) && containsType(d.ObjTypes, objType)
}

func containsType(types []EntityType, t EntityType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// Segment is a sentence- or paragraph-scoped slice of the source document
// (spec.md §3, §4.1). Offsets are half-open and absolute in the document.
type Segment struct {
	DocID              string
	ParagraphIndex     int
	SentenceIndexInPar int
	Start              int
	End                int
	Text               string
}

// Token carries the per-token syntactic information the external parser
// contract promises (spec.md §4.2, §6).
type Token struct {
	Index     int
	Text      string
	Lemma     string
	POS       string
	EntType   string
	HeadIndex int
	DepLabel  string
	Start     int
	End       int
}

// IsRoot reports whether this token is the dependency root of its sentence.
func (t Token) IsRoot() bool { return t.HeadIndex == t.Index }

// ParsedSentence is one sentence's worth of parsed tokens, as produced by
// the Parser Adapter (C2).
type ParsedSentence struct {
	Text   string
	Start  int
	End    int
	Tokens []Token
}

// Entity is a canonicalized entity in the extraction registry (spec.md §3).
type Entity struct {
	ID           string
	Type         EntityType
	Canonical    string
	Aliases      map[string]struct{}
	Attrs        map[string]interface{}
	CreatedAt    time.Time
	MentionCount int

	// Identity records, populated by C11 when GenerateStableIDs is set.
	EID int
	AID int
	SP  []int
}

// AliasSlice returns the alias set as a slice for export.
func (e *Entity) AliasSlice() []string {
	out := make([]string, 0, len(e.Aliases))
	for a := range e.Aliases {
		out = append(out, a)
	}
	return out
}

// AddAlias registers a surface form as an alias of e. Pronouns and the
// canonical form itself are never added (spec.md invariant: "pronouns
// never appear in aliases").
func (e *Entity) AddAlias(surface string) {
	if surface == "" || surface == e.Canonical || lexicon.IsPronoun(surface) {
		return
	}
	if e.Aliases == nil {
		e.Aliases = make(map[string]struct{})
	}
	e.Aliases[surface] = struct{}{}
}

// Span is an entity mention: a character range plus the entity it refers
// to (spec.md §3).
type Span struct {
	EntityID string
	Start    int
	End      int
	Virtual  bool // true for coref-resolved pronoun spans; excluded from export
}

// CorefMethod is the resolution strategy that produced a CorefLink.
type CorefMethod string

const (
	CorefExact      CorefMethod = "exact"
	CorefAlias      CorefMethod = "alias"
	CorefDescriptor CorefMethod = "descriptor"
	CorefPronoun    CorefMethod = "pronoun"
)

// CorefLink binds a pronoun or descriptor mention to a resolved entity
// (spec.md §3, §4.5).
type CorefLink struct {
	MentionStart int
	MentionEnd   int
	MentionText  string
	EntityID     string
	Method       CorefMethod
	Confidence   float64
}

// QualifierKind distinguishes the two qualifier flavors C7 extracts.
type QualifierKind string

const (
	QualifierTime  QualifierKind = "time"
	QualifierPlace QualifierKind = "place"
)

// Qualifier attaches contextual time/place information to a Relation
// (spec.md §3).
type Qualifier struct {
	Kind     QualifierKind
	Value    string
	EntityID string
	Span     Evidence
}

// Evidence is a single character-span citation supporting a Relation.
type Evidence struct {
	Start int
	End   int
	Text  string
}

// Extractor identifies which inducer produced a Relation, used by the
// post-processor's priority ordering (dep > regex > narrative).
type Extractor string

const (
	ExtractorDep       Extractor = "dep"
	ExtractorRegex     Extractor = "regex"
	ExtractorNarrative Extractor = "narrative"
)

func (e Extractor) priority() int {
	switch e {
	case ExtractorDep:
		return 3
	case ExtractorRegex:
		return 2
	case ExtractorNarrative:
		return 1
	default:
		return 0
	}
}

// ExtractorPriority reports whether a has strictly higher dedup priority
// than b (spec.md §4.10 step 6).
func ExtractorPriority(a, b Extractor) bool { return a.priority() > b.priority() }

// Relation is a typed subject/predicate/object triple with evidence and
// confidence (spec.md §3).
type Relation struct {
	ID         string
	Subj       string
	Pred       Predicate
	Obj        string
	Evidence   []Evidence
	Confidence float64
	Extractor  Extractor
	Qualifiers []Qualifier
}

// EntityProfile is the per-canonical running aggregate consumed by C5 and
// C11 (spec.md §3, §4.12).
type EntityProfile struct {
	Canonical         string
	MentionCount      int
	SentenceIndices   map[int]struct{}
	Titles            map[string]struct{}
	Descriptors       map[string]struct{}
	MaleVotes         int
	FemaleVotes       int
	PluralVotes       int
	CoOccurringPlaces map[string]struct{}
	CoOccurringOrgs   map[string]struct{}
}

// NewEntityProfile allocates an empty profile for canonical.
func NewEntityProfile(canonical string) *EntityProfile {
	return &EntityProfile{
		Canonical:         canonical,
		SentenceIndices:   make(map[int]struct{}),
		Titles:            make(map[string]struct{}),
		Descriptors:       make(map[string]struct{}),
		CoOccurringPlaces: make(map[string]struct{}),
		CoOccurringOrgs:   make(map[string]struct{}),
	}
}

// ExtractionResult is the public output of Extract() (spec.md §6).
type ExtractionResult struct {
	Entities  []Entity
	Spans     []Span
	Relations []Relation
	Profiles  map[string]*EntityProfile
	StableIDs []StableID
}

// StableID is one entity's cross-document identity record (EID/AID/SP,
// spec.md §4.11).
type StableID struct {
	EntityID string
	EID      int
	AID      int
	SP       []int
}

// KnowledgeGraphStore is the persistence contract shared by the JSON,
// Neo4j and XLSX backends in pkg/graph/storage.
type KnowledgeGraphStore interface {
	Connect(ctx context.Context) error
	Close() error
	StoreResult(ctx context.Context, docID string, result *ExtractionResult) error
}
