// Package lexicon holds the closed word lists and trigger dictionaries the
// extraction pipeline consults. Spec.md §9 calls these "data, not code":
// keeping them in one package (backed by deckarep/golang-set/v2 sets) means
// a language-specific port only has to replace this package.
package lexicon

import mapset "github.com/deckarep/golang-set/v2"

// Pronouns is the closed set of English personal/demonstrative pronouns
// recognized by C5 (coreference) and the C4 quality filter.
var Pronouns = mapset.NewSet(
	"i", "me", "my", "mine", "myself",
	"you", "your", "yours", "yourself",
	"he", "him", "his", "himself",
	"she", "her", "hers", "herself",
	"it", "its", "itself",
	"we", "us", "our", "ours", "ourselves",
	"they", "them", "their", "theirs", "themselves",
	"this", "that", "these", "those",
)

// MalePronouns / FemalePronouns / PluralPronouns partition the gendered
// and number-bearing subset used for agreement filtering (spec.md §4.5).
var (
	MalePronouns   = mapset.NewSet("he", "him", "his", "himself")
	FemalePronouns = mapset.NewSet("she", "her", "hers", "herself")
	PluralPronouns = mapset.NewSet("they", "them", "their", "theirs", "themselves")
)

// IsPronoun reports whether surface (case-insensitively) is a recognized
// pronoun.
func IsPronoun(surface string) bool {
	return Pronouns.Contains(lower(surface))
}

// Stopwords is the small high-frequency word list the C4 quality filter
// rejects canonicals drawn entirely from (spec.md §4.4).
var Stopwords = mapset.NewSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "is", "was", "were", "are", "be", "been", "being",
	"it", "as", "if", "so", "than", "then", "there", "here", "not", "no",
)

// Articles are stripped from the front of a trimmed mention when
// computing its canonical string (spec.md §4.3).
var Articles = mapset.NewSet("the", "a", "an")

// Blocklist is the small explicit canonical blocklist C4 rejects
// regardless of capitalization or frequency (spec.md §4.4).
var Blocklist = mapset.NewSet(
	"mr", "mrs", "ms", "dr", "mr.", "mrs.", "ms.", "dr.",
	"chapter", "part", "book", "volume",
)

// PlaceSuffixes force PLACE typing when a candidate canonical ends with
// one of these tokens (spec.md §4.3, type corrector).
var PlaceSuffixes = []string{"River", "Mountain", "Mountains", "Lake", "Forest", "Sea", "Ocean", "Valley", "Isle", "Island"}

// HouseMarkers force HOUSE typing when present in the candidate canonical.
var HouseMarkers = []string{"family", "House", "Family", "Clan"}

// MaleIndicators / FemaleIndicators are lexical gender cues used by the
// coreference resolver's profile-gender voting (spec.md §4.12).
var (
	MaleIndicators   = []string{"mr.", "mr", "he", "him", "his", "father", "brother", "son", "king", "lord", "husband", "uncle", "nephew"}
	FemaleIndicators = []string{"mrs.", "mrs", "ms.", "ms", "she", "her", "mother", "sister", "daughter", "queen", "lady", "wife", "aunt", "niece"}
)

// PluralSuffixes flag an entity canonical as likely plural (spec.md §4.5).
var PluralSuffixes = []string{"s", "ren", "ple"}

// RelationClass names a bucket of triggers that map to one or two
// predicates in C7 (spec.md §4.7 "Trigger patterns").
type RelationClass string

const (
	ClassParentChild RelationClass = "parent_child"
	ClassMarriage    RelationClass = "marriage"
	ClassMembership  RelationClass = "membership"
	ClassLeadership  RelationClass = "leadership"
	ClassTravel      RelationClass = "travel"
	ClassEducation   RelationClass = "education"
	ClassTeaching    RelationClass = "teaching"
	ClassRule        RelationClass = "rule"
	ClassCombat      RelationClass = "combat"
	ClassAdvice      RelationClass = "advice"
	ClassInvestment  RelationClass = "investment"
	ClassResidence   RelationClass = "residence"
)

// TriggerLemmas maps a verb/noun lemma to the relation class it triggers
// (spec.md §4.7(b)). Lemmas are lowercase.
var TriggerLemmas = map[string]RelationClass{
	"beget": ClassParentChild, "begat": ClassParentChild,
	"father": ClassParentChild, "mother": ClassParentChild,
	"parent": ClassParentChild, "sire": ClassParentChild,

	"marry": ClassMarriage, "wed": ClassMarriage,
	"husband": ClassMarriage, "wife": ClassMarriage,

	"work": ClassMembership, "employ": ClassMembership,
	"join": ClassMembership, "hire": ClassMembership, "recruit": ClassMembership,
	"member": ClassMembership,

	"found": ClassLeadership, "create": ClassLeadership,
	"establish": ClassLeadership, "launch": ClassLeadership, "build": ClassLeadership,
	"lead": ClassLeadership, "headmaster": ClassLeadership, "head": ClassLeadership,

	"travel": ClassTravel, "go": ClassTravel, "journey": ClassTravel,
	"ride": ClassTravel, "sail": ClassTravel,

	"study": ClassEducation, "attend": ClassEducation, "graduate": ClassEducation,

	"teach": ClassTeaching,

	"rule": ClassRule, "conquer": ClassRule, "reign": ClassRule,

	"fight": ClassCombat, "defeat": ClassCombat, "kill": ClassCombat, "battle": ClassCombat,

	"advise": ClassAdvice, "mentor": ClassAdvice,

	"invest": ClassInvestment,

	"live": ClassResidence, "dwell": ClassResidence, "reside": ClassResidence,

	// Irregular past forms the suffix lemmatizer can't reduce.
	"went": ClassTravel, "rode": ClassTravel,
	"fought": ClassCombat, "slew": ClassCombat,
	"taught": ClassTeaching,
	"dwelt":  ClassResidence,
	"became": ClassRule,
}

// ClassFor resolves a lemma to its trigger class, restoring a dropped
// final "e" when the bare form is unknown ("liv" -> "live",
// "rul" -> "rule") since the suffix lemmatizer cannot tell which stems
// need one back.
func ClassFor(lemma string) (RelationClass, bool) {
	if class, ok := TriggerLemmas[lemma]; ok {
		return class, true
	}
	if class, ok := TriggerLemmas[lemma+"e"]; ok {
		return class, true
	}
	return "", false
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
