package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPronoun(t *testing.T) {
	assert.True(t, IsPronoun("he"))
	assert.True(t, IsPronoun("She"))
	assert.True(t, IsPronoun("THEY"))
	assert.True(t, IsPronoun("this"))

	assert.False(t, IsPronoun("Harry"))
	assert.False(t, IsPronoun(""))
	assert.False(t, IsPronoun("hermit"))
}

func TestPronounPartitions(t *testing.T) {
	for _, p := range []string{"he", "him", "his", "himself"} {
		assert.True(t, MalePronouns.Contains(p))
		assert.False(t, FemalePronouns.Contains(p))
	}
	for _, p := range []string{"she", "her", "hers", "herself"} {
		assert.True(t, FemalePronouns.Contains(p))
		assert.False(t, MalePronouns.Contains(p))
	}
	assert.True(t, PluralPronouns.Contains("they"))
}

func TestEveryTriggerMapsToAKnownClass(t *testing.T) {
	known := map[RelationClass]bool{
		ClassParentChild: true, ClassMarriage: true, ClassMembership: true,
		ClassLeadership: true, ClassTravel: true, ClassEducation: true,
		ClassTeaching: true, ClassRule: true, ClassCombat: true,
		ClassAdvice: true, ClassInvestment: true, ClassResidence: true,
	}
	for lemma, class := range TriggerLemmas {
		assert.True(t, known[class], "trigger %q maps to unknown class %q", lemma, class)
	}
}
