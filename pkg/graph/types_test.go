package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateTableConsistency(t *testing.T) {
	for pred, def := range Predicates {
		assert.Equal(t, pred, def.Pred, "table key must match def.Pred")
		assert.NotEmpty(t, def.SubjTypes, "%s needs subject types", pred)
		assert.NotEmpty(t, def.ObjTypes, "%s needs object types", pred)

		if def.Inverse != "" {
			inv, ok := Predicates[def.Inverse]
			require.True(t, ok, "inverse of %s must exist", pred)
			assert.Equal(t, pred, inv.Inverse, "inverse of %s must point back", pred)
			assert.False(t, def.Symmetric, "%s cannot be both symmetric and inverted", pred)
		}
	}
}

func TestPredicateTypeGuard(t *testing.T) {
	tests := []struct {
		pred Predicate
		subj EntityType
		obj  EntityType
		want bool
	}{
		{PredLivesIn, EntityPerson, EntityPlace, true},
		{PredLivesIn, EntityHouse, EntityPlace, true},
		{PredLivesIn, EntityPlace, EntityPerson, false},
		{PredMarriedTo, EntityPerson, EntityPerson, true},
		{PredMarriedTo, EntityPerson, EntityOrg, false},
		{PredRules, EntityPerson, EntityPlace, true},
		{PredRules, EntityOrg, EntityPlace, false},
	}
	for _, tt := range tests {
		def := Predicates[tt.pred]
		assert.Equal(t, tt.want, def.AllowsTypes(tt.subj, tt.obj), "%s(%s,%s)", tt.pred, tt.subj, tt.obj)
	}
}

func TestExtractorPriority(t *testing.T) {
	assert.True(t, ExtractorPriority(ExtractorDep, ExtractorRegex))
	assert.True(t, ExtractorPriority(ExtractorRegex, ExtractorNarrative))
	assert.True(t, ExtractorPriority(ExtractorDep, ExtractorNarrative))
	assert.False(t, ExtractorPriority(ExtractorNarrative, ExtractorDep))
	assert.False(t, ExtractorPriority(ExtractorDep, ExtractorDep))
}

func TestAddAliasRejectsPronounsAndCanonical(t *testing.T) {
	e := &Entity{Canonical: "Harry Potter", Aliases: map[string]struct{}{}}

	e.AddAlias("Harry")
	e.AddAlias("he")
	e.AddAlias("She")
	e.AddAlias("Harry Potter")
	e.AddAlias("")

	assert.Equal(t, map[string]struct{}{"Harry": {}}, e.Aliases)
}
