package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func profileWithTitle(canonical, title string) *graph.EntityProfile {
	p := graph.NewEntityProfile(canonical)
	p.Titles[title] = struct{}{}
	return p
}

func TestAssignFirstSight(t *testing.T) {
	r := NewRegistry()

	res := r.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")

	assert.True(t, res.IsNew)
	assert.Equal(t, 1, res.EID)
	assert.Equal(t, []int{1}, res.SP)
	assert.NotZero(t, res.AID)
}

func TestAssignIdempotentForSameProfile(t *testing.T) {
	r := NewRegistry()

	first := r.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")
	second := r.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")

	assert.False(t, second.IsNew)
	assert.Equal(t, first.EID, second.EID)
	assert.Equal(t, first.SP, second.SP)
	assert.Equal(t, first.AID, second.AID, "same (surface, eid) binding reuses the AID")
}

func TestConflictingTitlesMintNewSense(t *testing.T) {
	r := NewRegistry()

	first := r.Assign("McGonagall", graph.EntityPerson, profileWithTitle("McGonagall", "professor"), "McGonagall")
	second := r.Assign("McGonagall", graph.EntityPerson, profileWithTitle("McGonagall", "dr"), "McGonagall")

	assert.True(t, second.IsNew, "title conflict splits the sense")
	assert.NotEqual(t, first.EID, second.EID)
	assert.Equal(t, []int{1}, first.SP)
	assert.Equal(t, []int{2}, second.SP)
}

func TestDifferentTypesNeverShareSense(t *testing.T) {
	r := NewRegistry()

	person := r.Assign("Avalon", graph.EntityPerson, nil, "Avalon")
	place := r.Assign("Avalon", graph.EntityPlace, nil, "Avalon")

	assert.NotEqual(t, person.EID, place.EID)
}

func TestBindAliasIdempotent(t *testing.T) {
	r := NewRegistry()
	res := r.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")

	aid1 := r.BindAlias("Strider", res.EID, 0.9)
	aid2 := r.BindAlias("Strider", res.EID, 0.9)
	assert.Equal(t, aid1, aid2)

	// A homonym may bind the same surface to another EID.
	other := r.Assign("Aragorn II", graph.EntityPerson, nil, "Aragorn II")
	aid3 := r.BindAlias("Strider", other.EID, 0.9)
	assert.NotEqual(t, aid1, aid3)
}

func TestSnapshotIsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")

	snap := r.Snapshot()
	require.Len(t, snap["aragorn"], 1)

	r.Assign("Aragorn", graph.EntityPerson, profileWithTitle("Aragorn", "king"), "Aragorn")
	assert.Len(t, snap["aragorn"], 1, "snapshot must not see later writes")
}

func TestSensePathsAreMonotonic(t *testing.T) {
	r := NewRegistry()

	r.Assign("Smith", graph.EntityPerson, profileWithTitle("Smith", "dr"), "Smith")
	r.Assign("Smith", graph.EntityPerson, profileWithTitle("Smith", "captain"), "Smith")
	third := r.Assign("Smith", graph.EntityPerson, profileWithTitle("Smith", "lord"), "Smith")

	assert.Equal(t, []int{3}, third.SP, "sense paths only grow")

	snap := r.Snapshot()
	assert.Len(t, snap["smith"], 3, "senses are never retracted")
}

func TestDiscriminateSignals(t *testing.T) {
	shared := graph.NewEntityProfile("X")
	shared.CoOccurringPlaces["Gondor"] = struct{}{}

	same := graph.NewEntityProfile("X")
	same.CoOccurringPlaces["Gondor"] = struct{}{}

	different := graph.NewEntityProfile("X")
	different.CoOccurringPlaces["Mordor"] = struct{}{}

	assert.Greater(t, discriminate(*shared, *same, "X"), 0.9)
	assert.Less(t, discriminate(*shared, *different, "X"), 0.5)
}
