package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrative-kg/extract/pkg/graph"
)

func TestCheckpointAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")

	store, err := OpenStore(path)
	require.NoError(t, err)

	r := NewRegistry()
	aragorn := r.Assign("Aragorn", graph.EntityPerson, profileWithTitle("Aragorn", "king"), "Aragorn")
	mcgonagall := r.Assign("McGonagall", graph.EntityPerson, profileWithTitle("McGonagall", "professor"), "McGonagall")
	r.BindAlias("Strider", aragorn.EID, 0.9)

	require.NoError(t, store.Checkpoint(r))
	require.NoError(t, store.Close())

	store2, err := OpenStore(path)
	require.NoError(t, err)
	defer store2.Close()

	loaded, err := store2.Load()
	require.NoError(t, err)

	// Re-assigning with the same profile resolves to the persisted EIDs.
	again := loaded.Assign("Aragorn", graph.EntityPerson, profileWithTitle("Aragorn", "king"), "Aragorn")
	assert.False(t, again.IsNew)
	assert.Equal(t, aragorn.EID, again.EID)
	assert.Equal(t, aragorn.SP, again.SP)

	prof := loaded.Assign("McGonagall", graph.EntityPerson, profileWithTitle("McGonagall", "professor"), "McGonagall")
	assert.Equal(t, mcgonagall.EID, prof.EID)

	// Fresh allocations continue past the persisted counters.
	fresh := loaded.Assign("Elrond", graph.EntityPerson, nil, "Elrond")
	assert.Greater(t, fresh.EID, mcgonagall.EID)

	aid1 := loaded.BindAlias("Strider", aragorn.EID, 0.9)
	aid2 := loaded.BindAlias("Strider", aragorn.EID, 0.9)
	assert.Equal(t, aid1, aid2, "persisted alias binding stays idempotent")
}

func TestOpenStoreInMemory(t *testing.T) {
	store, err := OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.Snapshot())
}

func TestCheckpointReplacesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	r1 := NewRegistry()
	r1.Assign("Aragorn", graph.EntityPerson, nil, "Aragorn")
	r1.Assign("Elrond", graph.EntityPerson, nil, "Elrond")
	require.NoError(t, store.Checkpoint(r1))

	r2 := NewRegistry()
	r2.Assign("Gandalf", graph.EntityPerson, nil, "Gandalf")
	require.NoError(t, store.Checkpoint(r2))

	loaded, err := store.Load()
	require.NoError(t, err)

	snap := loaded.Snapshot()
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "gandalf")
}
