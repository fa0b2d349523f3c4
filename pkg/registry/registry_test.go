package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/pkg/stratum"
)

func newDeps(t *testing.T) (*stratum.Reclaimer, *stratum.SessionRegistry) {
	t.Helper()
	sessions := stratum.NewSessionRegistry(8, nil)
	rec := stratum.NewReclaimer(sessions, time.Millisecond, 10*time.Millisecond, nil)
	return rec, sessions
}

func TestRegistry_CreateFindDelete(t *testing.T) {
	rec, sessions := newDeps(t)
	r := New(nil)

	tree, status := r.Create("db", rec, sessions, nil)
	require.Equal(t, stratum.OK, status)
	require.NotNil(t, tree)

	found, status := r.Find("db")
	require.Equal(t, stratum.OK, status)
	assert.Same(t, tree, found)

	require.Equal(t, stratum.OK, r.Delete("db"))
	_, status = r.Find("db")
	assert.Equal(t, stratum.WarnStorageNotExist, status)
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	rec, sessions := newDeps(t)
	r := New(nil)

	_, status := r.Create("db", rec, sessions, nil)
	require.Equal(t, stratum.OK, status)
	_, status = r.Create("db", rec, sessions, nil)
	assert.Equal(t, stratum.WarnUniqueRestriction, status)
}

func TestRegistry_DeleteMissing(t *testing.T) {
	r := New(nil)
	assert.Equal(t, stratum.WarnStorageNotExist, r.Delete("ghost"))
}

func TestRegistry_Names(t *testing.T) {
	rec, sessions := newDeps(t)
	r := New(nil)

	assert.Empty(t, r.Names())

	for _, name := range []string{"a", "b", "c"} {
		_, status := r.Create(name, rec, sessions, nil)
		require.Equal(t, stratum.OK, status)
	}

	names := r.Names()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

func TestRegistry_DestroyAll(t *testing.T) {
	rec, sessions := newDeps(t)
	r := New(nil)

	for _, name := range []string{"a", "b"} {
		_, status := r.Create(name, rec, sessions, nil)
		require.Equal(t, stratum.OK, status)
	}

	assert.Equal(t, stratum.OKDestroyAll, r.DestroyAll())
	assert.Empty(t, r.Names())

	// Names are reusable after a wipe.
	_, status := r.Create("a", rec, sessions, nil)
	assert.Equal(t, stratum.OK, status)
}
