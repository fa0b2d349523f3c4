package stratum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_EnterLeave(t *testing.T) {
	reg := newSessionRegistry(4, nil)

	tok, status := reg.Enter(7)
	require.Equal(t, OK, status)
	assert.Equal(t, 1, reg.activeCount())

	garbage, status := reg.Leave(tok)
	require.Equal(t, OK, status)
	assert.Empty(t, garbage)
	assert.Zero(t, reg.activeCount())
}

func TestSessionRegistry_MaxSessions(t *testing.T) {
	reg := newSessionRegistry(2, nil)

	t1, status := reg.Enter(1)
	require.Equal(t, OK, status)
	_, status = reg.Enter(1)
	require.Equal(t, OK, status)

	_, status = reg.Enter(1)
	assert.Equal(t, WarnMaxSessions, status)

	// A slot frees on leave and is immediately reusable.
	_, status = reg.Leave(t1)
	require.Equal(t, OK, status)
	_, status = reg.Enter(1)
	assert.Equal(t, OK, status)
}

func TestSessionRegistry_InvalidToken(t *testing.T) {
	reg := newSessionRegistry(2, nil)

	var zero Token
	_, status := reg.Leave(zero)
	assert.Equal(t, WarnInvalidToken, status)

	tok, _ := reg.Enter(1)
	_, status = reg.Leave(tok)
	require.Equal(t, OK, status)

	// Double leave.
	_, status = reg.Leave(tok)
	assert.Equal(t, WarnInvalidToken, status)

	// A token from a previous occupancy of a reused slot is stale.
	fresh, _ := reg.Enter(1)
	require.Equal(t, tok.slot, fresh.slot, "slot should be reused")
	_, status = reg.Leave(tok)
	assert.Equal(t, WarnInvalidToken, status)
	assert.False(t, reg.touch(tok, 5))
}

func TestSessionRegistry_Touch(t *testing.T) {
	reg := newSessionRegistry(2, nil)

	tok, _ := reg.Enter(3)
	assert.True(t, reg.touch(tok, 9))
	assert.Equal(t, uint64(9), reg.minActiveEpoch(100))
}

func TestSessionRegistry_MinActiveEpoch(t *testing.T) {
	reg := newSessionRegistry(4, nil)

	// No active sessions: the current epoch itself is the floor.
	assert.Equal(t, uint64(42), reg.minActiveEpoch(42))

	a, _ := reg.Enter(5)
	b, _ := reg.Enter(9)
	assert.Equal(t, uint64(5), reg.minActiveEpoch(42))

	_, status := reg.Leave(a)
	require.Equal(t, OK, status)
	assert.Equal(t, uint64(9), reg.minActiveEpoch(42))

	_, status = reg.Leave(b)
	require.Equal(t, OK, status)
	assert.Equal(t, uint64(42), reg.minActiveEpoch(42))
}

func TestSessionRegistry_GarbageReturnedOnLeave(t *testing.T) {
	reg := newSessionRegistry(2, nil)

	tok, _ := reg.Enter(1)
	reg.addGarbage(tok, garbageNode{value: newValue([]byte("g"), 1), retiredAt: 1})
	reg.addGarbage(tok, garbageNode{border: newBorderNode(false), retiredAt: 2})

	garbage, status := reg.Leave(tok)
	require.Equal(t, OK, status)
	assert.Len(t, garbage, 2)

	// Garbage filed against a dead token is dropped, not resurrected.
	reg.addGarbage(tok, garbageNode{retiredAt: 3})
	fresh, _ := reg.Enter(1)
	garbage, status = reg.Leave(fresh)
	require.Equal(t, OK, status)
	assert.Empty(t, garbage)
}

func TestSessionRegistry_TokensAreDistinct(t *testing.T) {
	reg := newSessionRegistry(4, nil)

	a, _ := reg.Enter(1)
	b, _ := reg.Enter(1)
	assert.NotEqual(t, a.id, b.id)
	assert.NotEqual(t, a.slot, b.slot)
}
