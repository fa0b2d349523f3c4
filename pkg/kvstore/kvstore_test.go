package kvstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/pkg/config"
	"stratum/pkg/stratum"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	cfg := config.Default()
	cfg.MetricsEnabled = false
	cfg.EpochTickInterval = 5 * time.Millisecond
	c := Init(cfg, nil, nil)
	t.Cleanup(c.Fin)
	return c
}

func enter(t *testing.T, c *Context) stratum.Token {
	t.Helper()
	tok, status := c.Enter()
	require.Equal(t, stratum.OK, status)
	return tok
}

func TestContext_Lifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.MetricsEnabled = true
	c := Init(cfg, prometheus.NewRegistry(), nil)
	c.Fin()
	c.Fin() // second Fin is a no-op
}

func TestContext_SessionFlow(t *testing.T) {
	c := newTestContext(t)

	tok := enter(t, c)
	assert.Equal(t, stratum.OK, c.Leave(tok))
	assert.Equal(t, stratum.WarnInvalidToken, c.Leave(tok))
}

func TestContext_MaxSessions(t *testing.T) {
	cfg := config.Default()
	cfg.MetricsEnabled = false
	cfg.MaxSessions = 2
	c := Init(cfg, nil, nil)
	t.Cleanup(c.Fin)

	a := enter(t, c)
	_ = enter(t, c)
	_, status := c.Enter()
	assert.Equal(t, stratum.WarnMaxSessions, status)

	require.Equal(t, stratum.OK, c.Leave(a))
	_, status = c.Enter()
	assert.Equal(t, stratum.OK, status)
}

func TestContext_StorageLifecycle(t *testing.T) {
	c := newTestContext(t)

	require.Equal(t, stratum.OK, c.CreateStorage("db"))
	assert.Equal(t, stratum.WarnUniqueRestriction, c.CreateStorage("db"))

	tree, status := c.FindStorage("db")
	require.Equal(t, stratum.OK, status)
	assert.NotNil(t, tree)

	assert.ElementsMatch(t, []string{"db"}, c.Storages())

	require.Equal(t, stratum.OK, c.DeleteStorage("db"))
	assert.Equal(t, stratum.WarnStorageNotExist, c.DeleteStorage("db"))
	_, status = c.FindStorage("db")
	assert.Equal(t, stratum.WarnStorageNotExist, status)
}

func TestContext_PutGetRemove(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	require.Equal(t, stratum.OK, c.CreateStorage("db"))

	created, status := c.Put(ctx, tok, "db", []byte("k"), []byte("v"), 1, true)
	require.Equal(t, stratum.OK, status)
	assert.True(t, created)

	v, status := c.Get(ctx, tok, "db", []byte("k"))
	require.Equal(t, stratum.OK, status)
	assert.Equal(t, []byte("v"), v)

	require.Equal(t, stratum.OK, c.Remove(ctx, tok, "db", []byte("k")))
	_, status = c.Get(ctx, tok, "db", []byte("k"))
	assert.Equal(t, stratum.WarnNotExist, status)
	assert.Equal(t, stratum.OKNotFound, c.Remove(ctx, tok, "db", []byte("k")))
}

func TestContext_MissingStorage(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	_, status := c.Put(ctx, tok, "ghost", []byte("k"), []byte("v"), 1, true)
	assert.Equal(t, stratum.WarnStorageNotExist, status)

	_, status = c.Get(ctx, tok, "ghost", []byte("k"))
	assert.Equal(t, stratum.WarnStorageNotExist, status)

	assert.Equal(t, stratum.WarnStorageNotExist, c.Remove(ctx, tok, "ghost", []byte("k")))

	_, _, status = c.Scan(ctx, tok, "ghost", nil, stratum.EndpointInf, nil, stratum.EndpointInf, 0, false)
	assert.Equal(t, stratum.WarnStorageNotExist, status)

	_, status = c.Display("ghost")
	assert.Equal(t, stratum.WarnStorageNotExist, status)
}

func TestContext_UniqueRestriction(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	require.Equal(t, stratum.OK, c.CreateStorage("db"))
	_, status := c.Put(ctx, tok, "db", []byte("k"), []byte("v1"), 1, true)
	require.Equal(t, stratum.OK, status)

	_, status = c.Put(ctx, tok, "db", []byte("k"), []byte("v2"), 1, false)
	assert.Equal(t, stratum.WarnUniqueRestriction, status)

	v, status := c.Get(ctx, tok, "db", []byte("k"))
	require.Equal(t, stratum.OK, status)
	assert.Equal(t, []byte("v1"), v)
}

func TestContext_PutWithStamp(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	require.Equal(t, stratum.OK, c.CreateStorage("db"))

	created, stamp, status := c.PutWithStamp(ctx, tok, "db", []byte("k"), []byte("v"), 1, true)
	require.Equal(t, stratum.OK, status)
	assert.True(t, created)
	assert.NotZero(t, stamp.Node)
}

func TestContext_Scan(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	require.Equal(t, stratum.OK, c.CreateStorage("db"))
	for i := 0; i < 10; i++ {
		_, status := c.Put(ctx, tok, "db", []byte(fmt.Sprintf("k%d", i)), []byte("v"), 1, true)
		require.Equal(t, stratum.OK, status)
	}

	entries, stamps, status := c.Scan(ctx, tok, "db", []byte("k2"), stratum.EndpointInclusive, []byte("k5"), stratum.EndpointExclusive, 0, false)
	require.Equal(t, stratum.OK, status)
	require.Len(t, entries, 3)
	assert.Equal(t, []byte("k2"), entries[0].Key)
	assert.Equal(t, []byte("k4"), entries[2].Key)
	assert.NotEmpty(t, stamps)

	_, _, status = c.Scan(ctx, tok, "db", []byte("k"), stratum.EndpointExclusive, []byte("k"), stratum.EndpointExclusive, 0, false)
	assert.Equal(t, stratum.ErrBadUsage, status)
}

func TestContext_Display(t *testing.T) {
	c := newTestContext(t)
	tok := enter(t, c)
	ctx := context.Background()

	require.Equal(t, stratum.OK, c.CreateStorage("db"))
	dump, status := c.Display("db")
	require.Equal(t, stratum.OK, status)
	assert.Contains(t, dump, "(empty)")

	_, status = c.Put(ctx, tok, "db", []byte("k"), []byte("v"), 1, true)
	require.Equal(t, stratum.OK, status)
	dump, status = c.Display("db")
	require.Equal(t, stratum.OK, status)
	assert.Contains(t, dump, "border")
}

func TestContext_Destroy(t *testing.T) {
	c := newTestContext(t)

	require.Equal(t, stratum.OK, c.CreateStorage("a"))
	require.Equal(t, stratum.OK, c.CreateStorage("b"))

	assert.Equal(t, stratum.OKDestroyAll, c.Destroy())
	assert.Empty(t, c.Storages())
}
