package stratum

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanKeys(t *testing.T, tree *Tree, tok Token, begin []byte, beginEp Endpoint, end []byte, endEp Endpoint) [][]byte {
	t.Helper()
	entries, _, status := tree.Scan(context.Background(), tok, begin, beginEp, end, endEp, 0, false)
	require.Equal(t, OK, status)
	keys := make([][]byte, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func TestScan_EmptyTree(t *testing.T) {
	tree, tok := newTestTree(t)

	entries, stamps, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 0, false)
	require.Equal(t, OK, status)
	assert.Empty(t, entries)
	// Even an empty tree yields exactly one version entry, so a caller
	// can later detect that something appeared.
	require.Len(t, stamps, 1)
}

func TestScan_PhantomDetection(t *testing.T) {
	tree, tok := newTestTree(t)

	_, before, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 0, false)
	require.Equal(t, OK, status)
	require.Len(t, before, 1)

	mustPut(t, tree, tok, "ghost", "v")

	_, after, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 0, false)
	require.Equal(t, OK, status)
	require.NotEmpty(t, after)
	assert.NotEqual(t, before[0], after[0], "a put in the range must change the recorded version entry")
}

func TestScan_SortedNoDuplicates(t *testing.T) {
	tree, tok := newTestTree(t)

	// Insert in a shuffled order, including multi-chunk keys.
	keys := []string{"delta", "alpha", "echo12345", "bravo", "charlie", "echo12346", "a", ""}
	for _, k := range keys {
		mustPut(t, tree, tok, k, "v:"+k)
	}

	got := scanKeys(t, tree, tok, nil, EndpointInf, nil, EndpointInf)
	require.Len(t, got, len(keys))
	for i := 1; i < len(got); i++ {
		assert.Negative(t, bytes.Compare(got[i-1], got[i]),
			"scan out of order at %d: %q >= %q", i, got[i-1], got[i])
	}
}

func TestScan_Endpoints(t *testing.T) {
	tree, tok := newTestTree(t)

	for _, k := range []string{"a", "b", "c", "d"} {
		mustPut(t, tree, tok, k, k)
	}

	tests := []struct {
		name    string
		begin   []byte
		beginEp Endpoint
		end     []byte
		endEp   Endpoint
		want    []string
	}{
		{"inf-inf", nil, EndpointInf, nil, EndpointInf, []string{"a", "b", "c", "d"}},
		{"incl-incl", []byte("b"), EndpointInclusive, []byte("c"), EndpointInclusive, []string{"b", "c"}},
		{"excl-incl", []byte("b"), EndpointExclusive, []byte("c"), EndpointInclusive, []string{"c"}},
		{"incl-excl", []byte("b"), EndpointInclusive, []byte("c"), EndpointExclusive, []string{"b"}},
		{"excl-excl", []byte("a"), EndpointExclusive, []byte("d"), EndpointExclusive, []string{"b", "c"}},
		{"incl-inf", []byte("c"), EndpointInclusive, nil, EndpointInf, []string{"c", "d"}},
		{"inf-excl", nil, EndpointInf, []byte("b"), EndpointExclusive, []string{"a"}},
		{"empty interval", []byte("bb"), EndpointInclusive, []byte("bz"), EndpointInclusive, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanKeys(t, tree, tok, tt.begin, tt.beginEp, tt.end, tt.endEp)
			var want [][]byte
			for _, k := range tt.want {
				want = append(want, []byte(k))
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("scan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScan_BadUsage(t *testing.T) {
	tree, tok := newTestTree(t)
	mustPut(t, tree, tok, "k", "v")

	// Contradictory: both endpoints exclusive on the same key.
	_, _, status := tree.Scan(context.Background(), tok, []byte("k"), EndpointExclusive, []byte("k"), EndpointExclusive, 0, false)
	assert.Equal(t, ErrBadUsage, status)

	// Reverse scans demand max==1 and an infinite upper bound.
	_, _, status = tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 2, true)
	assert.Equal(t, ErrBadUsage, status)
	_, _, status = tree.Scan(context.Background(), tok, nil, EndpointInf, []byte("z"), EndpointInclusive, 1, true)
	assert.Equal(t, ErrBadUsage, status)
}

func TestScan_ReverseMax(t *testing.T) {
	tree, tok := newTestTree(t)

	for i := 0; i < 26; i++ {
		mustPut(t, tree, tok, string([]byte{byte(i)}), fmt.Sprintf("v%d", i))
	}

	entries, stamps, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 1, true)
	require.Equal(t, OK, status)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte{0x19}, entries[0].Key)
	assert.NotEmpty(t, stamps)
}

func TestScan_ReverseEmptyTree(t *testing.T) {
	tree, tok := newTestTree(t)

	entries, stamps, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 1, true)
	require.Equal(t, OK, status)
	assert.Empty(t, entries)
	assert.Len(t, stamps, 1)
}

func TestScan_MaxLimits(t *testing.T) {
	tree, tok := newTestTree(t)

	for i := 0; i < 30; i++ {
		mustPut(t, tree, tok, fmt.Sprintf("key-%02d", i), "v")
	}

	entries, _, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 5, false)
	require.Equal(t, OK, status)
	require.Len(t, entries, 5)
	assert.Equal(t, []byte("key-00"), entries[0].Key)
	assert.Equal(t, []byte("key-04"), entries[4].Key)

	// max == 0 means unlimited.
	entries, _, status = tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 0, false)
	require.Equal(t, OK, status)
	assert.Len(t, entries, 30)
}

func TestScan_CrossesLayers(t *testing.T) {
	tree, tok := newTestTree(t)

	// Two key families sharing 9+ byte prefixes, interleaved with plain
	// short keys: the scan has to stitch sub-layer tuples back into the
	// top-level order with the full prefix restored.
	keys := []string{
		"aaaaaaaaa1", "aaaaaaaaa2", "aaaaaaaaa3",
		"b",
		"ccccccccc1", "ccccccccc2",
		"d",
	}
	for i := len(keys) - 1; i >= 0; i-- {
		mustPut(t, tree, tok, keys[i], "v:"+keys[i])
	}

	got := scanKeys(t, tree, tok, nil, EndpointInf, nil, EndpointInf)
	require.Len(t, got, len(keys))
	for i, k := range keys {
		assert.Equal(t, []byte(k), got[i], "position %d", i)
	}

	// Range bounds that land inside a sub-layer.
	got = scanKeys(t, tree, tok, []byte("aaaaaaaaa2"), EndpointInclusive, []byte("ccccccccc1"), EndpointInclusive)
	want := [][]byte{[]byte("aaaaaaaaa2"), []byte("aaaaaaaaa3"), []byte("b"), []byte("ccccccccc1")}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("layer-crossing range scan mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_MaxStopsInsideLayer(t *testing.T) {
	tree, tok := newTestTree(t)

	for _, k := range []string{"aaaaaaaaa1", "aaaaaaaaa2", "aaaaaaaaa3", "b"} {
		mustPut(t, tree, tok, k, "v")
	}

	entries, _, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 2, false)
	require.Equal(t, OK, status)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("aaaaaaaaa1"), entries[0].Key)
	assert.Equal(t, []byte("aaaaaaaaa2"), entries[1].Key)
}

func TestScan_VersionStampsPerBorder(t *testing.T) {
	tree, tok := newTestTree(t)

	// Enough keys for several borders.
	for i := 0; i < 40; i++ {
		mustPut(t, tree, tok, fmt.Sprintf("key-%02d", i), "v")
	}

	_, stamps, status := tree.Scan(context.Background(), tok, nil, EndpointInf, nil, EndpointInf, 0, false)
	require.Equal(t, OK, status)
	require.Greater(t, len(stamps), 1, "a multi-border tree must yield multiple version entries")

	seen := make(map[uintptr]bool)
	for _, s := range stamps {
		assert.False(t, seen[s.Node], "border visited twice in one scan")
		seen[s.Node] = true
	}
}
