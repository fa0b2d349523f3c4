package stratum

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractChunk_ShortKey(t *testing.T) {
	c := extractChunk([]byte("abc"))
	assert.Equal(t, 3, c.length)
	assert.Nil(t, c.suffix)
	assert.Equal(t, uint64(0x6162630000000000), c.slice)
}

func TestExtractChunk_ExactEightBytes(t *testing.T) {
	c := extractChunk([]byte("12345678"))
	assert.Equal(t, 8, c.length)
	assert.Empty(t, c.suffix)
}

func TestExtractChunk_LongKey(t *testing.T) {
	c := extractChunk([]byte("12345678tail"))
	assert.Equal(t, 8, c.length)
	assert.Equal(t, []byte("tail"), c.suffix)
}

func TestExtractChunk_EmptyKey(t *testing.T) {
	c := extractChunk(nil)
	assert.Zero(t, c.length)
	assert.Zero(t, c.slice)
}

// chunk ordering must agree with lexicographic byte ordering of the
// original key material for every pair of keys that fit one chunk.
func TestChunkLess_MatchesLexicographic(t *testing.T) {
	keys := [][]byte{
		nil,
		{0x00},
		{0x00, 0x00},
		{0x01},
		[]byte("a"),
		[]byte("ab"),
		[]byte("abcdefg"),
		[]byte("abcdefgh"),
		[]byte("b"),
		{0xff},
		{0xff, 0xfe},
	}

	for _, a := range keys {
		for _, b := range keys {
			ca, cb := extractChunk(a), extractChunk(b)
			want := bytes.Compare(a, b) < 0
			got := chunkLess(ca.slice, ca.length, cb.slice, cb.length)
			assert.Equal(t, want, got, "a=%q b=%q", a, b)
		}
	}
}

func TestMatchSuffix(t *testing.T) {
	short := &slotEntry{length: 3}
	assert.True(t, matchSuffix(short, nil))
	assert.False(t, matchSuffix(short, []byte("x")))

	full := &slotEntry{length: 8, suffix: []byte("tail")}
	assert.True(t, matchSuffix(full, []byte("tail")))
	assert.False(t, matchSuffix(full, []byte("tails")))
	assert.False(t, matchSuffix(full, nil))
}
