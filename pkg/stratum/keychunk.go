package stratum

import (
	"bytes"
	"encoding/binary"
)

// chunk is one 8-byte, big-endian-compared slice of a key at the current
// layer. length is the number of meaningful bytes actually present
// (0-8); when length == 8 the chunk fully occupied its 8 bytes and may
// continue into suffix (the rest of the key past this chunk, which either
// becomes a border slot's owned suffix bytes, or, on collision with
// another key sharing the same 8-byte chunk, becomes the "key" fed to a
// newly created next-layer root).
type chunk struct {
	slice  uint64
	length int
	suffix []byte // only populated when length == 8
}

// extractChunk reads up to the first 8 bytes of key as a big-endian
// unsigned integer whose ordering matches lexicographic byte order, and
// returns the bytes beyond that as suffix when the full 8 bytes were
// consumed.
func extractChunk(key []byte) chunk {
	if len(key) >= 8 {
		return chunk{
			slice:  binary.BigEndian.Uint64(key[:8]),
			length: 8,
			suffix: key[8:],
		}
	}
	var buf [8]byte
	copy(buf[:], key)
	return chunk{
		slice:  binary.BigEndian.Uint64(buf[:]),
		length: len(key),
	}
}

// cloneBytes copies b so a stored suffix never aliases caller-owned key
// memory. Empty input collapses to nil.
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// matchSuffix reports whether rest, the key bytes remaining past a
// slot's chunk, matches the slot's stored suffix exactly. A slot whose
// key terminates within its chunk carries a nil suffix, so a lookup key
// with leftover bytes never matches it.
func matchSuffix(e *slotEntry, rest []byte) bool {
	return bytes.Equal(rest, e.suffix)
}

// chunkLess reports whether a's (slice, length) ordering places it strictly
// before b's; the comparison used to keep a border's permutation (and an
// interior's separator slices) in key order. Equal slices with differing
// lengths order the shorter (the strict prefix) first, matching ordinary
// lexicographic string order.
func chunkLess(aSlice uint64, aLen int, bSlice uint64, bLen int) bool {
	if aSlice != bSlice {
		return aSlice < bSlice
	}
	return aLen < bLen
}
