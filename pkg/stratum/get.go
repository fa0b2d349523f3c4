package stratum

import "context"

// Get resolves key to its value buffer. It is entirely lock-free: every
// border consulted is read under a stable-snapshot bracket (see
// findSlotStable), chasing right siblings when a concurrent split has
// moved the key's slot, and descending into next-layer roots as long as
// key bytes remain. ctx carries no cancellation at the core level
// (there is none); it exists so callers can thread tracing/logging
// fields and metrics exemplars through to the facade layer above
// pkg/stratum.
func (t *Tree) Get(ctx context.Context, tok Token, key []byte) (*Value, Status) {
	_ = ctx
	if status := t.touchSession(tok); status != OK {
		return nil, status
	}
	v, status := t.get(key)
	if t.metrics != nil {
		t.metrics.recordGet(status == OK)
	}
	return v, status
}

func (t *Tree) get(key []byte) (*Value, Status) {
	layer := t.topLayer()
	offset := 0
	for {
		root := layer.load()
		if root == nil {
			return nil, WarnNotExist
		}
		cur := t.descendToBorder(root, key, offset)
		if cur == nil {
			return nil, WarnNotExist
		}

		c := extractChunk(key[offset:])
		_, e := t.findSlotStable(cur, c)
		if e == nil {
			return nil, WarnNotExist
		}
		if e.isLayer {
			layer = layerRef{tree: t, ownerBorder: cur, ownerChunk: c}
			offset += 8
			continue
		}
		if !matchSuffix(e, key[offset+c.length:]) {
			return nil, WarnNotExist
		}
		return e.value, OK
	}
}
