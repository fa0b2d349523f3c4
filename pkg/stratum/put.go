package stratum

import "context"

// Put inserts or updates key's value. allowInsert=false rejects an
// insert against an already-existing key with WarnUniqueRestriction.
// ctx is carried purely for logging/tracing/metrics-exemplar purposes;
// the core has no cancellation.
func (t *Tree) Put(ctx context.Context, tok Token, key, value []byte, alignment int, allowInsert bool) (created bool, status Status) {
	created, _, status = t.put(ctx, tok, key, value, alignment, allowInsert, false)
	return created, status
}

// PutWithStamp is Put plus the post-mutation version stamp of the border
// that absorbed the write, for callers (an external transaction manager)
// that validate their write set the same way Scan's stamps let them
// validate a read set. For a key that spawned a new layer the stamp
// names the border whose slot now links to that layer, not the deeper
// border the value landed in.
func (t *Tree) PutWithStamp(ctx context.Context, tok Token, key, value []byte, alignment int, allowInsert bool) (created bool, stamp VersionStamp, status Status) {
	return t.put(ctx, tok, key, value, alignment, allowInsert, true)
}

func (t *Tree) put(ctx context.Context, tok Token, key, value []byte, alignment int, allowInsert, wantStamp bool) (bool, VersionStamp, Status) {
	_ = ctx
	if status := t.touchSession(tok); status != OK {
		return false, VersionStamp{}, status
	}
	var stamp VersionStamp
	var stampOut *VersionStamp
	if wantStamp {
		stampOut = &stamp
	}
	created, status := t.putInLayer(t.topLayer(), tok, key, 0, value, alignment, allowInsert, stampOut)
	if t.metrics != nil {
		t.metrics.recordPut(status == OK)
	}
	return created, stamp, status
}

// putInLayer is the recursive body of Put, parameterized by which layer
// (and byte offset into key) it is presently working within; the same
// shape used to reinsert the displaced value of a layer promotion (see
// promote below) and to continue a put across a next-layer pointer.
// When stamp is non-nil it receives the mutated border's identity and
// version word as observed just after the write committed.
func (t *Tree) putInLayer(layer layerRef, tok Token, key []byte, offset int, value []byte, alignment int, allowInsert bool, stamp *VersionStamp) (bool, Status) {
	origLayer, origOffset := layer, offset
	for {
		root := layer.ensure()
		if root == nil {
			// The slot owning this layer vanished underneath us (the
			// emptied layer was unthreaded); re-descend from the layer
			// this call started in.
			layer, offset = origLayer, origOffset
			continue
		}
		border := t.descendToBorder(root, key, offset)
		c := extractChunk(key[offset:])

		border.version.lock()
		border = t.chaseRightLocked(border, c)
		perm := border.loadPerm()
		_, idx, existing := border.findRank(perm, c)

		if existing != nil {
			if existing.isLayer {
				border.version.unlock()
				layer = layerRef{tree: t, ownerBorder: border, ownerChunk: c}
				offset += 8
				continue
			}

			rest := key[offset+c.length:]
			if !matchSuffix(existing, rest) {
				// Two keys share this full 8-byte chunk but diverge past
				// it: displace the slot into a fresh layer holding both.
				t.promote(tok, border, idx, existing, rest, value, alignment)
				border.version.unlock()
				recordStamp(stamp, border)
				return true, OK
			}

			if !allowInsert {
				border.version.unlock()
				return false, WarnUniqueRestriction
			}

			old := existing.value
			replacement := &slotEntry{
				slice: existing.slice, length: existing.length, suffix: existing.suffix,
				value: newValue(value, alignment),
			}
			border.replaceEntry(idx, replacement)
			border.version.unlock()
			recordStamp(stamp, border)
			t.reclaim.RetireValue(tok, old)
			return false, OK
		}

		// A key extending past a fully occupied 8-byte chunk keeps its
		// remainder as the slot's owned suffix; a layer is only born when
		// a second key shows up sharing the chunk (the promote path).
		newEntry := &slotEntry{
			slice: c.slice, length: c.length,
			suffix: cloneBytes(c.suffix),
			value:  newValue(value, alignment),
		}
		if border.insertNewEntry(newEntry) {
			border.version.unlock()
			recordStamp(stamp, border)
			return true, OK
		}

		right, promoted := border.splitLocked()
		border.version.unlock()
		t.reclaim.Advance()
		if t.metrics != nil {
			t.metrics.recordSplit()
		}
		t.linkSplitUp(layer, border.base(), right.base(), promoted)
		// Retry from the top of this layer: the key now lands in
		// whichever of border/right the split gave it to.
	}
}

// recordStamp captures border's identity and current version word into
// stamp (a no-op when the caller didn't ask for one). Read after unlock,
// so the body already reflects the committed vinsert/vsplit bump.
func recordStamp(stamp *VersionStamp, border *borderNode) {
	if stamp == nil {
		return
	}
	stamp.Node = nodeIdentity(border)
	stamp.Body = uint64(border.version.load())
}

// promote displaces a value slot in favor of a next-layer pointer,
// because a second key sharing the slot's full 8-byte chunk has arrived.
// The displaced value reappears in the new layer under the slot's old
// suffix (the empty key when it had none); the new key's remainder is
// inserted alongside it. Caller must hold border's lock.
func (t *Tree) promote(tok Token, border *borderNode, idx int, existing *slotEntry, rest []byte, val []byte, alignment int) {
	sub := t.detachedLayer()

	t.putInLayer(sub, tok, existing.suffix, 0, existing.value.data, existing.value.alignment, true, nil)
	t.putInLayer(sub, tok, rest, 0, val, alignment, true, nil)

	root := sub.load()
	border.replaceEntry(idx, &slotEntry{slice: existing.slice, length: existing.length, isLayer: true, next: root})
	t.reclaim.RetireValue(tok, existing.value)
	if t.metrics != nil {
		t.metrics.recordPromotion()
	}
}
