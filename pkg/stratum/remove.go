package stratum

import "context"

// Remove deletes key. A border that becomes empty as a result is
// unthreaded from its sibling chain and its parent; an interior left
// with a single child by that unthreading is itself dissolved in favor
// of its sole survivor, cascading all the way to a fresh (possibly nil)
// layer root if needed. Removing a key that is not present is a no-op
// reported as OKNotFound, uniformly, including the empty key against a
// storage that has never held it. ctx carries logging/tracing fields
// only; see Get/Put.
func (t *Tree) Remove(ctx context.Context, tok Token, key []byte) Status {
	_ = ctx
	if status := t.touchSession(tok); status != OK {
		return status
	}
	status := t.removeInLayer(t.topLayer(), tok, key, 0)
	if t.metrics != nil {
		t.metrics.recordRemove(status == OK)
	}
	return status
}

func (t *Tree) removeInLayer(layer layerRef, tok Token, key []byte, offset int) Status {
	root := layer.load()
	if root == nil {
		return OKNotFound
	}

	border := t.descendToBorder(root, key, offset)
	if border == nil {
		return OKNotFound
	}
	c := extractChunk(key[offset:])

	border.version.lock()
	border = t.chaseRightLocked(border, c)
	perm := border.loadPerm()
	rank, idx, e := border.findRank(perm, c)
	if e == nil {
		border.version.unlock()
		return OKNotFound
	}

	if e.isLayer {
		border.version.unlock()
		sub := layerRef{tree: t, ownerBorder: border, ownerChunk: c}
		status := t.removeInLayer(sub, tok, key, offset+8)
		if status == OK && sub.load() == nil {
			// The sublayer emptied out: drop the slot that owned it, the
			// same way a removed value slot goes, cascading upward.
			t.removeEmptyLayerSlot(layer, tok, border, c)
		}
		return status
	}

	if !matchSuffix(e, key[offset+c.length:]) {
		border.version.unlock()
		return OKNotFound
	}

	old := e.value
	border.deleteEntry(rank, idx)
	becameEmpty := border.loadPerm().count() == 0
	border.version.unlock()

	t.reclaim.RetireValue(tok, old)
	t.reclaim.Advance()

	if becameEmpty {
		t.unthreadBorder(layer, tok, border)
	}
	return OK
}

// removeEmptyLayerSlot deletes a slot whose sublayer has emptied. It
// re-validates under the owner's lock that the slot still links to an
// empty layer; a concurrent put that resurrected the layer (or an
// already-deleted slot) leaves everything alone.
func (t *Tree) removeEmptyLayerSlot(layer layerRef, tok Token, start *borderNode, c chunk) {
	owner, _ := t.lockOwnerForChunk(start, c)
	if owner == nil {
		return
	}
	perm := owner.loadPerm()
	rank, idx, e := owner.findRank(perm, c)
	if e == nil || !e.isLayer || e.next != nil {
		owner.version.unlock()
		return
	}
	owner.deleteEntry(rank, idx)
	becameEmpty := owner.loadPerm().count() == 0
	owner.version.unlock()
	t.reclaim.Advance()
	if becameEmpty {
		t.unthreadBorder(layer, tok, owner)
	}
}

// unthreadBorder removes an empty border from the tree. A border that is
// itself a layer root collapses the layer: the root cell (the tree's
// root pointer, or the owning slot's link one layer up) is swapped to
// nil so a subsequent Put reinstalls a fresh border, and the caller's
// emptied-layer cleanup drops the owning slot. Any other border is
// unthreaded from its sibling chain and its parent interior, cascading
// the interior removal upward.
func (t *Tree) unthreadBorder(layer layerRef, tok Token, b *borderNode) {
	parent := b.parent.Load()
	if parent == nil {
		b.version.lock()
		empty := b.loadPerm().count() == 0
		if empty {
			b.version.markDeleted()
		}
		b.version.unlock()
		if empty && layer.swapRoot(b.base(), nil) {
			t.reclaim.RetireBorder(tok, b)
		}
		return
	}

	// Sibling locks are always taken left to right (prev, then b, then
	// next), the same order splits use, so the two never deadlock.
	for {
		prev := b.prev.Load()
		if prev != nil {
			prev.version.lock()
			if b.prev.Load() != prev {
				// prev changed while unlocked (a split threaded a new
				// left neighbor in); retry with the current one.
				prev.version.unlock()
				continue
			}
		}
		b.version.lock()
		if b.loadPerm().count() != 0 {
			// Repopulated by a concurrent Put before we got here; leave it.
			b.version.unlock()
			if prev != nil {
				prev.version.unlock()
			}
			return
		}
		next := b.next.Load()
		if next != nil {
			next.version.lock()
		}
		if prev != nil {
			prev.next.Store(next)
		}
		if next != nil {
			next.prev.Store(prev)
			next.version.unlock()
		}
		b.version.markDeleted()
		b.version.unlock()
		if prev != nil {
			prev.version.unlock()
		}
		break
	}
	t.reclaim.RetireBorder(tok, b)

	t.unthreadChildLocked(layer, tok, parent, b.base())
}

// unthreadChildLocked removes child from parent's separator/child arrays.
// If that leaves parent with exactly one child and no separators left
// (the degenerate case of an interior reduced to a pass-through), parent
// is itself dissolved and its sole surviving child takes its place in
// the grandparent; cascading upward, or becoming the layer's new root
// if parent had none.
func (t *Tree) unthreadChildLocked(layer layerRef, tok Token, parent *nodeBase, child *nodeBase) {
	parent.version.lock()
	pn := asInterior(parent)
	cnt := int(pn.count.Load())

	pos := -1
	for i := 0; i <= cnt; i++ {
		if pn.children[i].Load() == child {
			pos = i
			break
		}
	}
	if pos < 0 {
		parent.version.unlock()
		return
	}

	sepIdx := pos
	if sepIdx > 0 {
		sepIdx--
	}
	// Dirty bit first: the shifts rearrange state concurrent descents
	// binary-search through.
	pn.version.beginInsert()
	for i := sepIdx; i < cnt-1; i++ {
		pn.keys[i] = pn.keys[i+1]
		pn.keyLens[i] = pn.keyLens[i+1]
	}
	for i := pos; i < cnt; i++ {
		pn.children[i].Store(pn.children[i+1].Load())
	}
	newCnt := cnt - 1
	pn.count.Store(int32(newCnt))

	if newCnt > 0 {
		pn.version.unlock()
		t.reclaim.Advance()
		return
	}

	sole := pn.children[0].Load()
	pn.version.markDeleted()
	pn.version.unlock()
	t.reclaim.Advance()
	t.reclaim.RetireInterior(tok, pn)

	grandparent := parent.parent.Load()
	if sole != nil {
		sole.parent.Store(grandparent)
	}
	if grandparent == nil {
		if layer.swapRoot(parent, sole) && sole != nil {
			sole.version.lock()
			sole.version.setRoot(true)
			sole.version.unlock()
		}
		return
	}
	t.replaceChildLocked(grandparent, parent, sole)
}

// replaceChildLocked swaps old for new in parent's child array in
// place, without touching the separator keys; used when parent's
// child at some position is being collapsed away and sole has already
// taken over its responsibilities.
func (t *Tree) replaceChildLocked(parent, old, new *nodeBase) {
	parent.version.lock()
	pn := asInterior(parent)
	cnt := int(pn.count.Load())
	for i := 0; i <= cnt; i++ {
		if pn.children[i].Load() == old {
			pn.children[i].Store(new)
			break
		}
	}
	pn.version.beginInsert()
	pn.version.unlock()
}
