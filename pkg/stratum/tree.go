package stratum

import (
	"runtime"

	"go.uber.org/atomic"
)

// Tree is a single layered-trie instance: an atomically swappable
// root pointer plus the concurrency helpers every operation in put.go,
// get.go, remove.go and scan.go descends through. A Tree also anchors
// zero or more nested layers, each rooted inside a border slot elsewhere
// in this same Tree; see layerRef below.
type Tree struct {
	root     atomic.Pointer[nodeBase]
	reclaim  *Reclaimer
	sessions *SessionRegistry
	metrics  *Metrics
}

// NewTree constructs an empty tree (root == nil) bound to a reclaimer and
// session registry shared across every storage in the process.
func NewTree(reclaim *Reclaimer, sessions *SessionRegistry, metrics *Metrics) *Tree {
	return &Tree{reclaim: reclaim, sessions: sessions, metrics: metrics}
}

func (t *Tree) loadRoot() *nodeBase { return t.root.Load() }

// touchSession re-publishes tok's epoch to the current global epoch,
// once per operation, so the reclaimer's safe-epoch computation never
// lags a long-lived session. Every exported operation in
// put.go/get.go/remove.go/scan.go calls this before touching the tree;
// a stale or unknown token fails fast with
// WarnInvalidToken rather than silently reading against an unpublished
// epoch.
func (t *Tree) touchSession(tok Token) Status {
	if t.sessions == nil {
		return OK
	}
	if !t.sessions.touch(tok, t.reclaim.CurrentEpoch()) {
		return WarnInvalidToken
	}
	return OK
}

// ensureRoot installs a fresh empty border root if the tree is presently
// empty, returning whichever root ends up installed. Concurrent callers
// race via CAS; the loser simply observes the winner's root.
func (t *Tree) ensureRoot() *nodeBase {
	for {
		cur := t.root.Load()
		if cur != nil {
			return cur
		}
		fresh := newBorderNode(true)
		if t.root.CompareAndSwap(nil, fresh.base()) {
			return fresh.base()
		}
	}
}

// layerRef is an indirection to one trie layer's root pointer: the
// top-level layer's root lives in Tree.root, while a nested layer's root
// (created on a 9-byte-prefix collision promoting a slot to a layer)
// lives inside a border slot's link-or-value elsewhere in the tree. This
// lets put/remove treat "continue into the next layer" uniformly,
// regardless of which kind of root they're re-reading or replacing.
type layerRef struct {
	tree        *Tree
	rootCell    *atomic.Pointer[nodeBase] // used when ownerBorder == nil and this isn't the top layer
	ownerBorder *borderNode               // nil for the top-level layer and detached layers
	ownerChunk  chunk                     // chunk of the owning slot, within ownerBorder
}

func (t *Tree) topLayer() layerRef { return layerRef{tree: t} }

// detachedLayer returns a layerRef backed by its own root cell rather
// than the tree's root or a border slot; used to build a brand-new
// sublayer's contents (via putInLayer) before it is ever published
// through a slot, so the two reinserted entries of a layer promotion
// (put.go's promote, the 9-byte collision case) go through the exact same
// split/promote machinery as any other put.
func (t *Tree) detachedLayer() layerRef {
	return layerRef{tree: t, rootCell: new(atomic.Pointer[nodeBase])}
}

// load reads this layer's current root, chasing the owning border's
// sibling chain if it was split since ownerBorder was captured.
func (r layerRef) load() *nodeBase {
	if r.ownerBorder != nil {
		_, e := r.tree.findSlotStable(r.ownerBorder, r.ownerChunk)
		if e == nil || !e.isLayer {
			return nil
		}
		return e.next
	}
	if r.rootCell != nil {
		return r.rootCell.Load()
	}
	return r.tree.root.Load()
}

// ensure installs a fresh border as this layer's initial root if it is
// presently empty (first put crossing into a brand-new layer). For an
// owned layer it returns nil when the owning slot itself is gone (an
// emptied layer unthreaded concurrently); the caller must re-descend
// from a layer it knows still exists.
func (r layerRef) ensure() *nodeBase {
	if r.ownerBorder == nil {
		if r.rootCell != nil {
			for {
				if cur := r.rootCell.Load(); cur != nil {
					return cur
				}
				fresh := newBorderNode(true)
				if r.rootCell.CompareAndSwap(nil, fresh.base()) {
					return fresh.base()
				}
			}
		}
		return r.tree.ensureRoot()
	}
	for {
		if root := r.load(); root != nil {
			return root
		}
		owner, idx := r.tree.lockOwnerForChunk(r.ownerBorder, r.ownerChunk)
		if owner == nil {
			return nil
		}
		perm := owner.loadPerm()
		_, _, e := owner.findRank(perm, r.ownerChunk)
		if e != nil && e.isLayer && e.next != nil {
			owner.version.unlock()
			return e.next
		}
		fresh := newBorderNode(true)
		owner.replaceEntry(idx, &slotEntry{
			slice: r.ownerChunk.slice, length: r.ownerChunk.length,
			isLayer: true, next: fresh.base(),
		})
		owner.version.unlock()
		return fresh.base()
	}
}

// swapRoot CASes this layer's root from old to new; used when a layer's
// top node splits and a new interior root must be installed above it.
func (r layerRef) swapRoot(old, new *nodeBase) bool {
	if r.ownerBorder == nil {
		if r.rootCell != nil {
			return r.rootCell.CompareAndSwap(old, new)
		}
		return r.tree.root.CompareAndSwap(old, new)
	}
	owner, idx := r.tree.lockOwnerForChunk(r.ownerBorder, r.ownerChunk)
	if owner == nil {
		return false
	}
	defer owner.version.unlock()
	perm := owner.loadPerm()
	_, _, e := owner.findRank(perm, r.ownerChunk)
	if e == nil || !e.isLayer || e.next != old {
		return false
	}
	owner.replaceEntry(idx, &slotEntry{slice: e.slice, length: e.length, isLayer: true, next: new})
	return true
}

// findSlotStable runs a stable-bracketed findRank against start, chasing
// the sibling chain rightward if c sorts past the last occupied rank
// (the common signature of a split having moved c's slot to the right
// sibling since start was captured).
func (t *Tree) findSlotStable(start *borderNode, c chunk) (idx int, e *slotEntry) {
	cur := start
	for {
		v1 := cur.version.stableSnapshot()
		perm := cur.loadPerm()
		rank, slotIdx, entry := cur.findRank(perm, c)
		v2 := cur.version.stableSnapshot()
		if !v1.structEqual(v2) {
			continue
		}
		if entry != nil {
			return slotIdx, entry
		}
		if rank >= perm.count() {
			if next := cur.next.Load(); next != nil {
				cur = next
				continue
			}
		}
		return -1, nil
	}
}

// lockOwnerForChunk locks whichever border currently owns c, chasing the
// sibling chain first (lock-free) the same way findSlotStable does, then
// re-validating under the lock. Returns nil if the chunk is not (or no
// longer) present as a slot in this border chain.
func (t *Tree) lockOwnerForChunk(start *borderNode, c chunk) (*borderNode, int) {
	cur := start
	for {
		if _, _, entry := cur.findRank(cur.loadPerm(), c); entry == nil {
			if next := cur.next.Load(); next != nil {
				cur = next
				continue
			}
			return nil, -1
		}
		cur.version.lock()
		perm := cur.loadPerm()
		rank, slotIdx, entry := cur.findRank(perm, c)
		if entry == nil {
			cur.version.unlock()
			if rank >= perm.count() {
				if next := cur.next.Load(); next != nil {
					cur = next
					continue
				}
			}
			return nil, -1
		}
		return cur, slotIdx
	}
}

// chaseRightLocked is called immediately after acquiring a border's lock
// on the write path: if the border has since been split and c now
// belongs strictly past its last occupied rank, it unlocks and moves to
// the next sibling, repeating until it holds the lock on the border that
// actually owns c's sorted position.
func (t *Tree) chaseRightLocked(b *borderNode, c chunk) *borderNode {
	for {
		perm := b.loadPerm()
		rank, _, _ := b.findRank(perm, c)
		if rank < perm.count() {
			return b
		}
		next := b.next.Load()
		if next == nil {
			return b
		}
		b.version.unlock()
		next.version.lock()
		b = next
	}
}

// descendToBorder performs the read-only, version-validated descent
// within a single layer: starting at layerRoot, it follows
// interior routing down to the border that should hold key's chunk at
// offset, restarting from layerRoot on any observed structural change.
// It does not cross next-layer pointers; callers do that themselves so
// they can track the layerRef needed to write back a promoted/split
// layer root.
func (t *Tree) descendToBorder(layerRoot *nodeBase, key []byte, offset int) *borderNode {
	cur := layerRoot
	for {
		if cur == nil {
			return nil
		}
		v1 := cur.version.stableSnapshot()
		if v1.isBorder() {
			return asBorder(cur)
		}
		n := asInterior(cur)
		c := extractChunk(key[offset:])
		cnt := n.count.Load()
		idx := n.locateChild(cnt, c)
		child := n.childAt(idx)
		v2 := cur.version.stableSnapshot()
		if !v1.structEqual(v2) {
			cur = layerRoot
			continue
		}
		cur = child
	}
}

// linkSplitUp threads a freshly split node's promoted separator into its
// parent, splitting the parent in turn (cascading all the way to a
// brand-new root) if the parent has no room.
// left is the original node (now truncated to its lower half); right is
// the freshly allocated upper half; promoted is the separator chunk that
// routes between them. left arrives unlocked; right arrives still
// holding the lock+splitting bits it was born with and is released here
// once threaded in. Each intermediate parent is locked only for the
// duration of its own insertChildLocked/splitLocked call: bottom-up,
// one level at a time.
func (t *Tree) linkSplitUp(layer layerRef, left, right *nodeBase, promoted chunk) {
	parent := left.parent.Load()
	if parent == nil {
		newRoot := newInteriorNode(true)
		// A root born of a split carries that split in its counter.
		newRoot.version.w.Store(initVersion(false, true) | vsplitOne)
		newRoot.keys[0] = promoted.slice
		newRoot.keyLens[0] = promoted.length
		newRoot.count.Store(1)
		newRoot.children[0].Store(left)
		newRoot.children[1].Store(right)

		if layer.swapRoot(left, newRoot.base()) {
			left.parent.Store(newRoot.base())
			right.parent.Store(newRoot.base())

			left.version.lock()
			left.version.setRoot(false)
			left.version.unlock()

			right.version.unlock()
			return
		}

		// Lost the install race: a concurrent split already put a root
		// above left. Wait for the winner to publish left's parent and
		// thread into that instead.
		for parent == nil {
			runtime.Gosched()
			parent = left.parent.Load()
		}
	}

	parent.version.lock()
	pn := asInterior(parent)
	if pn.insertChildLocked(promoted, right) {
		right.parent.Store(pn.base())
		pn.version.unlock()
		right.version.unlock()
		t.reclaim.Advance()
		return
	}

	newRight, newPromoted := pn.splitLocked()
	if chunkLess(promoted.slice, promoted.length, newPromoted.slice, newPromoted.length) {
		pn.insertChildLocked(promoted, right)
		right.parent.Store(pn.base())
	} else {
		// newRight is still locked from its birth in splitLocked, so
		// inserting under it here is covered.
		newRight.insertChildLocked(promoted, right)
		right.parent.Store(newRight.base())
	}
	pn.version.unlock()
	right.version.unlock()
	t.reclaim.Advance()

	t.linkSplitUp(layer, pn.base(), newRight.base(), newPromoted)
}
