// Package stratum implements a concurrent, ordered, in-memory key-value
// index over variable-length byte-string keys: a layered trie of
// fixed-width (8-byte) key slices in the style of Masstree, with
// optimistic-concurrency reads validated by per-node version words and
// epoch-based reclamation of retired nodes.
package stratum

import (
	"runtime"

	"go.uber.org/atomic"
)

// versionBits is the 64-bit layout of a node's version word:
//
//	bit 0       lock      : writer holds exclusive access to this node
//	bit 1       inserting : a slot insertion/deletion is in flight
//	bit 2       splitting : a split/promotion touching this node is in flight
//	bit 3       deleted   : node has been logically unthreaded from the tree
//	bit 4       root      : node is presently a layer root
//	bit 5       border    : node is a border node (else interior)
//	bits 6-21   vinsert   : bumped on every completed insert/delete on a border
//	bits 22-63  vsplit    : bumped on every completed split anywhere
//
// It is a pure value type: every method returns a new versionBits rather
// than mutating in place, so callers can CAS a before/after pair without
// any hidden state.
type versionBits uint64

const (
	bitLock = 1 << iota
	bitInserting
	bitSplitting
	bitDeleted
	bitRoot
	bitBorder

	vinsertShift = 6
	vinsertBits  = 16
	vinsertMask  = (uint64(1)<<vinsertBits - 1) << vinsertShift

	vsplitShift = vinsertShift + vinsertBits
	vsplitMask  = ^(uint64(1)<<vsplitShift - 1)

	vinsertOne = uint64(1) << vinsertShift
	vsplitOne  = uint64(1) << vsplitShift
)

func (v versionBits) locked() bool { return v&bitLock != 0 }
func (v versionBits) inserting() bool { return v&bitInserting != 0 }
func (v versionBits) splitting() bool { return v&bitSplitting != 0 }
func (v versionBits) isDeleted() bool { return v&bitDeleted != 0 }
func (v versionBits) isRoot() bool { return v&bitRoot != 0 }
func (v versionBits) isBorder() bool { return v&bitBorder != 0 }
func (v versionBits) stable() bool { return v&(bitInserting|bitSplitting) == 0 }
func (v versionBits) vinsert() uint64 { return (uint64(v) & vinsertMask) >> vinsertShift }
func (v versionBits) vsplit() uint64 { return (uint64(v) & vsplitMask) >> vsplitShift }

// structEqual reports whether two snapshots agree on everything a reader
// cares about for retry decisions: dirty bits and both counters. vinsert
// and vsplit only ever grow, so comparing a "before" and "after" stable
// snapshot of the same node tells a reader whether anything committed
// underneath it in between.
func (v versionBits) structEqual(o versionBits) bool {
	return v == o
}

func (v versionBits) withLockSet() versionBits { return v | bitLock }
func (v versionBits) withLockCleared() versionBits { return v &^ bitLock }
func (v versionBits) withInsertingSet() versionBits { return v | bitInserting }
func (v versionBits) withSplittingSet() versionBits { return v | bitSplitting }
func (v versionBits) withDeletedSet() versionBits { return v | bitDeleted }
func (v versionBits) withRoot(isRoot bool) versionBits {
	if isRoot {
		return v | bitRoot
	}
	return v &^ bitRoot
}
func (v versionBits) withBorder(isBorder bool) versionBits {
	if isBorder {
		return v | bitBorder
	}
	return v &^ bitBorder
}

// releaseClear clears lock/inserting/splitting and bumps vinsert and/or
// vsplit according to which dirty bit had been set. The counter bump and
// the dirty-bit clear happen in the same release, so a reader can never
// observe a bumped counter with the old (pre-mutation) contents, nor a
// cleared dirty bit with a stale counter.
func (v versionBits) releaseClear() versionBits {
	w := uint64(v)
	if v.inserting() {
		// Wrap within the vinsert field only; a carry must never bleed
		// into vsplit's bits.
		bumped := (w + vinsertOne) & vinsertMask
		w = (w &^ vinsertMask) | bumped
	}
	if v.splitting() {
		w += vsplitOne
	}
	w &^= bitLock | bitInserting | bitSplitting
	return versionBits(w)
}

// version is the atomic, node-embedded wrapper around versionBits.
type version struct {
	w atomic.Uint64
}

func (v *version) load() versionBits {
	return versionBits(v.w.Load())
}

// stableSnapshot spins until inserting and splitting are both clear,
// returning the first such observation. Critical sections that set these
// bits are bounded (a single slot write, a sibling-link fix), so the spin
// is bounded in practice.
func (v *version) stableSnapshot() versionBits {
	for {
		s := v.load()
		if s.stable() {
			return s
		}
		runtime.Gosched()
	}
}

// lock spins (CAS retry) until it acquires the writer lock, returning the
// post-lock snapshot.
func (v *version) lock() versionBits {
	for {
		cur := v.load()
		if cur.locked() {
			runtime.Gosched()
			continue
		}
		next := cur.withLockSet()
		if v.w.CompareAndSwap(uint64(cur), uint64(next)) {
			return next
		}
	}
}

// tryLock attempts a single non-blocking acquisition.
func (v *version) tryLock() (versionBits, bool) {
	cur := v.load()
	if cur.locked() {
		return cur, false
	}
	next := cur.withLockSet()
	if v.w.CompareAndSwap(uint64(cur), uint64(next)) {
		return next, true
	}
	return cur, false
}

// unlock releases the writer lock, bumping vinsert/vsplit for whichever
// dirty bit(s) were set by the caller via beginInsert/beginSplit.
func (v *version) unlock() {
	for {
		cur := v.load()
		next := cur.releaseClear()
		if v.w.CompareAndSwap(uint64(cur), uint64(next)) {
			return
		}
	}
}

// beginInsert marks an in-flight slot insertion/deletion. Caller must hold
// the lock.
func (v *version) beginInsert() {
	v.setBit(bitInserting)
}

// beginSplit marks an in-flight split/promotion. Caller must hold the lock.
func (v *version) beginSplit() {
	v.setBit(bitSplitting)
}

func (v *version) setBit(bit uint64) {
	for {
		cur := v.load()
		next := versionBits(uint64(cur) | bit)
		if v.w.CompareAndSwap(uint64(cur), uint64(next)) {
			return
		}
	}
}

// markDeleted sets the deleted bit. Caller must hold the lock (typically
// the node's own lock, taken as part of unthreading it from its parent).
func (v *version) markDeleted() {
	v.setBit(bitDeleted)
}

// setRoot toggles the root bit. Caller must hold the lock.
func (v *version) setRoot(isRoot bool) {
	for {
		cur := v.load()
		next := cur.withRoot(isRoot)
		if v.w.CompareAndSwap(uint64(cur), uint64(next)) {
			return
		}
	}
}

// initVersion returns a fresh, unlocked version word for a brand-new node.
func initVersion(isBorder, isRoot bool) uint64 {
	var b versionBits
	b = b.withBorder(isBorder)
	b = b.withRoot(isRoot)
	return uint64(b)
}
