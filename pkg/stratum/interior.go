package stratum

import (
	"go.uber.org/atomic"
)

const maxInteriorChildren = maxBorderSlots + 1 // 16

// interiorNode is a router: up to 15 separator key slices and up to
// 16 child pointers. Child i covers the half-open range
// [slice[i-1], slice[i]) (with -inf/+inf at the ends).
type interiorNode struct {
	nodeBase
	count    atomic.Int32
	keys     [maxBorderSlots]uint64
	keyLens  [maxBorderSlots]int
	children [maxInteriorChildren]atomic.Pointer[nodeBase]
}

func newInteriorNode(isRoot bool) *interiorNode {
	n := &interiorNode{}
	n.version.w.Store(initVersion(false, isRoot))
	return n
}

// upperBound returns the number of this node's first cnt separator
// slices that are <= c: equivalently, the index of the child whose range
// contains c (child i covers [slice[i-1], slice[i])), since an exact
// match on a separator routes to the child immediately to its right.
func (n *interiorNode) upperBound(cnt int32, c chunk) int {
	lo, hi := 0, int(cnt)
	for lo < hi {
		mid := (lo + hi) / 2
		if !chunkLess(c.slice, c.length, n.keys[mid], n.keyLens[mid]) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// locateChild performs a binary search over this node's separator slices
// for c, returning the index of the child whose range contains c. This
// is a reader operation: cnt is a snapshot the caller took under a
// version bracket.
func (n *interiorNode) locateChild(cnt int32, c chunk) int {
	return n.upperBound(cnt, c)
}

func (n *interiorNode) childAt(i int) *nodeBase {
	return n.children[i].Load()
}

func (n *interiorNode) isFull(cnt int32) bool {
	return int(cnt) >= maxBorderSlots
}

// insertChildLocked inserts separator c at its sorted position and threads
// rightChild in immediately after the corresponding left child. Caller
// must hold the lock.
func (n *interiorNode) insertChildLocked(c chunk, rightChild *nodeBase) bool {
	cnt := n.count.Load()
	if n.isFull(cnt) {
		return false
	}
	pos := n.locateChildInsertPos(cnt, c)
	// The shifts below rearrange keys/children a concurrent reader's
	// binary search walks, so the dirty bit precedes them.
	n.version.beginInsert()
	for i := int(cnt); i > pos; i-- {
		n.keys[i] = n.keys[i-1]
		n.keyLens[i] = n.keyLens[i-1]
	}
	n.keys[pos] = c.slice
	n.keyLens[pos] = c.length
	for i := int(cnt) + 1; i > pos+1; i-- {
		n.children[i].Store(n.children[i-1].Load())
	}
	n.children[pos+1].Store(rightChild)
	n.count.Store(cnt + 1)
	return true
}

// locateChildInsertPos finds the sorted insertion position for a new
// separator key c among the first cnt keys.
func (n *interiorNode) locateChildInsertPos(cnt int32, c chunk) int {
	lo, hi := 0, int(cnt)
	for lo < hi {
		mid := (lo + hi) / 2
		if chunkLess(n.keys[mid], n.keyLens[mid], c.slice, c.length) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// splitLocked splits a full interior node: keys/children[0..mid) and the
// left mid+1 children stay in n; keys[mid] is promoted (not kept in
// either half); keys/children after mid move to a fresh right sibling.
// Caller must hold n's lock.
func (n *interiorNode) splitLocked() (right *interiorNode, promoted chunk) {
	cnt := int(n.count.Load())
	mid := cnt / 2

	right = newInteriorNode(false)
	// Like a border split's right half: born locked+splitting, released
	// by linkSplitUp once it is threaded under a parent.
	right.version.w.Store(initVersion(false, false) | bitLock | bitSplitting)
	for i := mid + 1; i < cnt; i++ {
		ri := i - mid - 1
		right.keys[ri] = n.keys[i]
		right.keyLens[ri] = n.keyLens[i]
	}
	for i := mid + 1; i <= cnt; i++ {
		right.children[i-mid-1].Store(n.children[i].Load())
		if c := right.children[i-mid-1].Load(); c != nil {
			c.parent.Store(&right.nodeBase)
		}
	}
	right.count.Store(int32(cnt - mid - 1))

	promoted = chunk{slice: n.keys[mid], length: n.keyLens[mid]}

	n.version.beginSplit()
	n.count.Store(int32(mid))

	return right, promoted
}
