package stratum

import (
	"bytes"
	"context"
	"encoding/binary"
	"unsafe"
)

// Endpoint classifies one side of a scan's range.
type Endpoint int

const (
	EndpointInf Endpoint = iota
	EndpointInclusive
	EndpointExclusive
)

// ScanEntry is one tuple emitted by Scan: a fully reconstructed key
// (prefix bytes from any crossed layers plus this slot's own chunk and
// suffix) paired with its value.
type ScanEntry struct {
	Key   []byte
	Value *Value
}

// VersionStamp is the (stable_body, node_identity) pair Scan records for
// every border it reads from, including empty ones: the raw material an
// external transaction manager uses to detect
// phantoms in the scanned range after the fact. Node is an opaque
// identity (the border's address) a caller can compare for equality
// across two scans of the same border; it is never dereferenced.
type VersionStamp struct {
	Body uint64
	Node uintptr
}

func nodeIdentity(b *borderNode) uintptr {
	return uintptr(unsafe.Pointer(b))
}

// Scan is the ranged read: forward scans walk the leaf-level
// sibling chain emitting permutation-ordered tuples within
// [begin,end) per the requested endpoints, descending into any
// next-layer pointer encountered and prepending the crossed prefix to
// its tuples' keys; reverse scans are restricted to max==1 and an
// INF upper bound, returning only the maximum key present.
func (t *Tree) Scan(ctx context.Context, tok Token, begin []byte, beginEp Endpoint, end []byte, endEp Endpoint, max int, reverse bool) ([]ScanEntry, []VersionStamp, Status) {
	_ = ctx
	if reverse {
		if endEp != EndpointInf || max != 1 {
			return nil, nil, ErrBadUsage
		}
	}
	if beginEp == EndpointExclusive && endEp == EndpointExclusive && begin != nil && end != nil && bytes.Equal(begin, end) {
		return nil, nil, ErrBadUsage
	}
	if status := t.touchSession(tok); status != OK {
		return nil, nil, status
	}

	root := t.loadRoot()
	if root == nil {
		stamp := VersionStamp{Body: 0, Node: 0}
		if t.metrics != nil {
			t.metrics.recordScan(0)
		}
		return nil, []VersionStamp{stamp}, OK
	}

	if reverse {
		entry, stamps := t.scanMaxRec(root, nil)
		if entry == nil {
			if t.metrics != nil {
				t.metrics.recordScan(0)
			}
			return nil, stamps, OK
		}
		if t.metrics != nil {
			t.metrics.recordScan(1)
		}
		return []ScanEntry{*entry}, stamps, OK
	}

	var entries []ScanEntry
	var stamps []VersionStamp
	t.scanForward(root, nil, begin, end, beginEp, endEp, max, &entries, &stamps)
	if t.metrics != nil {
		t.metrics.recordScan(len(entries))
	}
	return entries, stamps, OK
}

// scanForward walks one layer's leaf chain left to right, starting near
// begin when it reaches this deep (len(begin) > len(prefix)) or from the
// layer's leftmost border otherwise, recursing into any next-layer
// pointer it crosses. It returns true the moment max tuples have been
// emitted or a key past end is observed; either way, every ancestor
// call stops immediately too, since sorted order guarantees nothing
// later could still qualify.
func (t *Tree) scanForward(layerRoot *nodeBase, prefix, begin, end []byte, beginEp, endEp Endpoint, max int, entries *[]ScanEntry, stamps *[]VersionStamp) bool {
	offset := len(prefix)

	// Descending toward begin is only a shortcut when begin actually
	// reaches into this layer (its prefix bytes match the path that led
	// here); otherwise every key in the layer is on the same side of
	// begin and the range filter below does the work.
	var b *borderNode
	if len(begin) > offset && bytes.Equal(begin[:offset], prefix) {
		b = t.descendToBorder(layerRoot, begin, offset)
	} else {
		b = leftmostBorder(layerRoot)
	}

	for b != nil {
		var vals []*slotEntry
		var stable uint64
		for {
			v1 := b.version.stableSnapshot()
			perm := b.loadPerm()
			vals = vals[:0]
			for r := 0; r < perm.count(); r++ {
				vals = append(vals, b.slots[perm.indexAt(r)].entry.Load())
			}
			v2 := b.version.stableSnapshot()
			if v1.structEqual(v2) {
				stable = uint64(v2)
				break
			}
		}
		*stamps = append(*stamps, VersionStamp{Body: stable, Node: nodeIdentity(b)})

		for _, e := range vals {
			if e == nil {
				continue
			}
			if e.isLayer {
				childPrefix := append(append([]byte{}, prefix...), chunkPrefixBytes(e)...)
				if t.scanForward(e.next, childPrefix, begin, end, beginEp, endEp, max, entries, stamps) {
					return true
				}
				continue
			}
			full := append(append([]byte{}, prefix...), entryKeyBytes(e)...)
			if !satisfiesBegin(full, begin, beginEp) {
				continue
			}
			if !withinEnd(full, end, endEp) {
				return true
			}
			*entries = append(*entries, ScanEntry{Key: full, Value: e.value})
			if max > 0 && len(*entries) >= max {
				return true
			}
		}
		b = b.next.Load()
	}
	return false
}

// scanMaxRec returns the maximum key reachable under layerRoot (the
// rightmost border's last permutation-ordered slot, recursing through
// any trailing next-layer pointer) along with the version stamps of
// every border it consulted to get there.
func (t *Tree) scanMaxRec(layerRoot *nodeBase, prefix []byte) (*ScanEntry, []VersionStamp) {
	cur := layerRoot
	for cur != nil {
		v := cur.version.stableSnapshot()
		if v.isBorder() {
			break
		}
		n := asInterior(cur)
		cur = n.childAt(int(n.count.Load()))
	}
	if cur == nil {
		return nil, nil
	}
	b := asBorder(cur)
	for {
		next := b.next.Load()
		if next == nil {
			break
		}
		b = next
	}

	v1 := b.version.stableSnapshot()
	perm := b.loadPerm()
	if perm.count() == 0 {
		return nil, []VersionStamp{{Body: uint64(v1), Node: nodeIdentity(b)}}
	}
	idx := perm.indexAt(perm.count() - 1)
	e := b.slots[idx].entry.Load()
	v2 := b.version.stableSnapshot()
	if !v1.structEqual(v2) {
		return t.scanMaxRec(layerRoot, prefix)
	}
	stamp := VersionStamp{Body: uint64(v2), Node: nodeIdentity(b)}
	if e.isLayer {
		childPrefix := append(append([]byte{}, prefix...), chunkPrefixBytes(e)...)
		entry, stamps := t.scanMaxRec(e.next, childPrefix)
		return entry, append([]VersionStamp{stamp}, stamps...)
	}
	full := append(append([]byte{}, prefix...), entryKeyBytes(e)...)
	return &ScanEntry{Key: full, Value: e.value}, []VersionStamp{stamp}
}

func leftmostBorder(root *nodeBase) *borderNode {
	cur := root
	for cur != nil {
		v := cur.version.stableSnapshot()
		if v.isBorder() {
			return asBorder(cur)
		}
		n := asInterior(cur)
		cur = n.childAt(0)
	}
	return nil
}

func chunkPrefixBytes(e *slotEntry) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.slice)
	return buf[:]
}

func entryKeyBytes(e *slotEntry) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.slice)
	out := append([]byte{}, buf[:e.length]...)
	if e.length == 8 && len(e.suffix) > 0 {
		out = append(out, e.suffix...)
	}
	return out
}

func satisfiesBegin(full, begin []byte, ep Endpoint) bool {
	if ep == EndpointInf || begin == nil {
		return true
	}
	c := bytes.Compare(full, begin)
	if ep == EndpointInclusive {
		return c >= 0
	}
	return c > 0
}

// withinEnd reports whether full still falls within the end bound;
// false means the scan has passed end and must stop.
func withinEnd(full, end []byte, ep Endpoint) bool {
	if ep == EndpointInf || end == nil {
		return true
	}
	c := bytes.Compare(full, end)
	if ep == EndpointInclusive {
		return c <= 0
	}
	return c < 0
}
