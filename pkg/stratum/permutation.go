package stratum

// permutation packs the sorted order of up to 15 occupied slots in a
// border node into a single 64-bit word: the low 4 bits hold the slot
// count, and each of the following fifteen 4-bit fields holds the slot
// index occupying that sorted rank. 4 + 15*4 = 64 bits exactly.
//
// Like versionBits, this is a pure value type; writers build a new
// permutation and publish it with one atomic store (see border.go), so
// readers never observe a permutation mid-mutation.
type permutation uint64

const (
	maxBorderSlots = 15
	rankBits       = 4
	rankMask       = uint64(1)<<rankBits - 1
)

func (p permutation) count() int {
	return int(uint64(p) & rankMask)
}

func (p permutation) indexAt(rank int) int {
	shift := rankBits + rankBits*uint(rank)
	return int((uint64(p) >> shift) & rankMask)
}

func (p permutation) withCount(n int) permutation {
	return permutation((uint64(p) &^ rankMask) | uint64(n))
}

// withIndexAt returns a permutation with rank's field set to idx, without
// touching the count or any other rank.
func (p permutation) withIndexAt(rank, idx int) permutation {
	shift := rankBits + rankBits*uint(rank)
	cleared := uint64(p) &^ (rankMask << shift)
	return permutation(cleared | (uint64(idx)&rankMask)<<shift)
}

// insertAtRank returns a new permutation with slot index idx inserted at
// sorted position rank, shifting every rank >= the insertion point up by
// one and incrementing count. The caller is responsible for having
// already written slots[idx]; this only updates the ordering.
func (p permutation) insertAtRank(rank, idx int) permutation {
	n := p.count()
	next := p
	for r := n; r > rank; r-- {
		next = next.withIndexAt(r, next.indexAt(r-1))
	}
	next = next.withIndexAt(rank, idx)
	next = next.withCount(n + 1)
	return next
}

// deleteAtRank returns a new permutation with the entry at sorted
// position rank removed, shifting subsequent ranks down by one and
// decrementing count.
func (p permutation) deleteAtRank(rank int) permutation {
	n := p.count()
	next := p
	for r := rank; r < n-1; r++ {
		next = next.withIndexAt(r, next.indexAt(r+1))
	}
	next = next.withCount(n - 1)
	return next
}

// emptyPermutation is the zero-count starting permutation for a freshly
// allocated border node.
const emptyPermutation permutation = 0

// freeSlot returns the smallest slot index in [0, maxBorderSlots) that is
// not currently referenced by any rank in p, or -1 if the node is full.
func (p permutation) freeSlot() int {
	n := p.count()
	var used [maxBorderSlots]bool
	for r := 0; r < n; r++ {
		used[p.indexAt(r)] = true
	}
	for i := 0; i < maxBorderSlots; i++ {
		if !used[i] {
			return i
		}
	}
	return -1
}
