package stratum

import (
	"unsafe"

	"go.uber.org/atomic"
)

// nodeBase is the header shared by border and interior nodes: the version
// word and a non-owning back-reference to the parent. It is embedded as
// the first field of both concrete node types so that a *nodeBase
// obtained from a child or sibling pointer can be reinterpreted as the
// concrete type by switching on the version word's border bit; a tagged
// union, so descent needs no interface dispatch.
//
// The parent pointer is a weak, non-owning edge: ownership of a node
// flows from its parent's child-slot array (or the tree's root pointer);
// the parent field exists solely so a writer can ascend under lock during
// split/merge.
type nodeBase struct {
	version version
	parent  atomic.Pointer[nodeBase]
}

// asBorder reinterprets nb as a *borderNode. Callers must have already
// confirmed nb.version.load().isBorder().
func asBorder(nb *nodeBase) *borderNode {
	return (*borderNode)(unsafe.Pointer(nb))
}

// asInterior reinterprets nb as a *interiorNode. Callers must have already
// confirmed !nb.version.load().isBorder().
func asInterior(nb *nodeBase) *interiorNode {
	return (*interiorNode)(unsafe.Pointer(nb))
}

func (n *borderNode) base() *nodeBase   { return &n.nodeBase }
func (n *interiorNode) base() *nodeBase { return &n.nodeBase }
