package stratum

import (
	"fmt"
	"strings"
)

// Display renders a debug dump of the tree's structure (node kind, key
// count, version-word fields, children indented under their parent),
// recursing through every layer it finds along the way. Sibling
// pointers are not shown. It takes no lock and gives no
// consistency guarantee beyond whatever a best-effort read sees; it
// exists purely for interactive debugging.
func (t *Tree) Display() string {
	var b strings.Builder
	root := t.loadRoot()
	if root == nil {
		b.WriteString("(empty)\n")
		return b.String()
	}
	displayNode(&b, root, 0)
	return b.String()
}

func displayNode(b *strings.Builder, n *nodeBase, depth int) {
	indent := strings.Repeat("  ", depth)
	v := n.version.load()

	if v.isBorder() {
		border := asBorder(n)
		perm := border.loadPerm()
		fmt.Fprintf(b, "%sborder count=%d root=%v deleted=%v vinsert=%d vsplit=%d\n",
			indent, perm.count(), v.isRoot(), v.isDeleted(), v.vinsert(), v.vsplit())
		for r := 0; r < perm.count(); r++ {
			idx := perm.indexAt(r)
			e := border.slots[idx].entry.Load()
			if e == nil {
				continue
			}
			if e.isLayer {
				fmt.Fprintf(b, "%s  slot[%d] chunk=%#016x -> layer:\n", indent, r, e.slice)
				if e.next != nil {
					displayNode(b, e.next, depth+2)
				}
				continue
			}
			fmt.Fprintf(b, "%s  slot[%d] chunk=%#016x len=%d suffix_len=%d value_len=%d\n",
				indent, r, e.slice, e.length, len(e.suffix), len(e.value.data))
		}
		return
	}

	interior := asInterior(n)
	cnt := int(interior.count.Load())
	fmt.Fprintf(b, "%sinterior count=%d root=%v deleted=%v vinsert=%d vsplit=%d\n",
		indent, cnt, v.isRoot(), v.isDeleted(), v.vinsert(), v.vsplit())
	for i := 0; i <= cnt; i++ {
		child := interior.childAt(i)
		if child == nil {
			continue
		}
		displayNode(b, child, depth+1)
	}
}
