package alloc

// Size-keyed free tree.
//
// Each distinct free size has one tree node: the head of an intrusive list of
// same-size blocks. Only heads carry children and a non-none parent link.
// Members are linked right after the head and carry slotNone.

// slotKind names which parent field points at a tree node.
type slotKind uint32

const (
	slotNone  slotKind = iota // list member, not in the tree
	slotRoot                  // the tree root
	slotLeft                  // left child of the link's node
	slotRight                 // right child of the link's node
)

func (k slotKind) String() string {
	switch k {
	case slotNone:
		return "none"
	case slotRoot:
		return "root"
	case slotLeft:
		return "left"
	case slotRight:
		return "right"
	}
	return "invalid"
}

// parentLink packs a node offset and a slotKind into one word. Node offsets
// are 8-aligned so the kind fits in the low bits.
type parentLink uint32

const slotMask = 0x3

var rootLink = makeLink(0, slotRoot)

func makeLink(node uint32, kind slotKind) parentLink {
	return parentLink(node | uint32(kind))
}

func (l parentLink) node() uint32   { return uint32(l) &^ 0x7 }
func (l parentLink) kind() slotKind { return slotKind(uint32(l) & slotMask) }

// setSlot points the parent field named by l at bp and, for a non-zero bp,
// records l as bp's parent link.
func (a *Allocator) setSlot(l parentLink, bp uint32) {
	switch l.kind() {
	case slotRoot:
		a.root = bp
	case slotLeft:
		a.setLeft(l.node(), bp)
	case slotRight:
		a.setRight(l.node(), bp)
	}
	if bp != 0 {
		a.setParent(bp, l)
	}
}

// treeInsert adds bp of the given size. A block whose size already has a node
// joins that node's list right after the head.
func (a *Allocator) treeInsert(bp, size uint32) {
	a.setLeft(bp, 0)
	a.setRight(bp, 0)

	link := rootLink
	cur := a.root
	for cur != 0 {
		cs := a.blockSize(cur)
		if size == cs {
			next := a.next(cur)
			a.setNext(bp, next)
			a.setPrev(bp, cur)
			if next != 0 {
				a.setPrev(next, bp)
			}
			a.setNext(cur, bp)
			a.setParent(bp, makeLink(0, slotNone))
			return
		}
		if size < cs {
			link = makeLink(cur, slotLeft)
			cur = a.left(cur)
		} else {
			link = makeLink(cur, slotRight)
			cur = a.right(cur)
		}
	}

	a.setNext(bp, 0)
	a.setPrev(bp, 0)
	a.setSlot(link, bp)
}

// treeBestFit follows a single root-to-leaf path. An exact size wins at once;
// otherwise the last node passed on the way left (the smallest larger size
// seen on the path) is returned. Returns 0 when nothing on the path fits.
func (a *Allocator) treeBestFit(size uint32) uint32 {
	best := uint32(0)
	cur := a.root
	for cur != 0 {
		cs := a.blockSize(cur)
		if size == cs {
			return cur
		}
		if size < cs {
			best = cur
			cur = a.left(cur)
		} else {
			cur = a.right(cur)
		}
	}
	return best
}

// treeRemove unlinks bp from the tree.
//
// A list member is unlinked from its list. A head with members hands its tree
// position to the next member. A lone head is removed structurally: with two
// children the leftmost node of the right subtree takes its place, otherwise
// its only child (or nothing) is spliced into its slot.
func (a *Allocator) treeRemove(bp uint32) {
	pl := a.parent(bp)
	next := a.next(bp)

	if pl.kind() == slotNone {
		prev := a.prev(bp)
		a.setNext(prev, next)
		if next != 0 {
			a.setPrev(next, prev)
		}
		return
	}

	l, r := a.left(bp), a.right(bp)

	if next != 0 {
		a.setPrev(next, 0)
		a.setLeft(next, l)
		a.setRight(next, r)
		if l != 0 {
			a.setParent(l, makeLink(next, slotLeft))
		}
		if r != 0 {
			a.setParent(r, makeLink(next, slotRight))
		}
		a.setSlot(pl, next)
		return
	}

	switch {
	case l != 0 && r != 0:
		s := r
		for a.left(s) != 0 {
			s = a.left(s)
		}
		if s != r {
			// Detach s; its right subtree takes its place.
			a.setSlot(a.parent(s), a.right(s))
			a.setRight(s, r)
			a.setParent(r, makeLink(s, slotRight))
		}
		a.setLeft(s, l)
		a.setParent(l, makeLink(s, slotLeft))
		a.setSlot(pl, s)
	case l != 0:
		a.setSlot(pl, l)
	case r != 0:
		a.setSlot(pl, r)
	default:
		a.setSlot(pl, 0)
	}
}
