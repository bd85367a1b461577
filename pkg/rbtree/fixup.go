package rbtree

import "github.com/Sumatoshi-tech/rbarena/pkg/arena"

// side selects a child slot. Mirrored cases of the fixups differ only in
// which side they start from, so they share one body parameterized by side.
type side bool

const (
	left  side = false
	right side = true
)

func (s side) flip() side {
	return !s
}

func (s side) String() string {
	if s == left {
		return "left"
	}

	return "right"
}

func (tree *RBTree) child(nodeIdx arena.Handle, dir side) arena.Handle {
	if dir == left {
		return tree.arena.Left(nodeIdx)
	}

	return tree.arena.Right(nodeIdx)
}

func setChild(dir side, childIdx arena.Handle) arena.Patch {
	if dir == left {
		return arena.Set().Left(childIdx)
	}

	return arena.Set().Right(childIdx)
}

// sideOf reports which child slot of parent holds nodeIdx.
func (tree *RBTree) sideOf(parent, nodeIdx arena.Handle) side {
	if tree.arena.Left(parent) == nodeIdx {
		return left
	}

	return right
}

// colorOf treats None as black.
func (tree *RBTree) colorOf(nodeIdx arena.Handle) arena.Color {
	if nodeIdx == arena.None {
		return arena.Black
	}

	return tree.arena.Color(nodeIdx)
}

func (tree *RBTree) setColor(nodeIdx arena.Handle, color arena.Color) {
	tree.arena.Write(nodeIdx, arena.Set().Color(color))
}

// replaceChild points whatever referenced oldIdx from above (the parent slot
// or the root) at newIdx. It does not touch newIdx's parent link.
func (tree *RBTree) replaceChild(parent, oldIdx, newIdx arena.Handle) {
	if parent == arena.None {
		tree.root = newIdx

		return
	}

	tree.arena.Write(parent, setChild(tree.sideOf(parent, oldIdx), newIdx))
}

// transplant puts newIdx in the position of oldIdx. newIdx may be None.
func (tree *RBTree) transplant(oldIdx, newIdx arena.Handle) {
	parent := tree.arena.Parent(oldIdx)
	tree.replaceChild(parent, oldIdx, newIdx)

	if newIdx != arena.None {
		tree.arena.Write(newIdx, arena.Set().Parent(parent))
	}
}

// rotate moves pivot down toward dir. Its child on the opposite side takes
// its place, and that child's inner subtree is reattached under pivot.
//
// rotate(x, left) is the textbook left rotation of x.
func (tree *RBTree) rotate(pivot arena.Handle, dir side) {
	up := tree.child(pivot, dir.flip())
	if up == arena.None {
		return
	}

	inner := tree.child(up, dir)
	parent := tree.arena.Parent(pivot)

	tree.arena.Write(pivot, setChild(dir.flip(), inner).Parent(up))

	if inner != arena.None {
		tree.arena.Write(inner, arena.Set().Parent(pivot))
	}

	tree.replaceChild(parent, pivot, up)
	tree.arena.Write(up, setChild(dir, pivot).Parent(parent))
}

// insertFixup restores the red-black properties after nodeIdx was attached
// as a red leaf.
func (tree *RBTree) insertFixup(nodeIdx arena.Handle) {
	for {
		parent := tree.arena.Parent(nodeIdx)
		if parent == arena.None || tree.arena.Color(parent) == arena.Black {
			break
		}

		// A red parent is never the root, so the grandparent exists.
		grand := tree.arena.Parent(parent)
		parentSide := tree.sideOf(grand, parent)
		uncle := tree.child(grand, parentSide.flip())

		if tree.colorOf(uncle) == arena.Red {
			tree.setColor(parent, arena.Black)
			tree.setColor(uncle, arena.Black)
			tree.setColor(grand, arena.Red)

			nodeIdx = grand

			continue
		}

		if tree.sideOf(parent, nodeIdx) != parentSide {
			tree.rotate(parent, parentSide)
			nodeIdx, parent = parent, nodeIdx
		}

		tree.setColor(parent, arena.Black)
		tree.setColor(grand, arena.Red)
		tree.rotate(grand, parentSide.flip())

		break
	}

	tree.setColor(tree.root, arena.Black)
}

// deleteFixup restores the black-height after a black node was removed.
// nodeIdx is the node that carries the extra black and may be None, in which
// case parent locates the empty slot.
func (tree *RBTree) deleteFixup(nodeIdx, parent arena.Handle) {
	for nodeIdx != tree.root && tree.colorOf(nodeIdx) == arena.Black {
		dir := left
		if tree.arena.Left(parent) != nodeIdx {
			dir = right
		}

		// The doubly black side had black-height at least one before the
		// removal, so the sibling exists.
		sibling := tree.child(parent, dir.flip())

		if tree.arena.Color(sibling) == arena.Red {
			tree.setColor(sibling, arena.Black)
			tree.setColor(parent, arena.Red)
			tree.rotate(parent, dir)

			sibling = tree.child(parent, dir.flip())
		}

		near := tree.child(sibling, dir)
		far := tree.child(sibling, dir.flip())

		if tree.colorOf(near) == arena.Black && tree.colorOf(far) == arena.Black {
			tree.setColor(sibling, arena.Red)

			nodeIdx = parent
			parent = tree.arena.Parent(nodeIdx)

			continue
		}

		if tree.colorOf(far) == arena.Black {
			tree.setColor(near, arena.Black)
			tree.setColor(sibling, arena.Red)
			tree.rotate(sibling, dir.flip())

			sibling = tree.child(parent, dir.flip())
			far = tree.child(sibling, dir.flip())
		}

		tree.setColor(sibling, tree.arena.Color(parent))
		tree.setColor(parent, arena.Black)
		tree.setColor(far, arena.Black)
		tree.rotate(parent, dir)

		nodeIdx = tree.root
	}

	if nodeIdx != arena.None {
		tree.setColor(nodeIdx, arena.Black)
	}
}
