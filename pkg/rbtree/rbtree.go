// Package rbtree implements a red-black tree whose nodes live in an
// arena.Arena and reference each other by handle.
package rbtree

import (
	"io"
	"log/slog"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
)

// RBTree is an ordered multiset of int32 keys.
//
// Duplicates are accepted and placed to the right of equal keys. The tree
// owns its arena exclusively and is not safe for concurrent use.
type RBTree struct {
	arena  *arena.Arena
	logger *slog.Logger

	// Root of the tree, arena.None when empty.
	root arena.Handle

	// Number of nodes under root, including the root.
	count int
}

// Option configures an RBTree.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	arenaOpts []arena.Option
}

// WithLogger sets the logger used for debug events such as arena growth.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithArenaOptions forwards options to the tree's arena.
func WithArenaOptions(opts ...arena.Option) Option {
	return func(cfg *config) {
		cfg.arenaOpts = append(cfg.arenaOpts, opts...)
	}
}

// New creates an empty tree with its own arena.
func New(opts ...Option) *RBTree {
	cfg := config{}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &RBTree{
		arena:  arena.New(cfg.arenaOpts...),
		logger: cfg.logger,
		root:   arena.None,
	}
}

// Len returns the number of keys in the tree.
func (tree *RBTree) Len() int {
	return tree.count
}

// Stats reports the occupancy of the tree's arena.
func (tree *RBTree) Stats() arena.Stats {
	return tree.arena.Stats()
}

// Arena exposes the backing arena for hibernation tuning and inspection.
// Callers must not allocate or free through it.
func (tree *RBTree) Arena() *arena.Arena {
	return tree.arena
}

// Contains reports whether key is present.
func (tree *RBTree) Contains(key int32) bool {
	return tree.search(key) != arena.None
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (tree *RBTree) Height() int {
	return tree.height(tree.root)
}

func (tree *RBTree) height(nodeIdx arena.Handle) int {
	if nodeIdx == arena.None {
		return 0
	}

	return 1 + max(tree.height(tree.arena.Left(nodeIdx)), tree.height(tree.arena.Right(nodeIdx)))
}

// Insert adds key to the tree. Duplicates are never rejected.
func (tree *RBTree) Insert(key int32) {
	capacity := tree.arena.Capacity()
	nodeIdx := tree.arena.Allocate(arena.Set().Color(arena.Red).Key(key))

	if grown := tree.arena.Capacity(); grown != capacity {
		tree.logger.Debug("arena grown", "from", capacity, "to", grown, "nodes", tree.count)
	}

	tree.count++

	if tree.root == arena.None {
		tree.root = nodeIdx
		tree.arena.Write(nodeIdx, arena.Set().Color(arena.Black))

		return
	}

	parent := tree.root

	for {
		dir := right
		if key < tree.arena.Key(parent) {
			dir = left
		}

		next := tree.child(parent, dir)
		if next == arena.None {
			tree.arena.Write(parent, setChild(dir, nodeIdx))
			tree.arena.Write(nodeIdx, arena.Set().Parent(parent))

			break
		}

		parent = next
	}

	tree.insertFixup(nodeIdx)
}

// Delete removes the first node holding key found by search.
// It returns false, without touching the tree, when key is absent.
func (tree *RBTree) Delete(key int32) bool {
	nodeIdx := tree.search(key)
	if nodeIdx == arena.None {
		return false
	}

	tree.deleteNode(nodeIdx)
	tree.count--

	return true
}

func (tree *RBTree) search(key int32) arena.Handle {
	nodeIdx := tree.root

	for nodeIdx != arena.None {
		nodeKey := tree.arena.Key(nodeIdx)

		switch {
		case key == nodeKey:
			return nodeIdx
		case key < nodeKey:
			nodeIdx = tree.arena.Left(nodeIdx)
		default:
			nodeIdx = tree.arena.Right(nodeIdx)
		}
	}

	return arena.None
}

func (tree *RBTree) minimum(nodeIdx arena.Handle) arena.Handle {
	for {
		next := tree.arena.Left(nodeIdx)
		if next == arena.None {
			return nodeIdx
		}

		nodeIdx = next
	}
}

// deleteNode unlinks nodeIdx and frees its handle. When it has two children
// its successor is moved into its position and takes over its color.
func (tree *RBTree) deleteNode(nodeIdx arena.Handle) {
	node := tree.arena.Read(nodeIdx)
	removedColor := node.Color

	var child, childParent arena.Handle

	switch {
	case node.Left == arena.None:
		child, childParent = node.Right, node.Parent
		tree.transplant(nodeIdx, child)
	case node.Right == arena.None:
		child, childParent = node.Left, node.Parent
		tree.transplant(nodeIdx, child)
	default:
		succ := tree.minimum(node.Right)
		removedColor = tree.arena.Color(succ)
		child = tree.arena.Right(succ)

		if tree.arena.Parent(succ) == nodeIdx {
			childParent = succ
		} else {
			childParent = tree.arena.Parent(succ)
			tree.transplant(succ, child)
			tree.arena.Write(succ, arena.Set().Right(node.Right))
			tree.arena.Write(node.Right, arena.Set().Parent(succ))
		}

		tree.transplant(nodeIdx, succ)
		tree.arena.Write(succ, arena.Set().Left(node.Left).Color(node.Color))
		tree.arena.Write(node.Left, arena.Set().Parent(succ))
	}

	// An empty child slot still carries the missing black; the fixup tracks
	// its parent explicitly.
	if removedColor == arena.Black {
		tree.deleteFixup(child, childParent)
	}

	tree.arena.Free(nodeIdx)
}
