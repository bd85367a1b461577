package rbtree

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
)

// Invariant violations reported by Check and Node.Validate.
var (
	ErrOrder       = errors.New("rbtree: search order violated")
	ErrRootColor   = errors.New("rbtree: root is not black")
	ErrRedRed      = errors.New("rbtree: red node has a red child")
	ErrBlackHeight = errors.New("rbtree: unequal black height")
	ErrLinks       = errors.New("rbtree: inconsistent parent link")
	ErrCount       = errors.New("rbtree: node count mismatch")
)

// shape abstracts over the two node representations that share invariant
// checking: arena handles and snapshot nodes.
type shape[N comparable] struct {
	none   N
	left   func(N) N
	right  func(N) N
	parent func(N) N
	color  func(N) arena.Color
	key    func(N) int32
	label  func(N) string

	// limit bounds the walk so that a cycle is reported instead of looping.
	limit int
}

type walkState struct {
	visited int
}

// validate checks every red-black invariant under root and returns the number
// of nodes visited.
func (s shape[N]) validate(root N) (int, error) {
	if root == s.none {
		return 0, nil
	}

	if s.parent(root) != s.none {
		return 0, fmt.Errorf("%w: root %s has a parent", ErrLinks, s.label(root))
	}

	if s.color(root) != arena.Black {
		return 0, fmt.Errorf("%w: %s", ErrRootColor, s.label(root))
	}

	state := &walkState{}

	_, err := s.walk(root, math.MinInt32, math.MaxInt32, state)
	if err != nil {
		return state.visited, err
	}

	return state.visited, nil
}

// walk returns the black height below node. Keys under node must lie in
// [lower, upper]. Rotations can lift an equal key above its twin, so equal
// keys are allowed on either side and only the in-order sequence is
// required to be non-decreasing.
func (s shape[N]) walk(node N, lower, upper int64, state *walkState) (int, error) {
	if node == s.none {
		return 0, nil
	}

	state.visited++
	if state.visited > s.limit {
		return 0, fmt.Errorf("%w: more than %d nodes reachable, links form a cycle", ErrLinks, s.limit)
	}

	key := int64(s.key(node))
	if key < lower || key > upper {
		return 0, fmt.Errorf("%w: %s outside [%d, %d]", ErrOrder, s.label(node), lower, upper)
	}

	red := s.color(node) == arena.Red
	heights := [2]int{}

	for idx, dir := range [2]side{left, right} {
		child := s.right(node)
		childLower, childUpper := key, upper

		if dir == left {
			child = s.left(node)
			childLower, childUpper = lower, key
		}

		if child == s.none {
			continue
		}

		if s.parent(child) != node {
			return 0, fmt.Errorf("%w: %s child %s of %s points elsewhere", ErrLinks, dir, s.label(child), s.label(node))
		}

		if red && s.color(child) == arena.Red {
			return 0, fmt.Errorf("%w: %s under %s", ErrRedRed, s.label(child), s.label(node))
		}

		height, err := s.walk(child, childLower, childUpper, state)
		if err != nil {
			return 0, err
		}

		heights[idx] = height
	}

	if heights[0] != heights[1] {
		return 0, fmt.Errorf("%w: %s has %d on the left and %d on the right",
			ErrBlackHeight, s.label(node), heights[0], heights[1])
	}

	if !red {
		heights[0]++
	}

	return heights[0], nil
}

func (tree *RBTree) shape() shape[arena.Handle] {
	return shape[arena.Handle]{
		none:   arena.None,
		left:   tree.arena.Left,
		right:  tree.arena.Right,
		parent: tree.arena.Parent,
		color:  tree.arena.Color,
		key:    tree.arena.Key,
		label: func(nodeIdx arena.Handle) string {
			return fmt.Sprintf("node %d (key %d)", nodeIdx, tree.arena.Key(nodeIdx))
		},
		limit: tree.arena.Len(),
	}
}

// Check verifies the red-black invariants directly over the arena, along
// with the agreement of the node count and the arena's live records.
// A link to a freed or out-of-range handle is reported as ErrLinks.
func (tree *RBTree) Check() (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}

		panicErr, ok := recovered.(error)
		if !ok || !errors.Is(panicErr, arena.ErrInvalidHandle) {
			panic(recovered)
		}

		err = fmt.Errorf("%w: %w", ErrLinks, panicErr)
	}()

	visited, err := tree.shape().validate(tree.root)
	if err != nil {
		return err
	}

	if visited != tree.count || tree.arena.Len() != tree.count {
		return fmt.Errorf("%w: %d reachable, %d counted, %d live records",
			ErrCount, visited, tree.count, tree.arena.Len())
	}

	return nil
}
