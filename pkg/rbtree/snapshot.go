package rbtree

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
)

// ErrBadView reports a View that cannot be turned into a Node.
var ErrBadView = errors.New("rbtree: malformed view")

// Node is a handle-free copy of one tree node. Each node owns its children;
// Parent is a back-reference kept for inspection.
type Node struct {
	Key    int32
	Color  arena.Color
	Left   *Node
	Right  *Node
	Parent *Node
}

// Snapshot materializes the tree as an ownership tree of Nodes.
// It returns nil when the tree is empty.
func (tree *RBTree) Snapshot() *Node {
	return tree.snapshot(tree.root, nil)
}

func (tree *RBTree) snapshot(nodeIdx arena.Handle, parent *Node) *Node {
	if nodeIdx == arena.None {
		return nil
	}

	rec := tree.arena.Read(nodeIdx)
	node := &Node{Key: rec.Key, Color: rec.Color, Parent: parent}
	node.Left = tree.snapshot(rec.Left, node)
	node.Right = tree.snapshot(rec.Right, node)

	return node
}

// InOrder returns the keys under n in ascending order.
func (n *Node) InOrder() []int32 {
	var keys []int32

	n.each(func(node *Node) {
		keys = append(keys, node.Key)
	})

	return keys
}

func (n *Node) each(fn func(*Node)) {
	if n == nil {
		return
	}

	n.Left.each(fn)
	fn(n)
	n.Right.each(fn)
}

// Len returns the number of nodes under n, n included.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}

	return 1 + n.Left.Len() + n.Right.Len()
}

// Height returns the number of nodes on the longest path down from n.
func (n *Node) Height() int {
	if n == nil {
		return 0
	}

	return 1 + max(n.Left.Height(), n.Right.Height())
}

// BlackHeight counts the black nodes below n on its leftmost path, n itself
// excluded. On a valid tree every path gives the same count.
func (n *Node) BlackHeight() int {
	height := 0

	if n == nil {
		return height
	}

	for node := n.Left; node != nil; node = node.Left {
		if node.Color == arena.Black {
			height++
		}
	}

	return height
}

// Validate checks the red-black invariants treating n as the root.
func (n *Node) Validate() error {
	_, err := nodeShape(n.Len()).validate(n)

	return err
}

func nodeShape(limit int) shape[*Node] {
	return shape[*Node]{
		none:   nil,
		left:   func(n *Node) *Node { return n.Left },
		right:  func(n *Node) *Node { return n.Right },
		parent: func(n *Node) *Node { return n.Parent },
		color:  func(n *Node) arena.Color { return n.Color },
		key:    func(n *Node) int32 { return n.Key },
		label: func(n *Node) string {
			return fmt.Sprintf("key %d", n.Key)
		},
		limit: limit,
	}
}

// View is the serializable form of a Node, without parent references.
type View struct {
	Key   int32  `json:"key"             yaml:"key"`
	Color string `json:"color"           yaml:"color"`
	Left  *View  `json:"left,omitempty"  yaml:"left,omitempty"`
	Right *View  `json:"right,omitempty" yaml:"right,omitempty"`
}

// View converts n and its subtree into a View.
func (n *Node) View() *View {
	if n == nil {
		return nil
	}

	return &View{
		Key:   n.Key,
		Color: n.Color.String(),
		Left:  n.Left.View(),
		Right: n.Right.View(),
	}
}

// MarshalJSON encodes the node's View.
func (n *Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.View())
	if err != nil {
		return nil, fmt.Errorf("marshal node: %w", err)
	}

	return data, nil
}

// MarshalYAML encodes the node's View.
func (n *Node) MarshalYAML() (any, error) {
	return n.View(), nil
}

// FromView rebuilds an ownership tree from a decoded View, restoring parent
// references. A nil view yields a nil node.
func FromView(view *View) (*Node, error) {
	return fromView(view, nil)
}

func fromView(view *View, parent *Node) (*Node, error) {
	if view == nil {
		return nil, nil //nolint:nilnil // an absent child is not an error.
	}

	color, ok := arena.ParseColor(view.Color)
	if !ok {
		return nil, fmt.Errorf("%w: key %d has color %q", ErrBadView, view.Key, view.Color)
	}

	node := &Node{Key: view.Key, Color: color, Parent: parent}

	var err error

	node.Left, err = fromView(view.Left, node)
	if err != nil {
		return nil, err
	}

	node.Right, err = fromView(view.Right, node)
	if err != nil {
		return nil, err
	}

	return node, nil
}
