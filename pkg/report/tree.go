package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

const (
	emptyTree = "(empty)"

	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "│   "
	indentLast = "    "

	markLeft  = "<"
	markRight = ">"
)

// TreePrinter draws a snapshot as an indented tree, one node per line.
// Left children are marked "<" and right children ">".
type TreePrinter struct {
	red      *color.Color
	black    *color.Color
	colorize bool
}

// NewTreePrinter creates a printer. With colorize, red nodes are drawn in
// red and black nodes in bold; otherwise each key carries an (R) or (B) tag.
func NewTreePrinter(colorize bool) *TreePrinter {
	printer := &TreePrinter{
		red:      color.New(color.FgRed),
		black:    color.New(color.Bold),
		colorize: colorize,
	}

	if colorize {
		printer.red.EnableColor()
		printer.black.EnableColor()
	} else {
		printer.red.DisableColor()
		printer.black.DisableColor()
	}

	return printer
}

// Print writes root and its subtree to w.
func (p *TreePrinter) Print(w io.Writer, root *rbtree.Node) error {
	_, err := io.WriteString(w, p.Sprint(root))
	if err != nil {
		return fmt.Errorf("write tree: %w", err)
	}

	return nil
}

// Sprint returns the drawing of root as a string.
func (p *TreePrinter) Sprint(root *rbtree.Node) string {
	if root == nil {
		return emptyTree + "\n"
	}

	var sb strings.Builder

	sb.WriteString(p.label(root))
	sb.WriteByte('\n')
	p.children(&sb, root, "")

	return sb.String()
}

func (p *TreePrinter) children(sb *strings.Builder, node *rbtree.Node, prefix string) {
	type branch struct {
		mark  string
		child *rbtree.Node
	}

	branches := make([]branch, 0, 2)

	if node.Left != nil {
		branches = append(branches, branch{markLeft, node.Left})
	}

	if node.Right != nil {
		branches = append(branches, branch{markRight, node.Right})
	}

	for idx, br := range branches {
		connector, indent := branchMid, indentMid
		if idx == len(branches)-1 {
			connector, indent = branchLast, indentLast
		}

		sb.WriteString(prefix)
		sb.WriteString(connector)
		sb.WriteString(br.mark)
		sb.WriteByte(' ')
		sb.WriteString(p.label(br.child))
		sb.WriteByte('\n')

		p.children(sb, br.child, prefix+indent)
	}
}

func (p *TreePrinter) label(node *rbtree.Node) string {
	key := fmt.Sprint(node.Key)

	if node.Color == arena.Red {
		if p.colorize {
			return p.red.Sprint(key)
		}

		return key + " (R)"
	}

	if p.colorize {
		return p.black.Sprint(key)
	}

	return key + " (B)"
}
