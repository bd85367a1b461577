// Package report renders trees, arena statistics and workload results for
// terminals and files.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// ErrUnknownFormat reports an output format name that is not supported.
var ErrUnknownFormat = errors.New("unknown output format")

// Format selects how a tree snapshot is written.
type Format string

// Output formats.
const (
	FormatTree Format = "tree"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const (
	jsonIndent = "  "
	yamlIndent = 2
)

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatTree, FormatJSON, FormatYAML}
}

// ParseFormat resolves a format name, ignoring case.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))

	for _, known := range Formats() {
		if format == known {
			return format, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// WriteSnapshot writes root in the given format. The tree format uses printer
// for node colors; a nil printer writes plain text.
func WriteSnapshot(w io.Writer, root *rbtree.Node, format Format, printer *TreePrinter) error {
	switch format {
	case FormatTree:
		if printer == nil {
			printer = NewTreePrinter(false)
		}

		return printer.Print(w, root)
	case FormatJSON:
		return writeJSON(w, root)
	case FormatYAML:
		return writeYAML(w, root)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeJSON(w io.Writer, root *rbtree.Node) error {
	data, err := json.MarshalIndent(root.View(), "", jsonIndent)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	data = append(data, '\n')

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, root *rbtree.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(yamlIndent)

	err := enc.Encode(root.View())
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("flush yaml: %w", err)
	}

	return nil
}
