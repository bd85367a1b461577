package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/report"
)

func newCheckCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <snapshot.json|->",
		Short: "Validate a JSON snapshot against the schema and the invariants",
		Long: `Validate a JSON tree snapshot, as written by run --format json.

The document is first checked against the embedded JSON schema, then rebuilt
and checked for search order, a black root, no red node with a red child and
equal black height on every path. Exits with status 2 on any violation.

Examples:
  rbarena check tree.json
  rbarena run insert 3 1 2 --format json | rbarena check -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, global, args[0])
		},
	}
}

func runCheck(cmd *cobra.Command, global *globalOptions, input string) error {
	data, label, err := readInput(cmd.InOrStdin(), input)
	if err != nil {
		return err
	}

	sess, err := global.openSession(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer sess.close()

	node, err := report.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	err = node.Validate()
	if err != nil {
		return fmt.Errorf("%s: %w", label, violation(err))
	}

	sess.logger().Debug("snapshot valid", "path", label, "tree.nodes", node.Len())
	sess.notef(color.FgGreen, "%s: valid red-black tree (nodes=%d height=%d black-height=%d)",
		label, node.Len(), node.Height(), node.BlackHeight())

	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}

		return data, "stdin", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read snapshot: %w", err)
	}

	return data, path, nil
}
