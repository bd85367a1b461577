package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/report"
)

func newShowCommand(global *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Render a tree saved with run --save",
		Long: `Load a saved tree, verify it and print it with its arena statistics.
The statistics table is printed for the tree format only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, global, args[0], format)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(report.FormatTree), "output format: tree, json, yaml")

	return cmd
}

func runShow(cmd *cobra.Command, global *globalOptions, path, formatName string) error {
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	sess, err := global.openSession(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer sess.close()

	tree, err := rbtree.Load(path, sess.treeOptions()...)
	if err != nil {
		return violation(err)
	}

	err = report.WriteSnapshot(sess.out, tree.Snapshot(), format, sess.printer)
	if err != nil {
		return err
	}

	if format != report.FormatTree || sess.quiet {
		return nil
	}

	return report.WriteSummary(sess.out, report.Summarize(tree))
}
