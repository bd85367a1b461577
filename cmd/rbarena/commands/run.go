package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/report"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

// ErrBadOp reports an operation list that cannot be parsed.
var ErrBadOp = errors.New("bad operation")

const commentPrefix = "#"

// treeOp is one parsed insert or delete.
type treeOp struct {
	op  workload.Op
	key int32
}

// parseOps parses words such as "insert 10 20 delete 10". Each verb applies
// to the keys that follow it until the next verb.
func parseOps(words []string) ([]treeOp, error) {
	var (
		ops     []treeOp
		current workload.Op
		pending bool
	)

	for _, word := range words {
		if verb, ok := parseVerb(word); ok {
			if pending {
				return nil, fmt.Errorf("%w: %s without keys", ErrBadOp, current)
			}

			current, pending = verb, true

			continue
		}

		if current == "" {
			return nil, fmt.Errorf("%w: key %q before insert or delete", ErrBadOp, word)
		}

		key, err := strconv.ParseInt(word, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q is not a 32-bit integer", ErrBadOp, word)
		}

		ops = append(ops, treeOp{op: current, key: int32(key)})
		pending = false
	}

	if pending {
		return nil, fmt.Errorf("%w: %s without keys", ErrBadOp, current)
	}

	return ops, nil
}

func parseVerb(word string) (workload.Op, bool) {
	switch strings.ToLower(word) {
	case string(workload.OpInsert), "ins", "i":
		return workload.OpInsert, true
	case string(workload.OpDelete), "del", "d":
		return workload.OpDelete, true
	default:
		return "", false
	}
}

// readOpWords splits an ops file into words. Text after "#" is ignored.
func readOpWords(r io.Reader) ([]string, error) {
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), commentPrefix)
		words = append(words, strings.Fields(line)...)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}

	return words, nil
}

type runOptions struct {
	global   *globalOptions
	file     string
	from     string
	save     string
	format   string
	noVerify bool
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{global: global}

	cmd := &cobra.Command{
		Use:   "run [insert|delete keys...]...",
		Short: "Apply insert/delete operations and print the tree",
		Long: `Apply a sequence of operations to a tree and print the result.

Examples:
  rbarena run insert 10 20 30 delete 20
  rbarena run --file ops.txt --format json
  rbarena run --from tree.rba insert 7 --save tree.rba
  rbarena run -- insert -5 3`,
		RunE: opts.run,
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read operations from file ('-' for stdin), one or more per line")
	cmd.Flags().StringVar(&opts.from, "from", "", "start from a tree saved with --save")
	cmd.Flags().StringVar(&opts.save, "save", "", "save the resulting tree to this path")
	cmd.Flags().StringVar(&opts.format, "format", string(report.FormatTree), "output format: tree, json, yaml")
	cmd.Flags().BoolVar(&opts.noVerify, "no-verify", false, "skip the invariant check after the last operation")

	return cmd
}

func (ro *runOptions) run(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(ro.format)
	if err != nil {
		return err
	}

	words := args

	if ro.file != "" {
		fileWords, readErr := ro.readFile(cmd.InOrStdin())
		if readErr != nil {
			return readErr
		}

		words = append(fileWords, args...)
	}

	ops, err := parseOps(words)
	if err != nil {
		return err
	}

	sess, err := ro.global.openSession(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer sess.close()

	tree, err := ro.openTree(sess)
	if err != nil {
		return err
	}

	applyOps(sess.logger(), tree, ops)

	if !ro.noVerify {
		err = violation(tree.Check())
		if err != nil {
			return err
		}
	}

	err = report.WriteSnapshot(sess.out, tree.Snapshot(), format, sess.printer)
	if err != nil {
		return err
	}

	if ro.save == "" {
		return nil
	}

	err = tree.Save(ro.save)
	if err != nil {
		return err
	}

	sess.logger().Info("tree saved", "path", ro.save, "tree.nodes", tree.Len())

	return nil
}

func (ro *runOptions) readFile(stdin io.Reader) ([]string, error) {
	if ro.file == "-" {
		return readOpWords(stdin)
	}

	file, err := os.Open(ro.file)
	if err != nil {
		return nil, fmt.Errorf("open operations file: %w", err)
	}
	defer file.Close()

	return readOpWords(file)
}

func (ro *runOptions) openTree(sess *session) (*rbtree.RBTree, error) {
	if ro.from == "" {
		return sess.newTree(), nil
	}

	tree, err := rbtree.Load(ro.from, sess.treeOptions()...)
	if err != nil {
		return nil, violation(err)
	}

	return tree, nil
}

func applyOps(logger *slog.Logger, tree *rbtree.RBTree, ops []treeOp) {
	for _, op := range ops {
		switch op.op {
		case workload.OpInsert:
			tree.Insert(op.key)
			logger.Debug("insert", observability.AttrTreeKey, op.key, "tree.nodes", tree.Len())
		case workload.OpDelete:
			if !tree.Delete(op.key) {
				logger.Warn("delete: key not found", observability.AttrTreeKey, op.key)

				continue
			}

			logger.Debug("delete", observability.AttrTreeKey, op.key, "tree.nodes", tree.Len())
		}
	}
}
