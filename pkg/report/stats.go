package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

// Summary describes a tree's shape and its arena.
type Summary struct {
	Nodes       int
	Height      int
	BlackHeight int
	Arena       arena.Stats
}

// Summarize collects a Summary from tree.
func Summarize(tree *rbtree.RBTree) Summary {
	return Summary{
		Nodes:       tree.Len(),
		Height:      tree.Height(),
		BlackHeight: tree.Snapshot().BlackHeight(),
		Arena:       tree.Stats(),
	}
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = true

	return tbl
}

func renderTable(w io.Writer, tbl table.Writer) error {
	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

// WriteSummary writes s as a two-column table.
func WriteSummary(w io.Writer, s Summary) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Nodes", humanize.Comma(int64(s.Nodes))},
		{"Height", s.Height},
		{"Black height", s.BlackHeight},
		{"Arena capacity", humanize.Comma(int64(s.Arena.Capacity))},
		{"Arena slots used", humanize.Comma(int64(s.Arena.Slots))},
		{"Free list", humanize.Comma(int64(s.Arena.Free))},
		{"Grows", s.Arena.Grows},
		{"Reserved", humanize.IBytes(s.Arena.ReservedBytes)},
	})

	if s.Arena.Hibernated {
		tbl.AppendRow(table.Row{"Compressed", humanize.IBytes(uint64(s.Arena.CompressedBytes))}) //nolint:gosec // length is never negative.
	}

	return renderTable(w, tbl)
}

// WriteResult writes a finished workload's totals and throughput.
func WriteResult(w io.Writer, res workload.Result) error {
	ops := res.Inserted + res.Deleted

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Inserted", humanize.Comma(int64(res.Inserted))},
		{"Deleted", humanize.Comma(int64(res.Deleted))},
		{"Invariant checks", humanize.Comma(int64(res.Checks))},
		{"Final height", res.Height},
		{"Elapsed", res.Elapsed.Round(time.Microsecond).String()},
		{"Throughput", throughput(ops, res.Elapsed)},
		{"Reserved", humanize.IBytes(res.Stats.ReservedBytes)},
	})

	return renderTable(w, tbl)
}

func throughput(ops int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}

	return humanize.Commaf(float64(int64(float64(ops)/elapsed.Seconds()))) + " ops/s"
}
