package workload

import (
	"slices"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Oracle is a sorted multiset of keys that mirrors what a tree should hold.
type Oracle struct {
	keys []int32
}

// NewOracle returns an oracle seeded with keys, in any order.
func NewOracle(keys ...int32) *Oracle {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	return &Oracle{keys: sorted}
}

// Insert adds key after any equal keys.
func (o *Oracle) Insert(key int32) {
	idx, _ := slices.BinarySearch(o.keys, key)
	o.keys = slices.Insert(o.keys, idx, key)
}

// Delete removes one occurrence of key and reports whether there was one.
func (o *Oracle) Delete(key int32) bool {
	idx, found := slices.BinarySearch(o.keys, key)
	if !found {
		return false
	}

	o.keys = slices.Delete(o.keys, idx, idx+1)

	return true
}

// Len returns the number of keys held.
func (o *Oracle) Len() int {
	return len(o.keys)
}

// Keys returns the keys in ascending order. The slice must not be modified.
func (o *Oracle) Keys() []int32 {
	return o.keys
}

// DiffKeys renders a line diff between two key sequences, one key per line,
// with "-" marking keys only in want and "+" keys only in got. Runs of equal
// keys are collapsed to a count.
// It returns "" when the sequences are equal.
func DiffKeys(want, got []int32) string {
	if slices.Equal(want, got) {
		return ""
	}

	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(keyLines(want), keyLines(got))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	var out strings.Builder

	for _, edit := range diffs {
		var prefix string

		switch edit.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
			out.WriteString("  (" + strconv.Itoa(strings.Count(edit.Text, "\n")) + " equal)\n")

			continue
		}

		for line := range strings.SplitSeq(strings.TrimSuffix(edit.Text, "\n"), "\n") {
			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	return out.String()
}

func keyLines(keys []int32) string {
	var out strings.Builder

	for _, key := range keys {
		out.WriteString(strconv.FormatInt(int64(key), 10))
		out.WriteByte('\n')
	}

	return out.String()
}
