package rbtree //nolint:testpackage // tests corrupt arena records and call rotate directly.

import (
	"bytes"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
)

// oracle is a sorted multiset of keys.
type oracle struct {
	keys []int32
}

func (o *oracle) insert(key int32) {
	idx, _ := slices.BinarySearch(o.keys, key)
	o.keys = slices.Insert(o.keys, idx, key)
}

func (o *oracle) delete(key int32) bool {
	idx, found := slices.BinarySearch(o.keys, key)
	if !found {
		return false
	}

	o.keys = slices.Delete(o.keys, idx, idx+1)

	return true
}

func requireValid(tb testing.TB, tree *RBTree) {
	tb.Helper()

	require.NoError(tb, tree.Check())
	require.NoError(tb, tree.Snapshot().Validate())
}

func insertAll(tree *RBTree, keys ...int32) {
	for _, key := range keys {
		tree.Insert(key)
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	tree := New()

	assert.Equal(t, 0, tree.Len())
	assert.Equal(t, 0, tree.Height())
	assert.Nil(t, tree.Snapshot())
	assert.False(t, tree.Contains(1))
	assert.False(t, tree.Delete(1))
	requireValid(t, tree)
}

func TestInsert_RotatesAtRoot(t *testing.T) {
	t.Parallel()

	tree := New()

	tree.Insert(10)
	root := tree.Snapshot()
	require.NotNil(t, root)
	assert.Equal(t, int32(10), root.Key)
	assert.Equal(t, arena.Black, root.Color)

	tree.Insert(20)
	root = tree.Snapshot()
	assert.Equal(t, int32(10), root.Key)
	assert.Equal(t, arena.Black, root.Color)
	require.NotNil(t, root.Right)
	assert.Equal(t, int32(20), root.Right.Key)
	assert.Equal(t, arena.Red, root.Right.Color)
	assert.Nil(t, root.Left)

	tree.Insert(30)
	root = tree.Snapshot()
	assert.Equal(t, int32(20), root.Key)
	assert.Equal(t, arena.Black, root.Color)
	require.NotNil(t, root.Left)
	require.NotNil(t, root.Right)
	assert.Equal(t, int32(10), root.Left.Key)
	assert.Equal(t, arena.Red, root.Left.Color)
	assert.Equal(t, int32(30), root.Right.Key)
	assert.Equal(t, arena.Red, root.Right.Color)
	assert.Same(t, root, root.Left.Parent)
	requireValid(t, tree)

	require.True(t, tree.Delete(20))
	requireValid(t, tree)

	root = tree.Snapshot()
	assert.Equal(t, arena.Black, root.Color)
	assert.Equal(t, []int32{10, 30}, root.InOrder())
	assert.Equal(t, 2, tree.Len())
}

func TestInsert_ZigZag(t *testing.T) {
	t.Parallel()

	for _, keys := range [][]int32{{30, 10, 20}, {10, 30, 20}} {
		tree := New()
		insertAll(tree, keys...)

		root := tree.Snapshot()
		assert.Equal(t, int32(20), root.Key)
		assert.Equal(t, arena.Red, root.Left.Color)
		assert.Equal(t, arena.Red, root.Right.Color)
		requireValid(t, tree)
	}
}

func TestDelete_AbsentKeyLeavesTree(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 5, 1, 9)

	before := tree.Snapshot().InOrder()
	stats := tree.Stats()

	assert.False(t, tree.Delete(4))
	assert.Equal(t, before, tree.Snapshot().InOrder())
	assert.Equal(t, stats, tree.Stats())
	assert.Equal(t, 3, tree.Len())
}

func TestDelete_BlackLeafWithoutChildren(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 10, 20, 30, 40)
	require.True(t, tree.Delete(40))

	root := tree.Snapshot()
	require.Equal(t, arena.Black, root.Left.Color)
	require.Equal(t, arena.Black, root.Right.Color)

	// 10 is a black leaf: its empty slot must absorb the missing black.
	require.True(t, tree.Delete(10))
	requireValid(t, tree)

	root = tree.Snapshot()
	assert.Equal(t, int32(20), root.Key)
	assert.Equal(t, arena.Black, root.Color)
	assert.Nil(t, root.Left)
	require.NotNil(t, root.Right)
	assert.Equal(t, int32(30), root.Right.Key)
	assert.Equal(t, arena.Red, root.Right.Color)
}

func TestDelete_UntilEmpty(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 3, 1, 2)

	for _, key := range []int32{2, 1, 3} {
		require.True(t, tree.Delete(key))
		requireValid(t, tree)
	}

	assert.Nil(t, tree.Snapshot())
	assert.Equal(t, 0, tree.Stats().Live)
}

func TestDelete_FreedHandleIsReused(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 1, 2, 3, 4)

	slots := tree.Stats().Slots

	require.True(t, tree.Delete(2))
	tree.Insert(7)

	assert.Equal(t, slots, tree.Stats().Slots)
	assert.Equal(t, []int32{1, 3, 4, 7}, tree.Snapshot().InOrder())
	requireValid(t, tree)
}

func TestFiftyRandomKeysDeleteEveryThird(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(50))
	seen := map[int32]bool{}
	keys := make([]int32, 0, 50)

	for len(keys) < 50 {
		key := rng.Int31n(10000) - 5000
		if seen[key] {
			continue
		}

		seen[key] = true
		keys = append(keys, key)
	}

	tree := New()
	insertAll(tree, keys...)
	requireValid(t, tree)

	var survivors []int32

	for idx, key := range keys {
		if idx%3 == 2 {
			require.True(t, tree.Delete(key))
			requireValid(t, tree)

			continue
		}

		survivors = append(survivors, key)
	}

	slices.Sort(survivors)
	assert.Equal(t, survivors, tree.Snapshot().InOrder())
	assert.Equal(t, len(survivors), tree.Len())
}

func TestDuplicates(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 5, 5, 3, 5, 7)
	requireValid(t, tree)
	assert.Equal(t, []int32{3, 5, 5, 5, 7}, tree.Snapshot().InOrder())

	for range 3 {
		require.True(t, tree.Delete(5))
		requireValid(t, tree)
	}

	assert.False(t, tree.Delete(5))
	assert.Equal(t, []int32{3, 7}, tree.Snapshot().InOrder())
}

func TestDuplicates_RotationLiftsTwin(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 5, 5, 5)
	requireValid(t, tree)

	// The left rotation at the root puts the first 5 in the left subtree of
	// the second one.
	rootIdx := tree.root
	assert.Equal(t, int32(5), tree.arena.Key(tree.arena.Left(rootIdx)))
	assert.Equal(t, int32(5), tree.arena.Key(tree.arena.Right(rootIdx)))

	runs := New()
	for range 8 {
		runs.Insert(1)
		requireValid(t, runs)
	}

	assert.Equal(t, []int32{1, 1, 1, 1, 1, 1, 1, 1}, runs.Snapshot().InOrder())

	for remaining := 7; remaining >= 0; remaining-- {
		require.True(t, runs.Delete(1))
		requireValid(t, runs)
		assert.Equal(t, remaining, runs.Len())
	}
}

func TestRandomized(t *testing.T) {
	t.Parallel()

	for _, keyRange := range []int32{16, 1000, math.MaxInt32} {
		rng := rand.New(rand.NewSource(int64(keyRange)))
		tree := New(WithArenaOptions(arena.WithInitialCapacity(4)))
		orc := &oracle{}

		for op := range 3000 {
			key := rng.Int31n(keyRange)
			if rng.Intn(3) == 0 && len(orc.keys) > 0 {
				key = orc.keys[rng.Intn(len(orc.keys))]
			}

			if rng.Intn(5) < 3 {
				tree.Insert(key)
				orc.insert(key)
			} else {
				require.Equal(t, orc.delete(key), tree.Delete(key), "delete %d", key)
			}

			require.NoError(t, tree.Check(), "op %d", op)
		}

		assert.Equal(t, orc.keys, tree.Snapshot().InOrder())
		assert.Equal(t, len(orc.keys), tree.Len())
	}
}

func TestHeightIsLogarithmic(t *testing.T) {
	t.Parallel()

	tree := New(WithArenaOptions(arena.WithInitialCapacity(16)))

	const count = 5000

	for key := range int32(count) {
		tree.Insert(key)
	}

	requireValid(t, tree)
	assert.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(count+1))
	assert.True(t, tree.Contains(4999))
	assert.False(t, tree.Contains(count))
	assert.Equal(t, tree.Height(), tree.Snapshot().Height())
}

func TestRotate(t *testing.T) {
	t.Parallel()

	tree := New()
	insertAll(tree, 20, 10, 30)

	rootIdx := tree.root
	rightIdx := tree.arena.Right(rootIdx)

	tree.rotate(rootIdx, left)
	assert.Equal(t, rightIdx, tree.root)
	assert.Equal(t, rootIdx, tree.arena.Left(rightIdx))
	assert.Equal(t, rightIdx, tree.arena.Parent(rootIdx))
	assert.Equal(t, arena.None, tree.arena.Parent(rightIdx))

	tree.rotate(rightIdx, right)
	assert.Equal(t, rootIdx, tree.root)
	assert.Equal(t, []int32{10, 20, 30}, tree.Snapshot().InOrder())

	// Rotating toward a missing child leaves the tree alone.
	leaf := tree.arena.Left(rootIdx)
	tree.rotate(leaf, left)
	tree.rotate(leaf, right)
	requireValid(t, tree)
}

func TestCheck_DetectsCorruption(t *testing.T) {
	t.Parallel()

	build := func() (*RBTree, arena.Handle, arena.Handle) {
		tree := New()
		insertAll(tree, 10, 20, 30)

		return tree, tree.root, tree.arena.Left(tree.root)
	}

	t.Run("root_color", func(t *testing.T) {
		t.Parallel()

		tree, root, _ := build()
		tree.arena.Write(root, arena.Set().Color(arena.Red))
		require.ErrorIs(t, tree.Check(), ErrRootColor)
	})

	t.Run("order", func(t *testing.T) {
		t.Parallel()

		tree, _, leftIdx := build()
		tree.arena.Write(leftIdx, arena.Set().Key(25))
		require.ErrorIs(t, tree.Check(), ErrOrder)
	})

	t.Run("parent_link", func(t *testing.T) {
		t.Parallel()

		tree, _, leftIdx := build()
		tree.arena.Write(leftIdx, arena.Set().Parent(arena.None))
		require.ErrorIs(t, tree.Check(), ErrLinks)
	})

	t.Run("dangling_child", func(t *testing.T) {
		t.Parallel()

		tree, root, _ := build()
		tree.arena.Write(root, arena.Set().Left(99))

		err := tree.Check()
		require.ErrorIs(t, err, ErrLinks)
		require.ErrorIs(t, err, arena.ErrInvalidHandle)
	})

	t.Run("red_red", func(t *testing.T) {
		t.Parallel()

		tree, root, leftIdx := build()
		insertAll(tree, 5)
		tree.arena.Write(leftIdx, arena.Set().Color(arena.Red))
		tree.arena.Write(tree.arena.Right(root), arena.Set().Color(arena.Red))
		require.ErrorIs(t, tree.Check(), ErrRedRed)
	})

	t.Run("black_height", func(t *testing.T) {
		t.Parallel()

		tree, _, leftIdx := build()
		tree.arena.Write(leftIdx, arena.Set().Color(arena.Black))
		require.ErrorIs(t, tree.Check(), ErrBlackHeight)
	})

	t.Run("count", func(t *testing.T) {
		t.Parallel()

		tree, _, _ := build()
		tree.count++
		require.ErrorIs(t, tree.Check(), ErrCount)
	})
}

func TestWithLogger_ReportsGrowth(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tree := New(WithLogger(logger), WithArenaOptions(arena.WithInitialCapacity(2)))
	insertAll(tree, 1, 2, 3)

	assert.Contains(t, buf.String(), "arena grown")
	assert.Equal(t, 1, tree.Stats().Grows)
}
