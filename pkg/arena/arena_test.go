package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
)

func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered, "expected a panic")

		err, ok := recovered.(error)
		require.True(t, ok, "panic value %v is not an error", recovered)
		assert.ErrorIs(t, err, target)
	}()

	fn()
}

func TestAllocate_Defaults(t *testing.T) {
	t.Parallel()

	store := arena.New()
	handle := store.Allocate(arena.Set().Key(42))

	assert.Equal(t, arena.Handle(0), handle)
	assert.Equal(t, arena.Record{
		Left:   arena.None,
		Right:  arena.None,
		Parent: arena.None,
		Color:  arena.Black,
		Key:    42,
	}, store.Read(handle))
	assert.Equal(t, 1, store.Len())
}

func TestAllocate_AllFields(t *testing.T) {
	t.Parallel()

	store := arena.New()
	first := store.Allocate(arena.Set())
	second := store.Allocate(arena.Set().Left(first).Right(first).Parent(first).Color(arena.Red).Key(-7))

	rec := store.Read(second)
	assert.Equal(t, first, rec.Left)
	assert.Equal(t, first, rec.Right)
	assert.Equal(t, first, rec.Parent)
	assert.Equal(t, arena.Red, rec.Color)
	assert.Equal(t, int32(-7), rec.Key)

	assert.Equal(t, first, store.Left(second))
	assert.Equal(t, first, store.Right(second))
	assert.Equal(t, first, store.Parent(second))
	assert.Equal(t, arena.Red, store.Color(second))
	assert.Equal(t, int32(-7), store.Key(second))
}

func TestWrite_PartialLeavesOtherFields(t *testing.T) {
	t.Parallel()

	store := arena.New()
	parent := store.Allocate(arena.Set().Key(1))
	child := store.Allocate(arena.Set().Key(2).Color(arena.Red).Parent(parent))

	store.Write(child, arena.Set().Left(parent))

	rec := store.Read(child)
	assert.Equal(t, parent, rec.Left)
	assert.Equal(t, arena.None, rec.Right)
	assert.Equal(t, parent, rec.Parent)
	assert.Equal(t, arena.Red, rec.Color)
	assert.Equal(t, int32(2), rec.Key)

	store.Write(child, arena.Set())
	assert.Equal(t, rec, store.Read(child))
}

func TestWrite_ExtremeKeys(t *testing.T) {
	t.Parallel()

	store := arena.New()
	low := store.Allocate(arena.Set().Key(-2147483648))
	high := store.Allocate(arena.Set().Key(2147483647))

	assert.Equal(t, int32(-2147483648), store.Key(low))
	assert.Equal(t, int32(2147483647), store.Key(high))
}

func TestFree_ReusesLastFreedFirst(t *testing.T) {
	t.Parallel()

	store := arena.New()
	handles := make([]arena.Handle, 4)

	for idx := range handles {
		handles[idx] = store.Allocate(arena.Set().Key(int32(idx)))
	}

	store.Free(handles[1])
	store.Free(handles[3])
	assert.Equal(t, 2, store.Len())

	assert.Equal(t, handles[3], store.Allocate(arena.Set().Key(30)))
	assert.Equal(t, handles[1], store.Allocate(arena.Set().Key(10)))
	assert.Equal(t, arena.Handle(4), store.Allocate(arena.Set().Key(40)))

	// Unrelated handles keep their contents.
	assert.Equal(t, int32(0), store.Key(handles[0]))
	assert.Equal(t, int32(2), store.Key(handles[2]))
	assert.Equal(t, int32(10), store.Key(handles[1]))
}

func TestFree_ReallocatedRecordIsReinitialized(t *testing.T) {
	t.Parallel()

	store := arena.New()
	handle := store.Allocate(arena.Set().Key(5).Color(arena.Red).Left(0))
	store.Free(handle)

	again := store.Allocate(arena.Set().Key(6))
	require.Equal(t, handle, again)
	assert.Equal(t, arena.None, store.Left(again))
	assert.Equal(t, arena.Black, store.Color(again))
}

func TestInvalidHandlesPanic(t *testing.T) {
	t.Parallel()

	store := arena.New()
	handle := store.Allocate(arena.Set())

	requirePanicsWith(t, arena.ErrInvalidHandle, func() { store.Read(arena.None) })
	requirePanicsWith(t, arena.ErrInvalidHandle, func() { store.Read(handle + 1) })
	requirePanicsWith(t, arena.ErrInvalidHandle, func() { store.Write(7, arena.Set().Key(1)) })

	store.Free(handle)

	requirePanicsWith(t, arena.ErrInvalidHandle, func() { store.Key(handle) })
	requirePanicsWith(t, arena.ErrInvalidHandle, func() { store.Free(handle) })
	assert.False(t, store.Valid(handle))
}

func TestGrowth_DoublesAndPreservesRecords(t *testing.T) {
	t.Parallel()

	store := arena.New(arena.WithInitialCapacity(4))
	assert.Equal(t, 4, store.Capacity())

	handles := make([]arena.Handle, 9)
	for idx := range handles {
		handles[idx] = store.Allocate(arena.Set().Key(int32(idx * 3)).Parent(arena.Handle(idx - 1)))
	}

	assert.Equal(t, 16, store.Capacity())

	stats := store.Stats()
	assert.Equal(t, 2, stats.Grows)
	assert.Equal(t, 9, stats.Live)
	assert.Equal(t, 9, stats.Slots)
	assert.Equal(t, uint64(16*arena.RecordBytes), stats.ReservedBytes)

	for idx, handle := range handles {
		assert.Equal(t, int32(idx*3), store.Key(handle))
		assert.Equal(t, arena.Handle(idx-1), store.Parent(handle))
	}
}

func TestGrowth_DefaultCapacity(t *testing.T) {
	t.Parallel()

	store := arena.New()
	assert.Equal(t, arena.DefaultInitialCapacity, store.Capacity())

	for range arena.DefaultInitialCapacity + 1 {
		store.Allocate(arena.Set())
	}

	assert.Equal(t, 2*arena.DefaultInitialCapacity, store.Capacity())
}

func TestMaxBytes_Exhausted(t *testing.T) {
	t.Parallel()

	store := arena.New(arena.WithInitialCapacity(2), arena.WithMaxBytes(5*arena.RecordBytes))

	for range 5 {
		store.Allocate(arena.Set())
	}

	assert.Equal(t, 5, store.Capacity())

	requirePanicsWith(t, arena.ErrExhausted, func() { store.Allocate(arena.Set()) })

	// Freed slots are still reusable at the limit.
	store.Free(3)
	assert.Equal(t, arena.Handle(3), store.Allocate(arena.Set()))
}

func TestColorStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RED", arena.Red.String())
	assert.Equal(t, "BLACK", arena.Black.String())

	color, ok := arena.ParseColor("RED")
	assert.True(t, ok)
	assert.Equal(t, arena.Red, color)

	_, ok = arena.ParseColor("green")
	assert.False(t, ok)
}
