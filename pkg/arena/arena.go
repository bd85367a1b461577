// Package arena provides a flat, growable store of fixed-stride node records
// addressed by integer handles, with free-list reuse of released slots.
package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/rbarena/pkg/safeconv"
)

// DefaultInitialCapacity is the record capacity of a new arena.
const DefaultInitialCapacity = 1024

// maxRecords is the number of addressable slots; handles are non-negative int32.
const maxRecords = math.MaxInt32

var (
	// ErrInvalidHandle reports access through a handle that was never allocated,
	// was freed, or is out of range. It is raised as a panic.
	ErrInvalidHandle = errors.New("arena: invalid handle")

	// ErrExhausted reports that the arena cannot grow any further. It is raised
	// as a panic from Allocate and returned as an error from ReadFrom.
	ErrExhausted = errors.New("arena: exhausted")

	// ErrHibernated reports use of a hibernated arena. It is raised as a panic.
	ErrHibernated = errors.New("arena: hibernated")
)

// Arena owns a contiguous buffer of node records.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	buf      []byte
	released []bool
	free     []Handle
	hib      *hibernated

	// HibernationThreshold is the minimum number of used slots for Hibernate
	// to compress anything. Smaller arenas stay awake.
	HibernationThreshold int

	initial  int
	capacity int
	size     int
	maxBytes uint64
	grows    int
}

// Option configures an Arena.
type Option func(*Arena)

// WithInitialCapacity sets the starting record capacity.
// Non-positive values select DefaultInitialCapacity.
func WithInitialCapacity(records int) Option {
	return func(a *Arena) {
		if records > 0 {
			a.initial = records
		}
	}
}

// WithMaxBytes bounds the size of the backing buffer. Zero means unbounded.
func WithMaxBytes(limit uint64) Option {
	return func(a *Arena) {
		a.maxBytes = limit
	}
}

// WithHibernationThreshold sets HibernationThreshold.
func WithHibernationThreshold(records int) Option {
	return func(a *Arena) {
		a.HibernationThreshold = records
	}
}

// New creates an arena with its initial capacity already reserved.
func New(opts ...Option) *Arena {
	arena := &Arena{initial: DefaultInitialCapacity}

	for _, opt := range opts {
		opt(arena)
	}

	if arena.maxBytes > 0 {
		limit := safeconv.MustUint64ToInt(arena.maxBytes / RecordBytes)
		arena.initial = min(arena.initial, limit)
	}

	arena.capacity = arena.initial
	arena.buf = make([]byte, arena.capacity*RecordBytes)

	return arena
}

// Allocate returns a handle for a new record initialized from p. Unset handle
// fields default to None, the color to Black and the key to zero.
//
// Released handles are reused last-in first-out before the store grows.
func (a *Arena) Allocate(p Patch) Handle {
	a.assertAwake()

	var handle Handle

	if n := len(a.free); n > 0 {
		handle = a.free[n-1]
		a.free = a.free[:n-1]
		a.released[handle] = false
	} else {
		a.ensureCapacity(a.size + 1)
		handle = Handle(safeconv.MustIntToInt32(a.size))
		a.size++
		a.released = append(a.released, false)
	}

	rec := a.record(handle)
	encodeRecord(rec, emptyRecord)
	p.apply(rec)

	return handle
}

// Free returns h to the free list. The record bytes are left as they are and
// every other handle stays valid.
func (a *Arena) Free(h Handle) {
	a.check(h)

	a.released[h] = true
	a.free = append(a.free, h)
}

// Read decodes the full record at h.
func (a *Arena) Read(h Handle) Record {
	return decodeRecord(a.record(a.check(h)))
}

// Write applies p to the record at h.
func (a *Arena) Write(h Handle, p Patch) {
	p.apply(a.record(a.check(h)))
}

// Left returns the left child handle of h.
func (a *Arena) Left(h Handle) Handle {
	return handleAt(a.record(a.check(h))[offLeft:])
}

// Right returns the right child handle of h.
func (a *Arena) Right(h Handle) Handle {
	return handleAt(a.record(a.check(h))[offRight:])
}

// Parent returns the parent handle of h.
func (a *Arena) Parent(h Handle) Handle {
	return handleAt(a.record(a.check(h))[offParent:])
}

// Color returns the color of h.
func (a *Arena) Color(h Handle) Color {
	return Color(a.record(a.check(h))[offColor])
}

// Key returns the key of h.
func (a *Arena) Key(h Handle) int32 {
	return keyAt(a.record(a.check(h)))
}

// Valid reports whether h currently addresses a live record.
func (a *Arena) Valid(h Handle) bool {
	if a.hib != nil {
		return false
	}

	return h >= 0 && int(h) < a.size && !a.released[h]
}

// Len returns the number of live records.
func (a *Arena) Len() int {
	if a.hib != nil {
		return a.hib.size - a.hib.freeLen
	}

	return a.size - len(a.free)
}

// Capacity returns the number of records the buffer can hold without growing.
func (a *Arena) Capacity() int {
	return a.capacity
}

// Stats describes the arena's occupancy.
type Stats struct {
	// Live is the number of allocated, not freed, records.
	Live int
	// Slots is the number of slots ever handed out (the high-water mark).
	Slots int
	// Capacity is the number of records the buffer holds before growing.
	Capacity int
	// Free is the length of the free list.
	Free int
	// Grows counts how many times the buffer has been enlarged.
	Grows int
	// ReservedBytes is the size of the backing buffer.
	ReservedBytes uint64
	// CompressedBytes is the size of the hibernated payload (zero when awake).
	CompressedBytes int
	// Hibernated reports whether the arena is currently hibernated.
	Hibernated bool
}

// Stats returns a snapshot of the arena's occupancy.
func (a *Arena) Stats() Stats {
	stats := Stats{
		Capacity:      a.capacity,
		Grows:         a.grows,
		ReservedBytes: uint64(a.capacity) * RecordBytes,
	}

	if a.hib != nil {
		stats.Live = a.hib.size - a.hib.freeLen
		stats.Slots = a.hib.size
		stats.Free = a.hib.freeLen
		stats.CompressedBytes = a.hib.compressedLen()
		stats.Hibernated = true

		return stats
	}

	stats.Live = a.size - len(a.free)
	stats.Slots = a.size
	stats.Free = len(a.free)

	return stats
}

func (a *Arena) ensureCapacity(next int) {
	if next <= a.capacity {
		return
	}

	if next > maxRecords {
		panic(fmt.Errorf("%w: %d records exceed the handle space", ErrExhausted, next))
	}

	newCapacity := max(a.capacity, 1)
	for newCapacity < next {
		newCapacity <<= 1
	}

	newCapacity = min(newCapacity, maxRecords)

	if a.maxBytes > 0 && uint64(newCapacity)*RecordBytes > a.maxBytes {
		newCapacity = safeconv.MustUint64ToInt(a.maxBytes / RecordBytes)
		if newCapacity < next {
			panic(fmt.Errorf("%w: %d records exceed the %d byte limit", ErrExhausted, next, a.maxBytes))
		}
	}

	grown := make([]byte, newCapacity*RecordBytes)
	copy(grown, a.buf[:a.size*RecordBytes])

	a.buf = grown
	a.capacity = newCapacity
	a.grows++
}

func (a *Arena) record(h Handle) []byte {
	off := int(h) * RecordBytes

	return a.buf[off : off+RecordBytes]
}

func (a *Arena) check(h Handle) Handle {
	a.assertAwake()

	if h < 0 || int(h) >= a.size {
		panic(fmt.Errorf("%w: %d outside [0, %d)", ErrInvalidHandle, h, a.size))
	}

	if a.released[h] {
		panic(fmt.Errorf("%w: %d was freed", ErrInvalidHandle, h))
	}

	return h
}

func (a *Arena) assertAwake() {
	if a.hib != nil {
		panic(ErrHibernated)
	}
}
