package arena

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Sumatoshi-tech/rbarena/pkg/safeconv"
)

var (
	// ErrCorrupt reports a hibernated payload that cannot be restored.
	ErrCorrupt = errors.New("arena: corrupt hibernation payload")

	// ErrNotHibernated is returned by WriteTo on an awake arena.
	ErrNotHibernated = errors.New("arena: serialization requires the hibernated state")
)

// payloadMagic prefixes a serialized arena.
var payloadMagic = [4]byte{'R', 'B', 'A', '1'}

type column struct {
	off   int
	width int
}

// Record fields are stored column by column so that similar bytes sit
// together, which compresses far better than the interleaved layout.
var columns = [...]column{
	{offLeft, handleBytes},
	{offRight, handleBytes},
	{offParent, handleBytes},
	{offColor, 1},
	{offKey, handleBytes},
}

const (
	sectionFree  = len(columns)
	sectionCount = len(columns) + 1
)

type hibernated struct {
	sections [sectionCount][]byte
	size     int
	freeLen  int
}

func (h *hibernated) compressedLen() int {
	total := 0
	for _, section := range h.sections {
		total += len(section)
	}

	return total
}

// Hibernated reports whether the arena is compressed.
func (a *Arena) Hibernated() bool {
	return a.hib != nil
}

// Hibernate compresses the used records and the free list and releases the
// raw buffer. Every record access panics until Boot is called.
// Arenas with fewer used slots than HibernationThreshold are left awake.
func (a *Arena) Hibernate() {
	a.assertAwake()

	if a.size < a.HibernationThreshold {
		return
	}

	hib := &hibernated{size: a.size, freeLen: len(a.free)}

	wg := &sync.WaitGroup{}
	wg.Add(sectionCount)

	for idx, col := range columns {
		go func(sectionIdx int, c column) {
			defer wg.Done()

			hib.sections[sectionIdx] = compressSection(a.gather(c))
		}(idx, col)
	}

	go func() {
		defer wg.Done()

		hib.sections[sectionFree] = compressSection(encodeHandles(a.free))
	}()

	wg.Wait()

	a.hib = hib
	a.buf = nil
	a.free = nil
	a.released = nil
}

// Boot performs the opposite of Hibernate. It is a no-op on an awake arena.
func (a *Arena) Boot() error {
	hib := a.hib
	if hib == nil {
		return nil
	}

	buf := make([]byte, a.capacity*RecordBytes)
	freeRaw := make([]byte, hib.freeLen*handleBytes)

	var errs [sectionCount]error

	wg := &sync.WaitGroup{}
	wg.Add(sectionCount)

	for idx, col := range columns {
		go func(sectionIdx int, c column) {
			defer wg.Done()

			raw := make([]byte, hib.size*c.width)

			errs[sectionIdx] = decompressSection(hib.sections[sectionIdx], raw)
			if errs[sectionIdx] == nil {
				scatter(buf, raw, c, hib.size)
			}
		}(idx, col)
	}

	go func() {
		defer wg.Done()

		errs[sectionFree] = decompressSection(hib.sections[sectionFree], freeRaw)
	}()

	wg.Wait()

	err := errors.Join(errs[:]...)
	if err != nil {
		return err
	}

	free := decodeHandles(freeRaw)
	released := make([]bool, hib.size)

	for _, h := range free {
		if h < 0 || int(h) >= hib.size || released[h] {
			return fmt.Errorf("%w: free list entry %d", ErrCorrupt, h)
		}

		released[h] = true
	}

	a.buf = buf
	a.free = free
	a.released = released
	a.size = hib.size
	a.hib = nil

	return nil
}

func (a *Arena) gather(c column) []byte {
	out := make([]byte, a.size*c.width)

	for idx := range a.size {
		src := idx*RecordBytes + c.off
		copy(out[idx*c.width:(idx+1)*c.width], a.buf[src:src+c.width])
	}

	return out
}

func scatter(buf, raw []byte, c column, size int) {
	for idx := range size {
		dst := idx*RecordBytes + c.off
		copy(buf[dst:dst+c.width], raw[idx*c.width:(idx+1)*c.width])
	}
}

// WriteTo writes the hibernated arena to w. The arena stays hibernated.
func (a *Arena) WriteTo(w io.Writer) (int64, error) {
	hib := a.hib
	if hib == nil {
		return 0, ErrNotHibernated
	}

	header := append([]byte(nil), payloadMagic[:]...)
	header = appendUvarint(header, a.capacity)
	header = appendUvarint(header, hib.size)
	header = appendUvarint(header, hib.freeLen)

	for _, section := range hib.sections {
		header = appendUvarint(header, len(section))
	}

	written, err := w.Write(header)
	total := int64(written)

	if err != nil {
		return total, fmt.Errorf("write arena header: %w", err)
	}

	for idx, section := range hib.sections {
		written, err = w.Write(section)
		total += int64(written)

		if err != nil {
			return total, fmt.Errorf("write arena section %d: %w", idx, err)
		}
	}

	return total, nil
}

// ReadFrom replaces the arena's state with a payload produced by WriteTo.
// The arena is left hibernated; call Boot to use it.
func (a *Arena) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}

	var magic [4]byte

	_, err := io.ReadFull(cr, magic[:])
	if err != nil {
		return cr.n, fmt.Errorf("read arena magic: %w", err)
	}

	if magic != payloadMagic {
		return cr.n, fmt.Errorf("%w: bad magic %q", ErrCorrupt, magic[:])
	}

	var header [3 + sectionCount]int

	for idx := range header {
		header[idx], err = cr.readLength()
		if err != nil {
			return cr.n, fmt.Errorf("read arena header field %d: %w", idx, err)
		}
	}

	capacity, size, freeLen := header[0], header[1], header[2]

	err = a.checkHeader(capacity, size, freeLen)
	if err != nil {
		return cr.n, err
	}

	capacity = a.restoredCapacity(capacity, size)

	err = a.checkLimit(capacity)
	if err != nil {
		return cr.n, err
	}

	hib := &hibernated{size: size, freeLen: freeLen}

	for idx := range hib.sections {
		sectionLen := header[3+idx]

		rawLen := freeLen * handleBytes
		if idx != sectionFree {
			rawLen = size * columns[idx].width
		}

		if sectionLen > maxSectionLen(rawLen) {
			return cr.n, fmt.Errorf("%w: section %d is %d bytes", ErrCorrupt, idx, sectionLen)
		}

		hib.sections[idx] = make([]byte, sectionLen)

		_, err = io.ReadFull(cr, hib.sections[idx])
		if err != nil {
			return cr.n, fmt.Errorf("read arena section %d: %w", idx, err)
		}
	}

	a.hib = hib
	a.buf = nil
	a.free = nil
	a.released = nil
	a.capacity = capacity
	a.size = size

	return cr.n, nil
}

// restoredCapacity bounds a capacity read from a payload. Doubling stops
// below twice the demand and an arena that never grew keeps its initial
// capacity, so anything larger is only a reservation and is cut back to what
// this arena's own growth policy would have produced.
func (a *Arena) restoredCapacity(capacity, size int) int {
	return min(capacity, max(a.initial, 2*size))
}

func (a *Arena) checkHeader(capacity, size, freeLen int) error {
	if size > capacity || freeLen > size || capacity > maxRecords {
		return fmt.Errorf("%w: capacity %d, size %d, free %d", ErrCorrupt, capacity, size, freeLen)
	}

	return nil
}

func (a *Arena) checkLimit(capacity int) error {
	if a.maxBytes > 0 && uint64(capacity)*RecordBytes > a.maxBytes {
		return fmt.Errorf("%w: %d records exceed the %d byte limit", ErrExhausted, capacity, a.maxBytes)
	}

	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)

	return n, err //nolint:wrapcheck // io.Reader contract passes errors through.
}

func (cr *countingReader) ReadByte() (byte, error) {
	var one [1]byte

	_, err := io.ReadFull(cr, one[:])

	return one[0], err //nolint:wrapcheck // io.ByteReader contract passes errors through.
}

func (cr *countingReader) readLength() (int, error) {
	value, err := binary.ReadUvarint(cr)
	if err != nil {
		return 0, err //nolint:wrapcheck // wrapped by the caller.
	}

	length, ok := safeconv.Uint64ToInt(value)
	if !ok {
		return 0, fmt.Errorf("%w: length %d overflows int", ErrCorrupt, value)
	}

	return length, nil
}
