package arena

import "encoding/binary"

// RecordBytes is the fixed stride of a node record.
//
// Layout (big-endian):
//
//	[0:4)   left   int32 handle (-1 = none)
//	[4:8)   right  int32 handle (-1 = none)
//	[8:12)  parent int32 handle (-1 = none)
//	[12]    color  (0 = black, 1 = red)
//	[13:16) padding
//	[16:20) key    int32
const RecordBytes = 20

const (
	offLeft   = 0
	offRight  = 4
	offParent = 8
	offColor  = 12
	offKey    = 16
)

// Handle addresses a record slot in an Arena. It is not a memory address.
type Handle int32

// None is the sentinel handle meaning "no node".
const None Handle = -1

// Color is the red-black color bit of a record.
type Color uint8

// Record colors. Black is the zero value.
const (
	Black Color = 0
	Red   Color = 1
)

const (
	colorNameBlack = "BLACK"
	colorNameRed   = "RED"
)

// String returns "BLACK" or "RED".
func (c Color) String() string {
	if c == Red {
		return colorNameRed
	}

	return colorNameBlack
}

// ParseColor is the inverse of Color.String.
func ParseColor(s string) (Color, bool) {
	switch s {
	case colorNameBlack:
		return Black, true
	case colorNameRed:
		return Red, true
	default:
		return Black, false
	}
}

// Record is the decoded form of a node record.
type Record struct {
	Left   Handle
	Right  Handle
	Parent Handle
	Color  Color
	Key    int32
}

// emptyRecord is what Allocate starts from before applying a patch.
var emptyRecord = Record{Left: None, Right: None, Parent: None, Color: Black, Key: 0}

type fieldMask uint8

const (
	fieldLeft fieldMask = 1 << iota
	fieldRight
	fieldParent
	fieldColor
	fieldKey
)

// Patch is a partial record update. Only the fields set through its builder
// methods are written; the rest of the record is left untouched.
//
//	a.Write(h, arena.Set().Left(child).Color(arena.Red))
type Patch struct {
	rec  Record
	mask fieldMask
}

// Set starts an empty patch.
func Set() Patch {
	return Patch{}
}

// Left sets the left child handle.
func (p Patch) Left(h Handle) Patch {
	p.rec.Left = h
	p.mask |= fieldLeft

	return p
}

// Right sets the right child handle.
func (p Patch) Right(h Handle) Patch {
	p.rec.Right = h
	p.mask |= fieldRight

	return p
}

// Parent sets the parent handle.
func (p Patch) Parent(h Handle) Patch {
	p.rec.Parent = h
	p.mask |= fieldParent

	return p
}

// Color sets the color bit.
func (p Patch) Color(c Color) Patch {
	p.rec.Color = c
	p.mask |= fieldColor

	return p
}

// Key sets the ordering key.
func (p Patch) Key(k int32) Patch {
	p.rec.Key = k
	p.mask |= fieldKey

	return p
}

// Empty reports whether the patch sets no field.
func (p Patch) Empty() bool {
	return p.mask == 0
}

func (p Patch) apply(rec []byte) {
	if p.mask&fieldLeft != 0 {
		putHandle(rec[offLeft:], p.rec.Left)
	}

	if p.mask&fieldRight != 0 {
		putHandle(rec[offRight:], p.rec.Right)
	}

	if p.mask&fieldParent != 0 {
		putHandle(rec[offParent:], p.rec.Parent)
	}

	if p.mask&fieldColor != 0 {
		rec[offColor] = byte(p.rec.Color)
	}

	if p.mask&fieldKey != 0 {
		binary.BigEndian.PutUint32(rec[offKey:], uint32(p.rec.Key))
	}
}

func encodeRecord(rec []byte, r Record) {
	putHandle(rec[offLeft:], r.Left)
	putHandle(rec[offRight:], r.Right)
	putHandle(rec[offParent:], r.Parent)
	rec[offColor] = byte(r.Color)
	rec[offColor+1], rec[offColor+2], rec[offColor+3] = 0, 0, 0
	binary.BigEndian.PutUint32(rec[offKey:], uint32(r.Key))
}

func decodeRecord(rec []byte) Record {
	return Record{
		Left:   handleAt(rec[offLeft:]),
		Right:  handleAt(rec[offRight:]),
		Parent: handleAt(rec[offParent:]),
		Color:  Color(rec[offColor]),
		Key:    keyAt(rec),
	}
}

func keyAt(rec []byte) int32 {
	return int32(binary.BigEndian.Uint32(rec[offKey:]))
}

func putHandle(dst []byte, h Handle) {
	binary.BigEndian.PutUint32(dst, uint32(h))
}

func handleAt(src []byte) Handle {
	return Handle(int32(binary.BigEndian.Uint32(src)))
}
