// Package safeconv provides integer conversions that panic on overflow.
package safeconv

import "math"

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// MaxUint32 is the maximum value for uint32 type.
const MaxUint32 = uint32(math.MaxUint32)

// MustIntToInt32 converts int to int32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToInt32(v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic("safeconv: int to int32 out of bounds")
	}

	return int32(v)
}

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || v > int(MaxUint32) {
		panic("safeconv: int to uint32 out of bounds")
	}

	return uint32(v)
}

// MustUint64ToInt converts uint64 to int, panics on overflow.
func MustUint64ToInt(v uint64) int {
	if v > uint64(MaxInt) {
		panic("safeconv: uint64 to int overflow")
	}

	return int(v)
}

// Uint64ToInt converts uint64 to int, reporting whether it fit.
func Uint64ToInt(v uint64) (int, bool) {
	if v > uint64(MaxInt) {
		return 0, false
	}

	return int(v), true
}
