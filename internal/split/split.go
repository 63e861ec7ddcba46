// Package split halves inclusive coordinate intervals for the supported
// numeric domains.
package split

import (
	"math"

	"github.com/aukilabs/spatialtree/geometry"
)

// Int32 splits the inclusive interval [lo, hi] into [aLo, aHi] and
// [bLo, bHi]. The midpoint is computed in 64 bits so the full int32 range
// does not overflow. The interval must span at least two values.
func Int32(lo, hi int32) (aLo, aHi, bLo, bHi int32) {
	mid := int64(lo) + (int64(hi)-int64(lo))/2
	return lo, int32(mid), int32(mid + 1), hi
}

// Float32 splits [lo, hi] at its midpoint. The lower half ends at the float
// immediately below the midpoint so the halves do not share a value.
func Float32(lo, hi float32) (aLo, aHi, bLo, bHi float32) {
	mid := lo + (hi-lo)/2
	return lo, math.Nextafter32(mid, lo), mid, hi
}

// Float64 splits [lo, hi] at its midpoint. The lower half ends at the float
// immediately below the midpoint so the halves do not share a value.
func Float64(lo, hi float64) (aLo, aHi, bLo, bHi float64) {
	mid := lo + (hi-lo)/2
	return lo, math.Nextafter(mid, lo), mid, hi
}

// Interval splits [lo, hi] using the splitter of T's domain.
func Interval[T geometry.Scalar](lo, hi T) (aLo, aHi, bLo, bHi T) {
	switch l := any(lo).(type) {
	case int32:
		a, b, c, d := Int32(l, any(hi).(int32))
		return T(a), T(b), T(c), T(d)
	case float32:
		a, b, c, d := Float32(l, any(hi).(float32))
		return T(a), T(b), T(c), T(d)
	default:
		a, b, c, d := Float64(any(lo).(float64), any(hi).(float64))
		return T(a), T(b), T(c), T(d)
	}
}

// Span returns the extent of [lo, hi] as a float64: the number of values for
// integers, hi-lo for floats.
func Span[T geometry.Scalar](lo, hi T) float64 {
	if geometry.Integral[T]() {
		return float64(int64(hi)-int64(lo)) + 1
	}
	return float64(hi) - float64(lo)
}

// Extent returns the length covered by [lo, hi] when deciding whether it can
// be split. For floats the upper bound is moved one ULP up so the lower half
// of a split, which ends one ULP below the midpoint, measures the same as the
// upper half.
func Extent[T geometry.Scalar](lo, hi T) float64 {
	switch h := any(hi).(type) {
	case float32:
		return float64(math.Nextafter32(h, float32(math.Inf(1)))) - float64(lo)
	case float64:
		return math.Nextafter(h, math.Inf(1)) - float64(lo)
	default:
		return Span(lo, hi)
	}
}

// Halvable reports whether splitting [lo, hi] yields two well-formed halves
// that are both strictly narrower than the interval. A floating interval only
// a couple of ULPs wide can fail this when its midpoint rounds onto lo.
func Halvable[T geometry.Scalar](lo, hi T) bool {
	if !(lo < hi) {
		return false
	}
	if geometry.Integral[T]() {
		return true
	}

	aLo, aHi, bLo, _ := Interval(lo, hi)
	return aLo <= aHi && bLo > lo
}
