package engine

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/split"
)

// CheckAxis validates the configuration of one axis of a tree. The minimum
// size is only checked when limited is true.
func CheckAxis[T geometry.Scalar](axis string, position, size, minimum T, limited bool) error {
	var err error
	if geometry.Integral[T]() {
		err = checkIntegralAxis(int64(position), int64(size), int64(minimum), limited)
	} else {
		err = checkFloatingAxis(float64(position), float64(size), float64(minimum), limited)
		if err == nil {
			err = checkRepresentable(position, size)
		}
	}

	if err != nil {
		return errors.New("invalid tree axis").
			WithType(ErrTypeInvalidConfig).
			WithTag("axis", axis).
			WithTag("position", position).
			WithTag("size", size).
			WithTag("minimum_size", minimum).
			Wrap(err)
	}
	return nil
}

func checkIntegralAxis(position, size, minimum int64, limited bool) error {
	switch {
	case size < 2 || !geometry.Even(size):
		return errors.New("tree size must be even and at least 2")

	case position+size-1 > math.MaxInt32:
		return errors.New("tree region overflows the coordinate domain")

	case !limited:
		return nil

	case minimum < 2 || !geometry.Even(minimum):
		return errors.New("minimum size must be even and at least 2")

	case minimum > size:
		return errors.New("minimum size exceeds tree size")

	default:
		return nil
	}
}

func checkFloatingAxis(position, size, minimum float64, limited bool) error {
	switch {
	case !geometry.Finite(position):
		return errors.New("tree position must be finite")

	case !geometry.Finite(size) || size < 2:
		return errors.New("tree size must be finite and at least 2")

	case !limited:
		return nil

	case !geometry.Finite(minimum) || minimum <= 0:
		return errors.New("minimum size must be finite and positive")

	case minimum > size:
		return errors.New("minimum size exceeds tree size")

	default:
		return nil
	}
}

// The relative error allowed between the requested size of a floating axis
// and the width it rounds to at its position.
const sizeTolerance = 1.0 / 1024

func checkRepresentable[T geometry.Scalar](position, size T) error {
	upper := Upper(position, size)
	if !geometry.Finite(upper) {
		return errors.New("tree region overflows the coordinate domain")
	}

	width := float64(upper - position)
	if width <= 0 || math.Abs(width-float64(size)) > float64(size)*sizeTolerance {
		return errors.New("tree size is not representable at its position").
			WithTag("width", width)
	}
	return nil
}

// Upper returns the upper bound of a tree axis starting at position. Integer
// axes cover size values, floating axes are closed at position+size.
func Upper[T geometry.Scalar](position, size T) T {
	if geometry.Integral[T]() {
		return position + size - 1
	}
	return position + size
}

// CanSplit reports whether [lo, hi] can be halved into well-formed children
// at least minimum wide and strictly narrower than [lo, hi]. A non positive
// minimum defaults to 1.
func CanSplit[T geometry.Scalar](lo, hi, minimum T) bool {
	m := float64(minimum)
	if m <= 0 {
		m = 1
	}
	return split.Extent(lo, hi) >= 2*m && split.Halvable(lo, hi)
}
