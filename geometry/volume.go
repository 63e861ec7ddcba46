package geometry

import "fmt"

// Volume is an inclusive axis-aligned 3D box.
type Volume[T Scalar] struct {
	Lower Vector3[T]
	Upper Vector3[T]
}

// NewVolume returns the volume spanning from lower to upper.
func NewVolume[T Scalar](lowerX, lowerY, lowerZ, upperX, upperY, upperZ T) Volume[T] {
	return Volume[T]{
		Lower: Vector3[T]{X: lowerX, Y: lowerY, Z: lowerZ},
		Upper: Vector3[T]{X: upperX, Y: upperY, Z: upperZ},
	}
}

// WellFormed reports whether the lower corner is less than or equal to the
// upper corner on every axis.
func (v Volume[T]) WellFormed() bool {
	return v.Lower.X <= v.Upper.X &&
		v.Lower.Y <= v.Upper.Y &&
		v.Lower.Z <= v.Upper.Z
}

// Contains reports whether inner lies entirely within v.
func (v Volume[T]) Contains(inner Volume[T]) bool {
	return inner.Lower.X >= v.Lower.X && inner.Upper.X <= v.Upper.X &&
		inner.Lower.Y >= v.Lower.Y && inner.Upper.Y <= v.Upper.Y &&
		inner.Lower.Z >= v.Lower.Z && inner.Upper.Z <= v.Upper.Z
}

// ContainsPoint reports whether p lies within v.
func (v Volume[T]) ContainsPoint(p Vector3[T]) bool {
	return p.X >= v.Lower.X && p.X <= v.Upper.X &&
		p.Y >= v.Lower.Y && p.Y <= v.Upper.Y &&
		p.Z >= v.Lower.Z && p.Z <= v.Upper.Z
}

// Overlaps reports whether v and o share at least one point. Touching faces
// overlap.
func (v Volume[T]) Overlaps(o Volume[T]) bool {
	return v.Lower.X <= o.Upper.X && o.Lower.X <= v.Upper.X &&
		v.Lower.Y <= o.Upper.Y && o.Lower.Y <= v.Upper.Y &&
		v.Lower.Z <= o.Upper.Z && o.Lower.Z <= v.Upper.Z
}

func (v Volume[T]) String() string {
	return fmt.Sprintf("[%v %v]", v.Lower, v.Upper)
}
