package geometry

import "fmt"

// Area is an inclusive axis-aligned 2D box.
type Area[T Scalar] struct {
	Lower Vector2[T]
	Upper Vector2[T]
}

// NewArea returns the area spanning from lower to upper.
func NewArea[T Scalar](lowerX, lowerY, upperX, upperY T) Area[T] {
	return Area[T]{
		Lower: Vector2[T]{X: lowerX, Y: lowerY},
		Upper: Vector2[T]{X: upperX, Y: upperY},
	}
}

// WellFormed reports whether the lower corner is less than or equal to the
// upper corner on every axis.
func (a Area[T]) WellFormed() bool {
	return a.Lower.X <= a.Upper.X &&
		a.Lower.Y <= a.Upper.Y
}

// Contains reports whether inner lies entirely within a.
func (a Area[T]) Contains(inner Area[T]) bool {
	return inner.Lower.X >= a.Lower.X && inner.Upper.X <= a.Upper.X &&
		inner.Lower.Y >= a.Lower.Y && inner.Upper.Y <= a.Upper.Y
}

// ContainsPoint reports whether p lies within a.
func (a Area[T]) ContainsPoint(p Vector2[T]) bool {
	return p.X >= a.Lower.X && p.X <= a.Upper.X &&
		p.Y >= a.Lower.Y && p.Y <= a.Upper.Y
}

// Overlaps reports whether a and b share at least one point. Touching edges
// overlap.
func (a Area[T]) Overlaps(b Area[T]) bool {
	return a.Lower.X <= b.Upper.X && b.Lower.X <= a.Upper.X &&
		a.Lower.Y <= b.Upper.Y && b.Lower.Y <= a.Upper.Y
}

func (a Area[T]) String() string {
	return fmt.Sprintf("[%v %v]", a.Lower, a.Upper)
}
