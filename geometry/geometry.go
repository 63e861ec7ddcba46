// Package geometry provides the axis-aligned value types and bounding
// predicates used by the spatial trees: areas (2D), volumes (3D) and rays over
// 32-bit integer, 32-bit float and 64-bit float coordinates.
//
// All boxes are inclusive: a box contains both its lower and its upper corner.
package geometry

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/exp/constraints"
)

// Scalar is the set of coordinate domains a tree can be instantiated with.
type Scalar interface {
	int32 | float32 | float64
}

// Integral reports whether T is an integer domain.
func Integral[T Scalar]() bool {
	var zero T
	_, ok := any(zero).(int32)
	return ok
}

// Finite reports whether v is neither infinite nor NaN. Integer values are
// always finite.
func Finite[T Scalar](v T) bool {
	switch f := any(v).(type) {
	case float32:
		return finite(f)
	case float64:
		return finite(f)
	default:
		return true
	}
}

func finite[F constraints.Float](f F) bool {
	return !math.IsInf(float64(f), 0) && !math.IsNaN(float64(f))
}

// Even reports whether an integer value is even.
func Even[I constraints.Integer](v I) bool {
	return v%2 == 0
}

// Vector2 is a 2D coordinate.
type Vector2[T Scalar] struct {
	X T
	Y T
}

// Vec2 returns the vector in double precision.
func (v Vector2[T]) Vec2() mgl64.Vec2 {
	return mgl64.Vec2{float64(v.X), float64(v.Y)}
}

func (v Vector2[T]) String() string {
	return fmt.Sprintf("(%v, %v)", v.X, v.Y)
}

// Vector3 is a 3D coordinate.
type Vector3[T Scalar] struct {
	X T
	Y T
	Z T
}

// Vec3 returns the vector in double precision.
func (v Vector3[T]) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

func (v Vector3[T]) String() string {
	return fmt.Sprintf("(%v, %v, %v)", v.X, v.Y, v.Z)
}

// RaycastResult is an item hit by a ray together with the distance used to
// rank it.
type RaycastResult[T any] struct {
	Item     T
	Distance float64
}
