package geometry

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Ray2 is a 2D half-line starting at Origin.
//
// InverseDirection holds 1/Direction per component, +Inf where the direction
// component is zero. Use NewRay2 to keep both in sync.
type Ray2 struct {
	Origin           mgl64.Vec2
	Direction        mgl64.Vec2
	InverseDirection mgl64.Vec2
}

// NewRay2 returns a ray with its inverse direction precomputed.
func NewRay2(origin, direction mgl64.Vec2) Ray2 {
	return Ray2{
		Origin:           origin,
		Direction:        direction,
		InverseDirection: mgl64.Vec2{inverse(direction[0]), inverse(direction[1])},
	}
}

// WellFormed reports whether the origin and direction are finite and the
// direction is not zero.
func (r Ray2) WellFormed() bool {
	zero := true
	for i := 0; i < 2; i++ {
		if !finite(r.Origin[i]) || !finite(r.Direction[i]) {
			return false
		}
		zero = zero && r.Direction[i] == 0
	}
	return !zero
}

// DistanceTo returns the Euclidean distance from the ray origin to p.
func (r Ray2) DistanceTo(p mgl64.Vec2) float64 {
	return p.Sub(r.Origin).Len()
}

func (r Ray2) String() string {
	return fmt.Sprintf("ray(%v -> %v)", r.Origin, r.Direction)
}

// Ray3 is a 3D half-line starting at Origin.
//
// InverseDirection holds 1/Direction per component, +Inf where the direction
// component is zero. Use NewRay3 to keep both in sync.
type Ray3 struct {
	Origin           mgl64.Vec3
	Direction        mgl64.Vec3
	InverseDirection mgl64.Vec3
}

// NewRay3 returns a ray with its inverse direction precomputed.
func NewRay3(origin, direction mgl64.Vec3) Ray3 {
	return Ray3{
		Origin:    origin,
		Direction: direction,
		InverseDirection: mgl64.Vec3{
			inverse(direction[0]),
			inverse(direction[1]),
			inverse(direction[2]),
		},
	}
}

// WellFormed reports whether the origin and direction are finite and the
// direction is not zero.
func (r Ray3) WellFormed() bool {
	zero := true
	for i := 0; i < 3; i++ {
		if !finite(r.Origin[i]) || !finite(r.Direction[i]) {
			return false
		}
		zero = zero && r.Direction[i] == 0
	}
	return !zero
}

// DistanceTo returns the Euclidean distance from the ray origin to p.
func (r Ray3) DistanceTo(p mgl64.Vec3) float64 {
	return p.Sub(r.Origin).Len()
}

func (r Ray3) String() string {
	return fmt.Sprintf("ray(%v -> %v)", r.Origin, r.Direction)
}

// IntersectsArea reports whether the ray hits the area, treating its bounds
// as real intervals.
func IntersectsArea[T Scalar](r Ray2, a Area[T]) bool {
	lo := a.Lower.Vec2()
	hi := a.Upper.Vec2()

	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := 0; i < 2; i++ {
		var ok bool
		if tmin, tmax, ok = slab(r.Origin[i], r.Direction[i], r.InverseDirection[i], lo[i], hi[i], tmin, tmax); !ok {
			return false
		}
	}
	return tmax >= max(0, tmin)
}

// IntersectsVolume reports whether the ray hits the volume, treating its
// bounds as real intervals.
func IntersectsVolume[T Scalar](r Ray3, v Volume[T]) bool {
	lo := v.Lower.Vec3()
	hi := v.Upper.Vec3()

	tmin, tmax := math.Inf(-1), math.Inf(1)
	for i := 0; i < 3; i++ {
		var ok bool
		if tmin, tmax, ok = slab(r.Origin[i], r.Direction[i], r.InverseDirection[i], lo[i], hi[i], tmin, tmax); !ok {
			return false
		}
	}
	return tmax >= max(0, tmin)
}

// slab clips the parametric interval [tmin, tmax] against one axis. A zero
// direction component is parallel to the slab: it hits only when the origin
// lies within [lo, hi].
func slab(origin, direction, inv, lo, hi, tmin, tmax float64) (float64, float64, bool) {
	if direction == 0 {
		return tmin, tmax, origin >= lo && origin <= hi
	}

	t0 := (lo - origin) * inv
	t1 := (hi - origin) * inv
	if t0 > t1 {
		t0, t1 = t1, t0
	}

	tmin = max(tmin, t0)
	tmax = min(tmax, t1)
	return tmin, tmax, tmax >= tmin
}

func inverse(v float64) float64 {
	if v == 0 {
		return math.Inf(1)
	}
	return 1 / v
}
