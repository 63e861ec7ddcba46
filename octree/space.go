package octree

import (
	"cmp"

	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/engine"
	"github.com/aukilabs/spatialtree/internal/split"
)

type volumeSpace[T geometry.Scalar] struct {
	minimum geometry.Vector3[T]
}

func (s volumeSpace[T]) Dimensions() int {
	return 3
}

func (s volumeSpace[T]) WellFormed(v geometry.Volume[T]) bool {
	return v.WellFormed()
}

func (s volumeSpace[T]) Contains(outer, inner geometry.Volume[T]) bool {
	return outer.Contains(inner)
}

func (s volumeSpace[T]) Overlaps(a, b geometry.Volume[T]) bool {
	return a.Overlaps(b)
}

func (s volumeSpace[T]) CanSplit(v geometry.Volume[T]) bool {
	return engine.CanSplit(v.Lower.X, v.Upper.X, s.minimum.X) &&
		engine.CanSplit(v.Lower.Y, v.Upper.Y, s.minimum.Y) &&
		engine.CanSplit(v.Lower.Z, v.Upper.Z, s.minimum.Z)
}

// Split returns the octants of v. Bit 0 of an octant index selects the upper
// half on x, bit 1 on y and bit 2 on z.
func (s volumeSpace[T]) Split(v geometry.Volume[T]) []geometry.Volume[T] {
	var lower, upper [3][2]T
	lower[0][0], upper[0][0], lower[0][1], upper[0][1] = split.Interval(v.Lower.X, v.Upper.X)
	lower[1][0], upper[1][0], lower[1][1], upper[1][1] = split.Interval(v.Lower.Y, v.Upper.Y)
	lower[2][0], upper[2][0], lower[2][1], upper[2][1] = split.Interval(v.Lower.Z, v.Upper.Z)

	octants := make([]geometry.Volume[T], 8)
	for i := range octants {
		x, y, z := i&1, i>>1&1, i>>2&1
		octants[i] = geometry.NewVolume(
			lower[0][x], lower[1][y], lower[2][z],
			upper[0][x], upper[1][y], upper[2][z],
		)
	}
	return octants
}

func (s volumeSpace[T]) RayWellFormed(r geometry.Ray3) bool {
	return r.WellFormed()
}

func (s volumeSpace[T]) Intersects(r geometry.Ray3, v geometry.Volume[T]) bool {
	return geometry.IntersectsVolume(r, v)
}

func (s volumeSpace[T]) Distance(r geometry.Ray3, v geometry.Volume[T]) float64 {
	return r.DistanceTo(v.Lower.Vec3())
}

func (s volumeSpace[T]) Compare(a, b geometry.Volume[T]) int {
	if c := cmp.Compare(a.Lower.X, b.Lower.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Lower.Y, b.Lower.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.Lower.Z, b.Lower.Z)
}
