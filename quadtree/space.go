package quadtree

import (
	"cmp"

	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/engine"
	"github.com/aukilabs/spatialtree/internal/split"
)

// areaSpace is the engine geometry of a quadtree.
type areaSpace[T geometry.Scalar] struct {
	minimum geometry.Vector2[T]
}

func (s areaSpace[T]) Dimensions() int {
	return 2
}

func (s areaSpace[T]) WellFormed(a geometry.Area[T]) bool {
	return a.WellFormed()
}

func (s areaSpace[T]) Contains(outer, inner geometry.Area[T]) bool {
	return outer.Contains(inner)
}

func (s areaSpace[T]) Overlaps(a, b geometry.Area[T]) bool {
	return a.Overlaps(b)
}

func (s areaSpace[T]) CanSplit(a geometry.Area[T]) bool {
	return engine.CanSplit(a.Lower.X, a.Upper.X, s.minimum.X) &&
		engine.CanSplit(a.Lower.Y, a.Upper.Y, s.minimum.Y)
}

// Split returns the quadrants of a in the order x0y0, x1y0, x0y1, x1y1.
func (s areaSpace[T]) Split(a geometry.Area[T]) []geometry.Area[T] {
	x0, x1, x2, x3 := split.Interval(a.Lower.X, a.Upper.X)
	y0, y1, y2, y3 := split.Interval(a.Lower.Y, a.Upper.Y)

	return []geometry.Area[T]{
		geometry.NewArea(x0, y0, x1, y1),
		geometry.NewArea(x2, y0, x3, y1),
		geometry.NewArea(x0, y2, x1, y3),
		geometry.NewArea(x2, y2, x3, y3),
	}
}

func (s areaSpace[T]) RayWellFormed(r geometry.Ray2) bool {
	return r.WellFormed()
}

func (s areaSpace[T]) Intersects(r geometry.Ray2, a geometry.Area[T]) bool {
	return geometry.IntersectsArea(r, a)
}

func (s areaSpace[T]) Distance(r geometry.Ray2, a geometry.Area[T]) float64 {
	return r.DistanceTo(a.Lower.Vec2())
}

func (s areaSpace[T]) Compare(a, b geometry.Area[T]) int {
	if c := cmp.Compare(a.Lower.X, b.Lower.X); c != 0 {
		return c
	}
	return cmp.Compare(a.Lower.Y, b.Lower.Y)
}
