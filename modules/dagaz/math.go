package dagaz

import (
	"math"

	"github.com/aukilabs/hagall-common/messages/dagazpb"
	"github.com/aukilabs/spatialtree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// QuadThickness is the minimal size of a quad bounding volume on each axis.
// Horizontal quads have no height and would otherwise be stored as flat
// volumes.
const QuadThickness = float32(0.05)

func EqualWithEpsilon(a float32, b float32, epsilon float64) bool {
	return math.Abs(float64(a-b)) <= epsilon
}

func InRangeWithEpsilon(value float32, min float32, max float32, epsilon float32) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func NewVec3FromProtobuf(point *dagazpb.Point) mgl32.Vec3 {
	if point == nil {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{point.X, point.Y, point.Z}
}

func Vec3ToProtobuf(v mgl32.Vec3) *dagazpb.Point {
	return &dagazpb.Point{
		X: v.X(),
		Y: v.Y(),
		Z: v.Z(),
	}
}

// Quad is a rectangular plane sampled by a client. Horizontal quads have a
// zero extent on y.
type Quad struct {
	Center  mgl32.Vec3
	Extents mgl32.Vec3 // Half-extents.

	// Derived from the extents.
	Normal mgl32.Vec3

	MergeCount uint32

	id uint64
}

func NewQuad(center, extents mgl32.Vec3) Quad {
	return Quad{
		Center:  center,
		Extents: extents,
		Normal:  calculateNormal(extents),
	}
}

func NewQuadFromProtobuf(protoQuad *dagazpb.Quad) Quad {
	q := NewQuad(
		NewVec3FromProtobuf(protoQuad.GetCenter()),
		NewVec3FromProtobuf(protoQuad.GetExtents()),
	)
	q.MergeCount = protoQuad.GetMergeCount()
	return q
}

func (q *Quad) ToProtobuf() *dagazpb.Quad {
	return &dagazpb.Quad{
		Center:     Vec3ToProtobuf(q.Center),
		Extents:    Vec3ToProtobuf(q.Extents),
		MergeCount: q.MergeCount,
	}
}

// ID returns the id given to the quad when stored in a partition. Zero means
// the quad is not stored.
func (q *Quad) ID() uint64 {
	return q.id
}

func (q *Quad) Min() mgl32.Vec3 {
	return q.Center.Sub(q.Extents)
}

func (q *Quad) Max() mgl32.Vec3 {
	return q.Center.Add(q.Extents)
}

// BoundingVolume returns the volume covered by the quad, at least
// QuadThickness wide on every axis.
func (q *Quad) BoundingVolume() geometry.Volume[float32] {
	var lower, upper mgl32.Vec3
	for i := range 3 {
		half := max(abs(q.Extents[i]), QuadThickness/2)
		lower[i] = q.Center[i] - half
		upper[i] = q.Center[i] + half
	}
	return geometry.NewVolume(lower.X(), lower.Y(), lower.Z(), upper.X(), upper.Y(), upper.Z())
}

func abs(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

// Only x and z are compared, the quads being horizontal. Touching edges do
// not overlap.
func doHorizontalPlanesOverlap(a *Quad, b *Quad) bool {
	minA, maxA := a.Min(), a.Max()
	minB, maxB := b.Min(), b.Max()

	if minA.X() >= maxB.X() || maxA.X() <= minB.X() {
		return false
	}
	if minA.Z() >= maxB.Z() || maxA.Z() <= minB.Z() {
		return false
	}
	return true
}

func calculateNormal(e mgl32.Vec3) mgl32.Vec3 {
	vectorA := mgl32.Vec3{e.X(), e.Y(), 0}
	vectorB := mgl32.Vec3{0, e.Y(), e.Z()}
	normal := vectorB.Cross(vectorA)
	if normal.Len() == 0 {
		return mgl32.Vec3{}
	}
	return normal.Normalize()
}

// Ray is a segment going from From to To.
type Ray struct {
	From mgl32.Vec3
	To   mgl32.Vec3
}

func NewRayFromProtobuf(protoRay *dagazpb.Ray) Ray {
	return Ray{
		From: NewVec3FromProtobuf(protoRay.GetFrom()),
		To:   NewVec3FromProtobuf(protoRay.GetTo()),
	}
}

// Ray3 returns the half-line starting at From and passing by To.
func (r Ray) Ray3() geometry.Ray3 {
	from := mgl64.Vec3{float64(r.From.X()), float64(r.From.Y()), float64(r.From.Z())}
	to := mgl64.Vec3{float64(r.To.X()), float64(r.To.Y()), float64(r.To.Z())}
	return geometry.NewRay3(from, to.Sub(from))
}

// IntersectQuad returns whether r hits q and the position of the hit along r,
// 0 being From and 1 being To.
func IntersectQuad(r Ray, q *Quad) (bool, float32) {
	rayDir := r.To.Sub(r.From)

	denominator := q.Normal.Dot(rayDir)
	if denominator == 0 {
		return false, -1
	}

	t := (q.Normal.Dot(q.Center) - q.Normal.Dot(r.From)) / denominator
	if t < 0 || t > 1 {
		return false, -1
	}

	hitPoint := r.From.Add(rayDir.Mul(t))
	minPoint, maxPoint := q.Min(), q.Max()
	for i := range 3 {
		if !InRangeWithEpsilon(hitPoint[i], minPoint[i], maxPoint[i], 0.0001) {
			return false, -1
		}
	}
	return true, t
}
