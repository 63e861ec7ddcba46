package dagaz

import "github.com/go-gl/mathgl/mgl32"

type SpatialDebugInfo struct {
	Resolution uint32
	NodeCount  uint32
	LeafCount  uint32
	MaxDepth   uint32
	PlaneCount uint32
	MergeCount uint32
	MinPoint   mgl32.Vec3
	MaxPoint   mgl32.Vec3

	// The number of quads stored at each depth, root first.
	Occupancy []uint32
}

// DebugNode describes a partition node.
type DebugNode struct {
	Depth   int        `json:"depth"`
	Min     [3]float32 `json:"min"`
	Max     [3]float32 `json:"max"`
	Leaf    bool       `json:"leaf"`
	Quads   int        `json:"quads"`
	Anchors int        `json:"anchors"`
}

// SpatialPartition stores the quads sampled in a session. Implementations are
// safe for concurrent use.
type SpatialPartition interface {
	// Inserts a sampled quad, merging it into a stored one when they describe
	// the same plane.
	InsertQuad(q Quad) error

	// Inserts a quad that is never merged nor cleared with the samples.
	InsertAnchor(q Quad) (uint64, error)

	RemoveQuad(id uint64) bool

	// Removes every quad but the anchors.
	ClearSamples()

	IntersectQuad(r Ray) (*Quad, float32)
	GetRegion(min mgl32.Vec3, max mgl32.Vec3) []*Quad

	// Releases the quads once the session is gone.
	Close() error

	// debug stuff:
	GetDebugInfo() SpatialDebugInfo
	DebugNodes() []DebugNode
}
