package dagaz

import (
	"math"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/models"
	"github.com/aukilabs/spatialtree/octree"
	"github.com/go-gl/mathgl/mgl32"
)

// Octree Spatial Partition
//
// Quads are stored by bounding volume in a static/dynamic octree covering a
// fixed volume of the session:
//   - sampled quads are dynamic and get merged together when they describe
//     the same horizontal plane,
//   - anchors are static: they are never merged and survive ClearSamples.

const MERGE_EPSILON = float32(0.6)

// The fraction of the distance a stored quad moves toward a merged one.
const mergeFactor = float32(0.2)

const (
	ErrTypeInvalidPartitionConfig = "invalid-partition-config"
	ErrTypeInvalidQuad            = "invalid-quad"
	ErrTypeQuadOutOfBounds        = "quad-out-of-bounds"
	ErrTypePartitionClosed        = "partition-closed"
)

type PartitionConfig struct {
	// The lower corner of the partitioned volume.
	Position mgl32.Vec3

	Size mgl32.Vec3

	// The smallest node size. Zero disables the limit.
	MinimumSize mgl32.Vec3

	// Collapses empty subtrees once their quads are removed.
	Prune bool

	// The maximum vertical distance between two merged quads. Zero selects
	// MERGE_EPSILON.
	MergeEpsilon float32

	DisableMerging bool
}

// DefaultPartitionConfig returns a configuration covering 2048 meters around
// the session origin with 1 meter leaves.
func DefaultPartitionConfig() PartitionConfig {
	return PartitionConfig{
		Position:     mgl32.Vec3{-1024, -1024, -1024},
		Size:         mgl32.Vec3{2048, 2048, 2048},
		MinimumSize:  mgl32.Vec3{1, 1, 1},
		Prune:        true,
		MergeEpsilon: MERGE_EPSILON,
	}
}

func (c PartitionConfig) withDefaults() PartitionConfig {
	if c.Size == (mgl32.Vec3{}) {
		d := DefaultPartitionConfig()
		c.Position = d.Position
		c.Size = d.Size
		c.MinimumSize = d.MinimumSize
	}
	if c.MergeEpsilon == 0 {
		c.MergeEpsilon = MERGE_EPSILON
	}
	return c
}

func (c PartitionConfig) octreeConfig() octree.Config[float32] {
	return octree.Config[float32]{
		Name:        "dagaz",
		Position:    vector3(c.Position),
		Size:        vector3(c.Size),
		MinimumSize: vector3(c.MinimumSize),
		Prune:       c.Prune,
	}
}

func vector3(v mgl32.Vec3) geometry.Vector3[float32] {
	return geometry.Vector3[float32]{X: v.X(), Y: v.Y(), Z: v.Z()}
}

type OctreePartition struct {
	mutex      sync.RWMutex
	config     PartitionConfig
	tree       *octree.SDTree[float32, *Quad]
	ids        models.SequentialIDGenerator[uint64]
	mergeCount uint32
	closed     bool
}

func NewOctreePartition(c PartitionConfig) (*OctreePartition, error) {
	c = c.withDefaults()

	if c.MergeEpsilon < 0 || math.IsInf(float64(c.MergeEpsilon), 0) || math.IsNaN(float64(c.MergeEpsilon)) {
		return nil, errors.New("invalid merge epsilon").
			WithType(ErrTypeInvalidPartitionConfig).
			WithTag("merge_epsilon", c.MergeEpsilon)
	}

	tree, err := octree.NewSD[float32, *Quad](c.octreeConfig())
	if err != nil {
		return nil, errors.New("creating octree failed").
			WithType(ErrTypeInvalidPartitionConfig).
			Wrap(err)
	}

	return &OctreePartition{
		config: c,
		tree:   tree,
	}, nil
}

func (p *OctreePartition) InsertQuad(q Quad) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.checkOpen(); err != nil {
		return err
	}

	incoming := q
	incoming.id = 0
	incoming.Normal = calculateNormal(incoming.Extents)
	if err := p.checkBounds(&incoming); err != nil {
		instrumentQuad(resultRejected)
		return err
	}

	if p.config.DisableMerging {
		return p.store(&incoming, octree.Dynamic)
	}

	// merging loop:
	//  1. find the closest stored plane (in y) overlapping the merged one
	//  2. merge into that one
	//  3. the stored plane is now the one to merge, go to 1
	// A stored plane merged into another one is removed.
	target := &incoming
	for {
		hit := p.mergeCandidate(target)
		if hit == nil {
			break
		}

		if err := p.merge(hit, target); err != nil {
			return err
		}
		if target != &incoming {
			p.tree.Remove(target)
		}
		target = hit
	}

	if target == &incoming {
		return p.store(&incoming, octree.Dynamic)
	}
	instrumentQuad(resultMerged)
	return nil
}

func (p *OctreePartition) InsertAnchor(q Quad) (uint64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.checkOpen(); err != nil {
		return 0, err
	}

	anchor := q
	anchor.Normal = calculateNormal(anchor.Extents)
	if err := p.checkBounds(&anchor); err != nil {
		instrumentQuad(resultRejected)
		return 0, err
	}

	if err := p.store(&anchor, octree.Static); err != nil {
		return 0, err
	}
	return anchor.id, nil
}

func (p *OctreePartition) checkOpen() error {
	if p.closed {
		instrumentQuad(resultRejected)
		return errors.New("partition is closed").
			WithType(ErrTypePartitionClosed)
	}
	return nil
}

// Close drops every quad. Later insertions are rejected.
func (p *OctreePartition) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.tree.Clear()
	return nil
}

func (p *OctreePartition) checkBounds(q *Quad) error {
	v := q.BoundingVolume()
	if !v.WellFormed() {
		return errors.New("quad is not well formed").
			WithType(ErrTypeInvalidQuad).
			WithTag("center", q.Center).
			WithTag("extents", q.Extents)
	}

	if !p.tree.Region().Contains(v) {
		return errors.New("quad is out of the partition bounds").
			WithType(ErrTypeQuadOutOfBounds).
			WithTag("quad", v.String()).
			WithTag("bounds", p.tree.Region().String())
	}
	return nil
}

func (p *OctreePartition) store(q *Quad, kind octree.Kind) error {
	q.id = p.ids.New()

	ok, err := p.tree.InsertKind(q, kind)
	if err != nil {
		instrumentQuad(resultRejected)
		return errors.New("inserting quad failed").
			WithType(ErrTypeInvalidQuad).
			Wrap(err)
	}
	if !ok {
		instrumentQuad(resultRejected)
		return errors.New("quad not inserted").
			WithType(ErrTypeQuadOutOfBounds).
			WithTag("quad_id", q.id)
	}

	instrumentQuad(resultInserted)
	return nil
}

func (p *OctreePartition) mergeCandidate(target *Quad) *Quad {
	epsilon := p.config.MergeEpsilon

	v := target.BoundingVolume()
	v.Lower.Y -= epsilon
	v.Upper.Y += epsilon

	candidates, err := p.tree.QueryOverlapping(v)
	if err != nil {
		logs.Warn(errors.New("querying merge candidates failed").Wrap(err))
		return nil
	}

	var best *Quad
	var bestDistance float32
	for _, c := range candidates {
		if c.id == target.id {
			continue
		}
		if kind, _ := p.tree.KindOf(c); kind != octree.Dynamic {
			continue
		}
		if !EqualWithEpsilon(c.Center.Y(), target.Center.Y(), float64(epsilon)) || !doHorizontalPlanesOverlap(c, target) {
			continue
		}

		distance := abs(c.Center.Y() - target.Center.Y())
		if best == nil || distance < bestDistance {
			best = c
			bestDistance = distance
		}
	}
	return best
}

// merge moves the stored quad existing toward q. existing is reinserted since
// its bounding volume changes.
func (p *OctreePartition) merge(existing *Quad, q *Quad) error {
	p.tree.Remove(existing)

	centerDiff := q.Center.Sub(existing.Center)
	extentsDiff := q.Extents.Sub(existing.Extents)
	existing.Center = existing.Center.Add(centerDiff.Mul(mergeFactor))
	existing.Extents = existing.Extents.Add(extentsDiff.Mul(mergeFactor))
	existing.Normal = calculateNormal(existing.Extents)
	existing.MergeCount++
	p.mergeCount++

	ok, err := p.tree.InsertKind(existing, octree.Dynamic)
	if err != nil {
		return errors.New("reinserting merged quad failed").
			WithType(ErrTypeInvalidQuad).
			WithTag("quad_id", existing.id).
			Wrap(err)
	}
	if !ok {
		return errors.New("merged quad is out of the partition bounds").
			WithType(ErrTypeQuadOutOfBounds).
			WithTag("quad_id", existing.id).
			WithTag("quad", existing.BoundingVolume().String())
	}

	logs.WithTag("quad_id", existing.id).
		WithTag("merged_quad_id", q.id).
		WithTag("merge_count", existing.MergeCount).
		Debug("quads merged")
	return nil
}

func (p *OctreePartition) RemoveQuad(id uint64) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.tree.Remove(&Quad{id: id})
}

func (p *OctreePartition) ClearSamples() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.tree.ClearDynamic()
}

// IntersectQuad returns a copy of the quad hit first by r and the position of
// the hit along r. It returns nil and -1 when r does not hit any quad.
func (p *OctreePartition) IntersectQuad(r Ray) (*Quad, float32) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	tMin := float32(math.Inf(1))
	var resultQuad *Quad
	for _, hit := range p.tree.QueryRaycast(r.Ray3()) {
		if ok, t := IntersectQuad(r, hit.Item); ok && t < tMin {
			tMin = t
			resultQuad = hit.Item
		}
	}

	if resultQuad == nil {
		return nil, -1
	}
	quad := *resultQuad
	return &quad, tMin
}

// GetRegion returns copies of the quads overlapping the volume delimited by
// the given corners, ordered by id.
func (p *OctreePartition) GetRegion(min mgl32.Vec3, max mgl32.Vec3) []*Quad {
	var lower, upper mgl32.Vec3
	for i := range 3 {
		lower[i] = float32(math.Min(float64(min[i]), float64(max[i])))
		upper[i] = float32(math.Max(float64(min[i]), float64(max[i])))
	}

	p.mutex.RLock()
	defer p.mutex.RUnlock()

	quads, err := p.tree.QueryOverlapping(geometry.NewVolume(
		lower.X(), lower.Y(), lower.Z(),
		upper.X(), upper.Y(), upper.Z(),
	))
	if err != nil {
		logs.WithTag("min", min).
			WithTag("max", max).
			Debug(errors.New("querying region failed").Wrap(err))
		return nil
	}

	res := make([]*Quad, len(quads))
	for i, q := range quads {
		quad := *q
		res[i] = &quad
	}
	return res
}

func (p *OctreePartition) GetDebugInfo() SpatialDebugInfo {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	result := SpatialDebugInfo{
		Resolution: uint32(p.config.MinimumSize.X()),
		PlaneCount: uint32(p.tree.Count()),
		MergeCount: p.mergeCount,
		MinPoint:   p.config.Position,
		MaxPoint:   p.config.Position.Add(p.config.Size),
	}

	p.tree.Traverse(func(n octree.NodeInfo[float32]) {
		result.NodeCount++
		if n.Leaf {
			result.LeafCount++
		}
		result.MaxDepth = max(result.MaxDepth, uint32(n.Depth))

		for len(result.Occupancy) <= n.Depth {
			result.Occupancy = append(result.Occupancy, 0)
		}
		result.Occupancy[n.Depth] += uint32(n.Members)
	})
	return result
}

func (p *OctreePartition) DebugNodes() []DebugNode {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	nodes := make([]DebugNode, 0, p.tree.NodeCount())
	p.tree.Traverse(func(n octree.NodeInfo[float32]) {
		nodes = append(nodes, DebugNode{
			Depth:   n.Depth,
			Min:     [3]float32{n.Region.Lower.X, n.Region.Lower.Y, n.Region.Lower.Z},
			Max:     [3]float32{n.Region.Upper.X, n.Region.Upper.Y, n.Region.Upper.Z},
			Leaf:    n.Leaf,
			Quads:   n.Members,
			Anchors: n.Static,
		})
	})
	return nodes
}
