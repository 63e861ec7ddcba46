// Package octree provides region octrees over axis-aligned volumes.
//
// Trees behave like their quadtree counterparts with eight octants per split.
package octree

import (
	"iter"

	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/engine"
)

const (
	ErrTypeInvalidConfig   = engine.ErrTypeInvalidConfig
	ErrTypeInvalidArgument = engine.ErrTypeInvalidArgument
)

// Kind is the partition of an SDTree a member belongs to.
type Kind = engine.Kind

const (
	Dynamic = engine.Dynamic
	Static  = engine.Static
)

// Member is an item stored in an octree.
type Member[T geometry.Scalar] interface {
	ID() uint64
	BoundingVolume() geometry.Volume[T]
}

// Config is the configuration of an octree.
type Config[T geometry.Scalar] struct {
	// Name labels the tree in logs and metrics. Defaults to "octree".
	Name string

	Position geometry.Vector3[T]
	Size     geometry.Vector3[T]

	// MinimumSize is the smallest size a node can be split into on each
	// axis. The zero value disables the limit.
	MinimumSize geometry.Vector3[T]

	Prune bool
}

func (c Config[T]) limited() bool {
	return c.MinimumSize != geometry.Vector3[T]{}
}

func (c Config[T]) validate() error {
	limited := c.limited()
	if err := engine.CheckAxis("x", c.Position.X, c.Size.X, c.MinimumSize.X, limited); err != nil {
		return err
	}
	if err := engine.CheckAxis("y", c.Position.Y, c.Size.Y, c.MinimumSize.Y, limited); err != nil {
		return err
	}
	return engine.CheckAxis("z", c.Position.Z, c.Size.Z, c.MinimumSize.Z, limited)
}

func (c Config[T]) region() geometry.Volume[T] {
	return geometry.NewVolume(
		c.Position.X,
		c.Position.Y,
		c.Position.Z,
		engine.Upper(c.Position.X, c.Size.X),
		engine.Upper(c.Position.Y, c.Size.Y),
		engine.Upper(c.Position.Z, c.Size.Z),
	)
}

// NodeInfo describes a node visited by Traverse.
type NodeInfo[T geometry.Scalar] struct {
	Depth   int
	Region  geometry.Volume[T]
	Leaf    bool
	Members int
	Static  int
}

// Tree is an octree. It is not safe for concurrent use.
type Tree[T geometry.Scalar, M Member[T]] struct {
	config Config[T]
	tree   *engine.Tree[geometry.Volume[T], geometry.Ray3, M]
}

// New creates an octree.
func New[T geometry.Scalar, M Member[T]](c Config[T]) (*Tree[T, M], error) {
	return newTree[T, M](c, false)
}

func newTree[T geometry.Scalar, M Member[T]](c Config[T], sd bool) (*Tree[T, M], error) {
	if c.Name == "" {
		c.Name = "octree"
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	tree, err := engine.New(engine.Config[geometry.Volume[T], geometry.Ray3, M]{
		Name:   c.Name,
		Space:  volumeSpace[T]{minimum: c.MinimumSize},
		Region: c.region(),
		Bounds: func(m M) geometry.Volume[T] { return m.BoundingVolume() },
		Policy: engine.Policy{
			Prune:         c.Prune,
			StaticDynamic: sd,
		},
	})
	if err != nil {
		return nil, err
	}

	return &Tree[T, M]{
		config: c,
		tree:   tree,
	}, nil
}

// Insert adds m to the tree. It returns false when a member with the same ID
// is already stored or when m does not fit in the tree volume.
func (t *Tree[T, M]) Insert(m M) (bool, error) {
	return t.tree.Insert(m, engine.Dynamic)
}

// Remove deletes m from the tree and reports whether it was stored.
func (t *Tree[T, M]) Remove(m M) bool {
	return t.tree.Remove(m)
}

func (t *Tree[T, M]) Clear() {
	t.tree.Clear()
}

func (t *Tree[T, M]) Contains(m M) bool {
	return t.tree.Contains(m)
}

func (t *Tree[T, M]) Count() int {
	return t.tree.Count()
}

func (t *Tree[T, M]) NodeCount() int {
	return t.tree.NodeCount()
}

// QueryContaining returns the members lying entirely within v, ordered by
// ID.
func (t *Tree[T, M]) QueryContaining(v geometry.Volume[T]) ([]M, error) {
	return t.tree.QueryContaining(v)
}

// QueryOverlapping returns the members sharing at least one point with v,
// ordered by ID.
func (t *Tree[T, M]) QueryOverlapping(v geometry.Volume[T]) ([]M, error) {
	return t.tree.QueryOverlapping(v)
}

// QueryRaycast returns the members hit by r, nearest lower corner first.
func (t *Tree[T, M]) QueryRaycast(r geometry.Ray3) []geometry.RaycastResult[M] {
	return t.tree.QueryRaycast(r)
}

// QueryRaycastRegions returns the leaf volumes hit by r, nearest lower corner
// first.
func (t *Tree[T, M]) QueryRaycastRegions(r geometry.Ray3) []geometry.RaycastResult[geometry.Volume[T]] {
	return t.tree.QueryRaycastRegions(r)
}

// All returns the stored members ordered by ID.
func (t *Tree[T, M]) All() iter.Seq[M] {
	return t.tree.All()
}

// Traverse calls fn for every node in pre-order.
func (t *Tree[T, M]) Traverse(fn func(NodeInfo[T])) error {
	var visit func(engine.NodeInfo[geometry.Volume[T]])
	if fn != nil {
		visit = func(n engine.NodeInfo[geometry.Volume[T]]) {
			fn(NodeInfo[T](n))
		}
	}
	return t.tree.Traverse(visit)
}

func (t *Tree[T, M]) Region() geometry.Volume[T] {
	return t.tree.Region()
}

func (t *Tree[T, M]) Name() string {
	return t.config.Name
}

func (t *Tree[T, M]) Position() geometry.Vector3[T] {
	return t.config.Position
}

func (t *Tree[T, M]) Size() geometry.Vector3[T] {
	return t.config.Size
}

func (t *Tree[T, M]) MinimumSize() geometry.Vector3[T] {
	return t.config.MinimumSize
}

func (t *Tree[T, M]) PositionX() T {
	return t.config.Position.X
}

func (t *Tree[T, M]) PositionY() T {
	return t.config.Position.Y
}

func (t *Tree[T, M]) PositionZ() T {
	return t.config.Position.Z
}

func (t *Tree[T, M]) SizeX() T {
	return t.config.Size.X
}

func (t *Tree[T, M]) SizeY() T {
	return t.config.Size.Y
}

func (t *Tree[T, M]) SizeZ() T {
	return t.config.Size.Z
}

// SDTree is an octree whose members are either static or dynamic.
type SDTree[T geometry.Scalar, M Member[T]] struct {
	Tree[T, M]
}

// NewSD creates a static/dynamic octree.
func NewSD[T geometry.Scalar, M Member[T]](c Config[T]) (*SDTree[T, M], error) {
	t, err := newTree[T, M](c, true)
	if err != nil {
		return nil, err
	}
	return &SDTree[T, M]{Tree: *t}, nil
}

// InsertKind adds m to the tree as a member of the given kind.
func (t *SDTree[T, M]) InsertKind(m M, k Kind) (bool, error) {
	return t.tree.Insert(m, k)
}

func (t *SDTree[T, M]) KindOf(m M) (Kind, bool) {
	return t.tree.KindOf(m)
}

// ClearDynamic removes every dynamic member. Nodes are kept as they are.
func (t *SDTree[T, M]) ClearDynamic() {
	t.tree.ClearDynamic()
}
