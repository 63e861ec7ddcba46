// Package quadtree provides region quadtrees over axis-aligned areas.
//
// A Tree covers a fixed area and stores members by their bounding area. Each
// node is split into four quadrants the first time a member fits in one of
// them, down to a unit (or the configured minimum) size. Members that do not
// fit in any quadrant stay at the node they straddle.
package quadtree

import (
	"iter"

	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/engine"
)

const (
	// ErrTypeInvalidConfig is the error type returned by New and NewSD.
	ErrTypeInvalidConfig = engine.ErrTypeInvalidConfig

	// ErrTypeInvalidArgument is the error type returned when an operation
	// is given an ill-formed area.
	ErrTypeInvalidArgument = engine.ErrTypeInvalidArgument
)

// Kind is the partition of an SDTree a member belongs to.
type Kind = engine.Kind

const (
	Dynamic = engine.Dynamic
	Static  = engine.Static
)

// Member is an item stored in a quadtree.
type Member[T geometry.Scalar] interface {
	// ID identifies the member. Two members with the same ID cannot be
	// stored in the same tree.
	ID() uint64

	// BoundingArea returns the area the member occupies. It is read on
	// insertion only.
	BoundingArea() geometry.Area[T]
}

// Config is the configuration of a quadtree.
type Config[T geometry.Scalar] struct {
	// Name labels the tree in logs and metrics. Defaults to "quadtree".
	Name string

	Position geometry.Vector2[T]
	Size     geometry.Vector2[T]

	// MinimumSize is the smallest size a node can be split into on each
	// axis. The zero value disables the limit.
	MinimumSize geometry.Vector2[T]

	// Prune collapses subtrees once they hold no member.
	Prune bool
}

func (c Config[T]) limited() bool {
	return c.MinimumSize != geometry.Vector2[T]{}
}

func (c Config[T]) validate() error {
	if err := engine.CheckAxis("x", c.Position.X, c.Size.X, c.MinimumSize.X, c.limited()); err != nil {
		return err
	}
	return engine.CheckAxis("y", c.Position.Y, c.Size.Y, c.MinimumSize.Y, c.limited())
}

func (c Config[T]) region() geometry.Area[T] {
	return geometry.NewArea(
		c.Position.X,
		c.Position.Y,
		engine.Upper(c.Position.X, c.Size.X),
		engine.Upper(c.Position.Y, c.Size.Y),
	)
}

// NodeInfo describes a node visited by Traverse.
type NodeInfo[T geometry.Scalar] struct {
	Depth  int
	Region geometry.Area[T]
	Leaf   bool

	// Members is the number of members held by the node itself, static ones
	// included.
	Members int
	Static  int
}

// Tree is a quadtree. It is not safe for concurrent use.
type Tree[T geometry.Scalar, M Member[T]] struct {
	config Config[T]
	tree   *engine.Tree[geometry.Area[T], geometry.Ray2, M]
}

// New creates a quadtree.
func New[T geometry.Scalar, M Member[T]](c Config[T]) (*Tree[T, M], error) {
	return newTree[T, M](c, false)
}

func newTree[T geometry.Scalar, M Member[T]](c Config[T], sd bool) (*Tree[T, M], error) {
	if c.Name == "" {
		c.Name = "quadtree"
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	tree, err := engine.New(engine.Config[geometry.Area[T], geometry.Ray2, M]{
		Name:   c.Name,
		Space:  areaSpace[T]{minimum: c.MinimumSize},
		Region: c.region(),
		Bounds: func(m M) geometry.Area[T] { return m.BoundingArea() },
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
// is already stored or when m does not fit in the tree area. An error is
// returned when the bounding area of m is not well formed.
func (t *Tree[T, M]) Insert(m M) (bool, error) {
	return t.tree.Insert(m, engine.Dynamic)
}

// Remove deletes m from the tree and reports whether it was stored.
func (t *Tree[T, M]) Remove(m M) bool {
	return t.tree.Remove(m)
}

// Clear removes all the members and resets the tree to a single node.
func (t *Tree[T, M]) Clear() {
	t.tree.Clear()
}

// Contains reports whether m is stored.
func (t *Tree[T, M]) Contains(m M) bool {
	return t.tree.Contains(m)
}

// Count returns the number of stored members.
func (t *Tree[T, M]) Count() int {
	return t.tree.Count()
}

// NodeCount returns the number of nodes, root included.
func (t *Tree[T, M]) NodeCount() int {
	return t.tree.NodeCount()
}

// QueryContaining returns the members lying entirely within a, ordered by ID.
func (t *Tree[T, M]) QueryContaining(a geometry.Area[T]) ([]M, error) {
	return t.tree.QueryContaining(a)
}

// QueryOverlapping returns the members sharing at least one point with a,
// ordered by ID.
func (t *Tree[T, M]) QueryOverlapping(a geometry.Area[T]) ([]M, error) {
	return t.tree.QueryOverlapping(a)
}

// QueryRaycast returns the members hit by r, nearest lower corner first.
func (t *Tree[T, M]) QueryRaycast(r geometry.Ray2) []geometry.RaycastResult[M] {
	return t.tree.QueryRaycast(r)
}

// QueryRaycastRegions returns the leaf areas hit by r, nearest lower corner
// first.
func (t *Tree[T, M]) QueryRaycastRegions(r geometry.Ray2) []geometry.RaycastResult[geometry.Area[T]] {
	return t.tree.QueryRaycastRegions(r)
}

// All returns the stored members ordered by ID.
func (t *Tree[T, M]) All() iter.Seq[M] {
	return t.tree.All()
}

// Traverse calls fn for every node in pre-order.
func (t *Tree[T, M]) Traverse(fn func(NodeInfo[T])) error {
	var visit func(engine.NodeInfo[geometry.Area[T]])
	if fn != nil {
		visit = func(n engine.NodeInfo[geometry.Area[T]]) {
			fn(NodeInfo[T]{
				Depth:   n.Depth,
				Region:  n.Region,
				Leaf:    n.Leaf,
				Members: n.Members,
				Static:  n.Static,
			})
		}
	}
	return t.tree.Traverse(visit)
}

// Region returns the area covered by the tree.
func (t *Tree[T, M]) Region() geometry.Area[T] {
	return t.tree.Region()
}

// Name returns the name of the tree.
func (t *Tree[T, M]) Name() string {
	return t.config.Name
}

func (t *Tree[T, M]) Position() geometry.Vector2[T] {
	return t.config.Position
}

func (t *Tree[T, M]) Size() geometry.Vector2[T] {
	return t.config.Size
}

func (t *Tree[T, M]) MinimumSize() geometry.Vector2[T] {
	return t.config.MinimumSize
}

func (t *Tree[T, M]) PositionX() T {
	return t.config.Position.X
}

func (t *Tree[T, M]) PositionY() T {
	return t.config.Position.Y
}

func (t *Tree[T, M]) SizeX() T {
	return t.config.Size.X
}

func (t *Tree[T, M]) SizeY() T {
	return t.config.Size.Y
}

// SDTree is a quadtree whose members are either static or dynamic. Dynamic
// members can be cleared in bulk while static ones stay in place.
type SDTree[T geometry.Scalar, M Member[T]] struct {
	Tree[T, M]
}

// NewSD creates a static/dynamic quadtree.
func NewSD[T geometry.Scalar, M Member[T]](c Config[T]) (*SDTree[T, M], error) {
	t, err := newTree[T, M](c, true)
	if err != nil {
		return nil, err
	}
	return &SDTree[T, M]{Tree: *t}, nil
}

// InsertKind adds m to the tree as a member of the given kind. Insert adds
// dynamic members.
func (t *SDTree[T, M]) InsertKind(m M, k Kind) (bool, error) {
	return t.tree.Insert(m, k)
}

// KindOf returns the kind m was inserted with.
func (t *SDTree[T, M]) KindOf(m M) (Kind, bool) {
	return t.tree.KindOf(m)
}

// ClearDynamic removes every dynamic member. Nodes are kept as they are.
func (t *SDTree[T, M]) ClearDynamic() {
	t.tree.ClearDynamic()
}
