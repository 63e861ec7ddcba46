// Package engine implements the recursive subdivision tree shared by the
// quadtree and octree packages.
//
// A Tree stores its nodes in a single arena. Children of a node occupy
// 2^dimensions consecutive slots and refer back to their parent by index,
// which lets removals walk upward and collapse empty subtrees without any
// pointer cycles. Every member is recorded in a global index ordered by ID
// together with the node that owns it.
package engine

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/biogo/store/llrb"
	"github.com/cznic/mathutil"
)

// Kind is the partition of a tree a member is stored in.
type Kind int

const (
	// Dynamic members are removed by ClearDynamic.
	Dynamic Kind = iota

	// Static members survive ClearDynamic.
	Static
)

func (k Kind) String() string {
	switch k {
	case Dynamic:
		return "dynamic"
	case Static:
		return "static"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Member is an item stored in a tree. ID identifies the member and orders it
// in query results.
type Member interface {
	ID() uint64
}

// Space describes the regions R a tree partitions and the rays X cast
// through them.
type Space[R, X any] interface {
	// Dimensions returns the number of axes of R.
	Dimensions() int

	// WellFormed reports whether r has its lower corner below or equal to
	// its upper corner on every axis.
	WellFormed(r R) bool

	// Contains reports whether inner lies entirely within outer.
	Contains(outer, inner R) bool

	// Overlaps reports whether a and b share at least one point.
	Overlaps(a, b R) bool

	// CanSplit reports whether r is large enough to be divided.
	CanSplit(r R) bool

	// Split divides r into its children, x axis varying fastest.
	Split(r R) []R

	// RayWellFormed reports whether x can be used in a raycast.
	RayWellFormed(x X) bool

	// Intersects reports whether x hits r.
	Intersects(x X, r R) bool

	// Distance returns the distance from the origin of x to the lower
	// corner of r.
	Distance(x X, r R) float64

	// Compare orders regions by their lower corner, x first.
	Compare(a, b R) int
}

// Policy holds the optional behaviours of a tree.
type Policy struct {
	// Prune collapses internal nodes back to leaves once all their children
	// are empty leaves.
	Prune bool

	// StaticDynamic allows members to be inserted as Static.
	StaticDynamic bool
}

// Config is the configuration of a tree.
type Config[R, X any, M Member] struct {
	// Name labels the tree in logs and metrics.
	Name string

	Space  Space[R, X]
	Region R

	// Bounds returns the bounding region of a member. It is called once per
	// insertion and the result is kept for the lifetime of the member in
	// the tree.
	Bounds func(M) R

	Policy Policy
}

// NodeInfo describes a node visited by Traverse.
type NodeInfo[R any] struct {
	Depth   int
	Region  R
	Leaf    bool
	Members int
	Static  int
}

// Tree is a spatial partition of members bounded by regions R.
//
// A Tree is not safe for concurrent use.
type Tree[R, X any, M Member] struct {
	name   string
	space  Space[R, X]
	bounds func(M) R
	policy Policy
	fanout int
	region R

	nodes []node[R, M]
	free  []int
	index llrb.Tree
}

// New creates a tree made of a single leaf covering c.Region.
func New[R, X any, M Member](c Config[R, X, M]) (*Tree[R, X, M], error) {
	if c.Space == nil {
		return nil, errors.New("missing space").
			WithType(ErrTypeInvalidConfig)
	}

	if c.Bounds == nil {
		return nil, errors.New("missing bounds function").
			WithType(ErrTypeInvalidConfig)
	}

	if !c.Space.WellFormed(c.Region) {
		return nil, errors.New("tree region is not well formed").
			WithType(ErrTypeInvalidConfig).
			WithTag("region", fmt.Sprint(c.Region))
	}

	t := &Tree[R, X, M]{
		name:   c.Name,
		space:  c.Space,
		bounds: c.Bounds,
		policy: c.Policy,
		fanout: int(mathutil.ModPowUint64(2, uint64(c.Space.Dimensions()), mathutil.MaxInt)),
		region: c.Region,
	}
	t.reset()
	return t, nil
}

// Insert adds m to the tree.
//
// It returns false when a member with the same ID is already stored, or when
// the bounds of m are not contained in the tree region. An error is returned
// when the bounds of m are not well formed or when kind is not allowed by the
// tree policy.
func (t *Tree[R, X, M]) Insert(m M, kind Kind) (bool, error) {
	id := m.ID()

	if kind != Dynamic && (kind != Static || !t.policy.StaticDynamic) {
		return false, errors.New("member kind not supported").
			WithType(ErrTypeInvalidArgument).
			WithTag("id", id).
			WithTag("kind", kind.String())
	}

	bounds := t.bounds(m)
	if !t.space.WellFormed(bounds) {
		instrumentInsert(t.name, resultInvalidBound)
		return false, errors.New("member bounds are not well formed").
			WithType(ErrTypeInvalidArgument).
			WithTag("id", id).
			WithTag("bounds", fmt.Sprint(bounds))
	}

	if t.lookup(id) != nil {
		instrumentInsert(t.name, resultDuplicate)
		return false, nil
	}

	if !t.space.Contains(t.region, bounds) {
		instrumentInsert(t.name, resultOutOfBounds)
		return false, nil
	}

	e := &entry[R, M]{
		id:     id,
		member: m,
		bounds: bounds,
		kind:   kind,
		node:   t.locate(bounds),
	}
	t.nodes[e.node].add(e)
	t.index.Insert(e)

	instrumentInsert(t.name, resultInserted)
	instrumentMembers(t.name, 1)
	return true, nil
}

// locate returns the index of the node that should hold a member bounded by
// b, splitting leaves on the way down.
func (t *Tree[R, X, M]) locate(b R) int {
	i := 0
	for {
		var children []R
		if t.nodes[i].leaf() {
			if !t.space.CanSplit(t.nodes[i].region) {
				return i
			}
			children = t.space.Split(t.nodes[i].region)
		} else {
			children = t.childRegions(i)
		}

		c := t.firstContaining(children, b)
		if c < 0 {
			return i
		}

		if t.nodes[i].leaf() {
			t.split(i, children)
		}
		i = t.nodes[i].first + c
	}
}

func (t *Tree[R, X, M]) firstContaining(regions []R, b R) int {
	for i, r := range regions {
		if t.space.Contains(r, b) {
			return i
		}
	}
	return -1
}

func (t *Tree[R, X, M]) childRegions(i int) []R {
	first := t.nodes[i].first
	regions := make([]R, t.fanout)
	for c := range regions {
		regions[c] = t.nodes[first+c].region
	}
	return regions
}

func (t *Tree[R, X, M]) split(i int, regions []R) {
	first := t.allocate()
	depth := t.nodes[i].depth + 1

	for c, r := range regions {
		t.nodes[first+c] = node[R, M]{
			region: r,
			parent: i,
			first:  -1,
			depth:  depth,
		}
	}
	t.nodes[i].first = first

	instrumentSplit(t.name)
	logs.WithTag("tree", t.name).
		WithTag("node", i).
		WithTag("depth", t.nodes[i].depth).
		Debug("node split")
}

// allocate returns the index of a free block of fanout consecutive nodes.
func (t *Tree[R, X, M]) allocate() int {
	if n := len(t.free); n > 0 {
		first := t.free[n-1]
		t.free = t.free[:n-1]
		return first
	}

	first := len(t.nodes)
	t.nodes = append(t.nodes, make([]node[R, M], t.fanout)...)
	return first
}

// Remove deletes the member with the ID of m from the tree. It returns false
// when no such member is stored.
func (t *Tree[R, X, M]) Remove(m M) bool {
	e := t.lookup(m.ID())
	if e == nil {
		instrumentRemove(t.name, resultAbsent)
		return false
	}

	if !t.nodes[e.node].remove(e) {
		err := errors.New("member missing from its owning node").
			WithType(ErrTypeCorrupted).
			WithTag("id", e.id).
			WithTag("node", e.node)
		logs.WithTag("tree", t.name).Error(err)
		panic(err)
	}
	t.index.Delete(e)

	if t.policy.Prune {
		t.prune(e.node)
	}

	instrumentRemove(t.name, resultRemoved)
	instrumentMembers(t.name, -1)
	return true
}

// prune walks from node i to the root, collapsing internal nodes whose
// children are all empty leaves. The walk stops at the first internal node
// that cannot collapse since none of its ancestors can either.
func (t *Tree[R, X, M]) prune(i int) {
	for i >= 0 {
		if !t.nodes[i].leaf() {
			if !t.collapsible(i) {
				return
			}
			t.collapse(i)
		}
		i = t.nodes[i].parent
	}
}

func (t *Tree[R, X, M]) collapsible(i int) bool {
	first := t.nodes[i].first
	for c := first; c < first+t.fanout; c++ {
		if !t.nodes[c].leaf() || !t.nodes[c].empty() {
			return false
		}
	}
	return true
}

func (t *Tree[R, X, M]) collapse(i int) {
	first := t.nodes[i].first
	for c := first; c < first+t.fanout; c++ {
		t.nodes[c] = node[R, M]{parent: -1, first: -1}
	}
	t.free = append(t.free, first)
	t.nodes[i].first = -1

	instrumentCollapse(t.name)
	logs.WithTag("tree", t.name).
		WithTag("node", i).
		WithTag("depth", t.nodes[i].depth).
		Debug("node collapsed")
}

// Clear removes every member and resets the tree to a single leaf.
func (t *Tree[R, X, M]) Clear() {
	instrumentMembers(t.name, -t.index.Len())
	t.reset()
	logs.WithTag("tree", t.name).Debug("tree cleared")
}

func (t *Tree[R, X, M]) reset() {
	t.nodes = []node[R, M]{{
		region: t.region,
		parent: -1,
		first:  -1,
	}}
	t.free = nil
	t.index = llrb.Tree{}
}

// ClearDynamic removes every dynamic member. The node structure is left
// unchanged.
func (t *Tree[R, X, M]) ClearDynamic() {
	var dynamic []*entry[R, M]
	t.index.Do(func(c llrb.Comparable) bool {
		if e := c.(*entry[R, M]); e.kind == Dynamic {
			dynamic = append(dynamic, e)
		}
		return false
	})

	for _, e := range dynamic {
		t.nodes[e.node].remove(e)
		t.index.Delete(e)
	}

	instrumentMembers(t.name, -len(dynamic))
	logs.WithTag("tree", t.name).
		WithTag("removed", len(dynamic)).
		Debug("dynamic members cleared")
}

// Contains reports whether a member with the ID of m is stored.
func (t *Tree[R, X, M]) Contains(m M) bool {
	return t.lookup(m.ID()) != nil
}

// KindOf returns the kind m was inserted with.
func (t *Tree[R, X, M]) KindOf(m M) (Kind, bool) {
	e := t.lookup(m.ID())
	if e == nil {
		return Dynamic, false
	}
	return e.kind, true
}

// Count returns the number of stored members.
func (t *Tree[R, X, M]) Count() int {
	return t.index.Len()
}

// NodeCount returns the number of nodes in the tree, root included.
func (t *Tree[R, X, M]) NodeCount() int {
	return len(t.nodes) - len(t.free)*t.fanout
}

// Region returns the region covered by the tree.
func (t *Tree[R, X, M]) Region() R {
	return t.region
}

// Name returns the name the tree reports in logs and metrics.
func (t *Tree[R, X, M]) Name() string {
	return t.name
}

// All returns the stored members in ID order.
func (t *Tree[R, X, M]) All() iter.Seq[M] {
	return func(yield func(M) bool) {
		t.index.Do(func(c llrb.Comparable) bool {
			return !yield(c.(*entry[R, M]).member)
		})
	}
}

// Traverse calls fn for every node in pre-order, children in split order.
func (t *Tree[R, X, M]) Traverse(fn func(NodeInfo[R])) error {
	if fn == nil {
		return errors.New("nil visitor").
			WithType(ErrTypeInvalidArgument)
	}

	t.traverse(0, fn)
	return nil
}

func (t *Tree[R, X, M]) traverse(i int, fn func(NodeInfo[R])) {
	n := &t.nodes[i]
	fn(NodeInfo[R]{
		Depth:   n.depth,
		Region:  n.region,
		Leaf:    n.leaf(),
		Members: len(n.members[Dynamic]) + len(n.members[Static]),
		Static:  len(n.members[Static]),
	})

	if n.leaf() {
		return
	}
	for c := n.first; c < n.first+t.fanout; c++ {
		t.traverse(c, fn)
	}
}

func (t *Tree[R, X, M]) lookup(id uint64) *entry[R, M] {
	c := t.index.Get(&entry[R, M]{id: id})
	if c == nil {
		return nil
	}
	return c.(*entry[R, M])
}

type node[R any, M Member] struct {
	region R
	parent int
	first  int
	depth  int

	// members is indexed by Kind.
	members [2]map[uint64]*entry[R, M]
}

func (n *node[R, M]) leaf() bool {
	return n.first < 0
}

func (n *node[R, M]) empty() bool {
	return len(n.members[Dynamic]) == 0 && len(n.members[Static]) == 0
}

func (n *node[R, M]) add(e *entry[R, M]) {
	if n.members[e.kind] == nil {
		n.members[e.kind] = make(map[uint64]*entry[R, M])
	}
	n.members[e.kind][e.id] = e
}

func (n *node[R, M]) remove(e *entry[R, M]) bool {
	if _, ok := n.members[e.kind][e.id]; !ok {
		return false
	}
	delete(n.members[e.kind], e.id)
	return true
}

// entry is the global index record of a member.
type entry[R any, M Member] struct {
	id     uint64
	member M
	bounds R
	kind   Kind
	node   int
}

func (e *entry[R, M]) Compare(c llrb.Comparable) int {
	return cmp.Compare(e.id, c.(*entry[R, M]).id)
}
