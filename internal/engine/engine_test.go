package engine

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatialtree/geometry"
	"github.com/aukilabs/spatialtree/internal/split"
	"github.com/stretchr/testify/require"
)

// segment is a one dimensional inclusive region, enough to exercise the
// engine with a fanout of 2.
type segment struct {
	lo, hi int32
}

type lineRay struct {
	origin, direction float64
}

type lineSpace struct {
	minimum int32
}

func (lineSpace) Dimensions() int { return 1 }

func (lineSpace) WellFormed(s segment) bool { return s.lo <= s.hi }

func (lineSpace) Contains(outer, inner segment) bool {
	return inner.lo >= outer.lo && inner.hi <= outer.hi
}

func (lineSpace) Overlaps(a, b segment) bool {
	return a.lo <= b.hi && b.lo <= a.hi
}

func (s lineSpace) CanSplit(r segment) bool {
	return split.Span(r.lo, r.hi) >= 2*float64(max(s.minimum, 1))
}

func (lineSpace) Split(r segment) []segment {
	aLo, aHi, bLo, bHi := split.Int32(r.lo, r.hi)
	return []segment{{aLo, aHi}, {bLo, bHi}}
}

func (lineSpace) RayWellFormed(p lineRay) bool {
	return !math.IsNaN(p.origin) && !math.IsNaN(p.direction)
}

func (lineSpace) Intersects(p lineRay, r segment) bool {
	lo, hi := float64(r.lo), float64(r.hi)
	switch {
	case p.direction > 0:
		return hi >= p.origin
	case p.direction < 0:
		return lo <= p.origin
	default:
		return p.origin >= lo && p.origin <= hi
	}
}

func (lineSpace) Distance(p lineRay, r segment) float64 {
	return math.Abs(float64(r.lo) - p.origin)
}

func (lineSpace) Compare(a, b segment) int {
	return cmp.Compare(a.lo, b.lo)
}

type item struct {
	id  uint64
	seg segment
}

func (i *item) ID() uint64 { return i.id }

func newLineTree(t *testing.T, size int32, policy Policy) *Tree[segment, lineRay, *item] {
	tree, err := New(Config[segment, lineRay, *item]{
		Name:   t.Name(),
		Space:  lineSpace{},
		Region: segment{0, size - 1},
		Bounds: func(i *item) segment { return i.seg },
		Policy: policy,
	})
	require.NoError(t, err)
	return tree
}

func countNodes[R, X any, M Member](t *testing.T, tree *Tree[R, X, M]) int {
	var count int
	err := tree.Traverse(func(NodeInfo[R]) {
		count++
	})
	require.NoError(t, err)
	return count
}

func TestNew(t *testing.T) {
	t.Run("fanout follows dimensions", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})
		require.Equal(t, 2, tree.fanout)
		require.Equal(t, 1, tree.NodeCount())
		require.Equal(t, segment{0, 7}, tree.Region())
	})

	t.Run("missing space", func(t *testing.T) {
		_, err := New(Config[segment, lineRay, *item]{
			Region: segment{0, 7},
			Bounds: func(i *item) segment { return i.seg },
		})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidConfig, errors.Type(err))
	})

	t.Run("missing bounds", func(t *testing.T) {
		_, err := New(Config[segment, lineRay, *item]{
			Space:  lineSpace{},
			Region: segment{0, 7},
		})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidConfig, errors.Type(err))
	})

	t.Run("ill formed region", func(t *testing.T) {
		_, err := New(Config[segment, lineRay, *item]{
			Space:  lineSpace{},
			Region: segment{7, 0},
			Bounds: func(i *item) segment { return i.seg },
		})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidConfig))
	})
}

func TestInsert(t *testing.T) {
	t.Run("point splits down to unit leaves", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		ok, err := tree.Insert(&item{id: 1, seg: segment{0, 0}}, Dynamic)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 7, tree.NodeCount())
		require.Equal(t, 7, countNodes(t, tree))
		require.Equal(t, 1, tree.Count())

		e := tree.lookup(1)
		require.Equal(t, segment{0, 0}, tree.nodes[e.node].region)
		require.Equal(t, 3, tree.nodes[e.node].depth)
	})

	t.Run("straddling member stays at the root", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		ok, err := tree.Insert(&item{id: 1, seg: segment{3, 4}}, Dynamic)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 1, tree.NodeCount())
		require.Equal(t, 0, tree.lookup(1).node)
	})

	t.Run("existing members are not moved on split", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		_, err := tree.Insert(&item{id: 1, seg: segment{3, 4}}, Dynamic)
		require.NoError(t, err)
		_, err = tree.Insert(&item{id: 2, seg: segment{0, 1}}, Dynamic)
		require.NoError(t, err)

		require.Equal(t, 0, tree.lookup(1).node)
		require.NotEqual(t, 0, tree.lookup(2).node)
	})

	t.Run("duplicate id", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{StaticDynamic: true})

		ok, err := tree.Insert(&item{id: 1, seg: segment{1, 1}}, Static)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = tree.Insert(&item{id: 1, seg: segment{5, 6}}, Dynamic)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 1, tree.Count())
	})

	t.Run("out of bounds", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		ok, err := tree.Insert(&item{id: 1, seg: segment{6, 8}}, Dynamic)
		require.NoError(t, err)
		require.False(t, ok)
		require.Zero(t, tree.Count())
	})

	t.Run("ill formed bounds", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		ok, err := tree.Insert(&item{id: 1, seg: segment{4, 2}}, Dynamic)
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidArgument, errors.Type(err))
		require.False(t, ok)
		require.Equal(t, 1, tree.NodeCount())
	})

	t.Run("static without static dynamic policy", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})

		_, err := tree.Insert(&item{id: 1, seg: segment{1, 1}}, Static)
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidArgument, errors.Type(err))
		require.Zero(t, tree.Count())
	})

	t.Run("minimum size stops splitting", func(t *testing.T) {
		tree, err := New(Config[segment, lineRay, *item]{
			Space:  lineSpace{minimum: 4},
			Region: segment{0, 15},
			Bounds: func(i *item) segment { return i.seg },
		})
		require.NoError(t, err)

		_, err = tree.Insert(&item{id: 1, seg: segment{0, 0}}, Dynamic)
		require.NoError(t, err)
		require.Equal(t, 3, tree.NodeCount())
		require.Equal(t, segment{0, 7}, tree.nodes[tree.lookup(1).node].region)
	})
}

func TestRemove(t *testing.T) {
	t.Run("absent member", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})
		require.False(t, tree.Remove(&item{id: 42}))
	})

	t.Run("without pruning", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})
		m := &item{id: 1, seg: segment{0, 0}}

		_, err := tree.Insert(m, Dynamic)
		require.NoError(t, err)
		require.True(t, tree.Remove(m))
		require.False(t, tree.Contains(m))
		require.Zero(t, tree.Count())
		require.Equal(t, 7, tree.NodeCount())
	})

	t.Run("with pruning", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{Prune: true})
		a := &item{id: 1, seg: segment{0, 0}}
		b := &item{id: 2, seg: segment{7, 7}}

		_, err := tree.Insert(a, Dynamic)
		require.NoError(t, err)
		_, err = tree.Insert(b, Dynamic)
		require.NoError(t, err)
		require.Equal(t, 11, tree.NodeCount())

		require.True(t, tree.Remove(a))
		require.Equal(t, 7, tree.NodeCount())
		require.Equal(t, 7, countNodes(t, tree))

		require.True(t, tree.Remove(b))
		require.Equal(t, 1, tree.NodeCount())
		require.Equal(t, 1, countNodes(t, tree))
	})

	t.Run("collapsed blocks are reused", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{Prune: true})
		m := &item{id: 1, seg: segment{0, 0}}

		_, err := tree.Insert(m, Dynamic)
		require.NoError(t, err)
		arena := len(tree.nodes)

		require.True(t, tree.Remove(m))
		_, err = tree.Insert(&item{id: 2, seg: segment{5, 5}}, Dynamic)
		require.NoError(t, err)
		require.Equal(t, arena, len(tree.nodes))
		require.Equal(t, 7, tree.NodeCount())
	})

	t.Run("member held at an internal node", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{Prune: true})
		straddling := &item{id: 1, seg: segment{3, 4}}
		leaf := &item{id: 2, seg: segment{0, 0}}

		_, err := tree.Insert(straddling, Dynamic)
		require.NoError(t, err)
		_, err = tree.Insert(leaf, Dynamic)
		require.NoError(t, err)

		require.True(t, tree.Remove(leaf))
		require.Equal(t, 1, tree.NodeCount())
		require.True(t, tree.Contains(straddling))
		require.Equal(t, 0, tree.lookup(1).node)
	})

	t.Run("corrupted tree panics", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{})
		m := &item{id: 1, seg: segment{2, 2}}

		_, err := tree.Insert(m, Dynamic)
		require.NoError(t, err)

		e := tree.lookup(1)
		delete(tree.nodes[e.node].members[Dynamic], 1)
		require.Panics(t, func() {
			tree.Remove(m)
		})
	})
}

func TestInsertRemoveInverse(t *testing.T) {
	for _, prune := range []bool{false, true} {
		tree := newLineTree(t, 64, Policy{Prune: prune})
		rnd := rand.New(rand.NewSource(1))

		var items []*item
		for i := 0; i < 200; i++ {
			lo := rnd.Int31n(64)
			hi := lo + rnd.Int31n(64-lo)
			items = append(items, &item{id: uint64(i), seg: segment{lo, hi}})
		}

		for _, m := range items {
			ok, err := tree.Insert(m, Dynamic)
			require.NoError(t, err)
			require.True(t, ok)
		}
		require.Equal(t, len(items), tree.Count())

		rnd.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		for _, m := range items {
			require.True(t, tree.Remove(m))
			require.False(t, tree.Contains(m))
		}
		require.Zero(t, tree.Count())

		if prune {
			require.Equal(t, 1, tree.NodeCount())
		}
	}
}

func TestClear(t *testing.T) {
	t.Run("clear", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{Prune: true})
		for i := int32(0); i < 8; i++ {
			_, err := tree.Insert(&item{id: uint64(i), seg: segment{i, i}}, Dynamic)
			require.NoError(t, err)
		}

		tree.Clear()
		require.Zero(t, tree.Count())
		require.Equal(t, 1, tree.NodeCount())
		require.Equal(t, segment{0, 7}, tree.Region())

		ok, err := tree.Insert(&item{id: 1, seg: segment{1, 1}}, Dynamic)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("clear dynamic", func(t *testing.T) {
		tree := newLineTree(t, 8, Policy{StaticDynamic: true})
		for i := int32(0); i < 4; i++ {
			_, err := tree.Insert(&item{id: uint64(i), seg: segment{i, i}}, Static)
			require.NoError(t, err)
		}
		for i := int32(4); i < 8; i++ {
			_, err := tree.Insert(&item{id: uint64(i), seg: segment{i, i}}, Dynamic)
			require.NoError(t, err)
		}
		nodes := tree.NodeCount()

		tree.ClearDynamic()
		require.Equal(t, 4, tree.Count())
		require.Equal(t, nodes, tree.NodeCount())

		var ids []uint64
		for m := range tree.All() {
			ids = append(ids, m.ID())
			kind, ok := tree.KindOf(m)
			require.True(t, ok)
			require.Equal(t, Static, kind)
		}
		require.Equal(t, []uint64{0, 1, 2, 3}, ids)
	})
}

func TestAll(t *testing.T) {
	tree := newLineTree(t, 16, Policy{})
	for _, id := range []uint64{9, 3, 12, 1} {
		_, err := tree.Insert(&item{id: id, seg: segment{int32(id), int32(id)}}, Dynamic)
		require.NoError(t, err)
	}

	var ids []uint64
	for m := range tree.All() {
		ids = append(ids, m.ID())
	}
	require.Equal(t, []uint64{1, 3, 9, 12}, ids)

	ids = nil
	for m := range tree.All() {
		if m.ID() > 3 {
			break
		}
		ids = append(ids, m.ID())
	}
	require.Equal(t, []uint64{1, 3}, ids)
}

func TestTraverse(t *testing.T) {
	tree := newLineTree(t, 4, Policy{})
	_, err := tree.Insert(&item{id: 1, seg: segment{3, 3}}, Dynamic)
	require.NoError(t, err)

	var visited []NodeInfo[segment]
	err = tree.Traverse(func(n NodeInfo[segment]) {
		visited = append(visited, n)
	})
	require.NoError(t, err)
	require.Equal(t, []NodeInfo[segment]{
		{Depth: 0, Region: segment{0, 3}},
		{Depth: 1, Region: segment{0, 1}, Leaf: true},
		{Depth: 1, Region: segment{2, 3}},
		{Depth: 2, Region: segment{2, 2}, Leaf: true},
		{Depth: 2, Region: segment{3, 3}, Leaf: true, Members: 1},
	}, visited)

	err = tree.Traverse(nil)
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidArgument, errors.Type(err))
}

func TestQueries(t *testing.T) {
	tree := newLineTree(t, 128, Policy{})
	rnd := rand.New(rand.NewSource(1))

	var items []*item
	for i := 0; i < 300; i++ {
		lo := rnd.Int31n(128)
		hi := lo + rnd.Int31n(min(128-lo, 16))
		m := &item{id: uint64(rnd.Int63()), seg: segment{lo, hi}}
		ok, err := tree.Insert(m, Dynamic)
		require.NoError(t, err)
		if ok {
			items = append(items, m)
		}
	}

	oracle := func(match func(segment) bool) []uint64 {
		var ids []uint64
		for _, m := range items {
			if match(m.seg) {
				ids = append(ids, m.id)
			}
		}
		slices.Sort(ids)
		return ids
	}

	ids := func(res []*item) []uint64 {
		var out []uint64
		for _, m := range res {
			out = append(out, m.id)
		}
		return out
	}

	for i := 0; i < 100; i++ {
		lo := rnd.Int31n(128)
		q := segment{lo, lo + rnd.Int31n(128-lo)}

		containing, err := tree.QueryContaining(q)
		require.NoError(t, err)
		require.Equal(t, oracle(func(s segment) bool {
			return lineSpace{}.Contains(q, s)
		}), ids(containing))

		overlapping, err := tree.QueryOverlapping(q)
		require.NoError(t, err)
		require.Equal(t, oracle(func(s segment) bool {
			return lineSpace{}.Overlaps(q, s)
		}), ids(overlapping))
	}

	_, err := tree.QueryContaining(segment{5, 1})
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidArgument, errors.Type(err))

	_, err = tree.QueryOverlapping(segment{5, 1})
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidArgument, errors.Type(err))
}

func TestQueryRaycast(t *testing.T) {
	tree := newLineTree(t, 16, Policy{})
	for _, m := range []*item{
		{id: 4, seg: segment{10, 12}},
		{id: 3, seg: segment{10, 10}},
		{id: 2, seg: segment{6, 6}},
		{id: 1, seg: segment{1, 2}},
	} {
		_, err := tree.Insert(m, Dynamic)
		require.NoError(t, err)
	}

	hits := tree.QueryRaycast(lineRay{origin: 5, direction: 1})
	require.Len(t, hits, 3)
	require.Equal(t, uint64(2), hits[0].Item.ID())
	require.Equal(t, 1.0, hits[0].Distance)
	require.Equal(t, uint64(3), hits[1].Item.ID())
	require.Equal(t, uint64(4), hits[2].Item.ID())
	require.Equal(t, hits[1].Distance, hits[2].Distance)

	require.Empty(t, tree.QueryRaycast(lineRay{origin: math.NaN(), direction: 1}))

	regions := tree.QueryRaycastRegions(lineRay{origin: 13, direction: -1})
	require.NotEmpty(t, regions)
	for i := 1; i < len(regions); i++ {
		require.LessOrEqual(t, regions[i-1].Distance, regions[i].Distance)
	}
	require.IsType(t, []geometry.RaycastResult[segment]{}, regions)
}
