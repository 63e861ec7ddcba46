package engine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatialtree/geometry"
)

// QueryContaining returns the members whose bounds lie entirely within q,
// ordered by ID.
func (t *Tree[R, X, M]) QueryContaining(q R) ([]M, error) {
	if !t.space.WellFormed(q) {
		return nil, invalidQueryRegion(q)
	}

	var found []*entry[R, M]
	t.containing(0, q, &found)
	return members(found), nil
}

func (t *Tree[R, X, M]) containing(i int, q R, found *[]*entry[R, M]) {
	n := &t.nodes[i]
	if t.space.Contains(q, n.region) {
		t.collect(i, found)
		return
	}

	for _, set := range n.members {
		for _, e := range set {
			if t.space.Contains(q, e.bounds) {
				*found = append(*found, e)
			}
		}
	}

	if n.leaf() {
		return
	}
	for c := n.first; c < n.first+t.fanout; c++ {
		if t.space.Overlaps(q, t.nodes[c].region) {
			t.containing(c, q, found)
		}
	}
}

// collect appends every member of the subtree rooted at node i.
func (t *Tree[R, X, M]) collect(i int, found *[]*entry[R, M]) {
	n := &t.nodes[i]
	for _, set := range n.members {
		for _, e := range set {
			*found = append(*found, e)
		}
	}

	if n.leaf() {
		return
	}
	for c := n.first; c < n.first+t.fanout; c++ {
		t.collect(c, found)
	}
}

// QueryOverlapping returns the members whose bounds share at least one point
// with q, ordered by ID.
func (t *Tree[R, X, M]) QueryOverlapping(q R) ([]M, error) {
	if !t.space.WellFormed(q) {
		return nil, invalidQueryRegion(q)
	}

	var found []*entry[R, M]
	if t.space.Overlaps(q, t.region) {
		t.overlapping(0, q, &found)
	}
	return members(found), nil
}

func (t *Tree[R, X, M]) overlapping(i int, q R, found *[]*entry[R, M]) {
	n := &t.nodes[i]
	for _, set := range n.members {
		for _, e := range set {
			if t.space.Overlaps(q, e.bounds) {
				*found = append(*found, e)
			}
		}
	}

	if n.leaf() {
		return
	}
	for c := n.first; c < n.first+t.fanout; c++ {
		if t.space.Overlaps(q, t.nodes[c].region) {
			t.overlapping(c, q, found)
		}
	}
}

// QueryRaycast returns the members hit by x, ordered by the distance from the
// ray origin to their lower corner, then by ID. Rays that are not well formed
// hit nothing.
func (t *Tree[R, X, M]) QueryRaycast(x X) []geometry.RaycastResult[M] {
	if !t.space.RayWellFormed(x) {
		return nil
	}

	var hits []geometry.RaycastResult[M]
	if t.space.Intersects(x, t.region) {
		t.raycast(0, x, &hits)
	}

	slices.SortFunc(hits, func(a, b geometry.RaycastResult[M]) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID(), b.Item.ID())
	})
	return hits
}

func (t *Tree[R, X, M]) raycast(i int, x X, hits *[]geometry.RaycastResult[M]) {
	n := &t.nodes[i]
	for _, set := range n.members {
		for _, e := range set {
			if t.space.Intersects(x, e.bounds) {
				*hits = append(*hits, geometry.RaycastResult[M]{
					Item:     e.member,
					Distance: t.space.Distance(x, e.bounds),
				})
			}
		}
	}

	if n.leaf() {
		return
	}
	for c := n.first; c < n.first+t.fanout; c++ {
		if t.space.Intersects(x, t.nodes[c].region) {
			t.raycast(c, x, hits)
		}
	}
}

// QueryRaycastRegions returns the leaf regions hit by x, ordered by the
// distance from the ray origin to their lower corner, then by lower corner.
func (t *Tree[R, X, M]) QueryRaycastRegions(x X) []geometry.RaycastResult[R] {
	if !t.space.RayWellFormed(x) {
		return nil
	}

	var hits []geometry.RaycastResult[R]
	if t.space.Intersects(x, t.region) {
		t.raycastRegions(0, x, &hits)
	}

	slices.SortFunc(hits, func(a, b geometry.RaycastResult[R]) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return t.space.Compare(a.Item, b.Item)
	})
	return hits
}

func (t *Tree[R, X, M]) raycastRegions(i int, x X, hits *[]geometry.RaycastResult[R]) {
	n := &t.nodes[i]
	if n.leaf() {
		*hits = append(*hits, geometry.RaycastResult[R]{
			Item:     n.region,
			Distance: t.space.Distance(x, n.region),
		})
		return
	}

	for c := n.first; c < n.first+t.fanout; c++ {
		if t.space.Intersects(x, t.nodes[c].region) {
			t.raycastRegions(c, x, hits)
		}
	}
}

func members[R any, M Member](entries []*entry[R, M]) []M {
	slices.SortFunc(entries, func(a, b *entry[R, M]) int {
		return cmp.Compare(a.id, b.id)
	})

	res := make([]M, len(entries))
	for i, e := range entries {
		res[i] = e.member
	}
	return res
}

func invalidQueryRegion(q any) error {
	return errors.New("query region is not well formed").
		WithType(ErrTypeInvalidArgument).
		WithTag("region", fmt.Sprint(q))
}
