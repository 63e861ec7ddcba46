package models

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// A sequential id generator. The zero value is ready to use.
type SequentialIDGenerator[T constraints.Unsigned] struct {
	mutex       sync.Mutex
	currentID   T
	reusableIDs []T
}

// New returns a sequential id. Reusable ids are returned first, the most
// recently released one first.
func (g *SequentialIDGenerator[T]) New() T {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if n := len(g.reusableIDs); n != 0 {
		id := g.reusableIDs[n-1]
		g.reusableIDs = g.reusableIDs[:n-1]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable.
func (g *SequentialIDGenerator[T]) Reuse(id T) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.reusableIDs = append(g.reusableIDs, id)
}
