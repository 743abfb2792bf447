// Package idgen issues process-wide unique identifiers for kernel entities.
package idgen

import (
	"sync"
)

// Category identifies an id space. Ids are monotonic within a category and
// never reused while the process lives.
type Category string

const (
	CategoryPropertyIndex Category = "property_index"
	CategoryTransaction   Category = "transaction"
)

// Generator allocates monotonically increasing ids per category
type Generator struct {
	mu       sync.Mutex
	counters map[Category]uint64
}

// NewGenerator creates a generator with all categories starting at zero
func NewGenerator() *Generator {
	return &Generator{
		counters: make(map[Category]uint64),
	}
}

// NextID allocates the next id in the given category. The first id issued
// for a category is 1; 0 is never a valid id.
func (g *Generator) NextID(category Category) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters[category]++
	return g.counters[category]
}

// CurrentID returns the most recently issued id for a category, or 0 if
// none has been issued yet
func (g *Generator) CurrentID(category Category) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.counters[category]
}

// SetHighWaterMark moves a category's counter forward so that subsequent
// ids are allocated above ids recovered from durable storage. Moving the
// counter backwards is refused.
func (g *Generator) SetHighWaterMark(category Category, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id > g.counters[category] {
		g.counters[category] = id
	}
}
