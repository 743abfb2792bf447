package propindex

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/verge-graph/verge/pkg/events"
	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
)

// TestRegistryInvariants uses property-based testing to verify the cache
// invariants that must hold for any sequence of creates and removes
func TestRegistryInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Property 1: every created entry resolves through both views
	properties.Property("created entries are visible in both views", prop.ForAll(
		func(keys []string) bool {
			registry := newPropertyTestRegistry()

			for _, key := range keys {
				index, err := registry.Create(context.Background(), key)
				if err != nil {
					return false
				}
				byID, err := registry.LookupByID(context.Background(), index.ID())
				if err != nil || byID != index {
					return false
				}
				found := false
				for _, e := range registry.LookupByKey(key) {
					if e == index {
						found = true
					}
				}
				if !found {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	// Property 2: ids are unique across all creates, duplicate keys included
	properties.Property("ids are never reused", prop.ForAll(
		func(keys []string) bool {
			registry := newPropertyTestRegistry()

			seen := make(map[uint64]bool)
			for _, key := range keys {
				index, err := registry.Create(context.Background(), key)
				if err != nil {
					return false
				}
				if seen[index.ID()] {
					return false
				}
				seen[index.ID()] = true
			}
			return registry.Len() == len(keys)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	// Property 3: create then remove leaves no trace of the id
	properties.Property("remove erases the entry from both views", prop.ForAll(
		func(key string) bool {
			registry := newPropertyTestRegistry()

			index, err := registry.Create(context.Background(), key)
			if err != nil {
				return false
			}
			registry.Remove(index.ID())

			if _, err := registry.LookupByID(context.Background(), index.ID()); err == nil {
				return false
			}
			for _, e := range registry.LookupByKey(key) {
				if e.ID() == index.ID() {
					return false
				}
			}
			return registry.Len() == 0
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func newPropertyTestRegistry() *Registry {
	return NewRegistry(idgen.NewGenerator(), nil, events.NewBus(), logging.NewNopLogger(), nil)
}
