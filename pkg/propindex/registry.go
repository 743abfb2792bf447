package propindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verge-graph/verge/pkg/events"
	"github.com/verge-graph/verge/pkg/idgen"
	"github.com/verge-graph/verge/pkg/logging"
	"github.com/verge-graph/verge/pkg/metrics"
	"github.com/verge-graph/verge/pkg/txn"
)

// Store is the durable side of the registry, consulted only on cache miss.
// LoadIndex returns ErrIndexNotFound when the id does not exist; any other
// error means the store could not be read.
type Store interface {
	LoadIndex(ctx context.Context, id uint64) (string, error)
}

// WriterStore is implemented by stores that can persist new entries.
// Create writes through to it so accepted entries survive a restart.
type WriterStore interface {
	Store
	WriteIndex(id uint64, key string) error
}

// BulkStore is implemented by stores that can enumerate every record,
// used by Recover to warm the cache after a restart.
type BulkStore interface {
	Store
	LoadAll(ctx context.Context) (map[uint64]string, error)
}

// Registry is the process-wide bidirectional property index cache.
//
// Concurrent Create calls for the same key may race and produce two
// distinct entries sharing that key; durable storage is the reconciliation
// authority on reload. Id uniqueness is never compromised because each id
// is freshly allocated. Entries are never evicted; size is unbounded.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string][]*PropertyIndex
	byID  map[uint64]*PropertyIndex

	ids     *idgen.Generator
	store   Store
	bus     *events.Bus
	log     logging.Logger
	metrics *metrics.Registry
}

// NewRegistry creates an empty registry. The store and metrics registry
// may be nil; a nil store turns every cache miss into ErrIndexNotFound.
func NewRegistry(ids *idgen.Generator, store Store, bus *events.Bus, log logging.Logger, m *metrics.Registry) *Registry {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Registry{
		byKey:   make(map[string][]*PropertyIndex),
		byID:    make(map[uint64]*PropertyIndex),
		ids:     ids,
		store:   store,
		bus:     bus,
		log:     log.With(logging.Component("propindex")),
		metrics: m,
	}
}

// LookupByKey returns all currently cached entries for the key, in
// insertion order. Never fails; an unknown key yields an empty slice.
func (r *Registry) LookupByKey(key string) []*PropertyIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.byKey[key]
	out := make([]*PropertyIndex, len(entries))
	copy(out, entries)
	return out
}

// LookupByID returns the cached entry for the id, loading it from durable
// storage on miss. Fails with ErrIndexNotFound when the id exists nowhere,
// and with ErrIndexLoadFailed when durable storage could not be read.
func (r *Registry) LookupByID(ctx context.Context, id uint64) (*PropertyIndex, error) {
	r.mu.RLock()
	index, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		r.recordLoad(metrics.StatusHit, 0)
		return index, nil
	}

	if r.store == nil {
		r.recordLoad(metrics.StatusNotFound, 0)
		return nil, fmt.Errorf("%w: id %d", ErrIndexNotFound, id)
	}

	start := time.Now()
	key, err := r.store.LoadIndex(ctx, id)
	switch {
	case errors.Is(err, ErrIndexNotFound):
		r.recordLoad(metrics.StatusNotFound, time.Since(start))
		return nil, fmt.Errorf("%w: id %d", ErrIndexNotFound, id)
	case err != nil:
		r.recordLoad(metrics.StatusFailed, time.Since(start))
		return nil, fmt.Errorf("%w: id %d: %w", ErrIndexLoadFailed, id, err)
	}

	index = r.add(NewPropertyIndex(key, id))
	r.recordLoad(metrics.StatusLoaded, time.Since(start))
	r.log.Debug("property index loaded from store",
		logging.KeyID(id),
		logging.PropertyKey(key),
	)
	return index, nil
}

// Create allocates a fresh id for the key and publishes the candidate
// through the pro-active validation event. Rejection marks the ambient
// transaction rollback-only and leaves no partial state; acceptance makes
// the entry visible in both views and fires the re-active event.
func (r *Registry) Create(ctx context.Context, key string) (*PropertyIndex, error) {
	id := r.ids.NextID(idgen.CategoryPropertyIndex)
	index := NewPropertyIndex(key, id)

	if !r.bus.PublishProActive(events.PropertyIndexCreate, index) {
		if tx, ok := txn.FromContext(ctx); ok {
			tx.SetRollbackOnly()
		}
		if r.metrics != nil {
			r.metrics.RecordIndexCreate(metrics.StatusRejected)
		}
		return nil, fmt.Errorf("%w: key %q", ErrCreateRejected, key)
	}

	if ws, ok := r.store.(WriterStore); ok {
		if err := ws.WriteIndex(id, key); err != nil {
			if tx, ok := txn.FromContext(ctx); ok {
				tx.SetRollbackOnly()
			}
			if r.metrics != nil {
				r.metrics.RecordIndexCreate(metrics.StatusFailed)
			}
			return nil, fmt.Errorf("persist property index %q: %w", key, err)
		}
	}

	index = r.add(index)
	r.bus.PublishReActive(events.PropertyIndexCreate, index)

	if r.metrics != nil {
		r.metrics.RecordIndexCreate(metrics.StatusCreated)
	}
	r.log.Debug("property index created",
		logging.KeyID(id),
		logging.PropertyKey(key),
	)
	return index, nil
}

// Recover warms the cache with every record in the store and moves the
// id generator past the highest recovered id so fresh ids never collide
// with persisted ones. A store without bulk enumeration recovers nothing.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	bs, ok := r.store.(BulkStore)
	if !ok {
		return 0, nil
	}

	all, err := bs.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: recover: %w", ErrIndexLoadFailed, err)
	}

	var highest uint64
	for id, key := range all {
		r.add(NewPropertyIndex(key, id))
		if id > highest {
			highest = id
		}
	}
	if highest > 0 {
		r.ids.SetHighWaterMark(idgen.CategoryPropertyIndex, highest)
	}

	r.log.Info("property index cache recovered", logging.Count(len(all)))
	return len(all), nil
}

// Remove removes the entry with the id from both views. Unknown ids are a
// no-op.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	entries := r.byKey[index.Key()]
	for i, e := range entries {
		if e.ID() == id {
			r.byKey[index.Key()] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.byKey[index.Key()]) == 0 {
		delete(r.byKey, index.Key())
	}

	r.setCacheGauge()
}

// Clear resets both cache views, for whole-registry reinitialization
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey = make(map[string][]*PropertyIndex)
	r.byID = make(map[uint64]*PropertyIndex)
	r.setCacheGauge()
}

// Len returns the number of cached entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// add inserts the index into both views. When the id is already cached
// (two goroutines racing to load it), the existing entry wins so the id
// view never holds two entries for one id.
func (r *Registry) add(index *PropertyIndex) *PropertyIndex {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[index.ID()]; ok {
		return existing
	}
	r.byID[index.ID()] = index
	r.byKey[index.Key()] = append(r.byKey[index.Key()], index)
	r.setCacheGauge()
	return index
}

func (r *Registry) setCacheGauge() {
	if r.metrics != nil {
		r.metrics.SetIndexCacheEntries(len(r.byID))
	}
}

func (r *Registry) recordLoad(status string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordIndexLoad(status, d)
	}
}
