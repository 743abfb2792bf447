package persistence

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/verge-graph/verge/pkg/txn"
)

// MemorySource is an in-process persistence source. Its connections record
// the completion transitions they go through, which makes it the source of
// choice for tests and the demo binary.
type MemorySource struct {
	name string

	mu        sync.Mutex
	createErr error
	created   int
	connSeq   uint64
}

// NewMemorySource creates a memory source with the given name
func NewMemorySource(name string) *MemorySource {
	return &MemorySource{name: name}
}

// Name identifies the source
func (s *MemorySource) Name() string {
	return s.name
}

// FailCreatesWith makes subsequent CreateConnection calls fail with err.
// Passing nil restores normal behavior.
func (s *MemorySource) FailCreatesWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// Created returns how many connections this source has created
func (s *MemorySource) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// CreateConnection opens a new in-memory connection
func (s *MemorySource) CreateConnection(ctx context.Context) (ResourceConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}

	s.connSeq++
	s.created++
	return &MemoryConnection{
		id:     s.connSeq,
		source: s.name,
		res:    &memoryResource{},
	}, nil
}

// MemoryConnection is a ResourceConnection backed by nothing but state
// transitions
type MemoryConnection struct {
	id        uint64
	source    string
	res       *memoryResource
	destroyed atomic.Bool
}

// ID returns the connection's sequence number within its source
func (c *MemoryConnection) ID() uint64 {
	return c.id
}

// Resource returns the enlistable handle
func (c *MemoryConnection) Resource() txn.Resource {
	return c.res
}

// Destroy releases the connection. Effective exactly once.
func (c *MemoryConnection) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return ErrConnectionDestroyed
	}
	return nil
}

// Destroyed reports whether Destroy has been called
func (c *MemoryConnection) Destroyed() bool {
	return c.destroyed.Load()
}

// Committed reports whether the connection's resource was committed
func (c *MemoryConnection) Committed() bool {
	return c.res.committed.Load()
}

// RolledBack reports whether the connection's resource was rolled back
func (c *MemoryConnection) RolledBack() bool {
	return c.res.rolledBack.Load()
}

type memoryResource struct {
	committed  atomic.Bool
	rolledBack atomic.Bool
}

func (r *memoryResource) Commit(ctx context.Context) error {
	r.committed.Store(true)
	return nil
}

func (r *memoryResource) Rollback(ctx context.Context) error {
	r.rolledBack.Store(true)
	return nil
}
