// Package persistence binds in-flight transactions to resource connections.
//
// A persistence source is a backing store able to produce transactional
// connections. The broker guarantees that within one transaction, repeated
// requests against the same source return the same connection, and that the
// connection is destroyed exactly once when the transaction completes.
package persistence

import (
	"context"
	"sync"

	"github.com/verge-graph/verge/pkg/txn"
)

// ResourceConnection is a handle bound to one persistence source within one
// transaction. It is never shared across transactions.
type ResourceConnection interface {
	// Resource returns the enlistable handle driven by the transaction's
	// completion protocol
	Resource() txn.Resource
	// Destroy releases the connection. Effective exactly once; later calls
	// fail with ErrConnectionDestroyed.
	Destroy() error
}

// Source produces transactional resource connections for one backing store
type Source interface {
	// Name identifies the source. Connections are keyed per (transaction,
	// source name).
	Name() string
	// CreateConnection opens a new connection for the calling transaction
	CreateConnection(ctx context.Context) (ResourceConnection, error)
}

// Dispatcher selects the currently active persistence source. The broker
// holds no source-specific logic; it asks the dispatcher on every acquire.
type Dispatcher struct {
	mu     sync.RWMutex
	active Source
}

// NewDispatcher creates a dispatcher with no active source
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetActiveSource installs the source returned by subsequent ActiveSource calls
func (d *Dispatcher) SetActiveSource(s Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = s
}

// ActiveSource returns the currently active source, or ErrNoActiveSource
// when none is installed
func (d *Dispatcher) ActiveSource() (Source, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.active == nil {
		return nil, ErrNoActiveSource
	}
	return d.active, nil
}
