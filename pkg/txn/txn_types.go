package txn

import (
	"context"
	"errors"
)

// Status represents a transaction's position in its lifecycle
type Status int

const (
	// StatusActive means the transaction accepts new work
	StatusActive Status = iota
	// StatusCompleting means completion has started; resources may be
	// delisted but nothing new may be enlisted
	StatusCompleting
	// StatusCommitted is a terminal status
	StatusCommitted
	// StatusRolledBack is a terminal status
	StatusRolledBack
)

// String returns the string representation of a status
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleting:
		return "completing"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

var (
	ErrNotInTransaction = errors.New("no transaction bound to context")
	ErrTransactionEnded = errors.New("transaction has already completed")
	ErrRollbackOnly     = errors.New("transaction is marked rollback-only")
)

// Resource is the enlistable handle a persistence source hands to the
// transaction. The manager drives it at completion time.
type Resource interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Synchronization is the two-phase completion hook pair. BeforeCompletion
// runs while the outcome is still being decided; AfterCompletion runs once
// the outcome is fixed. Implementations must tolerate being invoked more
// than once.
type Synchronization interface {
	BeforeCompletion()
	AfterCompletion(status Status)
}

// Transaction identifies one unit of work. It is owned by the Manager;
// components interact with it only through this interface.
type Transaction interface {
	// ID returns the transaction's unique id
	ID() uint64
	// EnlistResource adds a resource to the transaction's completion
	// protocol. Returns false when the transaction refuses the resource
	// (rollback-only or already completing).
	EnlistResource(r Resource) (bool, error)
	// DelistResource removes a previously enlisted resource. Unknown
	// resources are a no-op.
	DelistResource(r Resource) error
	// RegisterSynchronization adds a completion hook pair
	RegisterSynchronization(s Synchronization) error
	// SetRollbackOnly marks the transaction so it cannot commit
	SetRollbackOnly()
	// IsRollbackOnly reports whether the transaction is rollback-only
	IsRollbackOnly() bool
	// Status returns the transaction's current lifecycle status
	Status() Status
}
