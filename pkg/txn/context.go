package txn

import (
	"context"
)

// contextKey is an unexported type for context keys to prevent collisions
type contextKey struct{}

// txKey is the context key for the ambient transaction
var txKey = contextKey{}

// WithTransaction returns a new context with the transaction bound to it.
// The transaction travels with the context; nothing in the kernel depends
// on goroutine identity.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// FromContext extracts the ambient transaction from the context.
// Returns the transaction and true if found, or nil and false if not.
func FromContext(ctx context.Context) (Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey).(Transaction)
	return tx, ok
}

// Required extracts the ambient transaction or fails with
// ErrNotInTransaction
func Required(ctx context.Context) (Transaction, error) {
	tx, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNotInTransaction
	}
	return tx, nil
}
