package persistence

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrAcquireFailed       = errors.New("resource acquisition failed")
	ErrNoActiveSource      = errors.New("no active persistence source")
	ErrEnlistRefused       = errors.New("transaction refused to enlist resource")
	ErrConnectionDestroyed = errors.New("resource connection already destroyed")
)

// AcquisitionError provides structured information about a failed
// connection acquisition. It always matches ErrAcquireFailed through
// errors.Is, and additionally matches its cause.
type AcquisitionError struct {
	Op     string // Operation that failed (e.g., "create", "enlist")
	Source string // Source name, if one was resolved
	TxID   uint64 // Owning transaction id
	Cause  error  // Underlying error
}

// Error implements the error interface
func (e *AcquisitionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("acquire connection (%s, source %s, tx %d): %v", e.Op, e.Source, e.TxID, e.Cause)
	}
	return fmt.Sprintf("acquire connection (%s, tx %d): %v", e.Op, e.TxID, e.Cause)
}

// Unwrap returns the underlying cause for error chain support
func (e *AcquisitionError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error or its cause
func (e *AcquisitionError) Is(target error) bool {
	if target == ErrAcquireFailed {
		return true
	}
	return errors.Is(e.Cause, target)
}

func acquisitionError(op, source string, txID uint64, cause error) error {
	return &AcquisitionError{Op: op, Source: source, TxID: txID, Cause: cause}
}
