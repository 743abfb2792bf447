package propindex

import "errors"

// Common sentinel errors
var (
	// ErrIndexNotFound means neither the cache nor durable storage has the id
	ErrIndexNotFound = errors.New("property index not found")
	// ErrIndexLoadFailed means durable storage could not be read. Never
	// collapsed into an absent result.
	ErrIndexLoadFailed = errors.New("failed to load property index")
	// ErrCreateRejected means the pro-active validation event refused the
	// candidate entry
	ErrCreateRejected = errors.New("property index create rejected")
)
