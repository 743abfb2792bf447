// Package propindex caches property-key index records under transactional
// visibility rules. An index maps a property key string to a compact id
// assigned once from the kernel's id generator.
package propindex

import (
	"fmt"
)

// PropertyIndex is an immutable (key, id) record. Once published, readers
// need no synchronization: neither field ever changes.
type PropertyIndex struct {
	key string
	id  uint64
}

// NewPropertyIndex builds an index record. Used by the registry and by
// stores rehydrating records from durable storage.
func NewPropertyIndex(key string, id uint64) *PropertyIndex {
	return &PropertyIndex{key: key, id: id}
}

// Key returns the property key string
func (i *PropertyIndex) Key() string {
	return i.key
}

// ID returns the index id
func (i *PropertyIndex) ID() uint64 {
	return i.id
}

// String implements fmt.Stringer
func (i *PropertyIndex) String() string {
	return fmt.Sprintf("PropertyIndex[%q=%d]", i.key, i.id)
}
