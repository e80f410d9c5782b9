package store

import "errors"

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrInvalidInput is returned for malformed keys or values.
	ErrInvalidInput = errors.New("invalid input")
)

// KV is the key/value store abstraction the engine operates over. It
// mirrors the surface of browser storage: get, set, remove, plus
// enumeration and count for the vacuum pass. Implementations must be safe
// for concurrent use.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) (string, error)
	// Set writes or replaces the value for key.
	Set(key, value string) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys enumerates all stored keys.
	Keys() ([]string, error)
	// Len returns the number of stored keys.
	Len() (int, error)
}

// Change describes a mutation to a stored key.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Notifier is implemented by stores that can report changes to their
// contents, including writes performed by other holders of the same
// store. The engine uses it to drive multi-tab token watches.
type Notifier interface {
	// Subscribe registers fn to be called on every change. The returned
	// function cancels the subscription.
	Subscribe(fn func(Change)) (cancel func())
}
