// Package kvstore provides the durable ordered key-value store the rest of
// chronikcache builds on: get/put/delete plus lexicographic iteration and a
// clear, with a single writer per process.
package kvstore

import (
	"bytes"
	"errors"
)

// ErrNotFound is returned by Get when a key is absent. Callers that want a
// (value, bool) shape should use GetOK instead of comparing errors.
var ErrNotFound = errors.New("kvstore: key not found")

// KV is the durable, ordered key-value contract consumed by the rest of the
// cache. Implementations must serialize writes within a process (§5): at
// most one writer may be in flight at a time.
type KV interface {
	// Get returns the value stored at k, or ErrNotFound if absent.
	Get(k []byte) ([]byte, error)
	// Put writes v at k, replacing any existing value atomically.
	Put(k, v []byte) error
	// Delete removes k. Deleting an absent key is not an error.
	Delete(k []byte) error
	// Iterator returns entries in lexicographic key order, optionally
	// restricted to keys with the given prefix (nil/empty = all keys).
	Iterator(prefix []byte) (Iterator, error)
	// Clear removes every key.
	Clear() error
	// Close releases the underlying resources.
	Close() error
}

// Iterator walks entries in ascending key order. Callers must call Close
// when done, even after an error.
type Iterator interface {
	// Next advances to the next entry, returning false at the end or on
	// error (check Err to distinguish).
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// GetOK is a convenience wrapper returning (value, found, error) instead of
// a sentinel error, mirroring the style of erigon's GetAsOf.
func GetOK(kv KV, k []byte) ([]byte, bool, error) {
	v, err := kv.Get(k)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// HasPrefix reports whether k begins with prefix; used by in-memory
// iterator implementations (e.g. the mock store) to emulate a ranged scan.
func HasPrefix(k, prefix []byte) bool {
	return bytes.HasPrefix(k, prefix)
}
