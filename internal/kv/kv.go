// Package kv declares the namespaced key-value store contract shared by the
// content cache, the error tracker, and the job registry. Implementations
// live in subpackages and must not be imported from here.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested key does not exist in the namespace.
var ErrNotFound = errors.New("key not found")

// UpdateFunc transforms the current value of a key. exists reports whether
// the key was present; current is nil when it was not. Returning an error
// aborts the update without writing.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a concurrency-safe, namespaced key-value store. Every worker
// instance has equal read/write rights on every namespace, so all mutations
// to a contended key must go through Update rather than Get-then-Set.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Set writes the value unconditionally.
	Set(ctx context.Context, namespace, key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace, key string) error
	// Update applies fn to the current value atomically with respect to
	// concurrent callers on the same key. A nil returned value deletes
	// the key.
	Update(ctx context.Context, namespace, key string, fn UpdateFunc) error
}
