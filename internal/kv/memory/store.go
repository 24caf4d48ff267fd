// Package memory provides an in-memory kv.Store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/tangentleman/docpull/internal/kv"
)

// Store keeps all namespaces in process memory behind a single mutex.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the value for key, or kv.ErrNotFound.
func (s *Store) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, kv.ErrNotFound
	}
	value, ok := ns[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Set writes the value unconditionally.
func (s *Store) Set(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(namespace, key, value)
	return nil
}

// Delete removes the key if present.
func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// Update applies fn under the store lock, making the read-modify-write
// atomic with respect to every other operation on the store.
func (s *Store) Update(_ context.Context, namespace, key string, fn kv.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	exists := false
	if ns, ok := s.data[namespace]; ok {
		if v, ok := ns[key]; ok {
			current = append([]byte(nil), v...)
			exists = true
		}
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}
	if next == nil {
		if ns, ok := s.data[namespace]; ok {
			delete(ns, key)
		}
		return nil
	}
	s.setLocked(namespace, key, next)
	return nil
}

// Close is a no-op; it satisfies the closable store used at wiring time.
func (s *Store) Close() {}

func (s *Store) setLocked(namespace, key string, value []byte) {
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
}
