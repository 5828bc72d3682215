// Package memory provides an in-process [storage.Store]. Nothing survives
// the process; it is the fallback when no durable backend is configured.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/MrWong99/parrot/internal/storage"
)

// Store is a map guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store. seed, if non-nil, is copied in.
func New(seed map[string]string) *Store {
	data := make(map[string]string, len(seed))
	maps.Copy(data, seed)
	return &Store{data: data}
}

// Get implements [storage.Store].
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, storage.ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Set implements [storage.Store].
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.data[key] = value
	return nil
}

// Close implements [storage.Store].
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of all stored entries.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}
