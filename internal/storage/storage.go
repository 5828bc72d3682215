// Package storage defines the durable key/value store that keeps the
// practice history, the settings, and the saved voice preference.
//
// Values are opaque strings; callers store JSON. Three backends are
// provided: [memory] for hosts without durable storage, [sqlite] for a
// single local file, and [postgres] for a shared database.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("storage: store is closed")

// Store is a string key/value store.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key. ok is false when the key has
	// never been set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Close releases the underlying resources. Further calls fail with
	// [ErrClosed].
	Close() error
}
