package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/parrot/internal/storage"
)

// probeKey is read by [Storage]. It is never written.
const probeKey = "parrot-health-probe"

// Storage returns a Checker that passes while s answers a read.
func Storage(s storage.Store) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			if _, _, err := s.Get(ctx, probeKey); err != nil {
				return fmt.Errorf("read: %w", err)
			}
			return nil
		},
	}
}

// Capability returns an optional Checker that fails while available
// reports false. A nil available always fails with "not configured".
func Capability(name string, available func() bool) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if available == nil {
				return errors.New("not configured")
			}
			if !available() {
				return errors.New("unavailable")
			}
			return nil
		},
	}
}
