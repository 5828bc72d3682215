// Package storagetest holds the behaviour every [storage.Store] backend must
// share. Backend test files call [Run] with a constructor.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/parrot/internal/storage"
)

// Run exercises a fresh store returned by open for each subtest. open must
// register its own cleanup; Run closes the store only in the subtest that
// checks closing.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		s := open(t)
		v, ok, err := s.Get(ctx, "tts-history")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok || v != "" {
			t.Errorf("Get(missing) = %q, %v; want \"\", false", v, ok)
		}
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		s := open(t)
		if err := s.Set(ctx, "tts-preferred-voice", `"Samantha"`); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, "tts-preferred-voice", `"Daniel"`); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := s.Get(ctx, "tts-preferred-voice")
		if err != nil || !ok {
			t.Fatalf("Get = %q, %v, %v", v, ok, err)
		}
		if v != `"Daniel"` {
			t.Errorf("value = %q, want overwrite", v)
		}
	})

	t.Run("EmptyValueIsPresent", func(t *testing.T) {
		s := open(t)
		if err := s.Set(ctx, "k", ""); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if _, ok, err := s.Get(ctx, "k"); err != nil || !ok {
			t.Errorf("Get(empty value) ok=%v err=%v; want present", ok, err)
		}
	})

	t.Run("Unicode", func(t *testing.T) {
		s := open(t)
		const val = `["안녕하세요","naïve café — “quoted”"]`
		if err := s.Set(ctx, "tts-history", val); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if v, _, _ := s.Get(ctx, "tts-history"); v != val {
			t.Errorf("value = %q, want %q", v, val)
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("key-%d", i)
				if err := s.Set(ctx, key, key); err != nil {
					t.Errorf("Set(%s): %v", key, err)
				}
			}()
		}
		wg.Wait()
		for i := range 8 {
			key := fmt.Sprintf("key-%d", i)
			if v, ok, err := s.Get(ctx, key); err != nil || !ok || v != key {
				t.Errorf("Get(%s) = %q, %v, %v", key, v, ok, err)
			}
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s := open(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := s.Set(ctx, "k", "v"); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("Set after Close = %v, want ErrClosed", err)
		}
		if _, _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrClosed) {
			t.Errorf("Get after Close = %v, want ErrClosed", err)
		}
	})
}
