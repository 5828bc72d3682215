package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/parrot/internal/observe"
)

// ErrAllFailed is wrapped by the error returned when no backend in a chain
// produced a result. The individual backend errors are joined into it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker placed in front of every backend.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// chain is an ordered list of interchangeable backends of one kind.
type chain[T any] struct {
	kind  string
	cfg   FallbackConfig
	links []link[T]
}

func newChain[T any](kind, name string, primary T, cfg FallbackConfig) *chain[T] {
	c := &chain[T]{kind: kind, cfg: cfg}
	c.add(name, primary)
	return c
}

func (c *chain[T]) add(name string, backend T) {
	c.links = append(c.links, link[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(c.kind+"/"+name, c.cfg.Breaker),
	})
}

func (c *chain[T]) primary() T { return c.links[0].backend }

// call runs fn against each backend in order and returns the first success.
// Cancellation ends the walk immediately.
func call[T, R any](ctx context.Context, c *chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, l := range c.links {
		var out R
		err := l.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, l.backend)
			return err
		})
		if err == nil {
			if len(errs) > 0 {
				slog.Info("fallback served request", "kind", c.kind, "provider", l.name, "skipped", len(errs))
			}
			return out, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}

		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		observe.DefaultMetrics().RecordFailover(ctx, c.kind, l.name)
		if !errors.Is(err, ErrOpen) {
			slog.Warn("provider failed", "kind", c.kind, "provider", l.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
