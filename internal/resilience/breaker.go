// Package resilience keeps parrot usable when a remote provider misbehaves.
//
// A [Breaker] stops hammering a backend that keeps failing: after a run of
// consecutive failures it rejects calls for a cooldown, then lets a single
// probe through to decide whether the backend recovered. The fallback
// wrappers ([LLMFallback], [TTSFallback], [STTFallback]) put one breaker in
// front of every configured backend and walk them in order.
//
// A cancelled call says nothing about backend health. It neither counts as a
// failure nor moves on to the next backend.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned without calling the backend while a breaker rejects
// calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected until the cooldown ends
	StateHalfOpen              // one probe call decides
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default 3.
	Threshold int

	// Cooldown is how long an open breaker rejects calls. Default 20s.
	Cooldown time.Duration
}

// Breaker is a circuit breaker guarding one backend. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker. name only appears in logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	return &Breaker{name: name, threshold: cfg.Threshold, cooldown: cfg.Cooldown, now: time.Now}
}

// Do calls fn unless the breaker rejects it with [ErrOpen]. fn's error is
// returned unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(probe, err, ctx.Err() != nil)
	return err
}

// admit decides whether a call may proceed and whether it is the probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		slog.Debug("breaker half-open", "backend", b.name)
	}
	switch b.state {
	case StateOpen:
		return false, ErrOpen
	case StateHalfOpen:
		if b.probing {
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error, cancelled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}
	if err != nil && (cancelled || errors.Is(err, context.Canceled)) {
		return
	}

	if err == nil {
		if b.state != StateClosed {
			slog.Info("breaker closed", "backend", b.name)
		}
		b.state, b.failures = StateClosed, 0
		return
	}

	b.failures++
	if probe || b.failures >= b.threshold {
		if b.state != StateOpen {
			slog.Warn("breaker opened", "backend", b.name, "failures", b.failures, "err", err)
		}
		b.state, b.openedAt = StateOpen, b.now()
	}
}

// State reports the current state. An open breaker whose cooldown has
// passed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, b.failures, b.probing = StateClosed, 0, false
}
