package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// ErrRateLimited is returned when a call cannot be admitted before its
// context ends.
var ErrRateLimited = errors.New("resilience: request limit reached")

// newLimiter allows perMinute calls a minute, evenly spaced, with a burst of
// one minute's worth so a learner's first few requests are not delayed.
func newLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

// LimitedLLM delays chat requests that exceed the configured rate.
type LimitedLLM struct {
	llm.Provider
	lim *rate.Limiter
}

var _ llm.Provider = (*LimitedLLM)(nil)

// LimitLLM wraps p. A non-positive perMinute returns p unchanged.
func LimitLLM(p llm.Provider, perMinute int) llm.Provider {
	if perMinute <= 0 || p == nil {
		return p
	}
	return &LimitedLLM{Provider: p, lim: newLimiter(perMinute)}
}

func (l *LimitedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := wait(ctx, l.lim); err != nil {
		return nil, err
	}
	return l.Provider.Complete(ctx, req)
}

// LimitedTTS delays synthesis requests that exceed the configured rate.
// Listing voices is not limited.
type LimitedTTS struct {
	tts.Provider
	lim *rate.Limiter
}

var _ tts.Provider = (*LimitedTTS)(nil)

// LimitTTS wraps p. A non-positive perMinute returns p unchanged.
func LimitTTS(p tts.Provider, perMinute int) tts.Provider {
	if perMinute <= 0 || p == nil {
		return p
	}
	return &LimitedTTS{Provider: p, lim: newLimiter(perMinute)}
}

func (l *LimitedTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if err := wait(ctx, l.lim); err != nil {
		return nil, err
	}
	return l.Provider.Synthesize(ctx, req)
}
