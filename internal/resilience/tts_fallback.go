package resilience

import (
	"context"

	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over between remote voices.
//
// Voice IDs are provider specific. The same ID is passed to every backend;
// each either maps an unknown ID to its default voice or rejects it.
type TTSFallback struct {
	c *chain[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a chain that prefers primary.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{c: newChain("tts", name, primary, cfg)}
}

// AddFallback appends a backend tried after those already added.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.c.add(name, p) }

func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	return call(ctx, f.c, func(ctx context.Context, p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, req)
	})
}

// Voices lists the voices of the first backend that answers.
func (f *TTSFallback) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	return call(ctx, f.c, func(ctx context.Context, p tts.Provider) ([]types.VoiceProfile, error) {
		return p.Voices(ctx)
	})
}
