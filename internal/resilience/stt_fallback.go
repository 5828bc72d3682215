package resilience

import (
	"context"

	"github.com/MrWong99/parrot/pkg/provider/stt"
)

// STTFallback is an [stt.Recognizer] that fails over between recognizers
// when a capture cannot start. Errors of a running capture reach the
// listener as usual.
type STTFallback struct {
	c *chain[stt.Recognizer]
}

var _ stt.Recognizer = (*STTFallback)(nil)

// NewSTTFallback returns a chain that prefers primary.
func NewSTTFallback(primary stt.Recognizer, name string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{c: newChain("stt", name, primary, cfg)}
}

// AddFallback appends a recognizer tried after those already added.
func (f *STTFallback) AddFallback(name string, r stt.Recognizer) { f.c.add(name, r) }

// Available reports whether any recognizer is available.
func (f *STTFallback) Available() bool {
	for _, l := range f.c.links {
		if l.backend.Available() {
			return true
		}
	}
	return false
}

// Start begins a capture on the first recognizer that accepts it. An
// unavailable recognizer counts as a failed start.
func (f *STTFallback) Start(ctx context.Context, cfg stt.Config, l stt.Listener) (stt.Handle, error) {
	return call(ctx, f.c, func(ctx context.Context, r stt.Recognizer) (stt.Handle, error) {
		if !r.Available() {
			return nil, stt.ErrUnavailable
		}
		return r.Start(ctx, cfg, l)
	})
}
