// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio clips and to verify the requests
// passed to the TTS backend. Set Block to hold Synthesize until its context
// is cancelled, which lets tests exercise cancellation.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: &tts.Audio{Data: []byte("mp3"), Format: tts.FormatMP3},
//	    VoicesResult:     []types.VoiceProfile{{ID: "nova", Name: "Nova"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult is returned by Synthesize when SynthesizeErr is nil.
	SynthesizeResult *tts.Audio

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Block makes Synthesize wait for ctx to be cancelled and return
	// ctx.Err().
	Block bool

	// VoicesResult is returned by Voices.
	VoicesResult []types.VoiceProfile

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	block := p.Block
	result, err := p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &tts.Audio{Data: []byte("audio"), Format: tts.FormatMP3}
	}
	return result, nil
}

// Voices returns VoicesResult, VoicesErr.
func (p *Provider) Voices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.VoicesResult, p.VoicesErr
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
