// Package tts defines the Provider interface for remote Text-to-Speech
// backends.
//
// A TTS provider wraps an audio-generation service (e.g. OpenAI speech,
// ElevenLabs) that turns a span of text into one encoded audio clip. The clip
// is handed to an audio.Player for output; the provider itself never plays
// anything.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/parrot/pkg/types"
)

// Audio formats understood by the players in pkg/audio.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
	FormatPCM = "pcm"
)

// Request is a single synthesis request.
type Request struct {
	// Text is the text to speak. Must be non-empty.
	Text string

	// Voice is a provider voice ID. Empty selects the provider default.
	Voice string

	// Format is the requested container/codec, one of the Format constants.
	// Empty selects FormatMP3.
	Format string

	// Speed is the speaking-rate multiplier; 0 means 1.0.
	Speed float64
}

// Audio is one synthesised clip.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// Format is the container/codec of Data.
	Format string
}

// Provider is the abstraction over any remote TTS backend.
type Provider interface {
	// Synthesize generates audio for req. Errors caused by an HTTP status
	// are reported as *provider.StatusError so callers can tell invalid
	// credentials and rate limiting apart from other failures.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// Voices returns the voices this provider offers.
	Voices(ctx context.Context) ([]types.VoiceProfile, error)
}
