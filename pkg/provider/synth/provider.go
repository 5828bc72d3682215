// Package synth defines the Synthesizer interface for local speech synthesis.
//
// A Synthesizer speaks text directly through the host's audio output (e.g.
// espeak-ng, the platform speech service) and reports progress per utterance
// through a [Listener]. Unlike the remote tts providers it never hands audio
// bytes back to the caller, which is why it supports pause and resume.
package synth

import (
	"context"
	"errors"
	"strings"
)

// ErrNotSupported is returned by Handle methods the backend cannot honour on
// this platform.
var ErrNotSupported = errors.New("synth: operation not supported")

// Voice is one voice offered by the host.
type Voice struct {
	// Name uniquely identifies the voice within its Synthesizer and is the
	// value passed back in Utterance.Voice.
	Name string

	// Language is the BCP-47-ish language tag reported by the host, e.g.
	// "en-US" or "en_GB". Case and separator vary between hosts.
	Language string
}

// IsEnglish reports whether v speaks some variant of English. Tags are
// compared case-insensitively and both "-" and "_" separators are accepted.
func (v Voice) IsEnglish() bool {
	lang := strings.ToLower(v.Language)
	return lang == "en" || strings.HasPrefix(lang, "en-") || strings.HasPrefix(lang, "en_")
}

// IsUSEnglish reports whether v speaks US English.
func (v Voice) IsUSEnglish() bool {
	lang := strings.ToLower(strings.ReplaceAll(v.Language, "_", "-"))
	return lang == "en-us"
}

// Utterance is a single request to speak text.
type Utterance struct {
	Text string

	// Rate is the speaking rate multiplier in [0.5, 2.0]; 1.0 is normal.
	Rate float64

	// Pitch is the pitch multiplier in [0, 2.0]; 1.0 is normal.
	Pitch float64

	// Voice is a Voice.Name. Empty selects the host default.
	Voice string
}

// Listener receives the events of one utterance. Exactly one of OnEnd or
// OnError is delivered after OnStart unless the utterance was cancelled, in
// which case neither may arrive.
type Listener interface {
	OnStart()
	OnEnd()
	OnError(err error)
}

// Handle controls an utterance in progress.
type Handle interface {
	Pause() error
	Resume() error
	Cancel() error
}

// Synthesizer is the abstraction over a local speech engine.
//
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	// Voices lists the voices currently known to the host. The list may be
	// empty right after startup on hosts that populate it asynchronously.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak starts speaking u and returns immediately. Events are delivered
	// to l from a backend-owned goroutine.
	Speak(ctx context.Context, u Utterance, l Listener) (Handle, error)
}
