package playback

import (
	"context"
)

// Events receives the lifecycle of one utterance. It is structurally
// identical to synth.Listener and audio.Listener so backends can pass it
// straight through.
type Events interface {
	OnStart()
	OnEnd()
	OnError(err error)
}

// Control steers an utterance in progress.
type Control interface {
	Pause() error
	Resume() error
	Stop() error
}

// Backend speaks text. Implementations must be safe for concurrent use and
// must deliver events from their own goroutines or synchronously before
// Speak returns, never while holding locks the Session might need.
type Backend interface {
	// Name identifies the backend kind (e.g. "local", "remote").
	Name() string

	// Speak starts speaking text and returns immediately. A returned error
	// means nothing was started and no events follow.
	Speak(ctx context.Context, text string, ev Events) (Control, error)
}

// Readier is implemented by backends that can report a missing setup before
// Speak is attempted. A Session checks it before interrupting the current
// utterance, so an unusable backend leaves playback untouched.
type Readier interface {
	Ready() error
}

// VoicePreference persists the user's chosen local voice.
type VoicePreference interface {
	PreferredVoice(ctx context.Context) (string, error)
	SetPreferredVoice(ctx context.Context, name string) error
}
