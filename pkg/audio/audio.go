// Package audio defines the clip playback interface and the PCM helpers used
// to feed recorded audio into streaming recognisers.
//
// The two primary abstractions are:
//
//   - [Player] — plays one encoded clip (typically the output of a remote TTS
//     provider) and reports its lifecycle through a [Listener].
//   - [FileSource] — reads a WAV recording and delivers it as a stream of
//     16-bit PCM chunks in the format a recogniser expects.
//
// Concrete players live in subpackages (e.g. audio/filesink).
package audio

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by Playback methods a player cannot honour.
var ErrNotSupported = errors.New("audio: operation not supported")

// Clip is one encoded audio clip.
type Clip struct {
	// Data holds the encoded bytes.
	Data []byte

	// Format names the container/codec of Data (e.g. "mp3", "wav").
	Format string
}

// Listener receives the lifecycle events of one clip. Exactly one of OnEnd or
// OnError follows OnStart unless the playback was stopped, in which case
// neither is delivered.
type Listener interface {
	OnStart()
	OnEnd()
	OnError(err error)
}

// Playback controls a clip that is playing.
type Playback interface {
	Pause() error
	Resume() error
	Stop() error
}

// Player is the abstraction over an audio output.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Play starts playing clip and returns immediately. Events are delivered
	// to l from a player-owned goroutine.
	Play(ctx context.Context, clip Clip, l Listener) (Playback, error)
}
