// Package stt defines the Recognizer interface for streaming Speech-to-Text
// backends.
//
// A Recognizer wraps a continuous recognition service (e.g. the browser's
// speech recognition, Deepgram, or a local engine) and reports progress
// through a [Listener] supplied at start. Events for one capture are delivered
// sequentially in the order the backend produced them; a Listener never sees
// two callbacks at the same time for the same capture.
//
// Result delivery mirrors the Web Speech API: every [ResultBatch] carries the
// complete, growing list of results for the capture together with the index of
// the first result that changed since the previous batch. Results before that
// index are unchanged and may be redelivered verbatim.
package stt

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Start when the backend cannot run on this
// host (missing credentials, missing device, unsupported platform).
var ErrUnavailable = errors.New("stt: recognizer unavailable")

// ErrorCode classifies a recognition failure reported by a backend.
type ErrorCode string

const (
	// ErrorPermissionDenied means microphone access was refused.
	ErrorPermissionDenied ErrorCode = "permission-denied"

	// ErrorNoSpeech means the backend heard nothing for a while. The backend
	// keeps listening.
	ErrorNoSpeech ErrorCode = "no-speech"

	// ErrorNetwork means the connection to the recognition service failed.
	ErrorNetwork ErrorCode = "network"

	// ErrorAborted means the capture was cancelled by the caller.
	ErrorAborted ErrorCode = "aborted"

	// ErrorOther is any failure not covered above.
	ErrorOther ErrorCode = "other"
)

// Config describes a capture request.
type Config struct {
	// Language is the BCP-47 language tag to recognise (e.g. "en-US"). An
	// empty string lets the backend auto-detect, if supported.
	Language string

	// Continuous keeps the capture open across pauses until stopped.
	Continuous bool

	// InterimResults requests provisional results before finalisation.
	InterimResults bool
}

// Result is one recognised phrase.
type Result struct {
	// Final reports whether the backend has committed to Text.
	Final bool

	// Text is the most likely transcription of the phrase.
	Text string
}

// ResultBatch is one result event.
type ResultBatch struct {
	// ResultIndex is the index of the first entry in Results that changed.
	ResultIndex int

	// Results is the complete result list of the capture so far.
	Results []Result
}

// Listener receives the events of a single capture.
type Listener interface {
	// OnStart confirms that audio capture has begun.
	OnStart()

	// OnResult delivers a result batch.
	OnResult(batch ResultBatch)

	// OnError reports a failure. detail is backend-specific and may be empty.
	// Whether the capture continues depends on code.
	OnError(code ErrorCode, detail string)

	// OnEnd reports that the capture has finished for any reason. It is the
	// last event of a capture.
	OnEnd()
}

// Handle controls a running capture.
type Handle interface {
	// Stop ends the capture gracefully; pending audio is still recognised
	// and delivered before OnEnd.
	Stop() error

	// Abort ends the capture immediately, discarding pending audio.
	Abort() error
}

// Recognizer is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use.
type Recognizer interface {
	// Available reports whether Start can succeed on this host.
	Available() bool

	// Start begins a capture and returns immediately. Events are delivered to
	// l from a backend-owned goroutine until OnEnd. Returns a non-nil error
	// only if the capture could not be started; in that case no events are
	// delivered.
	Start(ctx context.Context, cfg Config, l Listener) (Handle, error)
}

// AudioSource supplies raw PCM audio for backends that transcribe a byte
// stream rather than owning the microphone themselves.
type AudioSource interface {
	// Open returns a channel of PCM chunks that is closed when the source is
	// exhausted or ctx is cancelled.
	Open(ctx context.Context) (<-chan []byte, error)
}
