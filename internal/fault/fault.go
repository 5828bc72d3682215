// Package fault defines the user-facing error taxonomy shared by the speech
// and chat sessions.
//
// Every failure a session absorbs is converted into an [*Error] whose [Kind]
// tells the UI how to react: configuration problems send the user to the
// settings, capture problems offer a retry, and so on. An [*Error] matches its
// kind's sentinel through [errors.Is]:
//
//	if errors.Is(err, fault.ErrConfiguration) { ... }
package fault

import "errors"

// Kind classifies a session failure.
type Kind int

const (
	// Configuration means a credential or setting is missing.
	Configuration Kind = iota + 1

	// CapabilityUnavailable means the host lacks a required feature.
	CapabilityUnavailable

	// TransientCapture is a recoverable capture problem (no speech heard).
	TransientCapture

	// FatalCapture ends the capture (permission, network, start failure).
	FatalCapture

	// RemoteRequest is a failed call to a remote service.
	RemoteRequest

	// Playback is a backend failure while speaking an utterance.
	Playback
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case CapabilityUnavailable:
		return "capability-unavailable"
	case TransientCapture:
		return "transient-capture"
	case FatalCapture:
		return "fatal-capture"
	case RemoteRequest:
		return "remote-request"
	case Playback:
		return "playback"
	default:
		return "unknown"
	}
}

// Sentinels matched by [*Error.Is].
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrTransientCapture      = errors.New("transient capture error")
	ErrFatalCapture          = errors.New("fatal capture error")
	ErrRemoteRequest         = errors.New("remote request error")
	ErrPlayback              = errors.New("playback error")
)

func (k Kind) sentinel() error {
	switch k {
	case Configuration:
		return ErrConfiguration
	case CapabilityUnavailable:
		return ErrCapabilityUnavailable
	case TransientCapture:
		return ErrTransientCapture
	case FatalCapture:
		return ErrFatalCapture
	case RemoteRequest:
		return ErrRemoteRequest
	case Playback:
		return ErrPlayback
	}
	return nil
}

// Error is a classified failure carrying a message suitable for display.
type Error struct {
	Kind Kind

	// Message is shown to the user next to the control that failed.
	Message string

	// Err is the underlying cause. May be nil.
	Err error
}

// New returns an [*Error] of kind k.
func New(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Err: cause}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Message returns the display text for err: the [*Error] message when err
// wraps one, otherwise err.Error(). Returns "" for nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// KindOf returns the kind of the [*Error] wrapped by err, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
