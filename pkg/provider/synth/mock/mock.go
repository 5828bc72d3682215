// Package mock provides test doubles for the synth package interfaces.
//
// Synthesizer keeps every Listener it is given so tests can finish an
// utterance on demand:
//
//	s := &mock.Synthesizer{VoicesResult: []synth.Voice{{Name: "Samantha", Language: "en-US"}}}
//	h, _ := s.Speak(ctx, u, l)
//	s.Last().Listener.OnEnd()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/synth"
)

// SpeakCall records a single invocation of Synthesizer.Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Utterance is the Utterance passed to Speak.
	Utterance synth.Utterance
	// Listener is the Listener passed to Speak.
	Listener synth.Listener
	// Handle is the Handle returned for this call (nil on error).
	Handle *Handle
}

// Synthesizer is a mock implementation of synth.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// VoicesResult is returned by Voices.
	VoicesResult []synth.Voice

	// VoicesErr, if non-nil, is returned as the error from Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned as the error from Speak.
	SpeakErr error

	// AutoStart makes Speak deliver OnStart synchronously before returning.
	AutoStart bool

	// --- Call records ---

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// VoicesCallCount is the number of Voices calls.
	VoicesCallCount int
}

// Voices records the call and returns VoicesResult, VoicesErr.
func (s *Synthesizer) Voices(_ context.Context) ([]synth.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VoicesCallCount++
	return s.VoicesResult, s.VoicesErr
}

// Speak records the call and returns a fresh Handle, or SpeakErr.
func (s *Synthesizer) Speak(ctx context.Context, u synth.Utterance, l synth.Listener) (synth.Handle, error) {
	s.mu.Lock()
	call := SpeakCall{Ctx: ctx, Utterance: u, Listener: l}
	if s.SpeakErr != nil {
		err := s.SpeakErr
		s.SpeakCalls = append(s.SpeakCalls, call)
		s.mu.Unlock()
		return nil, err
	}
	call.Handle = &Handle{}
	s.SpeakCalls = append(s.SpeakCalls, call)
	autoStart := s.AutoStart
	s.mu.Unlock()

	if autoStart {
		l.OnStart()
	}
	return call.Handle, nil
}

// Last returns the most recent Speak call. It panics if Speak was never
// called.
func (s *Synthesizer) Last() SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SpeakCalls[len(s.SpeakCalls)-1]
}

// SpeakCallCount returns the number of Speak calls. Thread-safe.
func (s *Synthesizer) SpeakCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SpeakCalls)
}

// Handle is a mock implementation of synth.Handle.
type Handle struct {
	mu sync.Mutex

	PauseCount  int
	ResumeCount int
	CancelCount int
}

// Pause records the call.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.PauseCount++
	return nil
}

// Resume records the call.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ResumeCount++
	return nil
}

// Cancel records the call.
func (h *Handle) Cancel() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CancelCount++
	return nil
}

// Cancels returns CancelCount. Thread-safe.
func (h *Handle) Cancels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CancelCount
}

// Compile-time interface assertions.
var (
	_ synth.Synthesizer = (*Synthesizer)(nil)
	_ synth.Handle      = (*Handle)(nil)
)
