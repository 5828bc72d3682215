// Package mock provides test doubles for the stt package interfaces.
//
// Recognizer records every Start call and keeps the Listener it was given so
// that tests can drive a capture synchronously:
//
//	r := &mock.Recognizer{}
//	h, _ := r.Start(ctx, cfg, listener)
//	r.Last().Listener.OnResult(stt.ResultBatch{...})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/stt"
)

// StartCall records a single invocation of Recognizer.Start.
type StartCall struct {
	// Ctx is the context passed to Start.
	Ctx context.Context
	// Cfg is the Config passed to Start.
	Cfg stt.Config
	// Listener is the Listener passed to Start.
	Listener stt.Listener
	// Handle is the Handle returned for this call (nil on error).
	Handle *Handle
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Unavailable makes Available report false.
	Unavailable bool

	// StartErr, if non-nil, is returned as the error from Start.
	StartErr error

	// StartCalls records every call to Start in order.
	StartCalls []StartCall
}

// Available implements stt.Recognizer.
func (r *Recognizer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Unavailable
}

// Start records the call and returns a fresh Handle, or StartErr.
func (r *Recognizer) Start(ctx context.Context, cfg stt.Config, l stt.Listener) (stt.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := StartCall{Ctx: ctx, Cfg: cfg, Listener: l}
	if r.StartErr != nil {
		r.StartCalls = append(r.StartCalls, call)
		return nil, r.StartErr
	}
	call.Handle = &Handle{}
	r.StartCalls = append(r.StartCalls, call)
	return call.Handle, nil
}

// Last returns the most recent Start call. It panics when Start was never
// called, which is always a test bug.
func (r *Recognizer) Last() StartCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StartCalls[len(r.StartCalls)-1]
}

// StartCallCount returns the number of Start calls. Thread-safe.
func (r *Recognizer) StartCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.StartCalls)
}

// Handle is a mock implementation of stt.Handle.
type Handle struct {
	mu sync.Mutex

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	// AbortCallCount is the number of times Abort was called.
	AbortCallCount int
}

// Stop records the call and returns StopErr.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StopCallCount++
	return h.StopErr
}

// Abort records the call.
func (h *Handle) Abort() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.AbortCallCount++
	return nil
}

// Stops returns StopCallCount. Thread-safe.
func (h *Handle) Stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.StopCallCount
}

// Compile-time interface assertions.
var (
	_ stt.Recognizer = (*Recognizer)(nil)
	_ stt.Handle     = (*Handle)(nil)
)
