// Package mock provides an in-memory mock implementation of [audio.Player]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every Play call together
// with the Listener, so tests decide when a clip starts, ends, or fails:
//
//	p := &mock.Player{}
//	pb, _ := p.Play(ctx, clip, l)
//	p.Last().Listener.OnEnd()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parrot/pkg/audio"
)

// PlayCall records a single invocation of Player.Play.
type PlayCall struct {
	// Ctx is the context passed to Play.
	Ctx context.Context
	// Clip is the Clip passed to Play.
	Clip audio.Clip
	// Listener is the Listener passed to Play.
	Listener audio.Listener
	// Playback is the Playback returned (nil on error).
	Playback *Playback
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// AutoStart makes Play deliver OnStart synchronously before returning.
	AutoStart bool

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall
}

// Play records the call and returns a fresh Playback, or PlayErr.
func (p *Player) Play(ctx context.Context, clip audio.Clip, l audio.Listener) (audio.Playback, error) {
	p.mu.Lock()
	call := PlayCall{Ctx: ctx, Clip: clip, Listener: l}
	if p.PlayErr != nil {
		err := p.PlayErr
		p.PlayCalls = append(p.PlayCalls, call)
		p.mu.Unlock()
		return nil, err
	}
	call.Playback = &Playback{}
	p.PlayCalls = append(p.PlayCalls, call)
	autoStart := p.AutoStart
	p.mu.Unlock()

	if autoStart {
		l.OnStart()
	}
	return call.Playback, nil
}

// Last returns the most recent Play call. It panics if Play was never called.
func (p *Player) Last() PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PlayCalls[len(p.PlayCalls)-1]
}

// PlayCallCount returns the number of Play calls.
func (p *Player) PlayCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu sync.Mutex

	// CallCountPause records how many times Pause was called.
	CallCountPause int

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Pause records the call.
func (pb *Playback) Pause() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.CallCountPause++
	return nil
}

// Resume records the call.
func (pb *Playback) Resume() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.CallCountResume++
	return nil
}

// Stop records the call.
func (pb *Playback) Stop() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.CallCountStop++
	return nil
}

// Stops returns CallCountStop.
func (pb *Playback) Stops() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.CallCountStop
}

// Compile-time interface assertions.
var (
	_ audio.Player   = (*Player)(nil)
	_ audio.Playback = (*Playback)(nil)
)
