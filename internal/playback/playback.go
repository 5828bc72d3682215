// Package playback implements the speech playback session: play, pause,
// resume, and stop over one interchangeable [Backend], plus the repeat loop
// that restarts an utterance shortly after it ends.
//
// Two backends are provided. [LocalBackend] speaks through a host
// [synth.Synthesizer]; [RemoteBackend] renders audio with a remote
// [tts.Provider] and hands the clip to an [audio.Player].
//
// Every utterance gets a generation number. Stop, Speak, and SetBackend bump
// it, which makes late backend events and an already-fired repeat task
// harmless.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/parrot/internal/fault"
)

// State is the playback state.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State State

	// Text is the text of the current utterance. It survives pause/resume
	// and is cleared by Stop.
	Text string

	// Repeat reports whether the utterance restarts after it ends.
	Repeat bool

	// Pending is true between a Speak request and the backend's start
	// confirmation.
	Pending bool

	// Backend is the Name of the bound backend.
	Backend string

	// Err is the last playback error, if any. It is always a [*fault.Error].
	Err error
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithScheduler replaces the timer used for the repeat restart.
func WithScheduler(sch Scheduler) Option {
	return func(s *Session) { s.sched = sch }
}

// WithRepeatDelay sets the pause between repetitions. Default: 500ms.
func WithRepeatDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// Session is a speech playback session. It is safe for concurrent use.
type Session struct {
	sched Scheduler
	delay time.Duration

	mu      sync.Mutex
	backend Backend
	state   State
	pending bool
	text    string
	repeat  bool
	err     error
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	ctrl    Control
	restart Task
	subs    map[int]func(Snapshot)
	nextSub int
}

// New returns an idle Session bound to b. b may be nil until SetBackend is
// called.
func New(b Backend, opts ...Option) *Session {
	s := &Session{
		backend: b,
		sched:   timerScheduler,
		delay:   DefaultRepeatDelay,
		subs:    make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to receive a Snapshot after every change. fn runs on
// whichever goroutine caused the change and must not block.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports whether an utterance is requested, playing, or paused.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.state != StateIdle
}

// Backend returns the bound backend.
func (s *Session) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// SetBackend stops any playback and binds b.
func (s *Session) SetBackend(b Backend) {
	s.mu.Lock()
	ctrl := s.haltLocked()
	s.backend = b
	s.publishLocked()
	stopControl(ctrl)
}

// Speak starts speaking text, replacing any current utterance. Blank text is
// a no-op. When repeat is set the utterance restarts after the repeat delay
// until Stop or SetRepeat(false).
//
// Errors the backend reports synchronously (e.g. a missing credential) are
// stored in the snapshot and returned; later failures only reach the
// snapshot.
func (s *Session) Speak(ctx context.Context, text string, repeat bool) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	return s.startLocked(ctx, text, repeat)
}

// startLocked requires s.mu and releases it. A backend that is not ready
// leaves the current utterance playing.
func (s *Session) startLocked(ctx context.Context, text string, repeat bool) error {
	b := s.backend
	var ready error
	if b == nil {
		ready = fault.New(fault.Configuration, "No speech engine is configured.", nil)
	} else if r, ok := b.(Readier); ok {
		if err := r.Ready(); err != nil {
			ready = asFault(err)
		}
	}
	if ready != nil {
		if s.ctrl == nil && !s.pending && s.restart == nil {
			// Nothing is speaking, e.g. a repeat found the backend unusable.
			s.state = StateIdle
		}
		s.err = ready
		s.publishLocked()
		return ready
	}

	prev := s.haltLocked()

	s.text = text
	s.repeat = repeat
	s.err = nil
	s.pending = true
	gen := s.gen
	uctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	s.publishLocked()
	stopControl(prev)

	ctrl, err := b.Speak(uctx, text, &events{s: s, gen: gen})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		stopControl(ctrl)
		return nil
	}
	if err != nil {
		cancel()
		s.cancel = nil
		s.pending = false
		s.state = StateIdle
		s.err = asFault(err)
		ferr := s.err
		s.publishLocked()
		return ferr
	}
	if s.pending || (s.state != StateIdle && s.restart == nil) {
		// Not yet finished by a synchronous backend.
		s.ctrl = ctrl
	}
	s.mu.Unlock()
	return nil
}

// Pause pauses a playing utterance. It is a no-op in any other state.
func (s *Session) Pause() error {
	return s.transition(StatePlaying, StatePaused, Control.Pause)
}

// Resume continues a paused utterance. It is a no-op in any other state.
func (s *Session) Resume() error {
	return s.transition(StatePaused, StatePlaying, Control.Resume)
}

func (s *Session) transition(from, to State, op func(Control) error) error {
	s.mu.Lock()
	if s.state != from || s.ctrl == nil {
		s.mu.Unlock()
		return nil
	}
	ctrl, gen := s.ctrl, s.gen
	s.mu.Unlock()

	if err := op(ctrl); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.state != from {
		s.mu.Unlock()
		return nil
	}
	s.state = to
	s.publishLocked()
	return nil
}

// Stop halts playback from any state, cancels a pending repeat restart, and
// clears the stored text and repeat flag.
func (s *Session) Stop() {
	s.mu.Lock()
	ctrl := s.haltLocked()
	s.repeat = false
	s.text = ""
	s.publishLocked()
	stopControl(ctrl)
}

// SetRepeat toggles the repeat loop for the current and future utterances.
func (s *Session) SetRepeat(repeat bool) {
	s.mu.Lock()
	s.repeat = repeat
	if !repeat && s.restart != nil {
		s.restart.Stop()
		s.restart = nil
		if s.ctrl == nil && s.state != StateIdle {
			// Waiting between repetitions: nothing left to play.
			s.state = StateIdle
		}
	}
	s.publishLocked()
}

// SetRepeatDelay changes the pause between repetitions. A restart that is
// already scheduled keeps its delay.
func (s *Session) SetRepeatDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// haltLocked invalidates the current utterance and returns its control so
// the caller can stop it after releasing the lock.
func (s *Session) haltLocked() Control {
	s.gen++
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	ctrl := s.ctrl
	s.ctrl = nil
	s.state = StateIdle
	s.pending = false
	return ctrl
}

func stopControl(c Control) {
	if c == nil {
		return
	}
	if err := c.Stop(); err != nil {
		slog.Debug("playback: stop backend", "err", err)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:   s.state,
		Text:    s.text,
		Repeat:  s.repeat,
		Pending: s.pending,
		Err:     s.err,
	}
	if s.backend != nil {
		snap.Backend = s.backend.Name()
	}
	return snap
}

// publishLocked releases s.mu and then delivers the snapshot taken under it.
func (s *Session) publishLocked() {
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// lockCurrent locks s.mu and reports whether gen is the live utterance. When
// it returns false the lock is already released.
func (s *Session) lockCurrent(gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) onStart(gen uint64) {
	if !s.lockCurrent(gen) {
		return
	}
	s.pending = false
	s.state = StatePlaying
	s.publishLocked()
}

func (s *Session) onEnd(gen uint64) {
	if !s.lockCurrent(gen) {
		return
	}
	s.ctrl = nil
	s.pending = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.repeat && s.text != "" {
		// Stay Playing through the gap; Stop cancels the task and bumps gen.
		s.state = StatePlaying
		s.restart = s.sched.AfterFunc(s.delay, func() { s.repeatFrom(gen) })
	} else {
		s.state = StateIdle
	}
	s.publishLocked()
}

// repeatFrom restarts the utterance of generation gen if nothing superseded
// it and repeat is still enabled.
func (s *Session) repeatFrom(gen uint64) {
	if !s.lockCurrent(gen) {
		return
	}
	s.restart = nil
	if !s.repeat || s.text == "" {
		s.state = StateIdle
		s.publishLocked()
		return
	}
	if err := s.startLocked(s.ctx, s.text, true); err != nil {
		slog.Warn("playback: repeat restart failed", "err", err)
	}
}

func (s *Session) onError(gen uint64, err error) {
	if !s.lockCurrent(gen) {
		return
	}
	s.ctrl = nil
	s.pending = false
	s.state = StateIdle
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
	s.gen++
	s.err = asFault(err)
	slog.Warn("playback: utterance failed", "err", err)
	s.publishLocked()
}

// asFault keeps classified errors and files everything else as a playback
// failure.
func asFault(err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.New(fault.Playback, "Audio playback failed.", err)
}

// events binds backend callbacks to one utterance generation.
type events struct {
	s   *Session
	gen uint64
}

func (e *events) OnStart()          { e.s.onStart(e.gen) }
func (e *events) OnEnd()            { e.s.onEnd(e.gen) }
func (e *events) OnError(err error) { e.s.onError(e.gen, err) }

var _ Events = (*events)(nil)
