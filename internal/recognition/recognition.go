// Package recognition implements the pronunciation capture session: a small
// state machine around a streaming [stt.Recognizer] that accumulates the final
// transcript, tracks the interim text, and classifies capture errors.
//
// Recognizers deliver events on their own goroutines. Every capture gets a
// generation number and events carrying an older generation are dropped, so a
// late result from an abandoned capture can never leak into the next one.
//
// Stop is graceful: the session goes Idle at once but keeps committing the
// final results the recognizer flushes for pending audio until OnEnd. The
// snapshot reports Settling during that window.
package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/parrot/internal/fault"
	"github.com/MrWong99/parrot/pkg/provider/stt"
)

// DefaultLanguage is the recognition language used when Start is given none.
const DefaultLanguage = "en-US"

// DefaultSettleTimeout bounds how long a stopped capture waits for the
// recognizer's OnEnd.
const DefaultSettleTimeout = 3 * time.Second

// State is the capture state.
type State int

const (
	StateIdle State = iota
	StateListening
)

// String returns the state name.
func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "idle"
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State State

	// Transcript is the accumulated final text of the current capture.
	Transcript string

	// Interim is the provisional text not yet finalised.
	Interim string

	// Err is the last capture error, if any. It is always a [*fault.Error].
	Err error

	// Capture numbers the capture the snapshot belongs to. Every Start that
	// reaches the recognizer increments it; it is zero before the first one.
	Capture uint64

	// Settling is true between Stop and the end of the capture, while the
	// recognizer may still deliver final text for audio already heard.
	Settling bool
}

// Session is a recognition capture session. It is safe for concurrent use.
type Session struct {
	rec stt.Recognizer

	mu        sync.Mutex
	state     State
	final     []string
	interim   string
	committed int
	err       error
	gen       uint64
	capture   uint64
	handle    stt.Handle
	settling  bool
	settle    *time.Timer
	subs      map[int]func(Snapshot)
	nextSub   int

	settleTimeout time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithSettleTimeout sets how long a stopped capture may keep delivering final
// results before it is ended without the recognizer's OnEnd. Non-positive
// values are ignored.
func WithSettleTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.settleTimeout = d
		}
	}
}

// New returns an idle Session over rec. A nil rec makes every Start fail
// with a CapabilityUnavailable fault.
func New(rec stt.Recognizer, opts ...Option) *Session {
	s := &Session{rec: rec, subs: make(map[int]func(Snapshot)), settleTimeout: DefaultSettleTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to receive a Snapshot after every change. fn runs on
// whichever goroutine caused the change and must not block. The returned func
// removes the subscription.
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

// Listening reports whether a capture is active.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateListening
}

// Start begins a new capture in the given language (default
// [DefaultLanguage]). Any active capture is aborted first. The transcript,
// interim text, and commit cursor are reset.
//
// The returned error is the same [*fault.Error] stored in the snapshot; a
// capability that is missing or fails to start leaves the session Idle.
func (s *Session) Start(ctx context.Context, language string) error {
	if language == "" {
		language = DefaultLanguage
	}

	s.mu.Lock()
	if s.rec == nil || !s.rec.Available() {
		s.err = fault.New(fault.CapabilityUnavailable,
			"Speech recognition is not available on this host.", stt.ErrUnavailable)
		err := s.err
		s.publishLocked()
		return err
	}

	prev := s.handle
	s.handle = nil
	s.stopSettlingLocked()
	s.gen++
	gen := s.gen
	s.capture++
	s.final = nil
	s.interim = ""
	s.committed = 0
	s.err = nil
	s.state = StateListening
	s.publishLocked()

	if prev != nil {
		if err := prev.Abort(); err != nil {
			slog.Debug("recognition: abort previous capture", "err", err)
		}
	}

	h, err := s.rec.Start(ctx, stt.Config{
		Language:       language,
		Continuous:     true,
		InterimResults: true,
	}, &listener{s: s, gen: gen})

	s.mu.Lock()
	if s.gen != gen {
		// Stopped or restarted while the recognizer was starting.
		s.mu.Unlock()
		if h != nil {
			_ = h.Abort()
		}
		return nil
	}
	if err != nil {
		s.state = StateIdle
		s.interim = ""
		s.err = fault.New(fault.FatalCapture, "Could not start speech recognition.", err)
		ferr := s.err
		s.publishLocked()
		return ferr
	}
	s.handle = h
	s.mu.Unlock()
	return nil
}

// Stop ends the active capture gracefully. The session becomes Idle, the
// interim text is cleared, and the final transcript is kept. Final results
// the recognizer flushes afterwards are still committed until its OnEnd or
// the settle timeout; interim results and no-speech reports are ignored.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	h := s.handle
	s.state = StateIdle
	s.interim = ""
	if h == nil {
		// Still starting: nothing was heard yet, so abandon the capture.
		s.gen++
	}
	gen := s.gen
	if h != nil {
		s.settling = true
		s.settle = time.AfterFunc(s.settleTimeout, func() { s.settled(gen) })
	}
	s.publishLocked()

	if h != nil {
		if err := h.Stop(); err != nil {
			slog.Debug("recognition: stop capture", "err", err)
			s.settled(gen)
		}
	}
}

// settled ends a stopped capture that is still waiting for its OnEnd.
func (s *Session) settled(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || !s.settling {
		s.mu.Unlock()
		return
	}
	slog.Debug("recognition: capture ended without recognizer end event")
	s.endLocked()
	s.publishLocked()
}

// ClearTranscript resets the transcript, interim text, commit cursor, and
// error regardless of the capture state. A stopped capture that is still
// settling is abandoned so its late results cannot refill the transcript.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	var abandoned stt.Handle
	if s.settling {
		abandoned = s.handle
		s.endLocked()
	}
	s.final = nil
	s.interim = ""
	s.committed = 0
	s.err = nil
	s.publishLocked()

	if abandoned != nil {
		if err := abandoned.Abort(); err != nil {
			slog.Debug("recognition: abort settling capture", "err", err)
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.state,
		Transcript: strings.Join(s.final, " "),
		Interim:    s.interim,
		Err:        s.err,
		Capture:    s.capture,
		Settling:   s.settling,
	}
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

// lockCurrent locks s.mu and reports whether gen is still the live capture,
// either listening or settling after Stop. When it returns false the lock is
// already released.
func (s *Session) lockCurrent(gen uint64) bool {
	s.mu.Lock()
	if s.gen != gen || (s.state != StateListening && !s.settling) {
		s.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) onStart(gen uint64) {
	if !s.lockCurrent(gen) {
		return
	}
	if s.settling {
		s.mu.Unlock()
		return
	}
	s.err = nil
	s.publishLocked()
}

// onResult commits every final result at or beyond the commit cursor and
// replaces the interim text with the non-final results of the batch. A
// settling capture only commits.
func (s *Session) onResult(gen uint64, b stt.ResultBatch) {
	if !s.lockCurrent(gen) {
		return
	}
	start := max(b.ResultIndex, 0)
	for i := max(start, s.committed); i < len(b.Results); i++ {
		r := b.Results[i]
		if !r.Final {
			continue
		}
		if text := strings.TrimSpace(r.Text); text != "" {
			s.final = append(s.final, text)
		}
		s.committed = i + 1
	}

	if s.settling {
		s.publishLocked()
		return
	}
	var interim []string
	for i := start; i < len(b.Results); i++ {
		if r := b.Results[i]; !r.Final {
			if text := strings.TrimSpace(r.Text); text != "" {
				interim = append(interim, text)
			}
		}
	}
	s.interim = strings.Join(interim, " ")
	s.publishLocked()
}

func (s *Session) onError(gen uint64, code stt.ErrorCode, msg string) {
	if code == stt.ErrorAborted {
		return
	}
	if !s.lockCurrent(gen) {
		return
	}
	if s.settling && code == stt.ErrorNoSpeech {
		s.mu.Unlock()
		return
	}
	slog.Debug("recognition: capture error", "code", code, "message", msg)

	cause := fmt.Errorf("recognition: %s: %s", code, msg)
	switch code {
	case stt.ErrorNoSpeech:
		s.err = fault.New(fault.TransientCapture,
			"No speech was detected. Move closer to the microphone and try again.", cause)
	case stt.ErrorPermissionDenied:
		s.err = fault.New(fault.FatalCapture,
			"Microphone access was denied. Allow microphone access and try again.", cause)
		s.endLocked()
	case stt.ErrorNetwork:
		s.err = fault.New(fault.FatalCapture,
			"A network error occurred. Check your internet connection.", cause)
		s.endLocked()
	default:
		s.err = fault.New(fault.FatalCapture, "Speech recognition error: "+string(code), cause)
		s.endLocked()
	}
	s.publishLocked()
}

func (s *Session) onEnd(gen uint64) {
	if !s.lockCurrent(gen) {
		return
	}
	s.endLocked()
	s.publishLocked()
}

// endLocked moves the live capture to Idle. Later events for it are dropped.
func (s *Session) endLocked() {
	s.gen++
	s.handle = nil
	s.state = StateIdle
	s.interim = ""
	s.stopSettlingLocked()
}

func (s *Session) stopSettlingLocked() {
	s.settling = false
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
}

// listener binds recognizer callbacks to one capture generation.
type listener struct {
	s   *Session
	gen uint64
}

func (l *listener) OnStart()                          { l.s.onStart(l.gen) }
func (l *listener) OnResult(b stt.ResultBatch)        { l.s.onResult(l.gen, b) }
func (l *listener) OnError(c stt.ErrorCode, m string) { l.s.onError(l.gen, c, m) }
func (l *listener) OnEnd()                            { l.s.onEnd(l.gen) }

var _ stt.Listener = (*listener)(nil)
