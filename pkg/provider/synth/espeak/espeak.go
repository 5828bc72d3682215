// Package espeak provides a local speech synthesiser that drives the espeak-ng
// command-line tool. It implements the synth.Synthesizer interface.
//
// Every utterance runs as its own espeak-ng process that plays straight to the
// default audio device. Pause and resume suspend and continue that process,
// which is only possible on Unix hosts.
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parrot/pkg/provider/synth"
)

const (
	defaultBinary = "espeak-ng"

	// baseWPM is espeak-ng's default speaking rate, used for Rate 1.0.
	baseWPM = 175

	// basePitch is espeak-ng's default pitch (0-99), used for Pitch 1.0.
	basePitch = 50

	// waitDelay bounds how long Wait blocks on output pipes held open by
	// grandchildren after the process itself is gone.
	waitDelay = time.Second
)

// Option is a functional option for configuring the Synthesizer.
type Option func(*Synthesizer)

// WithBinary sets the espeak-ng executable. Default: "espeak-ng" from PATH.
func WithBinary(path string) Option {
	return func(s *Synthesizer) {
		s.binary = path
	}
}

// WithLanguageFilter restricts Voices to the given espeak language prefix,
// e.g. "en". Default: no filter.
func WithLanguageFilter(prefix string) Option {
	return func(s *Synthesizer) {
		s.filter = prefix
	}
}

// Synthesizer implements synth.Synthesizer using espeak-ng.
type Synthesizer struct {
	binary string
	filter string
}

// New creates a Synthesizer. It does not check that the binary exists; use
// [Synthesizer.Available] for that.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{binary: defaultBinary}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Available reports whether the espeak-ng binary can be found.
func (s *Synthesizer) Available() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Voices runs "espeak-ng --voices" and parses its table.
func (s *Synthesizer) Voices(ctx context.Context) ([]synth.Voice, error) {
	arg := "--voices"
	if s.filter != "" {
		arg += "=" + s.filter
	}
	out, err := exec.CommandContext(ctx, s.binary, arg).Output()
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	return parseVoices(out), nil
}

// Speak starts an espeak-ng process for u.
func (s *Synthesizer) Speak(ctx context.Context, u synth.Utterance, l synth.Listener) (synth.Handle, error) {
	if l == nil {
		return nil, errors.New("espeak: listener must not be nil")
	}
	cmd := exec.CommandContext(ctx, s.binary, buildArgs(u)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("espeak: start: %w", err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		l.OnStart()
		err := cmd.Wait()
		switch {
		case h.cancelled.Load():
		case err != nil:
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			l.OnError(fmt.Errorf("espeak: %w", err))
		default:
			l.OnEnd()
		}
	}()
	return h, nil
}

// buildArgs converts an utterance into espeak-ng arguments. Text is passed
// after "--" so leading dashes are never read as flags.
func buildArgs(u synth.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := u.Pitch
	if pitch < 0 {
		pitch = 1
	}

	args := []string{
		"-s", strconv.Itoa(int(baseWPM * min(max(rate, 0.5), 2.0))),
		"-p", strconv.Itoa(min(int(basePitch*min(pitch, 2.0)), 99)),
	}
	if u.Voice != "" {
		args = append(args, "-v", u.Voice)
	}
	return append(args, "--", u.Text)
}

// parseVoices reads the table printed by "espeak-ng --voices":
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US            (en 10)
func parseVoices(out []byte) []synth.Voice {
	var voices []synth.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, synth.Voice{
			Name:     fields[3],
			Language: fields[1],
		})
	}
	return voices
}

// handle controls one espeak-ng process.
type handle struct {
	cmd       *exec.Cmd
	mu        sync.Mutex
	paused    bool
	cancelled atomic.Bool
	done      chan struct{}
}

func (h *handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Pause suspends the process.
func (h *handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused || h.finished() {
		return nil
	}
	if err := suspend(h.cmd.Process); err != nil {
		return fmt.Errorf("espeak: pause: %w", err)
	}
	h.paused = true
	return nil
}

// Resume continues a suspended process.
func (h *handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return nil
	}
	if err := resume(h.cmd.Process); err != nil {
		return fmt.Errorf("espeak: resume: %w", err)
	}
	h.paused = false
	return nil
}

// Cancel kills the process. No further listener events are delivered.
func (h *handle) Cancel() error {
	h.cancelled.Store(true)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished() {
		return nil
	}
	_ = h.cmd.Process.Kill()
	h.paused = false
	return nil
}

// Compile-time interface assertions.
var (
	_ synth.Synthesizer = (*Synthesizer)(nil)
	_ synth.Handle      = (*handle)(nil)
)
