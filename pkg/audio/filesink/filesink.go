// Package filesink provides an audio.Player that writes every clip to a
// directory and optionally hands the file to an external player command
// (e.g. "mpv --no-video", "afplay", "ffplay -nodisp -autoexit").
//
// Without a command the clip is considered played as soon as it is written,
// which keeps the sink usable on headless hosts and in tests.
package filesink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parrot/pkg/audio"
)

// Option is a functional option for configuring the Sink.
type Option func(*Sink)

// WithCommand plays each written file with name args... <file>.
func WithCommand(name string, args ...string) Option {
	return func(s *Sink) {
		s.command = name
		s.args = args
	}
}

// WithKeep controls whether clips are kept after playback. Default: kept when
// no command is set, removed otherwise.
func WithKeep(keep bool) Option {
	return func(s *Sink) {
		s.keep = &keep
	}
}

// Sink implements audio.Player.
type Sink struct {
	dir     string
	command string
	args    []string
	keep    *bool
	seq     atomic.Uint64
}

// New returns a Sink writing into dir, which is created if missing.
func New(dir string, opts ...Option) (*Sink, error) {
	if dir == "" {
		return nil, errors.New("filesink: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesink: create dir: %w", err)
	}
	s := &Sink{dir: dir}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Play writes clip to a new file and, if a command is configured, plays it.
func (s *Sink) Play(ctx context.Context, clip audio.Clip, l audio.Listener) (audio.Playback, error) {
	if len(clip.Data) == 0 {
		return nil, errors.New("filesink: empty clip")
	}
	ext := clip.Format
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("clip-%s-%04d.%s", time.Now().Format("20060102-150405"), s.seq.Add(1), ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		return nil, fmt.Errorf("filesink: write clip: %w", err)
	}

	p := &playback{path: path, done: make(chan struct{})}
	keep := s.command == ""
	if s.keep != nil {
		keep = *s.keep
	}

	if s.command == "" {
		go func() {
			defer close(p.done)
			l.OnStart()
			if !p.stopped.Load() {
				l.OnEnd()
			}
		}()
		return p, nil
	}

	cmd := exec.CommandContext(ctx, s.command, append(append([]string(nil), s.args...), path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("filesink: start %s: %w", s.command, err)
	}
	p.cmd = cmd

	go func() {
		defer close(p.done)
		l.OnStart()
		err := cmd.Wait()
		if !keep {
			_ = os.Remove(path)
		}
		switch {
		case p.stopped.Load():
		case err != nil:
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			l.OnError(fmt.Errorf("filesink: %s: %w", s.command, err))
		default:
			l.OnEnd()
		}
	}()
	return p, nil
}

// Path returns the file a Playback was written to. Used by tests.
func Path(pb audio.Playback) string {
	if p, ok := pb.(*playback); ok {
		return p.path
	}
	return ""
}

// Done returns a channel closed once the Playback has finished. Used by
// tests.
func Done(pb audio.Playback) <-chan struct{} {
	if p, ok := pb.(*playback); ok {
		return p.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

type playback struct {
	path    string
	cmd     *exec.Cmd
	mu      sync.Mutex
	paused  bool
	stopped atomic.Bool
	done    chan struct{}
}

func (p *playback) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Pause suspends the player process.
func (p *playback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return audio.ErrNotSupported
	}
	if p.paused || p.finished() {
		return nil
	}
	if err := suspend(p.cmd.Process); err != nil {
		return fmt.Errorf("filesink: pause: %w", err)
	}
	p.paused = true
	return nil
}

// Resume continues a suspended player process.
func (p *playback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return audio.ErrNotSupported
	}
	if !p.paused {
		return nil
	}
	if err := resume(p.cmd.Process); err != nil {
		return fmt.Errorf("filesink: resume: %w", err)
	}
	p.paused = false
	return nil
}

// Stop kills the player process. No further listener events are delivered.
func (p *playback) Stop() error {
	p.stopped.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.finished() {
		return nil
	}
	_ = p.cmd.Process.Kill()
	p.paused = false
	return nil
}

// Compile-time interface assertions.
var (
	_ audio.Player   = (*Sink)(nil)
	_ audio.Playback = (*playback)(nil)
)
