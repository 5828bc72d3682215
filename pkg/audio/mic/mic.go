// Package mic captures 16-bit PCM from the default input device through
// PortAudio. Source satisfies stt.AudioSource.
//
// PortAudio must be initialised once per process; Open/Close on the package
// level handle that and are reference counted.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate is the capture rate expected by the streaming recognisers.
	SampleRate = 16000

	// FramesPerBuffer is the number of samples per delivered chunk (64ms).
	FramesPerBuffer = 1024
)

var (
	initMu   sync.Mutex
	initRefs int
)

// Init initialises PortAudio. Every successful Init must be paired with a
// Terminate.
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("mic: initialise portaudio: %w", err)
		}
	}
	initRefs++
	return nil
}

// Terminate releases PortAudio once the last user is done.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return nil
	}
	initRefs--
	if initRefs == 0 {
		return portaudio.Terminate()
	}
	return nil
}

// ErrBusy is returned by Open while another capture is running.
var ErrBusy = errors.New("mic: capture already running")

// Source reads mono PCM from the default input device.
type Source struct {
	mu      sync.Mutex
	running bool
}

// New returns a Source. Init must have been called.
func New() *Source {
	return &Source{}
}

// Open starts capture. The returned channel delivers little-endian int16
// chunks and is closed when ctx is cancelled or the device fails.
func (s *Source) Open(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.running = true
	s.mu.Unlock()

	buf := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("mic: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		s.release()
		return nil, fmt.Errorf("mic: start stream: %w", err)
	}

	ch := make(chan []byte, 16)
	go func() {
		defer s.release()
		defer close(ch)
		defer stream.Close()
		defer stream.Stop()

		for ctx.Err() == nil {
			// Read blocks until a full buffer is captured.
			if err := stream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					continue
				}
				slog.Warn("mic: read failed", "err", err)
				return
			}
			select {
			case ch <- encode(buf):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *Source) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// encode copies samples into a fresh little-endian byte slice.
func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
