package audio

import (
	"context"
	"fmt"
	"os"
	"time"
)

const defaultChunk = 100 * time.Millisecond

// FileSource streams a WAV recording as PCM chunks in a target format. It
// satisfies stt.AudioSource, so a recorded attempt can be scored through the
// same recogniser as live speech.
type FileSource struct {
	// Path is the WAV file to read.
	Path string

	// Target is the format delivered to the consumer. Default: 16 kHz mono.
	Target Format

	// Chunk is the duration of audio per delivered chunk. Default: 100ms.
	Chunk time.Duration

	// Realtime paces delivery at playback speed, which streaming services
	// expect from live input.
	Realtime bool
}

// Open reads and converts the whole file, then streams it from a goroutine.
// The channel is closed when the file is exhausted or ctx is cancelled.
func (s *FileSource) Open(ctx context.Context) (<-chan []byte, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("audio: open source: %w", err)
	}
	defer f.Close()

	from, pcm, err := ReadWAV(f)
	if err != nil {
		return nil, err
	}
	target := s.Target
	if target.SampleRate == 0 {
		target = Format{SampleRate: 16000, Channels: 1}
	}
	pcm, err = Convert(pcm, from, target)
	if err != nil {
		return nil, err
	}

	chunkDur := s.Chunk
	if chunkDur <= 0 {
		chunkDur = defaultChunk
	}
	size := int(int64(target.BytesPerSecond()) * int64(chunkDur) / int64(time.Second))
	size -= size % (target.Channels * 2)
	size = max(size, target.Channels*2)

	ch := make(chan []byte, 4)
	go func() {
		defer close(ch)
		var tick <-chan time.Time
		if s.Realtime {
			t := time.NewTicker(chunkDur)
			defer t.Stop()
			tick = t.C
		}
		for off := 0; off < len(pcm); off += size {
			if tick != nil && off > 0 {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- pcm[off:min(off+size, len(pcm))]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
