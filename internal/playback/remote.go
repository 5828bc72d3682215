package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parrot/internal/fault"
	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/types"
)

// DefaultRemoteVoice is the remote voice used until the user picks another.
const DefaultRemoteVoice = "nova"

// RemoteBackend renders each utterance with a remote TTS provider and plays
// the resulting clip. A nil provider means no API key is configured.
type RemoteBackend struct {
	provider tts.Provider
	player   audio.Player

	mu    sync.Mutex
	voice string
}

// NewRemoteBackend returns a RemoteBackend. p is nil when no credential is
// configured; Speak then fails with a Configuration fault.
func NewRemoteBackend(p tts.Provider, player audio.Player, voice string) *RemoteBackend {
	if voice == "" {
		voice = DefaultRemoteVoice
	}
	return &RemoteBackend{provider: p, player: player, voice: voice}
}

// Name implements Backend.
func (b *RemoteBackend) Name() string { return "remote" }

// Voice returns the selected remote voice ID.
func (b *RemoteBackend) Voice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// SetVoice selects the remote voice ID used for later utterances.
func (b *RemoteBackend) SetVoice(id string) {
	b.mu.Lock()
	b.voice = id
	b.mu.Unlock()
}

// Voices lists the provider's voices.
func (b *RemoteBackend) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	if b.provider == nil {
		return nil, nil
	}
	return b.provider.Voices(ctx)
}

// Ready implements Readier.
func (b *RemoteBackend) Ready() error {
	if b.provider == nil {
		return fault.New(fault.Configuration, "The OpenAI API key is not set.", nil)
	}
	if b.player == nil {
		return fault.New(fault.CapabilityUnavailable, "No audio output is configured.", nil)
	}
	return nil
}

// Speak implements Backend. Synthesis runs in the background; its failure is
// reported through ev.OnError.
func (b *RemoteBackend) Speak(ctx context.Context, text string, ev Events) (Control, error) {
	if err := b.Ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &remoteControl{cancel: cancel}
	req := tts.Request{Text: text, Voice: b.Voice(), Format: tts.FormatMP3, Speed: 1.0}

	go func() {
		clip, err := b.provider.Synthesize(ctx, req)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			ev.OnError(RemoteError(err))
			return
		}
		pb, err := b.player.Play(ctx, audio.Clip{Data: clip.Data, Format: clip.Format}, ev)
		if err != nil {
			ev.OnError(fault.New(fault.Playback, "Audio playback failed.", err))
			return
		}
		if !c.attach(pb) {
			_ = pb.Stop()
		}
	}()
	return c, nil
}

// RemoteError classifies a remote speech failure for display.
func RemoteError(err error) error {
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		return fault.New(fault.RemoteRequest, "The API key is invalid.", err)
	case errors.Is(err, provider.ErrRateLimited):
		return fault.New(fault.RemoteRequest, "The API request limit was exceeded.", err)
	}
	var se *provider.StatusError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", se.StatusCode)
		}
		return fault.New(fault.RemoteRequest, msg, err)
	}
	return fault.New(fault.RemoteRequest, "Text-to-speech conversion failed.", err)
}

// remoteControl controls one remote utterance. Before the clip is playing
// only Stop has an effect.
type remoteControl struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	pb      audio.Playback
	stopped bool
}

// attach binds the playback. It reports false if Stop already ran.
func (c *remoteControl) attach(pb audio.Playback) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.pb = pb
	return true
}

func (c *remoteControl) playback() audio.Playback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pb
}

func (c *remoteControl) Pause() error {
	if pb := c.playback(); pb != nil {
		return pb.Pause()
	}
	return nil
}

func (c *remoteControl) Resume() error {
	if pb := c.playback(); pb != nil {
		return pb.Resume()
	}
	return nil
}

func (c *remoteControl) Stop() error {
	c.mu.Lock()
	c.stopped = true
	pb := c.pb
	c.pb = nil
	c.mu.Unlock()
	c.cancel()
	if pb != nil {
		return pb.Stop()
	}
	return nil
}

var (
	_ Backend = (*RemoteBackend)(nil)
	_ Readier = (*RemoteBackend)(nil)
)
