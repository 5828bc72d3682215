package playback

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/parrot/internal/fault"
	"github.com/MrWong99/parrot/pkg/provider/synth"
)

// Rate and pitch bounds accepted by LocalBackend.
const (
	MinRate  = 0.5
	MaxRate  = 2.0
	MinPitch = 0.0
	MaxPitch = 2.0
)

// QualityVoices are well-known English voices that sound better than the
// usual host default. They are preferred when no saved choice applies.
var QualityVoices = []string{
	"Samantha",
	"Google US English",
	"Microsoft Aria Online (Natural) - English (United States)",
	"Microsoft Jenny Online (Natural) - English (United States)",
	"Daniel",
	"Karen",
	"en-us+f3",
}

// LocalOption is a functional option for LocalBackend.
type LocalOption func(*LocalBackend)

// WithRate sets the initial speaking rate. Default: 1.0.
func WithRate(r float64) LocalOption {
	return func(b *LocalBackend) { b.rate = clamp(r, MinRate, MaxRate) }
}

// WithPitch sets the initial pitch. Default: 1.0.
func WithPitch(p float64) LocalOption {
	return func(b *LocalBackend) { b.pitch = clamp(p, MinPitch, MaxPitch) }
}

// LocalBackend speaks through a host speech synthesizer. Only English voices
// are offered.
type LocalBackend struct {
	synth synth.Synthesizer
	prefs VoicePreference

	mu     sync.Mutex
	rate   float64
	pitch  float64
	voices []synth.Voice
	voice  string
}

// NewLocalBackend returns a LocalBackend over s. prefs may be nil, in which
// case voice choices are not persisted.
func NewLocalBackend(s synth.Synthesizer, prefs VoicePreference, opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		synth: s,
		prefs: prefs,
		rate:  1.0,
		pitch: 1.0,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// RefreshVoices reloads the host voice list, keeps the English voices, and
// picks a default voice unless the current one is still available. Hosts
// that populate voices late can call it again at any time.
func (b *LocalBackend) RefreshVoices(ctx context.Context) error {
	all, err := b.synth.Voices(ctx)
	if err != nil {
		return fmt.Errorf("playback: list voices: %w", err)
	}
	english := make([]synth.Voice, 0, len(all))
	for _, v := range all {
		if v.IsEnglish() {
			english = append(english, v)
		}
	}

	saved := ""
	if b.prefs != nil {
		if saved, err = b.prefs.PreferredVoice(ctx); err != nil {
			slog.Warn("playback: load preferred voice", "err", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.voices = english
	if !hasVoice(english, b.voice) {
		b.voice = DefaultVoice(english, saved, QualityVoices)
	}
	return nil
}

// DefaultVoice picks a voice from english in this order: the saved
// preference if still present, the first available quality voice, the first
// US-English voice, the first voice. It returns "" for an empty list.
func DefaultVoice(english []synth.Voice, saved string, quality []string) string {
	if len(english) == 0 {
		return ""
	}
	if saved != "" && hasVoice(english, saved) {
		return saved
	}
	for _, q := range quality {
		if hasVoice(english, q) {
			return q
		}
	}
	for _, v := range english {
		if v.IsUSEnglish() {
			return v.Name
		}
	}
	return english[0].Name
}

func hasVoice(vs []synth.Voice, name string) bool {
	return name != "" && slices.ContainsFunc(vs, func(v synth.Voice) bool { return v.Name == name })
}

// Voices returns the English voices found by the last RefreshVoices.
func (b *LocalBackend) Voices() []synth.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.voices)
}

// Voice returns the selected voice name.
func (b *LocalBackend) Voice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// SelectVoice makes name the active voice and saves it as the preference.
func (b *LocalBackend) SelectVoice(ctx context.Context, name string) error {
	b.mu.Lock()
	if !hasVoice(b.voices, name) {
		b.mu.Unlock()
		return fmt.Errorf("playback: unknown voice %q", name)
	}
	b.voice = name
	b.mu.Unlock()

	if b.prefs == nil {
		return nil
	}
	if err := b.prefs.SetPreferredVoice(ctx, name); err != nil {
		return fmt.Errorf("playback: save preferred voice: %w", err)
	}
	return nil
}

// SetRate sets the speaking rate, clamped to [MinRate, MaxRate].
func (b *LocalBackend) SetRate(r float64) {
	b.mu.Lock()
	b.rate = clamp(r, MinRate, MaxRate)
	b.mu.Unlock()
}

// SetPitch sets the pitch, clamped to [MinPitch, MaxPitch].
func (b *LocalBackend) SetPitch(p float64) {
	b.mu.Lock()
	b.pitch = clamp(p, MinPitch, MaxPitch)
	b.mu.Unlock()
}

// Rate returns the speaking rate.
func (b *LocalBackend) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Pitch returns the pitch.
func (b *LocalBackend) Pitch() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pitch
}

// Speak implements Backend.
func (b *LocalBackend) Speak(ctx context.Context, text string, ev Events) (Control, error) {
	b.mu.Lock()
	u := synth.Utterance{Text: text, Rate: b.rate, Pitch: b.pitch, Voice: b.voice}
	b.mu.Unlock()

	h, err := b.synth.Speak(ctx, u, ev)
	if err != nil {
		return nil, fault.New(fault.Playback, "Speech synthesis could not start.", err)
	}
	return synthControl{h}, nil
}

// synthControl maps Control.Stop onto synth.Handle.Cancel.
type synthControl struct{ h synth.Handle }

func (c synthControl) Pause() error  { return c.h.Pause() }
func (c synthControl) Resume() error { return c.h.Resume() }
func (c synthControl) Stop() error   { return c.h.Cancel() }

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

var _ Backend = (*LocalBackend)(nil)
