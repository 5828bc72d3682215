// Package prefs persists the practice history, the user settings, and the
// preferred local voice in a [storage.Store].
//
// Every value is stored as JSON under a fixed key. Unreadable values are
// logged and replaced by defaults so a corrupt entry never blocks startup.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/parrot/internal/playback"
	"github.com/MrWong99/parrot/internal/storage"
)

// Storage keys.
const (
	KeyHistory        = "tts-history"
	KeySettings       = "tts-app-settings"
	KeyPreferredVoice = "tts-preferred-voice"
)

// MaxHistory caps the practice history.
const MaxHistory = 10

// Voice engines.
const (
	EngineLocal  = "local"
	EngineRemote = "remote"
)

// Selectable chat models and reply languages.
var (
	ChatModels    = []string{"gpt-4o-mini", "gpt-4o"}
	ChatLanguages = []string{"auto", "en", "ko"}
)

// Settings are the user-editable settings. JSON names match the stored
// format.
type Settings struct {
	APIKey           string `json:"apiKey"`
	VoiceAutoSend    bool   `json:"voiceAutoSend"`
	AutoPlayResponse bool   `json:"autoPlayResponse"`
	ChatModel        string `json:"gptModel"`
	ChatLanguage     string `json:"chatLanguage"`
	VoiceEngine      string `json:"voiceEngine"`
	RemoteVoice      string `json:"openaiVoice"`
}

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() Settings {
	return Settings{
		VoiceAutoSend:    true,
		AutoPlayResponse: true,
		ChatModel:        "gpt-4o-mini",
		ChatLanguage:     "auto",
		VoiceEngine:      EngineLocal,
		RemoteVoice:      playback.DefaultRemoteVoice,
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.ChatModel == "" {
		errs = append(errs, errors.New("prefs: chat model is required"))
	}
	if !slices.Contains(ChatLanguages, s.ChatLanguage) {
		errs = append(errs, fmt.Errorf("prefs: chat language %q is not one of %v", s.ChatLanguage, ChatLanguages))
	}
	if s.VoiceEngine != EngineLocal && s.VoiceEngine != EngineRemote {
		errs = append(errs, fmt.Errorf("prefs: voice engine %q must be %q or %q", s.VoiceEngine, EngineLocal, EngineRemote))
	}
	return errors.Join(errs...)
}

// History is the list of practiced sentences, most recent first.
type History []string

// Add returns a new History with the trimmed text at the front, an earlier
// copy of it removed, and at most [MaxHistory] entries. Blank text returns
// h unchanged.
func (h History) Add(text string) History {
	text = strings.TrimSpace(text)
	if text == "" {
		return h
	}
	out := make(History, 0, min(len(h)+1, MaxHistory))
	out = append(out, text)
	for _, e := range h {
		if len(out) == MaxHistory {
			break
		}
		if e != text {
			out = append(out, e)
		}
	}
	return out
}

// Remove returns a new History without entry i.
func (h History) Remove(i int) (History, error) {
	if i < 0 || i >= len(h) {
		return h, fmt.Errorf("prefs: history index %d out of range [0,%d)", i, len(h))
	}
	return slices.Delete(slices.Clone(h), i, i+1), nil
}

// Repository reads and writes preferences. It is safe for concurrent use
// as long as the underlying Store is.
type Repository struct {
	store storage.Store
}

var _ playback.VoicePreference = (*Repository)(nil)

// NewRepository returns a Repository over s.
func NewRepository(s storage.Store) *Repository {
	return &Repository{store: s}
}

// LoadHistory returns the saved history, or nil when none is saved.
func (r *Repository) LoadHistory(ctx context.Context) (History, error) {
	var h History
	if err := r.load(ctx, KeyHistory, &h); err != nil {
		return nil, err
	}
	if len(h) > MaxHistory {
		h = h[:MaxHistory]
	}
	return h, nil
}

// SaveHistory persists h.
func (r *Repository) SaveHistory(ctx context.Context, h History) error {
	if h == nil {
		h = History{}
	}
	return r.save(ctx, KeyHistory, h)
}

// LoadSettings returns the saved settings. Fields missing from the stored
// value keep their defaults.
func (r *Repository) LoadSettings(ctx context.Context) (Settings, error) {
	s := DefaultSettings()
	if err := r.load(ctx, KeySettings, &s); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// SaveSettings validates and persists s.
func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return r.save(ctx, KeySettings, s)
}

// PreferredVoice implements [playback.VoicePreference].
func (r *Repository) PreferredVoice(ctx context.Context) (string, error) {
	var name string
	err := r.load(ctx, KeyPreferredVoice, &name)
	return name, err
}

// SetPreferredVoice implements [playback.VoicePreference].
func (r *Repository) SetPreferredVoice(ctx context.Context, name string) error {
	return r.save(ctx, KeyPreferredVoice, name)
}

// load decodes the value under key into v. A missing key leaves v alone. A
// decode failure is logged and otherwise ignored.
func (r *Repository) load(ctx context.Context, key string, v any) error {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("prefs: load %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		slog.Warn("prefs: ignoring unreadable value", "key", key, "err", err)
	}
	return nil
}

func (r *Repository) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("prefs: encode %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("prefs: save %s: %w", key, err)
	}
	return nil
}
