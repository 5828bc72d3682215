package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/synth"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods for a name no
// factory was registered under.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories holds the constructors of one provider kind.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	byID map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, byID: make(map[string]Factory[T])}
}

func (f *factories[T]) set(name string, fn Factory[T]) {
	f.mu.Lock()
	f.byID[name] = fn
	f.mu.Unlock()
}

func (f *factories[T]) create(e ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.byID[e.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

// Registry maps provider names to constructors, one table per provider
// kind. Registering a name twice replaces the first factory. Safe for
// concurrent use.
type Registry struct {
	llm    *factories[llm.Provider]
	stt    *factories[stt.Recognizer]
	tts    *factories[tts.Provider]
	synth  *factories[synth.Synthesizer]
	player *factories[audio.Player]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:    newFactories[llm.Provider]("llm"),
		stt:    newFactories[stt.Recognizer]("stt"),
		tts:    newFactories[tts.Provider]("tts"),
		synth:  newFactories[synth.Synthesizer]("synth"),
		player: newFactories[audio.Player]("player"),
	}
}

func (r *Registry) RegisterLLM(name string, fn Factory[llm.Provider]) { r.llm.set(name, fn) }
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Recognizer]) { r.stt.set(name, fn) }
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider]) { r.tts.set(name, fn) }
func (r *Registry) RegisterSynth(name string, fn Factory[synth.Synthesizer]) { r.synth.set(name, fn) }
func (r *Registry) RegisterPlayer(name string, fn Factory[audio.Player]) { r.player.set(name, fn) }

// CreateLLM builds the chat provider registered under e.Name. It wraps
// [ErrProviderNotRegistered] for unknown names; the other Create methods
// behave the same way.
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error) { return r.llm.create(e) }
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Recognizer, error) { return r.stt.create(e) }
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error) { return r.tts.create(e) }
func (r *Registry) CreateSynth(e ProviderEntry) (synth.Synthesizer, error) { return r.synth.create(e) }
func (r *Registry) CreatePlayer(e ProviderEntry) (audio.Player, error) { return r.player.create(e) }
