package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":    {"deepgram"},
	"tts":    {"openai", "elevenlabs", "coqui"},
	"synth":  {"espeak"},
	"player": {"filesink"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like [Load] but returns [Default] when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Keys absent from the document keep their default.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("synth", cfg.Providers.Synth.Name)
	validateProviderName("player", cfg.Providers.Player.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}

	limits := cfg.Providers.rateLimits()
	for _, field := range slices.Sorted(maps.Keys(limits)) {
		if n := limits[field]; n < 0 {
			errs = append(errs, fmt.Errorf("%s.requests_per_minute %d must not be negative", field, n))
		}
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; pronunciation tests and voice chat will be unavailable")
	}
	if cfg.Providers.TTS.Name != "" && cfg.Providers.Player.Name == "" {
		slog.Warn("providers.tts is configured without providers.player; remote speech cannot be played")
	}

	// Storage
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}

	// Speech
	if cfg.Speech.RecognitionLanguage == "" {
		errs = append(errs, errors.New("speech.recognition_language is required"))
	}
	if cfg.Speech.DefaultRate < 0.5 || cfg.Speech.DefaultRate > 2.0 {
		errs = append(errs, fmt.Errorf("speech.default_rate %.2f is out of range [0.5, 2.0]", cfg.Speech.DefaultRate))
	}
	if cfg.Speech.DefaultPitch < 0 || cfg.Speech.DefaultPitch > 2.0 {
		errs = append(errs, fmt.Errorf("speech.default_pitch %.2f is out of range [0, 2.0]", cfg.Speech.DefaultPitch))
	}
	if cfg.Speech.RepeatDelay < 0 {
		errs = append(errs, fmt.Errorf("speech.repeat_delay %s must not be negative", cfg.Speech.RepeatDelay))
	}

	// Chat
	if cfg.Chat.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens %d must be positive", cfg.Chat.MaxTokens))
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2.0]", cfg.Chat.Temperature))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// rateLimits maps each configured entry's path to its request limit.
func (pc ProvidersConfig) rateLimits() map[string]int {
	out := map[string]int{
		"providers.llm":    pc.LLM.RequestsPerMinute,
		"providers.stt":    pc.STT.RequestsPerMinute,
		"providers.tts":    pc.TTS.RequestsPerMinute,
		"providers.synth":  pc.Synth.RequestsPerMinute,
		"providers.player": pc.Player.RequestsPerMinute,
	}
	for prefix, list := range map[string][]ProviderEntry{
		"providers.llm_fallbacks": pc.LLMFallbacks,
		"providers.stt_fallbacks": pc.STTFallbacks,
		"providers.tts_fallbacks": pc.TTSFallbacks,
	} {
		for i, e := range list {
			out[fmt.Sprintf("%s[%d]", prefix, i)] = e.RequestsPerMinute
		}
	}
	return out
}
