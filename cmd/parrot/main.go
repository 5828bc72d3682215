// Command parrot is a terminal pronunciation trainer and English chat
// companion.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/parrot/internal/app"
	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/health"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/resilience"
	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/audio/filesink"
	"github.com/MrWong99/parrot/pkg/audio/mic"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/parrot/pkg/provider/llm/openai"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/stt/deepgram"
	"github.com/MrWong99/parrot/pkg/provider/synth"
	"github.com/MrWong99/parrot/pkg/provider/synth/espeak"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/provider/tts/coqui"
	"github.com/MrWong99/parrot/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/parrot/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "parrot.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parrot: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("parrot starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"storage", cfg.Storage.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "parrot"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Microphone ────────────────────────────────────────────────────────────
	micReady := false
	if cfg.Providers.STT.Name != "" {
		if err := mic.Init(); err != nil {
			slog.Warn("microphone unavailable, speech recognition disabled", "err", err)
		} else {
			micReady = true
			defer mic.Terminate()
		}
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, micReady)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Observability endpoint (optional) ─────────────────────────────────────
	var srv *http.Server
	if cfg.Server.MetricsAddr != "" {
		srv = serveObservability(cfg.Server.MetricsAddr, application, providers)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if _, err := os.Stat(*configPath); err == nil {
		w, err := config.NewWatcher(*configPath, func(d config.ConfigDiff) {
			applyConfigChange(d, &level, application)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config watcher disabled", "err", err)
	}

	// ── Console ───────────────────────────────────────────────────────────────
	go func() {
		newConsole(application, os.Stdout).Run(ctx, os.Stdin)
		stop()
	}()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyConfigChange applies the hot-reloadable part of a config change.
func applyConfigChange(d config.ConfigDiff, level *slog.LevelVar, application *app.App) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SpeechChanged {
		application.ApplySpeech(d.NewSpeech)
	}
	if d.RestartRequired {
		slog.Warn("provider, storage, or server settings changed; restart parrot to apply them")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Parrot. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":    {"deepgram"},
	"tts":    {"openai", "elevenlabs", "coqui"},
	"synth":  {"espeak"},
	"player": {"filesink"},
}

// Local servers that need no API key.
var (
	keylessLLMs = map[string]bool{"ollama": true, "llamacpp": true, "llamafile": true}
	keylessTTS  = map[string]bool{"coqui": true}
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages. Recognizers only get a
// microphone when micReady is set.
func registerBuiltinProviders(reg *config.Registry, micReady bool) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, llmopenai.WithTimeout(d))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		// source selects the input: "mic" (default), "none", or the path of
		// a WAV recording replayed in real time.
		switch src := optString(entry.Options, "source"); src {
		case "none":
		case "", "mic":
			if micReady {
				opts = append(opts,
					deepgram.WithAudioSource(mic.New()),
					deepgram.WithSampleRate(mic.SampleRate),
				)
			}
		default:
			opts = append(opts, deepgram.WithAudioSource(&audio.FileSource{Path: src, Realtime: true}))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, ttsopenai.WithDefaultVoice(voice))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// coqui is a self-hosted server addressed by BaseURL.
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(voice))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:5002"
		}
		return coqui.New(baseURL, opts...)
	})

	// ── Local synthesis and playback ──────────────────────────────────────────

	reg.RegisterSynth("espeak", func(entry config.ProviderEntry) (synth.Synthesizer, error) {
		var opts []espeak.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		filter := optString(entry.Options, "language_filter")
		if filter == "" {
			filter = "en"
		}
		opts = append(opts, espeak.WithLanguageFilter(filter))

		s := espeak.New(opts...)
		if !s.Available() {
			return nil, errors.New("espeak-ng binary not found")
		}
		return s, nil
	})

	reg.RegisterPlayer("filesink", func(entry config.ProviderEntry) (audio.Player, error) {
		dir := optString(entry.Options, "dir")
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "parrot-audio")
		}
		var opts []filesink.Option
		if cmd := optString(entry.Options, "command"); cmd != "" {
			opts = append(opts, filesink.WithCommand(cmd, optStrings(entry.Options, "args")...))
		}
		if keep, ok := entry.Options["keep"].(bool); ok {
			opts = append(opts, filesink.WithKeep(keep))
		}
		return filesink.New(dir, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Chat and remote speech are built lazily because their API key can
// come from the saved settings.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		NewLLM: llmFactory(cfg.Providers, reg),
		NewTTS: ttsFactory(cfg.Providers, reg),
	}

	var err error
	if ps.STT, err = sttChain(cfg.Providers, reg); err != nil {
		return nil, err
	}

	// Local synthesis and playback are optional on a host.
	if ps.Synth, err = create("synth", cfg.Providers.Synth, reg.CreateSynth); err != nil {
		slog.Warn("local speech disabled", "err", err)
	}
	if ps.Player, err = create("player", cfg.Providers.Player, reg.CreatePlayer); err != nil {
		slog.Warn("audio output disabled", "err", err)
	}
	return ps, nil
}

// sttChain builds the recognizer, wrapped in a fallback chain when
// stt_fallbacks are configured. A fallback that fails to build is skipped.
func sttChain(pc config.ProvidersConfig, reg *config.Registry) (stt.Recognizer, error) {
	primary, err := create("stt", pc.STT, reg.CreateSTT)
	if err != nil || primary == nil || len(pc.STTFallbacks) == 0 {
		return primary, err
	}
	fb := resilience.NewSTTFallback(primary, pc.STT.Name, resilience.FallbackConfig{})
	for _, e := range pc.STTFallbacks {
		r, err := create("stt", e, reg.CreateSTT)
		if err != nil {
			slog.Warn("skipping stt fallback", "name", e.Name, "err", err)
			continue
		}
		if r != nil {
			fb.AddFallback(e.Name, r)
		}
	}
	return fb, nil
}

// create builds the provider for entry. An empty or unregistered name yields
// the zero value.
func create[T any](kind string, entry config.ProviderEntry, fn func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := fn(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Debug("provider not implemented, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// withKey fills the API key and model of entry from the saved settings when
// the config leaves them empty. It reports false when a key is still missing.
func withKey(entry config.ProviderEntry, apiKey, model string, keyless bool) (config.ProviderEntry, bool) {
	if entry.APIKey == "" {
		entry.APIKey = apiKey
	}
	if entry.Model == "" {
		entry.Model = model
	}
	return entry, entry.APIKey != "" || keyless
}

func llmFactory(pc config.ProvidersConfig, reg *config.Registry) func(apiKey, model string) (llm.Provider, error) {
	if pc.LLM.Name == "" {
		return nil
	}
	build := func(e config.ProviderEntry, apiKey, model string) (llm.Provider, error) {
		e, ok := withKey(e, apiKey, model, keylessLLMs[e.Name])
		if !ok {
			return nil, nil
		}
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, err
		}
		return resilience.LimitLLM(p, e.RequestsPerMinute), nil
	}
	return func(apiKey, model string) (llm.Provider, error) {
		primary, err := build(pc.LLM, apiKey, model)
		if err != nil || primary == nil || len(pc.LLMFallbacks) == 0 {
			return primary, err
		}
		fb := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{})
		for _, e := range pc.LLMFallbacks {
			p, err := build(e, apiKey, model)
			if err != nil {
				slog.Warn("skipping llm fallback", "name", e.Name, "err", err)
				continue
			}
			if p != nil {
				fb.AddFallback(e.Name, p)
			}
		}
		return fb, nil
	}
}

func ttsFactory(pc config.ProvidersConfig, reg *config.Registry) func(apiKey string) (tts.Provider, error) {
	if pc.TTS.Name == "" {
		return nil
	}
	build := func(e config.ProviderEntry, apiKey string) (tts.Provider, error) {
		e, ok := withKey(e, apiKey, "", keylessTTS[e.Name])
		if !ok {
			return nil, nil
		}
		p, err := reg.CreateTTS(e)
		if err != nil {
			return nil, err
		}
		return resilience.LimitTTS(p, e.RequestsPerMinute), nil
	}
	return func(apiKey string) (tts.Provider, error) {
		primary, err := build(pc.TTS, apiKey)
		if err != nil || primary == nil || len(pc.TTSFallbacks) == 0 {
			return primary, err
		}
		fb := resilience.NewTTSFallback(primary, pc.TTS.Name, resilience.FallbackConfig{})
		for _, e := range pc.TTSFallbacks {
			p, err := build(e, apiKey)
			if err != nil {
				slog.Warn("skipping tts fallback", "name", e.Name, "err", err)
				continue
			}
			if p != nil {
				fb.AddFallback(e.Name, p)
			}
		}
		return fb, nil
	}
}

// ── Observability ─────────────────────────────────────────────────────────────

// serveObservability serves /metrics, /healthz, and /readyz on addr.
func serveObservability(addr string, application *app.App, ps *app.Providers) *http.Server {
	checks := []health.Checker{health.Storage(application.Store())}
	if ps.STT != nil {
		checks = append(checks, health.Capability("recognizer", ps.STT.Available))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(checks...).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "addr", addr, "err", err)
		}
	}()
	slog.Info("observability endpoint listening", "addr", addr)
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parrot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Chat", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Recognizer", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Remote TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Local TTS", cfg.Providers.Synth.Name, "")
	printProvider("Player", cfg.Providers.Player.Name, "")
	fmt.Printf("║  %-12s    : %-19s ║\n", "Storage", string(cfg.Storage.Backend))
	fmt.Printf("║  %-12s    : %-19s ║\n", "Language", cfg.Speech.RecognitionLanguage)
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  %-12s    : %-19s ║\n", "Metrics", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a list of strings. Non-string elements are skipped.
func optStrings(opts map[string]any, key string) []string {
	raw, _ := opts[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optDuration parses a duration string such as "30s". Invalid values are
// ignored with a warning.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
