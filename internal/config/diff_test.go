package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/parrot/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	old.Providers.Player.Options = map[string]any{"command": "mpv", "args": []any{"--no-video"}}
	new.Providers.Player.Options = map[string]any{"command": "mpv", "args": []any{"--no-video"}}

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.Empty() {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("a log level change must not require a restart")
	}
}

func TestDiff_SpeechChanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Speech.RepeatDelay = time.Second

	d := config.Diff(old, new)
	if !d.SpeechChanged {
		t.Fatal("expected SpeechChanged=true")
	}
	if d.NewSpeech.RepeatDelay != time.Second {
		t.Errorf("NewSpeech.RepeatDelay = %v, want 1s", d.NewSpeech.RepeatDelay)
	}
	if d.RestartRequired {
		t.Error("a speech change must not require a restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"llm model", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" }},
		{"stt key", func(c *config.Config) { c.Providers.STT.APIKey = "dg" }},
		{"llm request limit", func(c *config.Config) { c.Providers.LLM.RequestsPerMinute = 30 }},
		{"tts fallback added", func(c *config.Config) {
			c.Providers.TTSFallbacks = []config.ProviderEntry{{Name: "elevenlabs"}}
		}},
		{"player option", func(c *config.Config) {
			c.Providers.Player.Options = map[string]any{"command": "afplay"}
		}},
		{"storage backend", func(c *config.Config) { c.Storage.Backend = config.StorageMemory }},
		{"metrics addr", func(c *config.Config) { c.Server.MetricsAddr = ":9464" }},
		{"chat temperature", func(c *config.Config) { c.Chat.Temperature = 1.2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tc.mutate(new)

			d := config.Diff(old, new)
			if !d.RestartRequired {
				t.Error("expected RestartRequired=true")
			}
			if d.SpeechChanged || d.LogLevelChanged {
				t.Errorf("unexpected hot-reload changes: %+v", d)
			}
		})
	}
}
