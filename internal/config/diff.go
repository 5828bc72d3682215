package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SpeechChanged is true if any field of the speech section changed.
	SpeechChanged bool
	NewSpeech     SpeechConfig

	// RestartRequired is true if a provider, storage, or chat setting
	// changed.
	// Those are only read at startup.
	RestartRequired bool
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SpeechChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Speech != new.Speech {
		d.SpeechChanged = true
		d.NewSpeech = new.Speech
	}

	if old.Storage != new.Storage || old.Chat != new.Chat ||
		old.Server.MetricsAddr != new.Server.MetricsAddr ||
		!providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = true
	}

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.LLM, b.LLM) || !entryEqual(a.STT, b.STT) || !entryEqual(a.TTS, b.TTS) ||
		!entryEqual(a.Synth, b.Synth) || !entryEqual(a.Player, b.Player) {
		return false
	}
	return entriesEqual(a.LLMFallbacks, b.LLMFallbacks) &&
		entriesEqual(a.STTFallbacks, b.STTFallbacks) &&
		entriesEqual(a.TTSFallbacks, b.TTSFallbacks)
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// entryEqual compares the scalar fields and the option keys and scalar
// option values. Nested option maps compare by presence only.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model ||
		a.RequestsPerMinute != b.RequestsPerMinute {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok {
			return false
		}
		switch av.(type) {
		case map[string]any, []any:
			continue
		}
		if av != bv {
			return false
		}
	}
	return true
}
