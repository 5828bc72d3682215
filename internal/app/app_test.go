package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/parrot/internal/app"
	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/playback"
	"github.com/MrWong99/parrot/internal/prefs"
	"github.com/MrWong99/parrot/internal/recognition"
	"github.com/MrWong99/parrot/internal/storage/memory"
	audiomock "github.com/MrWong99/parrot/pkg/audio/mock"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	llmmock "github.com/MrWong99/parrot/pkg/provider/llm/mock"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	sttmock "github.com/MrWong99/parrot/pkg/provider/stt/mock"
	"github.com/MrWong99/parrot/pkg/provider/synth"
	synthmock "github.com/MrWong99/parrot/pkg/provider/synth/mock"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parrot/pkg/provider/tts/mock"
)

// fixture is an App over mock capabilities and an in-memory store.
type fixture struct {
	app    *app.App
	store  *memory.Store
	llm    *llmmock.Provider
	rec    *sttmock.Recognizer
	synth  *synthmock.Synthesizer
	player *audiomock.Player
	reader *sdkmetric.ManualReader

	mu      sync.Mutex
	llmKeys []string // API keys passed to NewLLM, in order
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	return cfg
}

func newFixture(t *testing.T, seed map[string]string) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testConfig(), seed)
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config, seed map[string]string) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.New(seed),
		llm: &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "Nice to meet you!"},
		},
		rec: &sttmock.Recognizer{},
		synth: &synthmock.Synthesizer{
			VoicesResult: []synth.Voice{{Name: "Samantha", Language: "en-US"}},
		},
		player: &audiomock.Player{},
		reader: sdkmetric.NewManualReader(),
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	providers := &app.Providers{
		NewLLM: func(apiKey, _ string) (llm.Provider, error) {
			f.mu.Lock()
			f.llmKeys = append(f.llmKeys, apiKey)
			f.mu.Unlock()
			if apiKey == "" {
				return nil, nil
			}
			return f.llm, nil
		},
		NewTTS: func(apiKey string) (tts.Provider, error) {
			if apiKey == "" {
				return nil, nil
			}
			return &ttsmock.Provider{}, nil
		},
		STT:    f.rec,
		Synth:  f.synth,
		Player: f.player,
	}

	a, err := app.New(context.Background(), cfg, providers,
		app.WithStore(f.store),
		app.WithMetrics(metrics),
		app.WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	f.app = a
	return f
}

func (f *fixture) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.llmKeys...)
}

func (f *fixture) listener() stt.Listener { return f.rec.Last().Listener }

func finalBatch(texts ...string) stt.ResultBatch {
	b := stt.ResultBatch{}
	for _, t := range texts {
		b.Results = append(b.Results, stt.Result{Final: true, Text: t})
	}
	return b
}

const keyedSettings = `{"apiKey":"sk-saved","voiceAutoSend":true,"autoPlayResponse":true,"gptModel":"gpt-4o-mini","chatLanguage":"auto","voiceEngine":"local","openaiVoice":"nova"}`

func TestNew_LoadsSavedPreferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{
		prefs.KeyHistory:  `["good morning","see you"]`,
		prefs.KeySettings: `{"apiKey":"sk-saved","voiceEngine":"remote"}`,
	})

	snap := f.app.Snapshot()
	if len(snap.History) != 2 || snap.History[0] != "good morning" {
		t.Errorf("history = %v", snap.History)
	}
	if snap.Settings.APIKey != "sk-saved" || !snap.Settings.VoiceAutoSend {
		t.Errorf("settings = %+v", snap.Settings)
	}
	if snap.Playback.Backend != "remote" {
		t.Errorf("backend = %q, want remote", snap.Playback.Backend)
	}
	if keys := f.keys(); len(keys) != 1 || keys[0] != "sk-saved" {
		t.Errorf("NewLLM keys = %v", keys)
	}
	if f.synth.VoicesCallCount != 1 {
		t.Errorf("Voices calls = %d, want 1", f.synth.VoicesCallCount)
	}
}

func TestNew_OpensConfiguredStorage(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	snap := a.Snapshot()
	if snap.Settings != prefs.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", snap.Settings)
	}
	// Without a synthesizer the remote backend is bound.
	if snap.Playback.Backend != "remote" {
		t.Errorf("backend = %q, want remote", snap.Playback.Backend)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestHandlePlay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.app.SetText("   ")
	if err := f.app.HandlePlay(ctx); err != nil {
		t.Fatalf("blank HandlePlay: %v", err)
	}
	if f.synth.SpeakCallCount() != 0 {
		t.Fatal("blank text must not be spoken")
	}

	f.app.SetText("  Hello world  ")
	if err := f.app.HandlePlay(ctx); err != nil {
		t.Fatalf("HandlePlay: %v", err)
	}
	if got := f.synth.Last().Utterance.Text; got != "Hello world" {
		t.Errorf("spoken = %q, want trimmed text", got)
	}
	if h := f.app.Snapshot().History; len(h) != 1 || h[0] != "Hello world" {
		t.Errorf("history = %v", h)
	}
	if got := f.store.Snapshot()[prefs.KeyHistory]; got != `["Hello world"]` {
		t.Errorf("stored history = %s", got)
	}

	// Playing again moves nothing and duplicates nothing.
	if err := f.app.HandlePlay(ctx); err != nil {
		t.Fatalf("HandlePlay: %v", err)
	}
	if h := f.app.Snapshot().History; len(h) != 1 {
		t.Errorf("history = %v, want one entry", h)
	}
}

func TestMutualExclusion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.app.SetText("the quick brown fox")
	if err := f.app.HandlePlay(ctx); err != nil {
		t.Fatalf("HandlePlay: %v", err)
	}
	f.synth.Last().Listener.OnStart()

	if err := f.app.StartPronunciation(ctx); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}
	snap := f.app.Snapshot()
	if snap.Playback.State != playback.StateIdle {
		t.Errorf("playback state = %v, want idle", snap.Playback.State)
	}
	if f.synth.Last().Handle.Cancels() != 1 {
		t.Error("utterance should be cancelled")
	}
	if snap.Recognition.State != recognition.StateListening {
		t.Errorf("recognition state = %v, want listening", snap.Recognition.State)
	}

	// And the other way round.
	if err := f.app.HandlePlay(ctx); err != nil {
		t.Fatalf("HandlePlay: %v", err)
	}
	if f.app.Snapshot().Recognition.State != recognition.StateIdle {
		t.Error("capture should stop when playback starts")
	}
	if f.rec.Last().Handle.Stops() != 1 {
		t.Error("recognizer handle should be stopped")
	}
}

func TestScore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.app.SetText("The cat sat.")
	if err := f.app.StartPronunciation(context.Background()); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}
	if f.app.Snapshot().Score != nil {
		t.Fatal("score must be empty before any transcript")
	}

	f.listener().OnResult(finalBatch("sat the cat"))
	score := f.app.Snapshot().Score
	if score == nil || score.Percentage != 100 {
		t.Fatalf("score = %+v, want 100", score)
	}

	f.app.SetText("the dog")
	if got := f.app.Snapshot().Score.Percentage; got != 50 {
		t.Errorf("score after text change = %d, want 50", got)
	}

	f.app.StopCapture()
	f.listener().OnEnd()
	f.app.StopCapture()

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "parrot.pronunciation.score" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Histogram[int64]).DataPoints {
				count += dp.Count
			}
		}
	}
	if count != 1 {
		t.Errorf("recorded scores = %d, want 1", count)
	}

	f.app.RetryPronunciation()
	snap := f.app.Snapshot()
	if snap.Score != nil || snap.Recognition.Transcript != "" {
		t.Errorf("after retry: score=%v transcript=%q", snap.Score, snap.Recognition.Transcript)
	}
}

func TestStopCapture_KeepsFlushedText(t *testing.T) {
	t.Parallel()
	interim := func(text string) stt.ResultBatch {
		return stt.ResultBatch{Results: []stt.Result{{Text: text}}}
	}

	t.Run("learning", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.app.SetText("The cat sat.")
		if err := f.app.StartPronunciation(context.Background()); err != nil {
			t.Fatalf("StartPronunciation: %v", err)
		}
		l := f.listener()
		l.OnResult(interim("the cat sat"))
		f.app.StopCapture()

		l.OnResult(finalBatch("the cat sat"))
		l.OnEnd()

		snap := f.app.Snapshot()
		if snap.Recognition.Transcript != "the cat sat" {
			t.Fatalf("transcript = %q, want the flushed text", snap.Recognition.Transcript)
		}
		if snap.Score == nil || snap.Score.Percentage != 100 {
			t.Errorf("score = %+v, want 100", snap.Score)
		}
	})

	t.Run("chat auto-send waits for the end", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, map[string]string{prefs.KeySettings: keyedSettings})
		f.app.SetMode(app.ModeChat)
		if err := f.app.StartChatCapture(context.Background()); err != nil {
			t.Fatalf("StartChatCapture: %v", err)
		}
		l := f.listener()
		l.OnResult(finalBatch("good morning"))
		l.OnResult(stt.ResultBatch{ResultIndex: 1, Results: []stt.Result{{Final: true, Text: "good morning"}, {Text: "every"}}})
		f.app.StopCapture()
		f.app.Wait()
		if got := f.llm.CompleteCallCount(); got != 0 {
			t.Fatalf("sent %d times before the capture ended", got)
		}

		l.OnResult(stt.ResultBatch{ResultIndex: 1, Results: []stt.Result{{Final: true, Text: "good morning"}, {Final: true, Text: "everyone"}}})
		l.OnEnd()
		f.app.Wait()

		if got := f.llm.CompleteCallCount(); got != 1 {
			t.Fatalf("Complete calls = %d, want 1", got)
		}
		msgs := f.app.Snapshot().Chat.Messages
		if len(msgs) == 0 || msgs[0].Content != "good morning everyone" {
			t.Errorf("messages = %+v, want the full utterance sent", msgs)
		}
	})
}

func TestStartChatCapture_Language(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setting string
		want    string
	}{
		{name: "english", setting: "en", want: "en-US"},
		{name: "korean", setting: "ko", want: "ko-KR"},
		{name: "auto uses the configured language", setting: "auto", want: "en-GB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Speech.RecognitionLanguage = "en-GB"
			f := newFixtureWithConfig(t, cfg, map[string]string{
				prefs.KeySettings: `{"gptModel":"gpt-4o-mini","chatLanguage":"` + tt.setting + `","voiceEngine":"local"}`,
			})
			f.app.SetMode(app.ModeChat)
			if err := f.app.StartChatCapture(context.Background()); err != nil {
				t.Fatalf("StartChatCapture: %v", err)
			}
			if got := f.rec.Last().Cfg.Language; got != tt.want {
				t.Errorf("recognition language = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("pronunciation ignores the chat language", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Speech.RecognitionLanguage = "en-GB"
		f := newFixtureWithConfig(t, cfg, map[string]string{
			prefs.KeySettings: `{"gptModel":"gpt-4o-mini","chatLanguage":"ko","voiceEngine":"local"}`,
		})
		f.app.SetText("The cat sat.")
		if err := f.app.StartPronunciation(context.Background()); err != nil {
			t.Fatalf("StartPronunciation: %v", err)
		}
		if got := f.rec.Last().Cfg.Language; got != "en-GB" {
			t.Errorf("recognition language = %q, want en-GB", got)
		}
	})
}

func (f *fixture) activeCaptures(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "parrot.active_captures" {
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestActiveCapturesGauge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.app.SetText("The cat sat.")

	if err := f.app.StartPronunciation(context.Background()); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}
	if got := f.activeCaptures(t); got != 1 {
		t.Errorf("while listening = %d, want 1", got)
	}
	f.app.StopCapture()
	f.app.StopCapture()
	if got := f.activeCaptures(t); got != 0 {
		t.Errorf("after stop = %d, want 0", got)
	}
}

func TestSetMode_StopsEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	f.app.SetText("hello")
	if err := f.app.StartPronunciation(ctx); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}
	f.listener().OnResult(finalBatch("hello"))

	f.app.SetMode(app.ModeChat)

	snap := f.app.Snapshot()
	if snap.Mode != app.ModeChat {
		t.Errorf("mode = %v, want chat", snap.Mode)
	}
	if snap.Recognition.State != recognition.StateIdle || snap.Recognition.Transcript != "" {
		t.Errorf("recognition = %+v, want idle and empty", snap.Recognition)
	}
	if snap.Score != nil {
		t.Errorf("score = %+v, want nil", snap.Score)
	}
	if f.llm.CompleteCallCount() != 0 {
		t.Error("an interrupted capture must not be sent")
	}
}

func TestAutoSend_ExactlyOncePerCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]string{prefs.KeySettings: keyedSettings})
	ctx := context.Background()

	f.app.SetMode(app.ModeChat)
	if err := f.app.StartChatCapture(ctx); err != nil {
		t.Fatalf("StartChatCapture: %v", err)
	}
	l := f.listener()
	l.OnResult(finalBatch("hello there"))
	f.app.StopCapture()
	l.OnEnd()
	f.app.StopCapture()
	f.app.Wait()

	if got := f.llm.CompleteCallCount(); got != 1 {
		t.Fatalf("Complete calls = %d, want 1", got)
	}
	msgs := f.app.Snapshot().Chat.Messages
	if len(msgs) != 2 || msgs[0].Content != "hello there" || msgs[1].Content != "Nice to meet you!" {
		t.Fatalf("messages = %+v", msgs)
	}
	if got := f.app.Snapshot().Recognition.Transcript; got != "" {
		t.Errorf("transcript = %q, want cleared after send", got)
	}

	// Auto-play routes the reply to playback and marks it as speaking.
	if f.synth.SpeakCallCount() != 1 || f.synth.Last().Utterance.Text != "Nice to meet you!" {
		t.Fatalf("reply not spoken: %d calls", f.synth.SpeakCallCount())
	}
	if got := f.app.Snapshot().Speaking; got != msgs[1].ID() {
		t.Errorf("speaking = %d, want %d", got, msgs[1].ID())
	}
	f.synth.Last().Listener.OnStart()
	f.synth.Last().Listener.OnEnd()
	if got := f.app.Snapshot().Speaking; got != 0 {
		t.Errorf("speaking = %d after end, want 0", got)
	}

	// A second capture is sent again.
	if err := f.app.StartChatCapture(ctx); err != nil {
		t.Fatalf("StartChatCapture: %v", err)
	}
	f.listener().OnResult(finalBatch("how are you"))
	f.listener().OnEnd()
	f.app.Wait()
	if got := f.llm.CompleteCallCount(); got != 2 {
		t.Errorf("Complete calls = %d, want 2", got)
	}
}

func TestAutoSend_Disabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]string{
		prefs.KeySettings: `{"apiKey":"sk-saved","voiceAutoSend":false,"autoPlayResponse":false}`,
	})
	ctx := context.Background()

	f.app.SetMode(app.ModeChat)
	if err := f.app.StartChatCapture(ctx); err != nil {
		t.Fatalf("StartChatCapture: %v", err)
	}
	f.listener().OnResult(finalBatch("typed by voice"))
	f.app.StopCapture()
	f.app.Wait()

	if f.llm.CompleteCallCount() != 0 {
		t.Fatal("capture must not be sent with auto-send off")
	}
	transcript := f.app.Snapshot().Recognition.Transcript
	if transcript != "typed by voice" {
		t.Fatalf("transcript = %q, want kept", transcript)
	}

	f.app.SendChat(transcript)
	f.app.Wait()
	if f.llm.CompleteCallCount() != 1 {
		t.Errorf("Complete calls = %d, want 1", f.llm.CompleteCallCount())
	}
	if f.synth.SpeakCallCount() != 0 {
		t.Error("reply must not be spoken with auto-play off")
	}
}

func TestSendChat_WithoutKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.app.SetMode(app.ModeChat)
	f.app.SendChat("hello")
	f.app.Wait()

	snap := f.app.Snapshot()
	if snap.Chat.Err == nil {
		t.Fatal("expected a configuration error")
	}
	if len(snap.Chat.Messages) != 0 {
		t.Errorf("messages = %+v, want none", snap.Chat.Messages)
	}
}

func TestSpeakMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]string{
		prefs.KeySettings: `{"apiKey":"sk-saved","autoPlayResponse":false}`,
	})
	ctx := context.Background()

	if err := f.app.SpeakMessage(ctx, 42); err == nil {
		t.Error("expected error for unknown message")
	}

	f.app.SetMode(app.ModeChat)
	f.app.SendChat("hi")
	f.app.Wait()
	msgs := f.app.Snapshot().Chat.Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}

	if err := f.app.SpeakMessage(ctx, msgs[0].ID()); err != nil {
		t.Fatalf("SpeakMessage: %v", err)
	}
	if got := f.synth.Last().Utterance.Text; got != "hi" {
		t.Errorf("spoken = %q, want hi", got)
	}
	if got := f.app.Snapshot().Speaking; got != msgs[0].ID() {
		t.Errorf("speaking = %d, want %d", got, msgs[0].ID())
	}

	f.app.ClearChat()
	snap := f.app.Snapshot()
	if snap.Speaking != 0 || len(snap.Chat.Messages) != 0 {
		t.Errorf("after clear: speaking=%d messages=%d", snap.Speaking, len(snap.Chat.Messages))
	}
}

func TestHistoryOperations(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]string{
		prefs.KeyHistory: `["one","two","three"]`,
	})
	ctx := context.Background()

	if err := f.app.RestoreHistory(3); err == nil {
		t.Error("expected out of range error")
	}
	if err := f.app.RestoreHistory(1); err != nil {
		t.Fatalf("RestoreHistory: %v", err)
	}
	if got := f.app.Snapshot().Text; got != "two" {
		t.Errorf("text = %q, want two", got)
	}

	if err := f.app.DeleteHistory(ctx, 0); err != nil {
		t.Fatalf("DeleteHistory: %v", err)
	}
	if got := f.store.Snapshot()[prefs.KeyHistory]; got != `["two","three"]` {
		t.Errorf("stored history = %s", got)
	}
	if err := f.app.DeleteHistory(ctx, -1); err == nil {
		t.Error("expected out of range error")
	}

	if err := f.app.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if got := f.store.Snapshot()[prefs.KeyHistory]; got != `[]` {
		t.Errorf("stored history = %s, want []", got)
	}
	if h := f.app.Snapshot().History; len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestSaveSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := prefs.DefaultSettings()
	bad.VoiceEngine = "robot"
	if err := f.app.SaveSettings(ctx, bad); err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := f.store.Snapshot()[prefs.KeySettings]; ok {
		t.Error("invalid settings must not be stored")
	}

	s := prefs.DefaultSettings()
	s.APIKey = "sk-new"
	s.ChatModel = "gpt-4o"
	s.VoiceEngine = prefs.EngineRemote
	if err := f.app.SaveSettings(ctx, s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	snap := f.app.Snapshot()
	if snap.Settings != s {
		t.Errorf("settings = %+v", snap.Settings)
	}
	if snap.Playback.Backend != "remote" {
		t.Errorf("backend = %q, want remote", snap.Playback.Backend)
	}
	if keys := f.keys(); len(keys) != 2 || keys[1] != "sk-new" {
		t.Errorf("NewLLM keys = %v", keys)
	}
	if _, ok := f.store.Snapshot()[prefs.KeySettings]; !ok {
		t.Error("settings not stored")
	}

	// The rebuilt chat provider is used by the next send.
	f.app.SendChat("hello")
	f.app.Wait()
	if f.llm.CompleteCallCount() != 1 {
		t.Errorf("Complete calls = %d, want 1", f.llm.CompleteCallCount())
	}
}

func TestSelectVoice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.app.SelectVoice(ctx, "Samantha"); err != nil {
		t.Fatalf("SelectVoice local: %v", err)
	}
	if got := f.store.Snapshot()[prefs.KeyPreferredVoice]; got != `"Samantha"` {
		t.Errorf("stored voice = %s", got)
	}
	if err := f.app.SelectVoice(ctx, "Zarvox"); err == nil {
		t.Error("expected error for unknown local voice")
	}

	s := prefs.DefaultSettings()
	s.VoiceEngine = prefs.EngineRemote
	if err := f.app.SaveSettings(ctx, s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := f.app.SelectVoice(ctx, "shimmer"); err != nil {
		t.Fatalf("SelectVoice remote: %v", err)
	}
	if got := f.app.Settings().RemoteVoice; got != "shimmer" {
		t.Errorf("remote voice = %q, want shimmer", got)
	}
}

func TestApplySpeech(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	sc := config.Default().Speech
	sc.RecognitionLanguage = "en-GB"
	f.app.ApplySpeech(sc)

	if err := f.app.StartPronunciation(context.Background()); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}
	if got := f.rec.Last().Cfg.Language; got != "en-GB" {
		t.Errorf("language = %q, want en-GB", got)
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var (
		mu    sync.Mutex
		texts []string
	)
	unsubscribe := f.app.Subscribe(func(s app.Snapshot) {
		mu.Lock()
		texts = append(texts, s.Text)
		mu.Unlock()
	})
	f.app.SetText("first")
	unsubscribe()
	f.app.SetText("second")

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 1 || texts[0] != "first" {
		t.Errorf("texts = %v", texts)
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.app.StartPronunciation(context.Background()); err != nil {
		t.Fatalf("StartPronunciation: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if f.rec.Last().Handle.Stops() != 1 {
		t.Error("capture should be stopped on shutdown")
	}
	// Idempotent.
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.app.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.app.Run(ctx)
	}()
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := f.app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestSendChat_UsesConfiguredRequestOptions(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Chat = config.ChatConfig{MaxTokens: 200, Temperature: 1.1}
	f := newFixtureWithConfig(t, cfg, map[string]string{prefs.KeySettings: keyedSettings})

	f.app.SetMode(app.ModeChat)
	f.app.SendChat("hello")
	f.app.Wait()

	req := f.llm.LastRequest()
	if req.MaxTokens != 200 || req.Temperature != 1.1 {
		t.Errorf("max_tokens=%d temperature=%v, want 200 and 1.1", req.MaxTokens, req.Temperature)
	}
}

func TestApp_RunReturnsWithChatInFlight(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]string{prefs.KeySettings: keyedSettings})
	f.llm.Block = make(chan struct{})
	started := f.llm.Started()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.app.Run(ctx) }()

	f.app.SetMode(app.ModeChat)
	f.app.SendChat("hello")
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("chat request never started")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() still blocked by the in-flight chat request")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := f.app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if f.app.Snapshot().Chat.Loading {
		t.Error("chat still loading after shutdown")
	}
}
