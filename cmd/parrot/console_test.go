package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/parrot/internal/app"
	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/prefs"
	"github.com/MrWong99/parrot/internal/storage/memory"
	audiomock "github.com/MrWong99/parrot/pkg/audio/mock"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	llmmock "github.com/MrWong99/parrot/pkg/provider/llm/mock"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	sttmock "github.com/MrWong99/parrot/pkg/provider/stt/mock"
	"github.com/MrWong99/parrot/pkg/provider/synth"
	synthmock "github.com/MrWong99/parrot/pkg/provider/synth/mock"
)

// syncBuffer is a bytes.Buffer safe for the subscriber goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type consoleFixture struct {
	con   *console
	app   *app.App
	out   *syncBuffer
	rec   *sttmock.Recognizer
	synth *synthmock.Synthesizer
}

func newConsoleFixture(t *testing.T, seed map[string]string) *consoleFixture {
	t.Helper()

	f := &consoleFixture{
		out: &syncBuffer{},
		rec: &sttmock.Recognizer{},
		synth: &synthmock.Synthesizer{
			VoicesResult: []synth.Voice{{Name: "Samantha", Language: "en-US"}},
		},
	}
	chatLLM := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Nice to meet you!"},
	}

	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory

	a, err := app.New(context.Background(), cfg, &app.Providers{
		NewLLM: func(apiKey, _ string) (llm.Provider, error) {
			if apiKey == "" {
				return nil, nil
			}
			return chatLLM, nil
		},
		STT:    f.rec,
		Synth:  f.synth,
		Player: &audiomock.Player{},
	}, app.WithStore(memory.New(seed)))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	f.app = a
	f.con = newConsole(a, f.out)
	unsubscribe := a.Subscribe(f.con.onChange)
	t.Cleanup(unsubscribe)
	return f
}

func (f *consoleFixture) run(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if err := f.con.exec(context.Background(), l); err != nil {
			t.Fatalf("exec(%q): %v", l, err)
		}
	}
}

func (f *consoleFixture) listener() stt.Listener { return f.rec.Last().Listener }

func TestConsole_PracticeRound(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, nil)

	f.run(t, "text The cat sat.", "play")
	if got := f.synth.Last().Utterance.Text; got != "The cat sat." {
		t.Errorf("spoken = %q", got)
	}

	f.run(t, "listen")
	f.listener().OnResult(stt.ResultBatch{Results: []stt.Result{{Final: true, Text: "the cat sad"}}})
	f.run(t, "done")
	if strings.Contains(f.out.String(), "score:") {
		t.Fatalf("score printed before the capture ended:\n%s", f.out.String())
	}
	f.listener().OnEnd()

	out := f.out.String()
	if !strings.Contains(out, "score: 67% Good! A little more practice.") {
		t.Errorf("output missing score:\n%s", out)
	}
	if !strings.Contains(out, "missed: sat") {
		t.Errorf("output missing missed words:\n%s", out)
	}
	// A second Stop must not print the score again.
	f.run(t, "done")
	if n := strings.Count(f.out.String(), "score:"); n != 1 {
		t.Errorf("score printed %d times, want 1", n)
	}

	f.run(t, "history")
	if !strings.Contains(f.out.String(), " 1. The cat sat.") {
		t.Errorf("history not listed:\n%s", f.out.String())
	}
}

func TestConsole_Chat(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, map[string]string{
		prefs.KeySettings: `{"apiKey":"sk-saved","autoPlayResponse":false}`,
	})

	f.run(t, "mode chat", "say hello there")
	f.app.Wait()

	if out := f.out.String(); !strings.Contains(out, "parrot [2]: Nice to meet you!") {
		t.Fatalf("reply not printed:\n%s", out)
	}

	f.run(t, "speak 2")
	if got := f.synth.Last().Utterance.Text; got != "Nice to meet you!" {
		t.Errorf("spoken = %q", got)
	}
	if err := f.con.exec(context.Background(), "speak 9"); err == nil {
		t.Error("speak 9: expected error")
	}
}

func TestConsole_ChatErrorPrinted(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, nil)

	f.run(t, "mode chat", "say hello")
	f.app.Wait()

	if out := f.out.String(); !strings.Contains(out, "error: ") {
		t.Errorf("missing-key error not printed:\n%s", out)
	}
}

func TestConsole_Settings(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, nil)

	f.run(t, "key sk-new", "autosend off", "lang ko")
	s := f.app.Settings()
	if s.APIKey != "sk-new" || s.VoiceAutoSend || s.ChatLanguage != "ko" {
		t.Errorf("settings = %+v", s)
	}

	if err := f.con.exec(context.Background(), "engine loud"); err == nil {
		t.Error("invalid engine: expected error")
	}
	if got := f.app.Settings().VoiceEngine; got != prefs.EngineLocal {
		t.Errorf("engine = %q after rejected save", got)
	}
}

func TestConsole_Errors(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, nil)

	tests := []struct {
		line string
	}{
		{"bogus"},
		{"repeat maybe"},
		{"mode sleep"},
		{"restore 0"},
		{"restore 3"},
		{"delete x"},
		{"rate fast"},
	}
	for _, tt := range tests {
		if err := f.con.exec(context.Background(), tt.line); err == nil {
			t.Errorf("exec(%q): expected error", tt.line)
		}
	}

	if err := f.con.exec(context.Background(), "quit"); err != errQuit {
		t.Errorf("quit = %v, want errQuit", err)
	}
}

func TestConsole_Run(t *testing.T) {
	t.Parallel()
	f := newConsoleFixture(t, nil)

	in := strings.NewReader("text good morning\nnope\nquit\ntext never\n")
	f.con.Run(context.Background(), in)

	if got := f.app.Snapshot().Text; got != "good morning" {
		t.Errorf("text = %q, want good morning", got)
	}
	if !strings.Contains(f.out.String(), `error: unknown command "nope"`) {
		t.Errorf("unknown command not reported:\n%s", f.out.String())
	}
}

func TestEditSettings(t *testing.T) {
	t.Parallel()

	base := prefs.DefaultSettings()
	tests := []struct {
		cmd, arg string
		check    func(prefs.Settings) bool
		wantErr  bool
	}{
		{"key", "sk-1", func(s prefs.Settings) bool { return s.APIKey == "sk-1" }, false},
		{"engine", "remote", func(s prefs.Settings) bool { return s.VoiceEngine == "remote" }, false},
		{"model", "gpt-4o", func(s prefs.Settings) bool { return s.ChatModel == "gpt-4o" }, false},
		{"autoplay", "off", func(s prefs.Settings) bool { return !s.AutoPlayResponse }, false},
		{"autosend", "yes", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+" "+tt.arg, func(t *testing.T) {
			t.Parallel()
			got, err := editSettings(base, tt.cmd, tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(got) {
				t.Errorf("settings = %+v", got)
			}
		})
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		percentage int
		want       string
	}{
		{100, "Perfect!"},
		{90, "Perfect!"},
		{89, "Great job!"},
		{80, "Great job!"},
		{79, "Good! A little more practice."},
		{60, "Good! A little more practice."},
		{59, "Give it another try."},
		{40, "Give it another try."},
		{39, "Slowly, say it again."},
		{0, "Slowly, say it again."},
	}
	for _, tt := range tests {
		if got := feedback(tt.percentage); got != tt.want {
			t.Errorf("feedback(%d) = %q, want %q", tt.percentage, got, tt.want)
		}
	}
}
