// Package app wires the Parrot sessions into a running application.
//
// The App owns the full lifecycle: New opens storage, loads the saved
// preferences, and connects the recognition, playback, and chat sessions;
// Run blocks until the host is done; Shutdown tears everything down in
// order.
//
// App is also the coordination policy between the sessions. It keeps
// playback and capture mutually exclusive, feeds the transcript into the
// scorer, sends finished voice captures to the chat, and routes replies to
// playback. Hosts drive it through intent methods (HandlePlay,
// StartPronunciation, SendChat, ...) and render [Snapshot] values.
//
// For testing, inject a store, scheduler, clock, or metrics via functional
// options. When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parrot/internal/chat"
	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/playback"
	"github.com/MrWong99/parrot/internal/prefs"
	"github.com/MrWong99/parrot/internal/recognition"
	"github.com/MrWong99/parrot/internal/storage"
	"github.com/MrWong99/parrot/internal/storage/memory"
	"github.com/MrWong99/parrot/internal/storage/postgres"
	"github.com/MrWong99/parrot/internal/storage/sqlite"
	"github.com/MrWong99/parrot/internal/textmatch"
	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/synth"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/types"
)

// Mode is the top-level screen of the application.
type Mode int

const (
	ModeLearning Mode = iota
	ModeChat
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeChat {
		return "chat"
	}
	return "learning"
}

// Providers holds the capabilities the sessions run on. Populated by
// main.go via the config registry. Nil fields disable the matching feature.
type Providers struct {
	// NewLLM builds the chat provider for the saved API key and chat model.
	// It runs at startup and on every SaveSettings. A nil provider with a
	// nil error means chat is not configured.
	NewLLM func(apiKey, model string) (llm.Provider, error)

	// NewTTS builds the remote speech provider for the saved API key, with
	// the same rules as NewLLM.
	NewTTS func(apiKey string) (tts.Provider, error)

	STT    stt.Recognizer
	Synth  synth.Synthesizer
	Player audio.Player
}

// Snapshot is an immutable view of the whole application.
type Snapshot struct {
	Mode Mode
	Text string

	// Score is the match of the current transcript against Text. Nil when
	// either side is empty or outside learning mode.
	Score *textmatch.Result

	History  prefs.History
	Settings prefs.Settings

	// Speaking is the ID of the chat message being played, or 0.
	Speaking int64

	Recognition recognition.Snapshot
	Playback    playback.Snapshot
	Chat        chat.Snapshot
}

// App owns all session lifetimes and the policy between them.
type App struct {
	cfg       *config.Config
	providers *Providers

	store   storage.Store
	repo    *prefs.Repository
	metrics *observe.Metrics
	sched   playback.Scheduler
	now     func() time.Time

	rec    *recognition.Session
	play   *playback.Session
	chat   *chat.Session
	local  *playback.LocalBackend
	remote *playback.RemoteBackend

	// ctx bounds everything started on the caller's behalf that outlives
	// the call: utterances, captures, and background chat sends.
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu          sync.Mutex
	mode        Mode
	text        string
	score       *textmatch.Result
	history     prefs.History
	settings    prefs.Settings
	repeat      bool
	speaking    int64
	language    string
	captureMode Mode
	sent        uint64 // last capture auto-sent to the chat
	scored      uint64 // last capture whose score was recorded
	listening   bool   // counted in the active captures gauge
	subs        map[int]func(Snapshot)
	nextSub     int

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the configured backend. The
// caller keeps ownership and closes it.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records application metrics on m instead of the default
// instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithScheduler replaces the timer behind the playback repeat loop.
func WithScheduler(s playback.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithClock replaces time.Now for chat timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all sessions together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: storage connection,
// preference loading, voice discovery, and session construction. Failing to
// read saved preferences is logged and the defaults are used.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
		language:  cfg.Speech.RecognitionLanguage,
		subs:      make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	storeCloser, err := a.initStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Preferences ───────────────────────────────────────────────────
	a.repo = prefs.NewRepository(a.store)
	a.initPreferences(ctx)

	// ── 3. Sessions ──────────────────────────────────────────────────────
	a.rec = recognition.New(providers.STT)
	if providers.Synth != nil {
		a.local = playback.NewLocalBackend(providers.Synth, a.repo,
			playback.WithRate(cfg.Speech.DefaultRate),
			playback.WithPitch(cfg.Speech.DefaultPitch),
		)
		if err := a.local.RefreshVoices(ctx); err != nil {
			slog.Warn("local voices unavailable", "err", err)
		}
	}
	a.remote = playback.NewRemoteBackend(a.buildTTS(a.settings.APIKey), providers.Player, a.settings.RemoteVoice)

	playOpts := []playback.Option{playback.WithRepeatDelay(cfg.Speech.RepeatDelay)}
	if a.sched != nil {
		playOpts = append(playOpts, playback.WithScheduler(a.sched))
	}
	a.play = playback.New(a.backendFor(a.settings), playOpts...)

	a.chat = chat.New(a.buildLLM(a.settings), a.settings.ChatModel,
		chat.WithClock(a.now),
		chat.WithMetrics(a.metrics),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
		chat.WithTemperature(cfg.Chat.Temperature),
	)

	// ── 4. Wiring ────────────────────────────────────────────────────────
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.group = new(errgroup.Group)

	unsubs := []func(){
		a.rec.Subscribe(a.onRecognition),
		a.play.Subscribe(a.onPlayback),
		a.chat.Subscribe(func(chat.Snapshot) { a.publish() }),
	}

	a.closers = append(a.closers,
		func() error {
			for _, u := range unsubs {
				u()
			}
			a.play.Stop()
			a.rec.Stop()
			a.chat.Cancel()
			return nil
		},
		func() error {
			a.cancel()
			return a.group.Wait()
		},
	)
	if storeCloser != nil {
		a.closers = append(a.closers, storeCloser)
	}

	slog.Info("app initialised",
		"storage", cfg.Storage.Backend,
		"backend", a.play.Snapshot().Backend,
		"chat", a.chat.Model(),
		"history", len(a.history),
	)
	return a, nil
}

// initStorage opens the configured store unless one was injected. It
// returns the closer for a store it opened.
func (a *App) initStorage(ctx context.Context) (func() error, error) {
	if a.store != nil {
		return nil, nil
	}
	switch a.cfg.Storage.Backend {
	case config.StorageMemory:
		a.store = memory.New(nil)
	case config.StoragePostgres:
		s, err := postgres.Connect(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.store = s
	default:
		path := a.cfg.Storage.Path
		if path == "" {
			path = sqlite.DefaultPath()
		}
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			// Preferences only last for this run.
			slog.Warn("sqlite storage unavailable, using memory", "path", path, "err", err)
			a.store = memory.New(nil)
			return a.store.Close, nil
		}
		a.store = s
	}
	return a.store.Close, nil
}

func (a *App) initPreferences(ctx context.Context) {
	h, err := a.repo.LoadHistory(ctx)
	if err != nil {
		slog.Warn("load history", "err", err)
	}
	s, err := a.repo.LoadSettings(ctx)
	if err != nil {
		slog.Warn("load settings", "err", err)
	}
	a.history = h
	a.settings = s
}

// buildLLM returns nil when chat cannot be configured.
func (a *App) buildLLM(s prefs.Settings) llm.Provider {
	if a.providers.NewLLM == nil {
		return nil
	}
	p, err := a.providers.NewLLM(s.APIKey, s.ChatModel)
	if err != nil {
		slog.Warn("chat provider unavailable", "model", s.ChatModel, "err", err)
		return nil
	}
	return p
}

// buildTTS returns nil when remote speech cannot be configured.
func (a *App) buildTTS(apiKey string) tts.Provider {
	if a.providers.NewTTS == nil {
		return nil
	}
	p, err := a.providers.NewTTS(apiKey)
	if err != nil {
		slog.Warn("remote speech provider unavailable", "err", err)
		return nil
	}
	if p == nil {
		return nil
	}
	return timedTTS{Provider: p, metrics: a.metrics}
}

// backendFor picks the playback backend for the voice engine setting. A
// host without a synthesizer always uses the remote backend.
func (a *App) backendFor(s prefs.Settings) playback.Backend {
	if s.VoiceEngine == prefs.EngineRemote || a.local == nil {
		return a.remote
	}
	return a.local
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled and returns ctx.Err(). Background chat
// sends run on the app context and are cancelled and joined by Shutdown,
// which bounds them with its deadline.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "mode", a.Mode())
	<-ctx.Done()
	return ctx.Err()
}

// Wait blocks until every background chat send has finished.
func (a *App) Wait() {
	_ = a.group.Wait()
}

// Shutdown stops the sessions, cancels background work, and closes storage.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── State ───────────────────────────────────────────────────────────────────

// Subscribe registers fn to receive a Snapshot after every change in any
// session. fn runs on whichever goroutine caused the change and must not
// block. The returned func removes the subscription.
func (a *App) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// Snapshot returns the current state of the application.
func (a *App) Snapshot() Snapshot {
	rec, play, ch := a.rec.Snapshot(), a.play.Snapshot(), a.chat.Snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Mode:        a.mode,
		Text:        a.text,
		Score:       a.score,
		History:     a.history,
		Settings:    a.settings,
		Speaking:    a.speaking,
		Recognition: rec,
		Playback:    play,
		Chat:        ch,
	}
}

func (a *App) publish() {
	a.mu.Lock()
	if len(a.subs) == 0 {
		a.mu.Unlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	snap := a.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// Store returns the preference store, for readiness probes.
func (a *App) Store() storage.Store { return a.store }

// Mode returns the active mode.
func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode switches between learning and chat. Switching stops playback and
// capture and clears the transcript and the score.
func (a *App) SetMode(m Mode) {
	capture := a.rec.Snapshot().Capture

	a.mu.Lock()
	if a.mode == m {
		a.mu.Unlock()
		return
	}
	a.mode = m
	a.score = nil
	a.speaking = 0
	// The interrupted capture is neither sent nor scored.
	a.sent, a.scored = capture, capture
	a.mu.Unlock()

	a.play.Stop()
	a.rec.Stop()
	a.rec.ClearTranscript()
	a.publish()
}

// SetText replaces the reference sentence and rescores the transcript.
func (a *App) SetText(text string) {
	transcript := a.rec.Snapshot().Transcript

	a.mu.Lock()
	a.text = text
	a.rescoreLocked(transcript)
	a.mu.Unlock()
	a.publish()
}

// rescoreLocked recomputes the score for the reference text and transcript.
func (a *App) rescoreLocked(transcript string) {
	if a.mode != ModeLearning || a.captureMode != ModeLearning ||
		strings.TrimSpace(a.text) == "" || strings.TrimSpace(transcript) == "" {
		a.score = nil
		return
	}
	r := textmatch.Compare(a.text, transcript)
	a.score = &r
}

// ─── Playback ────────────────────────────────────────────────────────────────

// HandlePlay speaks the reference text. Blank text is a no-op. The trimmed
// text is recorded in the history first, and an active capture is stopped.
//
// A failed history write is returned after playback was started anyway.
func (a *App) HandlePlay(ctx context.Context) error {
	a.mu.Lock()
	text := strings.TrimSpace(a.text)
	if text == "" {
		a.mu.Unlock()
		return nil
	}
	a.history = a.history.Add(text)
	h, repeat := a.history, a.repeat
	a.speaking = 0
	a.mu.Unlock()

	saveErr := a.repo.SaveHistory(ctx, h)
	if saveErr != nil {
		observe.Logger(ctx).Warn("save history", "err", saveErr)
	}

	a.rec.Stop()
	playErr := a.speak(ctx, text, repeat)
	a.publish()
	return errors.Join(playErr, saveErr)
}

// speak starts an utterance on the app context so it outlives the call.
func (a *App) speak(ctx context.Context, text string, repeat bool) error {
	if err := a.play.Speak(a.ctx, text, repeat); err != nil {
		return err
	}
	a.metrics.RecordUtterance(ctx, a.play.Snapshot().Backend)
	return nil
}

// Pause pauses playback.
func (a *App) Pause() error { return a.play.Pause() }

// Resume resumes paused playback.
func (a *App) Resume() error { return a.play.Resume() }

// StopPlayback stops playback and cancels a pending repeat.
func (a *App) StopPlayback() { a.play.Stop() }

// SetRepeat toggles repeat mode for the current and later utterances.
func (a *App) SetRepeat(repeat bool) {
	a.mu.Lock()
	a.repeat = repeat
	a.mu.Unlock()
	a.play.SetRepeat(repeat)
}

// Repeat reports whether repeat mode is on.
func (a *App) Repeat() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.repeat
}

// SetRate sets the local speaking rate. It is a no-op without a local
// synthesizer.
func (a *App) SetRate(r float64) {
	if a.local != nil {
		a.local.SetRate(r)
	}
}

// SetPitch sets the local pitch. It is a no-op without a local synthesizer.
func (a *App) SetPitch(p float64) {
	if a.local != nil {
		a.local.SetPitch(p)
	}
}

// LocalVoices returns the English voices of the local synthesizer.
func (a *App) LocalVoices() []synth.Voice {
	if a.local == nil {
		return nil
	}
	return a.local.Voices()
}

// RemoteVoices lists the voices of the remote speech provider.
func (a *App) RemoteVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	a.mu.Lock()
	remote := a.remote
	a.mu.Unlock()
	return remote.Voices(ctx)
}

// RefreshVoices reloads the local voice list.
func (a *App) RefreshVoices(ctx context.Context) error {
	if a.local == nil {
		return nil
	}
	return a.local.RefreshVoices(ctx)
}

// SelectVoice picks a voice for the active engine and saves the choice.
func (a *App) SelectVoice(ctx context.Context, name string) error {
	a.mu.Lock()
	s := a.settings
	remote := a.remote
	a.mu.Unlock()

	if s.VoiceEngine == prefs.EngineLocal && a.local != nil {
		return a.local.SelectVoice(ctx, name)
	}
	remote.SetVoice(name)
	s.RemoteVoice = name
	if err := a.repo.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("app: save remote voice: %w", err)
	}
	a.mu.Lock()
	a.settings.RemoteVoice = name
	a.mu.Unlock()
	a.publish()
	return nil
}

func (a *App) onPlayback(snap playback.Snapshot) {
	a.mu.Lock()
	if snap.State == playback.StateIdle && !snap.Pending {
		a.speaking = 0
	}
	a.mu.Unlock()
	a.publish()
}

// ─── Capture ─────────────────────────────────────────────────────────────────

// StartPronunciation stops playback and starts a pronunciation capture. The
// score is cleared until the new transcript arrives.
func (a *App) StartPronunciation(ctx context.Context) error {
	a.mu.Lock()
	language := a.language
	a.mu.Unlock()
	return a.startCapture(ctx, ModeLearning, language)
}

// StartChatCapture stops playback, clears the previous transcript, and
// starts a voice capture for the chat in the selected chat language. With
// auto-send enabled the transcript is sent once the capture ends.
func (a *App) StartChatCapture(ctx context.Context) error {
	a.rec.ClearTranscript()
	a.mu.Lock()
	language := chatRecognitionLanguage(a.settings.ChatLanguage, a.language)
	a.mu.Unlock()
	return a.startCapture(ctx, ModeChat, language)
}

// chatRecognitionLanguage maps a chat language setting to the tag passed to
// the recognizer. "auto" and unknown values use fallback.
func chatRecognitionLanguage(setting, fallback string) string {
	switch setting {
	case "en":
		return "en-US"
	case "ko":
		return "ko-KR"
	default:
		return fallback
	}
}

func (a *App) startCapture(ctx context.Context, mode Mode, language string) error {
	a.play.Stop()

	a.mu.Lock()
	a.captureMode = mode
	a.score = nil
	a.mu.Unlock()

	if err := a.rec.Start(a.ctx, language); err != nil {
		return err
	}
	a.metrics.RecordCapture(ctx, mode.String())
	return nil
}

// StopCapture ends the active capture. The transcript is kept, and final text
// the recognizer still delivers for audio already heard is appended to it.
func (a *App) StopCapture() { a.rec.Stop() }

// RetryPronunciation ends the capture and clears the transcript and score.
func (a *App) RetryPronunciation() {
	a.rec.Stop()
	a.rec.ClearTranscript()
}

// onRecognition rescores in learning mode and auto-sends a finished chat
// capture. A capture is finished once it is idle and no longer settling, so
// text flushed after Stop is included. Each capture is sent and scored at
// most once.
func (a *App) onRecognition(snap recognition.Snapshot) {
	var (
		send  string
		score = -1
		live  int64
	)

	a.mu.Lock()
	if l := snap.State != recognition.StateIdle; l != a.listening {
		a.listening = l
		live = -1
		if l {
			live = 1
		}
	}
	finished := snap.State == recognition.StateIdle && !snap.Settling
	switch a.mode {
	case ModeLearning:
		a.rescoreLocked(snap.Transcript)
		if finished && a.score != nil && snap.Capture > a.scored {
			a.scored = snap.Capture
			score = a.score.Percentage
		}
	case ModeChat:
		if a.captureMode == ModeChat && finished &&
			snap.Capture > a.sent && a.settings.VoiceAutoSend {
			if t := strings.TrimSpace(snap.Transcript); t != "" {
				a.sent = snap.Capture
				send = t
			}
		}
	}
	a.mu.Unlock()

	if live != 0 {
		a.metrics.ActiveCaptures.Add(a.ctx, live)
	}
	if score >= 0 {
		a.metrics.RecordScore(a.ctx, score)
	}
	if send != "" {
		a.rec.ClearTranscript()
		a.goSend(send)
	}
	a.publish()
}

// ─── Chat ────────────────────────────────────────────────────────────────────

// SendChat sends text as a chat message in the background. Blank text is a
// no-op. The outcome shows up in the chat snapshot; Wait joins the send.
func (a *App) SendChat(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.goSend(text)
}

func (a *App) goSend(text string) {
	a.group.Go(func() error {
		a.send(a.ctx, text)
		// Failures live in the chat snapshot and must not cancel the group.
		return nil
	})
}

func (a *App) send(ctx context.Context, text string) {
	reply, err := a.chat.Send(ctx, text)
	if err != nil {
		if !errors.Is(err, chat.ErrSuperseded) && ctx.Err() == nil {
			observe.Logger(ctx).Debug("chat send failed", "err", err)
		}
		return
	}

	a.mu.Lock()
	auto := a.settings.AutoPlayResponse && a.mode == ModeChat
	a.mu.Unlock()
	if !auto {
		return
	}

	msgs := a.chat.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m := msgs[i]; m.Role == types.RoleAssistant && m.Content == reply {
			if err := a.SpeakMessage(ctx, m.ID()); err != nil {
				observe.Logger(ctx).Debug("auto-play reply", "err", err)
			}
			return
		}
	}
}

// SpeakMessage plays the chat message with the given ID and marks it as
// speaking until playback returns to Idle. An active capture is stopped.
func (a *App) SpeakMessage(ctx context.Context, id int64) error {
	var msg *types.ChatMessage
	for _, m := range a.chat.Messages() {
		if m.ID() == id {
			msg = &m
			break
		}
	}
	if msg == nil {
		return fmt.Errorf("app: no chat message with id %d", id)
	}

	a.rec.Stop()
	a.mu.Lock()
	a.speaking = id
	a.mu.Unlock()

	err := a.speak(ctx, msg.Content, false)
	a.publish()
	return err
}

// CancelChat aborts the in-flight chat request.
func (a *App) CancelChat() { a.chat.Cancel() }

// ClearChat empties the conversation and stops a reply being spoken.
func (a *App) ClearChat() {
	a.mu.Lock()
	speaking := a.speaking != 0
	a.mu.Unlock()
	if speaking {
		a.play.Stop()
	}
	a.chat.Clear()
}

// ─── History ─────────────────────────────────────────────────────────────────

// RestoreHistory makes history entry i the reference text and clears the
// transcript and score.
func (a *App) RestoreHistory(i int) error {
	a.mu.Lock()
	if i < 0 || i >= len(a.history) {
		n := len(a.history)
		a.mu.Unlock()
		return fmt.Errorf("app: history index %d out of range [0,%d)", i, n)
	}
	a.text = a.history[i]
	a.score = nil
	a.mu.Unlock()

	a.rec.ClearTranscript()
	a.publish()
	return nil
}

// DeleteHistory removes history entry i and saves the history.
func (a *App) DeleteHistory(ctx context.Context, i int) error {
	a.mu.Lock()
	h, err := a.history.Remove(i)
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("app: %w", err)
	}
	a.history = h
	a.mu.Unlock()

	defer a.publish()
	return a.repo.SaveHistory(ctx, h)
}

// ClearHistory removes every history entry and saves the empty history.
func (a *App) ClearHistory(ctx context.Context) error {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()

	defer a.publish()
	return a.repo.SaveHistory(ctx, nil)
}

// ─── Settings ────────────────────────────────────────────────────────────────

// Settings returns the active settings.
func (a *App) Settings() prefs.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SaveSettings validates and persists s, rebuilds the chat provider and the
// remote backend from it, and binds the playback backend its voice engine
// names. Invalid settings change nothing.
func (a *App) SaveSettings(ctx context.Context, s prefs.Settings) error {
	if err := a.repo.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("app: save settings: %w", err)
	}

	a.chat.SetProvider(a.buildLLM(s), s.ChatModel)
	remote := playback.NewRemoteBackend(a.buildTTS(s.APIKey), a.providers.Player, s.RemoteVoice)

	a.mu.Lock()
	a.settings = s
	a.remote = remote
	backend := a.backendFor(s)
	a.mu.Unlock()

	if a.play.Backend() != backend {
		a.play.SetBackend(backend)
	}
	observe.Logger(ctx).Info("settings saved",
		"engine", s.VoiceEngine,
		"chat_model", s.ChatModel,
		"api_key_set", s.APIKey != "",
	)
	a.publish()
	return nil
}

// ApplySpeech applies a reloaded speech config section. The rate and pitch
// defaults replace the current local values.
func (a *App) ApplySpeech(sc config.SpeechConfig) {
	a.mu.Lock()
	a.language = sc.RecognitionLanguage
	a.mu.Unlock()

	a.play.SetRepeatDelay(sc.RepeatDelay)
	if a.local != nil {
		a.local.SetRate(sc.DefaultRate)
		a.local.SetPitch(sc.DefaultPitch)
	}
	slog.Info("speech settings applied",
		"language", sc.RecognitionLanguage,
		"repeat_delay", sc.RepeatDelay,
	)
}
