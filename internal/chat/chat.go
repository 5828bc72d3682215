// Package chat implements the conversation session: an ordered message list
// backed by a remote chat-completion provider, with at most one request in
// flight.
//
// A new Send cancels the previous request. The superseded call returns
// [ErrSuperseded] and leaves the message list and error state alone, so a
// late reply can never be appended twice.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/parrot/internal/fault"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/types"
)

// Request defaults.
const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// NoResponse replaces an empty completion.
const NoResponse = "No response received."

// ErrSuperseded is returned by Send when the request was cancelled by a
// later Send, Cancel, or Clear.
var ErrSuperseded = errors.New("chat: request superseded")

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Messages []types.ChatMessage
	Loading  bool

	// Err is the last request error. It is always a [*fault.Error].
	Err error
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithClock replaces time.Now for message timestamps and the time line of
// the system prompt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMaxTokens overrides [DefaultMaxTokens].
func WithMaxTokens(n int) Option {
	return func(s *Session) { s.maxTokens = n }
}

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(s *Session) { s.temperature = t }
}

// WithMetrics records request latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is a chat conversation. It is safe for concurrent use.
type Session struct {
	now         func() time.Time
	maxTokens   int
	temperature float64
	metrics     *observe.Metrics

	mu       sync.Mutex
	provider llm.Provider
	model    string
	messages []types.ChatMessage
	loading  bool
	err      error
	gen      uint64
	cancel   context.CancelFunc
	subs     map[int]func(Snapshot)
	nextSub  int
}

// New returns an empty Session. p is nil while no API key is configured;
// Send then fails with a Configuration fault. model is informational and
// is reported through [Session.Model].
func New(p llm.Provider, model string, opts ...Option) *Session {
	s := &Session{
		now:         time.Now,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		provider:    p,
		model:       model,
		subs:        make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetProvider binds a new provider for later requests. An in-flight request
// keeps running against the previous provider.
func (s *Session) SetProvider(p llm.Provider, model string) {
	s.mu.Lock()
	s.provider = p
	s.model = model
	s.mu.Unlock()
}

// Model returns the name of the bound model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Subscribe registers fn to receive a Snapshot after every change. fn must
// not block.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Err returns the last request error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a request is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Send appends text as a user message, asks the provider for a reply, and
// appends and returns it. Blank text is a no-op. A missing provider returns
// a Configuration fault without touching the conversation.
//
// Request failures are stored (see [Session.Err]) and returned. A request
// cancelled by a later call returns [ErrSuperseded]; one cancelled through
// ctx returns ctx.Err(). Neither sets the error state.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	s.mu.Lock()
	p := s.provider
	if p == nil {
		s.err = fault.New(fault.Configuration, "API key is not set. Enter your OpenAI API key in settings.", nil)
		err := s.err
		s.publishLocked()
		return "", err
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	history := make([]types.Message, 0, len(s.messages)+1)
	for _, m := range s.messages {
		history = append(history, m.AsMessage())
	}
	history = append(history, types.Message{Role: types.RoleUser, Content: text})
	now := s.now()
	s.appendLocked(types.RoleUser, text, now)
	s.loading = true
	s.err = nil
	model := s.model
	s.publishLocked()

	req := llm.CompletionRequest{
		SystemPrompt: SystemPrompt(now),
		Messages:     history,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	}
	resp, err := s.complete(rctx, p, model, req)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		return "", ErrSuperseded
	}
	cancel()
	s.cancel = nil
	s.loading = false

	if err != nil {
		if ctx.Err() != nil {
			s.publishLocked()
			return "", ctx.Err()
		}
		s.err = Classify(err)
		ferr := s.err
		observe.Logger(ctx).Warn("chat: request failed", "model", model, "err", err)
		s.publishLocked()
		return "", ferr
	}

	var reply string
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
	}
	if reply == "" {
		reply = NoResponse
	}
	s.appendLocked(types.RoleAssistant, reply, s.now())
	s.publishLocked()
	return reply, nil
}

func (s *Session) complete(ctx context.Context, p llm.Provider, model string, req llm.CompletionRequest) (resp *llm.CompletionResponse, err error) {
	ctx, span := observe.StartSpan(ctx, "chat.complete")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	resp, err = p.Complete(ctx, req)
	if s.metrics == nil {
		return resp, err
	}
	s.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case err == nil:
		s.metrics.RecordProviderRequest(ctx, model, "llm", "ok")
	case errors.Is(err, context.Canceled):
		s.metrics.RecordProviderRequest(ctx, model, "llm", "cancelled")
	default:
		s.metrics.RecordProviderRequest(ctx, model, "llm", "error")
		s.metrics.RecordProviderError(ctx, model, "llm")
	}
	return resp, err
}

// appendLocked adds a message whose timestamp is strictly after the
// previous one at millisecond resolution, keeping message IDs unique.
func (s *Session) appendLocked(role types.Role, content string, at time.Time) {
	if n := len(s.messages); n > 0 {
		if last := s.messages[n-1].CreatedAt; at.UnixMilli() <= last.UnixMilli() {
			at = last.Add(time.Millisecond)
		}
	}
	s.messages = append(s.messages, types.ChatMessage{Role: role, Content: content, CreatedAt: at})
}

// Cancel aborts the in-flight request, if any. The conversation is kept.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.abortLocked()
	s.publishLocked()
}

// Clear aborts the in-flight request and empties the conversation and the
// error state.
func (s *Session) Clear() {
	s.mu.Lock()
	s.abortLocked()
	s.messages = nil
	s.err = nil
	s.publishLocked()
}

func (s *Session) abortLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
}

// SystemPrompt returns the instruction sent ahead of the conversation.
func SystemPrompt(now time.Time) string {
	return "You are a kind and helpful AI assistant.\n" +
		"Talk with the user naturally and give accurate, useful answers.\n" +
		"You can also help the user practice English.\n" +
		"Current time: " + now.Format("Monday, January 2, 2006 15:04") + "\n" +
		"Keep your answers short, about 2-3 sentences."
}

// Classify turns a provider failure into a RemoteRequest fault with a
// message for display.
func Classify(err error) error {
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		return fault.New(fault.RemoteRequest, "API key is invalid. Check it in settings.", err)
	case errors.Is(err, provider.ErrRateLimited):
		return fault.New(fault.RemoteRequest, "API request limit exceeded. Try again in a moment.", err)
	}
	var se *provider.StatusError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", se.StatusCode)
		}
		return fault.New(fault.RemoteRequest, msg, err)
	}
	return fault.New(fault.RemoteRequest, "Failed to send the message.", err)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: slices.Clone(s.messages),
		Loading:  s.loading,
		Err:      s.err,
	}
}

// publishLocked releases s.mu and then delivers the snapshot taken under it.
func (s *Session) publishLocked() {
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
