// Package deepgram provides a Deepgram-backed speech recogniser using the
// Deepgram streaming WebSocket API. It implements the stt.Recognizer
// interface.
//
// Deepgram transcribes a PCM byte stream, so the Recognizer needs an
// [stt.AudioSource] to read from. Without one it reports itself unavailable.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	closeStreamWait   = 5 * time.Second
)

// Option is a functional option for configuring the Deepgram Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) {
		r.model = model
	}
}

// WithLanguage sets the default BCP-47 language code used when a capture does
// not name one.
func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		r.language = language
	}
}

// WithSampleRate sets the sample rate in Hz of the PCM delivered by the
// audio source.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) {
		r.sampleRate = rate
	}
}

// WithAudioSource sets where captured audio is read from.
func WithAudioSource(src stt.AudioSource) Option {
	return func(r *Recognizer) {
		r.source = src
	}
}

// WithEndpoint overrides the streaming endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		r.endpoint = endpoint
	}
}

// Recognizer implements stt.Recognizer backed by the Deepgram streaming API.
type Recognizer struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
	source     stt.AudioSource
}

// New creates a new Deepgram Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Available reports whether an audio source is configured.
func (r *Recognizer) Available() bool {
	return r.source != nil
}

// Start opens a streaming transcription session with Deepgram and begins
// forwarding audio from the configured source. ctx bounds the lifetime of the
// whole capture; cancelling it behaves like Abort.
func (r *Recognizer) Start(ctx context.Context, cfg stt.Config, l stt.Listener) (stt.Handle, error) {
	if r.source == nil {
		return nil, fmt.Errorf("deepgram: %w", stt.ErrUnavailable)
	}
	if l == nil {
		return nil, errors.New("deepgram: listener must not be nil")
	}

	wsURL, err := r.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	ctx, cancel := context.WithCancel(ctx)
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		cancel()
		if resp != nil && resp.StatusCode >= 400 {
			err = &provider.StatusError{Provider: "deepgram", StatusCode: resp.StatusCode, Message: resp.Status, Err: err}
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	srcCtx, srcCancel := context.WithCancel(ctx)
	audio, err := r.source.Open(srcCtx)
	if err != nil {
		srcCancel()
		cancel()
		conn.CloseNow()
		return nil, fmt.Errorf("deepgram: open audio source: %w", err)
	}

	c := &capture{
		conn:      conn,
		listener:  l,
		cancel:    cancel,
		srcCancel: srcCancel,
		done:      make(chan struct{}),
	}
	go c.writeLoop(ctx, audio)
	go c.readLoop(ctx)
	return c, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (r *Recognizer) buildURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = r.language
	}

	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(r.sampleRate))
	q.Set("channels", "1")
	if !cfg.Continuous {
		// Without continuous mode the capture ends at the first utterance
		// boundary Deepgram detects.
		q.Set("endpointing", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- capture ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// segment is one parsed Results message.
type segment struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
}

// capture is a live Deepgram streaming session. It implements stt.Handle.
type capture struct {
	conn      *websocket.Conn
	listener  stt.Listener
	cancel    context.CancelFunc
	srcCancel context.CancelFunc

	stopping  atomic.Bool
	aborted   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Stop stops reading audio. Deepgram flushes the transcripts for what it has
// already received and then closes the stream, which ends the capture.
func (c *capture) Stop() error {
	c.stopping.Store(true)
	c.srcCancel()
	return nil
}

// Abort drops the connection without waiting for pending transcripts.
func (c *capture) Abort() error {
	c.aborted.Store(true)
	c.srcCancel()
	c.cancel()
	return nil
}

// closeStream asks Deepgram to flush and close the stream.
func (c *capture) closeStream() {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeStreamWait)
		defer cancel()
		_ = c.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	})
}

// writeLoop forwards audio chunks to Deepgram until the source is exhausted.
func (c *capture) writeLoop(ctx context.Context, audio <-chan []byte) {
	for chunk := range audio {
		if err := c.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
			// The read loop observes the broken connection.
			return
		}
	}
	if ctx.Err() == nil {
		c.closeStream()
	}
}

// readLoop receives JSON messages from Deepgram and reports them to the
// listener. It is the only goroutine that calls the listener.
func (c *capture) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.listener.OnEnd()
	defer c.cancel()
	defer c.conn.CloseNow()

	c.listener.OnStart()

	var tr tracker
	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			switch {
			case c.aborted.Load() || ctx.Err() != nil:
				c.listener.OnError(stt.ErrorAborted, "")
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
			case c.stopping.Load():
			default:
				c.listener.OnError(stt.ErrorNetwork, err.Error())
			}
			return
		}

		seg, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if batch, changed := tr.apply(seg); changed {
			c.listener.OnResult(batch)
		}
	}
}

// tracker turns Deepgram's per-segment messages into cumulative result
// batches. Interim messages overwrite the open segment; a final message
// closes it so the next message starts a new one.
type tracker struct {
	results []stt.Result
}

// apply folds seg into the result list. It reports false when nothing
// changed.
func (t *tracker) apply(seg segment) (stt.ResultBatch, bool) {
	idx := len(t.results)
	open := idx > 0 && !t.results[idx-1].Final
	if open {
		idx--
	}

	switch {
	case seg.Text == "" && !open:
		// Silence with nothing pending.
		return stt.ResultBatch{}, false
	case seg.Text == "" && !seg.IsFinal:
		return stt.ResultBatch{}, false
	}

	r := stt.Result{Final: seg.IsFinal, Text: seg.Text}
	if open {
		t.results[idx] = r
	} else {
		t.results = append(t.results, r)
	}
	return stt.ResultBatch{ResultIndex: idx, Results: slices.Clone(t.results)}, true
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (segment, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (segment, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return segment{}, false
	}
	if resp.Type != "Results" {
		return segment{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return segment{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return segment{
		Text:        alt.Transcript,
		IsFinal:     resp.IsFinal,
		SpeechFinal: resp.SpeechFinal,
	}, true
}

// Compile-time interface assertions.
var (
	_ stt.Recognizer = (*Recognizer)(nil)
	_ stt.Handle     = (*capture)(nil)
)
