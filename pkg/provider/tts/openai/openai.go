// Package openai provides a TTS provider backed by the OpenAI audio speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/types"
)

const (
	defaultModel = "tts-1"
	defaultVoice = "nova"
)

// voiceIDs is the fixed OpenAI speech voice catalogue.
var voiceIDs = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	voice  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Default: "tts-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithDefaultVoice sets the voice used when a request names none.
// Default: "nova".
func WithDefaultVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, voice: defaultVoice}
	for _, o := range opts {
		o(cfg)
	}
	if !slices.Contains(voiceIDs, cfg.voice) {
		return nil, fmt.Errorf("openai: unknown voice %q", cfg.voice)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failures are surfaced to the learner immediately.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", mapError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	return &tts.Audio{Data: data, Format: string(params.ResponseFormat)}, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices(_ context.Context) ([]types.VoiceProfile, error) {
	profiles := make([]types.VoiceProfile, 0, len(voiceIDs))
	for _, id := range voiceIDs {
		profiles = append(profiles, types.VoiceProfile{
			ID:       id,
			Name:     id,
			Language: "en",
			Provider: "openai",
		})
	}
	return profiles, nil
}

// buildParams converts a Request into OpenAI SDK params.
func (p *Provider) buildParams(req tts.Request) (oai.AudioSpeechNewParams, error) {
	if req.Text == "" {
		return oai.AudioSpeechNewParams{}, errors.New("text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	if !slices.Contains(voiceIDs, voice) {
		return oai.AudioSpeechNewParams{}, fmt.Errorf("unknown voice %q", voice)
	}

	var format oai.AudioSpeechNewParamsResponseFormat
	switch req.Format {
	case "", tts.FormatMP3:
		format = oai.AudioSpeechNewParamsResponseFormatMP3
	case tts.FormatWAV:
		format = oai.AudioSpeechNewParamsResponseFormatWAV
	case tts.FormatPCM:
		format = oai.AudioSpeechNewParamsResponseFormatPCM
	default:
		return oai.AudioSpeechNewParams{}, fmt.Errorf("unsupported format %q", req.Format)
	}

	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}

	return oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          oai.Float(speed),
	}, nil
}

// mapError converts an OpenAI API error into a provider.StatusError.
func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &provider.StatusError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return err
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)
