// Package anyllm lets the chat companion talk to vendors other than OpenAI,
// or to a model running on the learner's own machine, through
// github.com/mozilla-ai/any-llm-go.
//
//	p, err := anyllm.New("ollama", "llama3.2")
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
	oai "github.com/openai/openai-go"

	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

var backends = map[string]constructor{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Backends returns the vendor names [New] accepts, sorted.
func Backends() []string { return slices.Sorted(maps.Keys(backends)) }

// Provider is an [llm.Provider] over one any-llm-go backend and model.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

// New builds the backend called name (case-insensitive, see [Backends]).
// Without an API key option the backend reads its usual environment
// variable, such as ANTHROPIC_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if name == "" {
		return nil, errors.New("anyllm: backend name is required")
	}
	if model == "" {
		return nil, errors.New("anyllm: model is required")
	}
	name = strings.ToLower(name)
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (have %s)", name, strings.Join(Backends(), ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{name: name, backend: b, model: model}, nil
}

// Complete sends the conversation and returns the first choice, trimmed.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: conversation is empty")
	}
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, p.mapError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: response has no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: strings.TrimSpace(resp.Choices[0].Message.ContentString())}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) Capabilities() types.ModelCapabilities { return modelCapabilities(p.model) }

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	// Zero values are left unset so the backend applies its own default.
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params
}

func convertMessage(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: string(m.Role), Content: m.Content}
}

// mapError turns vendor errors that carry an HTTP status into a
// [provider.StatusError] so 401 and 429 are recognisable upstream.
func (p *Provider) mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &provider.StatusError{Provider: p.name, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
	}
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) && coded.StatusCode() > 0 {
		return &provider.StatusError{Provider: p.name, StatusCode: coded.StatusCode(), Message: err.Error(), Err: err}
	}
	return err
}

// modelRules is matched in order against the lowercased model name; the
// first match wins.
var modelRules = []struct {
	match         func(string) bool
	contextWindow int
	maxOutput     int
}{
	{prefix("gpt-4o"), 128_000, 16_384},
	{prefix("gpt-4"), 8_192, 4_096},
	{prefix("gpt-3.5-turbo"), 16_385, 4_096},
	{contains("claude-3-opus"), 200_000, 4_096},
	{prefix("claude"), 200_000, 8_192},
	{contains("gemini-1.5-pro"), 2_097_152, 8_192},
	{contains("gemini-2", "gemini-1.5-flash"), 1_048_576, 8_192},
	{prefix("gemini"), 128_000, 8_192},
	// Models served by Ollama or llama.cpp usually run with a small context.
	{prefix("llama", "mistral", "qwen", "phi"), 8_192, 2_048},
}

func prefix(ps ...string) func(string) bool {
	return func(s string) bool {
		return slices.ContainsFunc(ps, func(p string) bool { return strings.HasPrefix(s, p) })
	}
}

func contains(subs ...string) func(string) bool {
	return func(s string) bool {
		return slices.ContainsFunc(subs, func(sub string) bool { return strings.Contains(s, sub) })
	}
}

func modelCapabilities(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{SupportsStreaming: true, ContextWindow: 128_000, MaxOutputTokens: 4_096}
	lower := strings.ToLower(model)
	for _, r := range modelRules {
		if r.match(lower) {
			caps.ContextWindow, caps.MaxOutputTokens = r.contextWindow, r.maxOutput
			break
		}
	}
	return caps
}
