package anyllm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/types"
)

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		in   types.Message
		role string
	}{
		{types.Message{Role: types.RoleSystem, Content: "You are helpful."}, "system"},
		{types.Message{Role: types.RoleUser, Content: "Hello!"}, "user"},
		{types.Message{Role: types.RoleAssistant, Content: "Hi there!"}, "assistant"},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			got := convertMessage(tc.in)
			if got.Role != tc.role {
				t.Errorf("Role = %q, want %q", got.Role, tc.role)
			}
			if got.ContentString() != tc.in.Content {
				t.Errorf("Content = %q, want %q", got.ContentString(), tc.in.Content)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "llama3.2"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Temperature:  0.7,
		MaxTokens:    500,
	})
	if params.Model != "llama3.2" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("expected system message first, got %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 500 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}

	bare := p.buildParams(llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil {
		t.Error("zero Temperature/MaxTokens should be left to the backend default")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("skynet", "m"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_LocalBackends(t *testing.T) {
	for _, name := range []string{"ollama", "llamacpp", "llamafile"} {
		t.Run(name, func(t *testing.T) {
			p, err := New(name, "llama3")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.name != name {
				t.Errorf("name = %q", p.name)
			}
		})
	}
}

func TestNew_CaseInsensitive(t *testing.T) {
	p, err := New("OpenAI", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "openai" {
		t.Errorf("name = %q, want openai", p.name)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string   { return fmt.Sprintf("http %d", e.code) }
func (e codedError) StatusCode() int { return e.code }

func TestMapError(t *testing.T) {
	p := &Provider{name: "anthropic"}

	err := p.mapError(fmt.Errorf("wrapped: %w", codedError{http.StatusTooManyRequests}))
	if !errors.Is(err, provider.ErrRateLimited) {
		t.Errorf("err = %v, want rate limited", err)
	}

	err = p.mapError(codedError{http.StatusUnauthorized})
	if !errors.Is(err, provider.ErrUnauthorized) {
		t.Errorf("err = %v, want unauthorized", err)
	}

	plain := errors.New("connection refused")
	if got := p.mapError(plain); got != plain {
		t.Errorf("plain error should pass through, got %v", got)
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model   string
		context int
	}{
		{"gpt-4o-mini", 128_000},
		{"claude-3-5-haiku-latest", 200_000},
		{"gemini-1.5-pro", 2_097_152},
		{"gemini-2.0-flash", 1_048_576},
		{"llama3.2", 8_192},
		{"unknown", 128_000},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			if got := modelCapabilities(tc.model).ContextWindow; got != tc.context {
				t.Errorf("ContextWindow = %d, want %d", got, tc.context)
			}
		})
	}
}

func TestBackends(t *testing.T) {
	got := Backends()
	if len(got) != 9 || got[0] != "anthropic" || got[len(got)-1] != "openai" {
		t.Errorf("Backends() = %v", got)
	}
}
