package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/parrot/pkg/provider"
	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestConvertMessage(t *testing.T) {
	for _, role := range []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant} {
		t.Run(string(role), func(t *testing.T) {
			param, err := convertMessage(types.Message{Role: role, Content: "hi"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch role {
			case types.RoleSystem:
				if param.OfSystem == nil {
					t.Error("expected OfSystem to be set")
				}
			case types.RoleUser:
				if param.OfUser == nil {
					t.Error("expected OfUser to be set")
				}
			case types.RoleAssistant:
				if param.OfAssistant == nil {
					t.Error("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(types.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestBuildParams(t *testing.T) {
	p, _ := New("key", "gpt-4o-mini")
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be nice",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hello"}},
		Temperature:  0.7,
		MaxTokens:    500,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("expected system + user message, got %d", len(params.Messages))
	}
	if params.Temperature.Value != 0.7 {
		t.Errorf("Temperature = %v", params.Temperature.Value)
	}
	if params.MaxTokens.Value != 500 {
		t.Errorf("MaxTokens = %v", params.MaxTokens.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty messages")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model   string
		context int
	}{
		{"gpt-4o-mini", 128_000},
		{"gpt-4", 8_192},
		{"gpt-3.5-turbo", 16_385},
		{"o3-mini", 200_000},
		{"something-new", 128_000},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			caps := modelCapabilities(tc.model)
			if caps.ContextWindow != tc.context {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tc.context)
			}
			if caps.MaxOutputTokens <= 0 {
				t.Error("expected MaxOutputTokens > 0")
			}
		})
	}
}

func TestComplete_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Model     string  `json:"model"`
			MaxTokens int     `json:"max_tokens"`
			Temp      float64 `json:"temperature"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Model != "gpt-4o-mini" || body.MaxTokens != 500 || len(body.Messages) != 2 {
			t.Errorf("unexpected body: %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Nice to meet you!"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "be nice",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "Hi"}},
		MaxTokens:    500,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Nice to meet you!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusUnauthorized, provider.ErrUnauthorized},
		{http.StatusTooManyRequests, provider.ErrRateLimited},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
			_, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []types.Message{{Role: types.RoleUser, Content: "Hi"}},
			})
			if !errors.Is(err, tc.target) {
				t.Errorf("err = %v, want %v", err, tc.target)
			}
		})
	}
}
