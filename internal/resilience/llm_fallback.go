package resilience

import (
	"context"

	"github.com/MrWong99/parrot/pkg/provider/llm"
	"github.com/MrWong99/parrot/pkg/types"
)

// LLMFallback is an [llm.Provider] that fails over between chat backends.
type LLMFallback struct {
	c *chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a chain that prefers primary.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{c: newChain("llm", name, primary, cfg)}
}

// AddFallback appends a backend tried after those already added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.c.add(name, p) }

// Complete returns the first successful completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return call(ctx, f.c, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities describes the primary model.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.c.primary().Capabilities()
}
