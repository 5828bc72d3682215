package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/parrot/pkg/provider/llm"
	llmmock "github.com/MrWong99/parrot/pkg/provider/llm/mock"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parrot/pkg/provider/tts/mock"
	"github.com/MrWong99/parrot/pkg/types"
)

func TestLimit_Disabled(t *testing.T) {
	p := &llmmock.Provider{}
	for _, n := range []int{0, -3} {
		if got := LimitLLM(p, n); got != llm.Provider(p) {
			t.Errorf("LimitLLM(p, %d) wrapped the provider", n)
		}
	}
	v := &ttsmock.Provider{}
	if got := LimitTTS(v, 0); got != tts.Provider(v) {
		t.Error("LimitTTS(p, 0) wrapped the provider")
	}
}

func TestLimitLLM(t *testing.T) {
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	limited := LimitLLM(p, 2)
	req := llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}}

	// The burst admits one minute's worth of requests at once.
	for i := range 2 {
		if _, err := limited.Complete(context.Background(), req); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := limited.Complete(ctx, req)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("third call err = %v, want ErrRateLimited", err)
	}
	if n := p.CompleteCallCount(); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestLimitTTS(t *testing.T) {
	p := &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("mp3"), Format: tts.FormatMP3}}
	limited := LimitTTS(p, 1)

	if _, err := limited.Synthesize(context.Background(), tts.Request{Text: "hello"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.Synthesize(ctx, tts.Request{Text: "again"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled call err = %v, want context.Canceled", err)
	}
	if len(p.SynthesizeCalls) != 1 {
		t.Errorf("backend calls = %d, want 1", len(p.SynthesizeCalls))
	}

	// Voices bypasses the limiter.
	if _, err := limited.Voices(context.Background()); err != nil {
		t.Errorf("Voices: %v", err)
	}
}
