package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/parrot/pkg/provider/tts"
	ttsmock "github.com/MrWong99/parrot/pkg/provider/tts/mock"
	"github.com/MrWong99/parrot/pkg/types"
)

func TestTTSFallback_Synthesize(t *testing.T) {
	tests := []struct {
		name          string
		primaryErr    error
		wantData      string
		wantSecondary int
	}{
		{"primary speaks", nil, "primary", 0},
		{"fallback speaks", errors.New("quota exceeded"), "fallback", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary := &ttsmock.Provider{
				SynthesizeResult: &tts.Audio{Data: []byte("primary"), Format: tts.FormatMP3},
				SynthesizeErr:    tc.primaryErr,
			}
			secondary := &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("fallback"), Format: tts.FormatWAV}}
			fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
			fb.AddFallback("openai", secondary)

			clip, err := fb.Synthesize(context.Background(), tts.Request{Text: "The cat sat.", Voice: "rachel"})
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if string(clip.Data) != tc.wantData {
				t.Errorf("audio = %q, want %q", clip.Data, tc.wantData)
			}
			if got := secondary.SynthesizeCallCount(); got != tc.wantSecondary {
				t.Errorf("fallback calls = %d, want %d", got, tc.wantSecondary)
			}
			if tc.wantSecondary > 0 {
				if req := secondary.SynthesizeCalls[0].Req; req.Text != "The cat sat." || req.Voice != "rachel" {
					t.Errorf("fallback request = %+v", req)
				}
			}
		})
	}
}

func TestTTSFallback_SynthesizeCancelled(t *testing.T) {
	primary := &ttsmock.Provider{Block: true}
	secondary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{Breaker: BreakerConfig{Threshold: 1}})
	fb.AddFallback("openai", secondary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fb.Synthesize(ctx, tts.Request{Text: "hello"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.SynthesizeCallCount() != 0 {
		t.Error("cancelled synthesis fell over")
	}
	if s := fb.c.links[0].breaker.State(); s != StateClosed {
		t.Errorf("primary breaker = %v, want closed", s)
	}
}

func TestTTSFallback_Voices(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{VoicesErr: errors.New("no voices")}, "coqui", FallbackConfig{})
	fb.AddFallback("elevenlabs", &ttsmock.Provider{
		VoicesResult: []types.VoiceProfile{{ID: "rachel", Name: "Rachel", Provider: "elevenlabs"}},
	})

	voices, err := fb.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "rachel" {
		t.Errorf("voices = %+v", voices)
	}
}
