package app

import (
	"context"
	"time"

	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// timedTTS traces remote synthesis and records its latency.
type timedTTS struct {
	tts.Provider
	metrics *observe.Metrics
}

func (t timedTTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	ctx, span := observe.StartSpan(ctx, "tts.synthesize")
	start := time.Now()
	clip, err := t.Provider.Synthesize(ctx, req)
	t.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	observe.EndSpan(span, err)
	return clip, err
}
