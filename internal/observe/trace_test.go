package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer makes an in-memory tracer provider global for one test.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points slog.Default at a buffer for one test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	installTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without span = %q, want empty", got)
	}

	ctx1, s1 := StartSpan(context.Background(), "chat")
	defer s1.End()
	ctx2, s2 := StartSpan(context.Background(), "chat")
	defer s2.End()
	child, s3 := StartSpan(ctx1, "speak")
	defer s3.End()

	id1, id2 := CorrelationID(ctx1), CorrelationID(ctx2)
	if len(id1) != 32 || id1 == id2 {
		t.Errorf("root IDs = %q, %q; want two distinct 32-char IDs", id1, id2)
	}
	if CorrelationID(child) != id1 {
		t.Error("child span does not share its parent's correlation ID")
	}
}

func TestStartSpan_Recorded(t *testing.T) {
	exp := installTracer(t)
	_, span := StartSpan(context.Background(), "chat.complete")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "chat.complete" {
		t.Errorf("spans = %v", spans)
	}
	if spans[0].InstrumentationScope.Name != scope {
		t.Errorf("scope = %q", spans[0].InstrumentationScope.Name)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)
	ctx, span := StartSpan(context.Background(), "practice")
	defer span.End()

	tests := []struct {
		name    string
		ctx     context.Context
		wantIDs bool
	}{
		{"with span", ctx, true},
		{"without span", context.Background(), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tc.ctx).Info("scored")

			out := buf.String()
			hasTrace := strings.Contains(out, "trace_id="+CorrelationID(ctx))
			hasSpan := strings.Contains(out, "span_id=")
			if hasTrace != tc.wantIDs || hasSpan != tc.wantIDs {
				t.Errorf("log line %q: trace_id %t span_id %t, want %t", out, hasTrace, hasSpan, tc.wantIDs)
			}
		})
	}
}

func TestEndSpan(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"ok", nil, codes.Unset},
		{"failure", errors.New("status 500"), codes.Error},
		{"cancelled", fmt.Errorf("chat: %w", context.Canceled), codes.Unset},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exp := installTracer(t)
			_, span := StartSpan(context.Background(), "op")
			EndSpan(span, tc.err)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if got := spans[0].Status.Code; got != tc.want {
				t.Errorf("status = %v, want %v", got, tc.want)
			}
			if wantEvents := tc.want == codes.Error; (len(spans[0].Events) > 0) != wantEvents {
				t.Errorf("events = %v, want error recorded %t", spans[0].Events, wantEvents)
			}
		})
	}
}
