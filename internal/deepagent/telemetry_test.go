package deepagent

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerNoopWithoutEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TelemetryConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewTracer returned error: %v", err)
	}
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
	ctx, span := tracer.StartStep(context.Background(), "t1", 1)
	if ctx == nil || span == nil {
		t.Fatal("expected non-nil context/span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown returned error: %v", err)
	}
}

func TestNilTracerIsNoop(t *testing.T) {
	var tracer *Tracer
	ctx := context.Background()
	gotCtx, span := tracer.StartStep(ctx, "t1", 1)
	if gotCtx != ctx {
		t.Error("expected context passthrough on nil tracer")
	}
	tracer.RecordError(span, errors.New("boom")) // must not panic
}
