package deepagent

import (
	"errors"
	"testing"
)

func TestEngineErrorMessageWithAndWithoutCause(t *testing.T) {
	e := NewEngineError(KindModel, "model call failed")
	if got := e.Error(); got != "deepagent: ModelError: model call failed" {
		t.Errorf("Error() = %q", got)
	}

	e.WithCause(errors.New("connection reset"))
	if got := e.Error(); got != "deepagent: ModelError: model call failed: connection reset" {
		t.Errorf("Error() with cause = %q", got)
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := NewEngineError(KindTool, "tool failed").WithCause(cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestEngineErrorBuilderChain(t *testing.T) {
	e := NewEngineError(KindCheckpoint, "save failed").
		WithThreadID("t1").
		WithStep(5).
		WithRetriable(true)

	if e.ThreadID != "t1" || e.Step != 5 || !e.Retriable {
		t.Errorf("builder chain did not apply all fields: %+v", e)
	}
}

func TestIsEngineError(t *testing.T) {
	e := NewEngineError(KindInput, "no input")
	var wrapped error = e
	got, ok := IsEngineError(wrapped)
	if !ok || got.Kind != KindInput {
		t.Errorf("IsEngineError = %v, %v", got, ok)
	}

	if _, ok := IsEngineError(errors.New("plain")); ok {
		t.Error("expected plain error to not be recognized as EngineError")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{NewEngineError(KindApproval, "denied"), KindApproval},
		{errors.New("context canceled"), KindCancelled},
		{errors.New("request timed out"), KindTool},
		{errors.New("invalid schema"), KindConfig},
		{errors.New("something else entirely"), KindModel},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
