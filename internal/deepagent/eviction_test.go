package deepagent

import (
	"context"
	"strings"
	"testing"
)

func TestSanitizeToolCallID(t *testing.T) {
	if got := sanitizeToolCallID("call/123:abc"); got != "call_123_abc" {
		t.Errorf("sanitizeToolCallID = %q", got)
	}
	if got := sanitizeToolCallID(""); got != "result" {
		t.Errorf("sanitizeToolCallID(\"\") = %q, want %q", got, "result")
	}
	long := strings.Repeat("a", 200)
	if got := sanitizeToolCallID(long); len(got) != maxEvictionNameLen {
		t.Errorf("expected clipped length %d, got %d", maxEvictionNameLen, len(got))
	}
}

func TestEvictIfOversizedBelowThreshold(t *testing.T) {
	e := &Evictor{Backend: NewMemoryBackend(NewState())}
	descriptor, ok, err := e.EvictIfOversized(context.Background(), "call-1", "small")
	if err != nil {
		t.Fatalf("EvictIfOversized error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for content under threshold")
	}
	if descriptor != "small" {
		t.Errorf("descriptor = %q, want unchanged content", descriptor)
	}
}

func TestEvictIfOversizedAboveThreshold(t *testing.T) {
	backend := NewMemoryBackend(NewState())
	e := &Evictor{Backend: backend, ThresholdBytes: 10}
	big := strings.Repeat("x", 50)

	descriptor, ok, err := e.EvictIfOversized(context.Background(), "call-1", big)
	if err != nil {
		t.Fatalf("EvictIfOversized error: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for content over threshold")
	}
	if !strings.Contains(descriptor, "truncated") {
		t.Errorf("descriptor = %q, want truncation note", descriptor)
	}
	raw, err := backend.ReadRaw(context.Background(), "tool-results/call-1.txt")
	if err != nil {
		t.Fatalf("expected evicted content written to backend: %v", err)
	}
	if string(raw) != big {
		t.Error("evicted file content does not match original")
	}
}

func TestEvictMessagesReplacesOversizedResults(t *testing.T) {
	backend := NewMemoryBackend(NewState())
	e := &Evictor{Backend: backend, ThresholdBytes: 5}
	messages := []Message{
		{
			Role: RoleTool,
			ToolResults: []ToolResultMsg{
				{ToolCallID: "c1", Content: "tiny"},
				{ToolCallID: "c2", Content: strings.Repeat("y", 100)},
			},
		},
	}

	var fileEvents int
	emitter := NewEventEmitter(nil, func(ev Event) {
		if ev.Type == EventFileWritten {
			fileEvents++
		}
	})

	if err := e.EvictMessages(context.Background(), messages, emitter); err != nil {
		t.Fatalf("EvictMessages error: %v", err)
	}
	if messages[0].ToolResults[0].Content != "tiny" {
		t.Error("small tool result should be left unchanged")
	}
	if !strings.Contains(messages[0].ToolResults[1].Content, "truncated") {
		t.Errorf("expected oversized result replaced with descriptor, got %q", messages[0].ToolResults[1].Content)
	}
	if fileEvents != 1 {
		t.Errorf("expected 1 file-written event, got %d", fileEvents)
	}
}

func TestTruncatePreview(t *testing.T) {
	if got := truncatePreview("short", 10); got != "short" {
		t.Errorf("truncatePreview = %q", got)
	}
	got := truncatePreview(strings.Repeat("a", 20), 5)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}
