package providers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/deepagents/deepagent/internal/deepagent"
)

type mockTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (m *mockTool) Name() string            { return m.name }
func (m *mockTool) Description() string     { return m.description }
func (m *mockTool) Schema() json.RawMessage { return m.schema }
func (m *mockTool) Execute(ctx context.Context, params json.RawMessage) (*deepagent.ToolExecResult, error) {
	return &deepagent.ToolExecResult{}, nil
}

func TestNewAnthropicClient(t *testing.T) {
	tests := []struct {
		name        string
		config      AnthropicConfig
		expectError bool
	}{
		{
			name: "valid config",
			config: AnthropicConfig{
				APIKey:       "test-key",
				MaxRetries:   3,
				RetryDelay:   time.Second,
				DefaultModel: "claude-sonnet-4-20250514",
			},
		},
		{
			name:        "missing API key",
			config:      AnthropicConfig{MaxRetries: 3},
			expectError: true,
		},
		{
			name:   "defaults applied",
			config: AnthropicConfig{APIKey: "test-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAnthropicClient(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.maxRetries <= 0 {
				t.Error("maxRetries should have default value")
			}
			if client.retryDelay <= 0 {
				t.Error("retryDelay should have default value")
			}
			if client.defaultModel == "" {
				t.Error("defaultModel should have default value")
			}
		})
	}
}

func TestAnthropicClientMethods(t *testing.T) {
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if client.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", client.Name())
	}
	if !client.SupportsTools() {
		t.Error("expected SupportsTools to return true")
	}

	models := client.Models()
	if len(models) == 0 {
		t.Fatal("expected at least one model")
	}
	modelIDs := make(map[string]bool)
	for _, m := range models {
		modelIDs[m.ID] = true
		if m.Name == "" {
			t.Errorf("model %s has empty name", m.ID)
		}
		if m.ContextSize <= 0 {
			t.Errorf("model %s has invalid context size", m.ID)
		}
	}
	for _, expected := range []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514"} {
		if !modelIDs[expected] {
			t.Errorf("expected model %s not found", expected)
		}
	}
}

func TestAnthropicConvertMessages(t *testing.T) {
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tests := []struct {
		name     string
		messages []deepagent.Message
		wantErr  bool
	}{
		{
			name:     "simple user message",
			messages: []deepagent.Message{{Role: deepagent.RoleUser, Content: "Hello!"}},
		},
		{
			name: "system message is skipped",
			messages: []deepagent.Message{
				{Role: deepagent.RoleSystem, Content: "You are helpful."},
				{Role: deepagent.RoleUser, Content: "Hello!"},
			},
		},
		{
			name: "assistant message with tool call",
			messages: []deepagent.Message{
				{
					Role:    deepagent.RoleAssistant,
					Content: "Let me check that.",
					ToolCalls: []deepagent.ToolCall{
						{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"city":"London"}`)},
					},
				},
			},
		},
		{
			name: "message with tool results",
			messages: []deepagent.Message{
				{
					Role: deepagent.RoleTool,
					ToolResults: []deepagent.ToolResultMsg{
						{ToolCallID: "call_123", Content: "Sunny, 72F"},
					},
				},
			},
		},
		{
			name: "invalid tool call JSON",
			messages: []deepagent.Message{
				{
					Role: deepagent.RoleAssistant,
					ToolCalls: []deepagent.ToolCall{
						{ID: "call_123", Name: "test", Input: json.RawMessage(`invalid json`)},
					},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.convertMessages(tt.messages)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil {
				t.Fatal("expected result but got nil")
			}
		})
	}
}

func TestAnthropicConvertTools(t *testing.T) {
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tests := []struct {
		name    string
		tools   []deepagent.Tool
		wantErr bool
	}{
		{
			name: "valid tool",
			tools: []deepagent.Tool{
				&mockTool{name: "get_weather", description: "Get current weather",
					schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
			},
		},
		{
			name: "multiple tools",
			tools: []deepagent.Tool{
				&mockTool{name: "get_weather", description: "Get current weather", schema: json.RawMessage(`{"type":"object"}`)},
				&mockTool{name: "search", description: "Search the web", schema: json.RawMessage(`{"type":"object"}`)},
			},
		},
		{
			name: "invalid schema JSON",
			tools: []deepagent.Tool{
				&mockTool{name: "test", description: "Test tool", schema: json.RawMessage(`invalid`)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.convertTools(tt.tools)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.tools) {
				t.Errorf("expected %d tools, got %d", len(tt.tools), len(result))
			}
		})
	}
}

func TestAnthropicIsRetryableError(t *testing.T) {
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if client.isRetryableError(nil) {
		t.Error("nil error should not be retryable")
	}

	tests := []struct {
		msg  string
		want bool
	}{
		{"rate_limit exceeded", true},
		{"429 too many requests", true},
		{"500 internal server error", true},
		{"connection reset by peer", true},
		{"invalid api key", false},
		{"bad request: missing field", false},
	}
	for _, tt := range tests {
		if got := client.isRetryableError(errString(tt.msg)); got != tt.want {
			t.Errorf("isRetryableError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestAnthropicModelAndMaxTokensDefaults(t *testing.T) {
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", DefaultModel: "claude-opus-4-20250514"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if got := client.model(""); got != "claude-opus-4-20250514" {
		t.Errorf("model(\"\") = %q, want default", got)
	}
	if got := client.model("claude-3-haiku-20240307"); got != "claude-3-haiku-20240307" {
		t.Errorf("model() should pass through explicit model, got %q", got)
	}
	if got := client.maxTokens(0); got != 4096 {
		t.Errorf("maxTokens(0) = %d, want 4096 default", got)
	}
	if got := client.maxTokens(500); got != 500 {
		t.Errorf("maxTokens(500) = %d, want 500", got)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
