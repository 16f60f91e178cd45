package providers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/deepagents/deepagent/internal/deepagent"
)

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name        string
		config      OpenAIConfig
		expectError bool
	}{
		{
			name: "valid config",
			config: OpenAIConfig{
				APIKey:       "test-key",
				MaxRetries:   3,
				RetryDelay:   time.Second,
				DefaultModel: "gpt-4o",
			},
		},
		{
			name:        "missing API key",
			config:      OpenAIConfig{MaxRetries: 3},
			expectError: true,
		},
		{
			name:   "defaults applied",
			config: OpenAIConfig{APIKey: "test-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenAIClient(tt.config)

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

func TestOpenAIClientMethods(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if client.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", client.Name())
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
	if !modelIDs["gpt-4o"] {
		t.Error("expected model gpt-4o not found")
	}
}

func TestOpenAIConvertMessages(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	msgs := []deepagent.Message{
		{Role: deepagent.RoleUser, Content: "Hello!"},
		{
			Role:    deepagent.RoleAssistant,
			Content: "Let me check that.",
			ToolCalls: []deepagent.ToolCall{
				{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"city":"London"}`)},
			},
		},
		{
			Role: deepagent.RoleTool,
			ToolResults: []deepagent.ToolResultMsg{
				{ToolCallID: "call_123", Content: "Sunny, 72F"},
			},
		},
	}

	result := client.convertMessages(msgs, "You are helpful.")
	if len(result) == 0 {
		t.Fatal("expected converted messages")
	}
	if result[0].Role != "system" || result[0].Content != "You are helpful." {
		t.Errorf("expected a leading system message, got %+v", result[0])
	}

	var sawToolCall, sawToolResult bool
	for _, m := range result {
		if len(m.ToolCalls) > 0 {
			sawToolCall = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_123" {
			sawToolResult = true
		}
	}
	if !sawToolCall {
		t.Error("expected an assistant message carrying tool calls")
	}
	if !sawToolResult {
		t.Error("expected a tool-result message keyed by ToolCallID")
	}
}

func TestOpenAIConvertMessagesNoSystemPrompt(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	result := client.convertMessages([]deepagent.Message{{Role: deepagent.RoleUser, Content: "hi"}}, "")
	if len(result) != 1 {
		t.Fatalf("expected no system message prepended, got %d messages", len(result))
	}
}

func TestOpenAIConvertTools(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	tools := []deepagent.Tool{
		&mockTool{name: "get_weather", description: "Get current weather",
			schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
		&mockTool{name: "search", description: "Search the web", schema: json.RawMessage(`{"type":"object"}`)},
	}

	result := client.convertTools(tools)
	if len(result) != len(tools) {
		t.Fatalf("expected %d tools, got %d", len(tools), len(result))
	}
	if result[0].Function.Name != "get_weather" {
		t.Errorf("Function.Name = %q, want get_weather", result[0].Function.Name)
	}
}

func TestOpenAIConvertToolsInvalidSchemaFallsBackToEmptyObject(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	tools := []deepagent.Tool{&mockTool{name: "test", description: "Test tool", schema: json.RawMessage(`invalid`)}}
	result := client.convertTools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	if result[0].Function.Parameters == nil {
		t.Error("expected a fallback parameters object instead of a nil schema")
	}
}

func TestOpenAIIsRetryableError(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
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
		{"rate limit exceeded", true},
		{"429 too many requests", true},
		{"500 internal server error", true},
		{"deadline exceeded", true},
		{"invalid api key", false},
		{"bad request: missing field", false},
	}
	for _, tt := range tests {
		if got := client.isRetryableError(errString(tt.msg)); got != tt.want {
			t.Errorf("isRetryableError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestOpenAIModelDefaults(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", DefaultModel: "gpt-4-turbo"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if got := client.model(""); got != "gpt-4-turbo" {
		t.Errorf("model(\"\") = %q, want default", got)
	}
	if got := client.model("gpt-3.5-turbo"); got != "gpt-3.5-turbo" {
		t.Errorf("model() should pass through explicit model, got %q", got)
	}
}

func TestOpenAIBaseURLOverride(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: "https://example.test/v1"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if client.client == nil {
		t.Fatal("expected an underlying openai client to be constructed")
	}
}
