package deepagent

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is an assistant's request to execute a tool, paired with a
// later ToolResult bearing the same ID (spec's tool-call pairing
// invariant, enforced by the message pipeline's patcher).
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultMsg is the output of a tool execution, attached to a
// role=tool Message.
type ToolResultMsg struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one entry in the append-only conversation sequence (spec §3).
// ProviderOptions carries opaque per-message provider metadata (e.g.
// Anthropic prompt-caching markers); the engine never interprets it.
type Message struct {
	Role            Role            `json:"role"`
	Content         string          `json:"content,omitempty"`
	ToolCalls       []ToolCall      `json:"tool_calls,omitempty"`
	ToolResults     []ToolResultMsg `json:"tool_results,omitempty"`
	ProviderOptions map[string]any  `json:"provider_options,omitempty"`
}

// Tool is the interface every built-in and user-supplied tool implements,
// grounded field-for-field on the teacher's agent.Tool interface.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error)
}

// ToolExecResult is the outcome of one tool execution.
type ToolExecResult struct {
	Content string
	IsError bool
}

// CompletionRequest is passed to a ModelClient for one model-stream
// round-trip (one "step" in spec terms).
type CompletionRequest struct {
	Model           string
	System          string
	Messages        []Message
	Tools           []Tool
	MaxTokens       int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	Seed            *int
	StopSequences   []string
	OutputSchema    json.RawMessage
	ProviderOptions map[string]any
}

// CompletionChunk is one item in the streamed response from a ModelClient.
type CompletionChunk struct {
	Text         string
	ToolCall     *ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Model describes one model a ModelClient can target.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}

// ModelClient is the opaque adapter spec.md keeps out of scope. The
// engine depends only on this interface, grounded on the teacher's
// LLMProvider interface (internal/agent/provider_types.go).
type ModelClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}
