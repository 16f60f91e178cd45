package deepagent

import (
	"context"
	"encoding/json"
	"testing"
)

func TestToolRegistryRegisterAndGet(t *testing.T) {
	reg := NewToolRegistry()
	tool := &stubTool{name: "echo", result: &ToolExecResult{Content: "hi"}}
	reg.Register(tool)

	got, ok := reg.Get("echo")
	if !ok || got.Name() != "echo" {
		t.Fatalf("Get = %v, %v", got, ok)
	}
}

func TestToolRegistryExecuteNotFound(t *testing.T) {
	reg := NewToolRegistry()
	res, err := reg.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError=true for unknown tool")
	}
}

type schemaTool struct {
	name   string
	schema json.RawMessage
}

func (s *schemaTool) Name() string           { return s.name }
func (s *schemaTool) Description() string    { return "" }
func (s *schemaTool) Schema() json.RawMessage { return s.schema }
func (s *schemaTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	return &ToolExecResult{Content: "ran"}, nil
}

func TestToolRegistryExecuteValidatesSchema(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&schemaTool{name: "typed", schema: json.RawMessage(`{
		"type": "object",
		"properties": {"n": {"type": "integer"}},
		"required": ["n"]
	}`)})

	res, err := reg.Execute(context.Background(), "typed", json.RawMessage(`{"n": "not a number"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected schema validation failure to be reported as an error result")
	}

	res, err = reg.Execute(context.Background(), "typed", json.RawMessage(`{"n": 5}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.IsError || res.Content != "ran" {
		t.Errorf("expected successful execution, got %+v", res)
	}
}

func TestToolRegistryAsModelTools(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&stubTool{name: "a"})
	reg.Register(&stubTool{name: "b"})
	tools := reg.AsModelTools()
	if len(tools) != 2 {
		t.Errorf("expected 2 tools, got %d", len(tools))
	}
}

func TestBuildRegistryIncludesBuiltins(t *testing.T) {
	state := NewState()
	backend := NewMemoryBackend(state)
	reg, _ := BuildRegistry(state, backend, nil, nil, nil, nil)

	for _, name := range []string{"write_todos", "read_todos", "ls", "read", "write", "edit", "glob", "grep"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("expected built-in tool %q to be registered", name)
		}
	}
	if _, ok := reg.Get("execute"); ok {
		t.Error("execute tool should not be registered for a non-Executor backend")
	}
	if _, ok := reg.Get("task"); ok {
		t.Error("task tool should not be registered without a dispatcher")
	}
}

func TestBuildRegistryRegistersExecuteForSandbox(t *testing.T) {
	state := NewState()
	backend := NewSandboxBackend(NewMemoryBackend(state), nil)
	reg, _ := BuildRegistry(state, backend, nil, nil, nil, nil)
	if _, ok := reg.Get("execute"); !ok {
		t.Error("expected execute tool registered for a sandbox backend")
	}
}

func TestBuildRegistryRegistersTaskForDispatcher(t *testing.T) {
	state := NewState()
	backend := NewMemoryBackend(state)
	model := &fakeModelClient{chunks: []*CompletionChunk{{Text: "ok", Done: true}}}
	dispatcher := NewSubAgentDispatcher(nil, true, 0, newTestParentConfig(model))
	reg, _ := BuildRegistry(state, backend, nil, dispatcher, nil, nil)
	if _, ok := reg.Get("task"); !ok {
		t.Error("expected task tool registered when dispatcher.Registered() is true")
	}
}

func TestBuildRegistryWrapsWithApprovalChecker(t *testing.T) {
	state := NewState()
	backend := NewMemoryBackend(state)
	policies := map[string]ApprovalPolicy{"write": {Mode: ApprovalAlways}}
	onApproval := func(ctx context.Context, approvalID, toolCallID, toolName string, args json.RawMessage) bool {
		return false
	}
	checker := NewApprovalChecker(policies, onApproval, nil)
	reg, raw := BuildRegistry(state, backend, nil, nil, checker, nil)

	res, err := reg.Execute(context.Background(), "write", json.RawMessage(`{"path":"a.txt","content":"x"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Content != "[denied by user]" {
		t.Errorf("expected approval wrapping to deny write, got %+v", res)
	}

	rawRes, err := raw.Execute(context.Background(), "write", json.RawMessage(`{"path":"a.txt","content":"x"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if rawRes.IsError || rawRes.Content == "[denied by user]" {
		t.Errorf("expected raw registry to bypass approval and actually write, got %+v", rawRes)
	}
}

func TestBuildRegistryIncludesUserTools(t *testing.T) {
	state := NewState()
	backend := NewMemoryBackend(state)
	custom := &stubTool{name: "custom", result: &ToolExecResult{Content: "custom result"}}
	reg, _ := BuildRegistry(state, backend, []Tool{custom}, nil, nil, nil)

	res, err := reg.Execute(context.Background(), "custom", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Content != "custom result" {
		t.Errorf("Content = %q", res.Content)
	}
}
