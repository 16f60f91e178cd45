package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry manages the assembled tool set for one invocation,
// grounded on the teacher's internal/agent/tool_registry.go: a
// mutex-guarded map keyed by tool name, thread-safe Register/Get/Execute.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register adds tool, replacing any existing tool with the same name.
// The tool's declared Schema() is compiled eagerly so Execute-time
// validation never pays a recompilation cost; a tool with an invalid
// schema is still registered (validation is skipped for it) since
// spec.md treats tool contracts as a collaborator's responsibility, not
// a construction-time hard failure.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	if compiled, err := compileSchema(tool.Schema()); err == nil {
		r.schema[tool.Name()] = compiled
	} else {
		delete(r.schema, tool.Name())
	}
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytesReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute validates params against the tool's declared schema (when
// available) and runs it, grounded on the teacher's ToolRegistry.Execute
// not-found/size-limit handling, adapted to also perform jsonschema
// validation before dispatch.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolExecResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schema[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolExecResult{Content: "tool not found: " + name, IsError: true}, nil
	}
	if schema != nil {
		var v any
		if err := json.Unmarshal(params, &v); err == nil {
			if err := schema.Validate(v); err != nil {
				return &ToolExecResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
			}
		}
	}
	return tool.Execute(ctx, params)
}

// AsModelTools returns every registered tool, for passing to a
// ModelClient's CompletionRequest.Tools, grounded on the teacher's
// ToolRegistry.AsLLMTools.
func (r *ToolRegistry) AsModelTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// bytesReader adapts a []byte to the io.Reader the jsonschema compiler
// expects for AddResource.
func bytesReader(b []byte) *byteReader { return &byteReader{b: b} }

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, errEOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

var errEOF = fmt.Errorf("EOF")

// BuildRegistry assembles the tool set for one invocation per spec §2
// item 3: built-ins (todos, filesystem, optional execute, optional
// sub-agent dispatch) plus user tools, then wraps every tool with
// approval interception where configured.
//
// It returns both the wrapped registry (used for ordinary per-step
// dispatch, approval-checked) and the raw, unwrapped registry -- the
// engine uses the latter to re-invoke a tool directly on an approved
// resume decision, without going back through the approval dance for a
// decision the caller has already made (spec §4.5 "Resume").
func BuildRegistry(state *State, backend Backend, userTools []Tool, dispatcher *SubAgentDispatcher, checker *ApprovalChecker, emitter *EventEmitter) (wrapped, raw *ToolRegistry) {
	reg := NewToolRegistry()
	reg.Register(&writeTodosTool{state: state, emitter: emitter})
	reg.Register(&readTodosTool{state: state})
	reg.Register(&lsTool{backend: backend, emitter: emitter})
	reg.Register(&readFileTool{backend: backend, emitter: emitter})
	reg.Register(&writeFileTool{backend: backend, emitter: emitter})
	reg.Register(&editFileTool{backend: backend, emitter: emitter})
	reg.Register(&globTool{backend: backend, emitter: emitter})
	reg.Register(&grepTool{backend: backend, emitter: emitter})

	if ex, ok := AsExecutor(backend); ok {
		reg.Register(&executeTool{executor: ex, emitter: emitter})
	}
	if dispatcher != nil && dispatcher.Registered() {
		reg.Register(&taskTool{dispatcher: dispatcher, emitter: emitter, state: state})
	}
	for _, t := range userTools {
		reg.Register(t)
	}

	if checker != nil {
		wrappedReg := NewToolRegistry()
		for _, t := range reg.AsModelTools() {
			wrappedReg.Register(checker.Wrap(t))
		}
		return wrappedReg, reg
	}
	return reg, reg
}
