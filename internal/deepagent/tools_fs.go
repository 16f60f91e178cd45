package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// lsTool lists a directory via the active Backend.
type lsTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *lsTool) Name() string        { return "ls" }
func (t *lsTool) Description() string { return "List files under a path in the workspace." }

func (t *lsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "Directory path (default: root)."}}
	}`)
}

func (t *lsTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(params, &input)
	if t.emitter != nil {
		t.emitter.Ls(input.Path)
	}
	entries, err := t.backend.LsInfo(ctx, input.Path)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	payload, _ := json.Marshal(entries)
	return &ToolExecResult{Content: string(payload)}, nil
}

// readFileTool reads a range of lines from a file via the Backend.
type readFileTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *readFileTool) Name() string        { return "read" }
func (t *readFileTool) Description() string { return "Read a file's contents from the workspace." }

func (t *readFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"offset": {"type": "integer"},
			"max_lines": {"type": "integer"}
		},
		"required": ["path"]
	}`)
}

func (t *readFileTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int    `json:"offset"`
		MaxLines int    `json:"max_lines"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return &ToolExecResult{Content: "path is required", IsError: true}, nil
	}
	content, truncated, err := t.backend.Read(ctx, input.Path, input.Offset, input.MaxLines)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.FileEvent(EventFileRead, input.Path)
	}
	payload, _ := json.Marshal(map[string]any{
		"path": input.Path, "content": content, "offset": input.Offset, "truncated": truncated,
	})
	return &ToolExecResult{Content: string(payload)}, nil
}

// writeFileTool writes file contents via the Backend.
type writeFileTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *writeFileTool) Name() string { return "write" }
func (t *writeFileTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

func (t *writeFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"},
			"append": {"type": "boolean"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *writeFileTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return &ToolExecResult{Content: "path is required", IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.FileEvent(EventFileWriteStart, input.Path)
	}
	n, err := t.backend.Write(ctx, input.Path, input.Content, input.Append)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.FileEvent(EventFileWritten, input.Path)
	}
	payload, _ := json.Marshal(map[string]any{"path": input.Path, "bytes_written": n, "append": input.Append})
	return &ToolExecResult{Content: string(payload)}, nil
}

// editFileTool applies old_text->new_text edits via the Backend.
type editFileTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *editFileTool) Name() string        { return "edit" }
func (t *editFileTool) Description() string { return "Apply find/replace edits to a file." }

func (t *editFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_text": {"type": "string"},
						"new_text": {"type": "string"},
						"replace_all": {"type": "boolean"}
					},
					"required": ["old_text", "new_text"]
				}
			}
		},
		"required": ["path", "edits"]
	}`)
}

func (t *editFileTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Path  string `json:"path"`
		Edits []struct {
			OldText    string `json:"old_text"`
			NewText    string `json:"new_text"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	edits := make([]Edit, 0, len(input.Edits))
	for _, e := range input.Edits {
		edits = append(edits, Edit{OldText: e.OldText, NewText: e.NewText, ReplaceAll: e.ReplaceAll})
	}
	n, err := t.backend.Edit(ctx, input.Path, edits)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.FileEvent(EventFileEdited, input.Path)
	}
	payload, _ := json.Marshal(map[string]any{"path": input.Path, "replacements": n})
	return &ToolExecResult{Content: string(payload)}, nil
}

// globTool matches filenames against a glob pattern via the Backend.
type globTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *globTool) Name() string        { return "glob" }
func (t *globTool) Description() string { return "Find files matching a glob pattern." }

func (t *globTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"pattern": {"type": "string"}}, "required": ["pattern"]}`)
}

func (t *globTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.Glob(input.Pattern)
	}
	matches, err := t.backend.GlobInfo(ctx, input.Pattern)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	payload, _ := json.Marshal(matches)
	return &ToolExecResult{Content: string(payload)}, nil
}

// grepTool searches file contents for a pattern via the Backend.
type grepTool struct {
	backend Backend
	emitter *EventEmitter
}

func (t *grepTool) Name() string        { return "grep" }
func (t *grepTool) Description() string { return "Search file contents for a regular expression." }

func (t *grepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"pattern": {"type": "string"}, "path": {"type": "string"}},
		"required": ["pattern"]
	}`)
}

func (t *grepTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.Grep(input.Pattern)
	}
	matches, err := t.backend.GrepRaw(ctx, input.Pattern, input.Path)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	payload, _ := json.Marshal(matches)
	return &ToolExecResult{Content: string(payload)}, nil
}

// executeTool runs a shell command through a sandbox Backend's Executor
// facet, registered only when the active Backend implements Executor
// (spec §2 "optional extension adds {execute(command), id}").
type executeTool struct {
	executor Executor
	emitter  *EventEmitter
}

func (t *executeTool) Name() string        { return "execute" }
func (t *executeTool) Description() string { return "Run a shell command in the sandbox." }

func (t *executeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"timeout_seconds": {"type": "integer"}
		},
		"required": ["command"]
	}`)
}

func (t *executeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if t.emitter != nil {
		t.emitter.ExecuteStart(input.Command)
	}
	stdout, stderr, exitCode, truncated, err := t.executor.Execute(ctx, input.Command, input.TimeoutSeconds)
	if t.emitter != nil {
		t.emitter.ExecuteFinish(input.Command, truncated)
	}
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	payload, _ := json.Marshal(map[string]any{
		"stdout": stdout, "stderr": stderr, "exit_code": exitCode, "truncated": truncated,
	})
	return &ToolExecResult{Content: string(payload), IsError: exitCode != 0}, nil
}
