package deepagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// writeTodosTool implements the built-in todo-list mutation tool. It
// replaces the entire todo list per call, mirroring the common deep-agent
// "write_todos" contract: the model re-submits its full plan each time it
// wants to update status.
type writeTodosTool struct {
	state   *State
	emitter *EventEmitter
}

func (t *writeTodosTool) Name() string { return "write_todos" }

func (t *writeTodosTool) Description() string {
	return "Replace the agent's todo list with the given items."
}

func (t *writeTodosTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"]}
					},
					"required": ["content", "status"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

func (t *writeTodosTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		Todos []struct {
			ID      string     `json:"id"`
			Content string     `json:"content"`
			Status  TodoStatus `json:"status"`
		} `json:"todos"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}

	items := make([]TodoItem, 0, len(input.Todos))
	for _, item := range input.Todos {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		items = append(items, TodoItem{ID: id, Content: item.Content, Status: item.Status})
	}
	t.state.Todos = items
	if t.emitter != nil {
		t.emitter.TodosChanged()
	}

	payload, _ := json.Marshal(map[string]any{"count": len(items)})
	return &ToolExecResult{Content: string(payload)}, nil
}

// readTodosTool lists the current todo state.
type readTodosTool struct {
	state *State
}

func (t *readTodosTool) Name() string        { return "read_todos" }
func (t *readTodosTool) Description() string { return "List the agent's current todo items." }

func (t *readTodosTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *readTodosTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	payload, err := json.Marshal(t.state.Todos)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolExecResult{Content: string(payload)}, nil
}
