package deepagent

import (
	"context"
	"encoding/json"
	"testing"
)

func TestWriteTodosToolReplacesState(t *testing.T) {
	state := NewState()
	var changed bool
	emitter := NewEventEmitter(nil, func(e Event) {
		if e.Type == EventTodosChanged {
			changed = true
		}
	})
	tool := &writeTodosTool{state: state, emitter: emitter}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"todos":[{"content":"write tests","status":"pending"}]}`))
	if err != nil || res.IsError {
		t.Fatalf("Execute = %+v, %v", res, err)
	}
	if len(state.Todos) != 1 || state.Todos[0].Content != "write tests" {
		t.Errorf("state.Todos = %+v", state.Todos)
	}
	if state.Todos[0].ID == "" {
		t.Error("expected a generated ID for todos without one")
	}
	if !changed {
		t.Error("expected TodosChanged event to fire")
	}
}

func TestWriteTodosToolPreservesGivenID(t *testing.T) {
	state := NewState()
	tool := &writeTodosTool{state: state}

	tool.Execute(context.Background(), json.RawMessage(`{"todos":[{"id":"fixed-1","content":"x","status":"pending"}]}`))
	if state.Todos[0].ID != "fixed-1" {
		t.Errorf("ID = %q, want %q", state.Todos[0].ID, "fixed-1")
	}
}

func TestWriteTodosToolInvalidParams(t *testing.T) {
	tool := &writeTodosTool{state: NewState()}
	res, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for invalid JSON")
	}
}

func TestReadTodosTool(t *testing.T) {
	state := NewState()
	state.Todos = append(state.Todos, TodoItem{ID: "1", Content: "x", Status: TodoPending})
	tool := &readTodosTool{state: state}

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil || res.IsError {
		t.Fatalf("Execute = %+v, %v", res, err)
	}
	var todos []TodoItem
	if err := json.Unmarshal([]byte(res.Content), &todos); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(todos) != 1 || todos[0].Content != "x" {
		t.Errorf("todos = %+v", todos)
	}
}
