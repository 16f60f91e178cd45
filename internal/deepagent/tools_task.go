package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
)

// taskTool is the "task" tool from spec §4.4: it spawns a sub-agent and
// returns its final assistant text, or its validated structured output as
// JSON when the sub-agent declares an output schema.
type taskTool struct {
	dispatcher *SubAgentDispatcher
	emitter    *EventEmitter
	state      *State
}

func (t *taskTool) Name() string { return "task" }
func (t *taskTool) Description() string {
	return "Delegate a task to a named sub-agent and return its final answer."
}

func (t *taskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agentName": {"type": "string"},
			"task": {"type": "string"}
		},
		"required": ["agentName", "task"]
	}`)
}

func (t *taskTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	var input struct {
		AgentName string `json:"agentName"`
		Task      string `json:"task"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &ToolExecResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	text, err := t.dispatcher.Dispatch(ctx, t.state, input.AgentName, input.Task, t.emitter)
	if err != nil {
		return &ToolExecResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolExecResult{Content: text}, nil
}
