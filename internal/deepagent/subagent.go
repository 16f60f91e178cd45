package deepagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// SubAgentSpec is one declared sub-agent available to the "task" tool.
type SubAgentSpec struct {
	Name         string
	Description  string
	SystemPrompt string
	Tools        []Tool
	OutputSchema []byte
}

// SubAgentDispatcher runs a nested engine per spec §4.4, grounded on the
// teacher's internal/tools/subagent/spawn.go Manager: a concurrency cap
// enforced with an atomic counter, state partitioning via State.Partition.
type SubAgentDispatcher struct {
	specs         map[string]SubAgentSpec
	includeGeneral bool
	maxActive     int64
	activeCount   int64
	maxSteps      int
	newEngine     func(cfg EngineConfig) *Engine
	parentConfig  EngineConfig
}

// NewSubAgentDispatcher returns a dispatcher that spawns child engines
// using parentConfig as a base, overridden per spec's merge rule
// (parent advanced options first, sub-agent's layered on top).
func NewSubAgentDispatcher(specs []SubAgentSpec, includeGeneral bool, maxActive int, parentConfig EngineConfig) *SubAgentDispatcher {
	if maxActive <= 0 {
		maxActive = 5
	}
	m := make(map[string]SubAgentSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return &SubAgentDispatcher{
		specs:          m,
		includeGeneral: includeGeneral,
		maxActive:      int64(maxActive),
		maxSteps:       50, // spec §4.4 default sub-agent step budget
		parentConfig:   parentConfig,
	}
}

// Active returns the count of currently running sub-agents.
func (d *SubAgentDispatcher) Active() int64 {
	return atomic.LoadInt64(&d.activeCount)
}

// Registered reports whether the dispatcher should be wired into the
// tool registry at all: only when a general-purpose agent is enabled or
// at least one sub-agent is declared (spec §4.4 first sentence).
func (d *SubAgentDispatcher) Registered() bool {
	return d.includeGeneral || len(d.specs) > 0
}

// Dispatch spawns a sub-agent run and returns its final assistant text
// (or validated structured output, if the sub-agent declares a schema).
// State partitioning: fresh todos/messages, files shared by reference
// with parent (spec §4.4 "State partitioning").
func (d *SubAgentDispatcher) Dispatch(ctx context.Context, parentState *State, agentName, task string, emitter *EventEmitter) (string, error) {
	if atomic.AddInt64(&d.activeCount, 1) > d.maxActive {
		atomic.AddInt64(&d.activeCount, -1)
		return "", fmt.Errorf("too many concurrent sub-agents (max %d)", d.maxActive)
	}
	defer atomic.AddInt64(&d.activeCount, -1)

	spec, known := d.specs[agentName]
	if !known && !d.includeGeneral {
		return "", fmt.Errorf("unknown sub-agent: %s", agentName)
	}
	if !known {
		spec = SubAgentSpec{Name: "general-purpose", Description: "General-purpose sub-agent."}
	}

	if emitter != nil {
		emitter.SubAgentStart(agentName, task)
	}

	childState := parentState.Partition()
	childConfig := d.parentConfig
	childConfig.SystemPrompt = spec.SystemPrompt
	childConfig.MaxSteps = d.maxSteps
	childConfig.UserTools = spec.Tools
	childConfig.LoopControl = LoopControl{} // not inherited, spec §4.4 "Isolation & inheritance"
	childConfig.ThreadID = ""               // sub-agent runs are not independently checkpointed
	childConfig.SubAgents = nil             // sub-agents don't recursively get their own dispatcher by default
	if len(spec.OutputSchema) > 0 {
		childConfig.Output = &OutputSpec{Schema: spec.OutputSchema}
	}

	engine := NewEngine(childConfig)
	// The child's own event stream (tool-call/tool-result/file-write/
	// todos-changed/etc.) must surface in the parent's stream between the
	// subagent-start/-finish brackets (spec §4.4, §8 scenario 5) -- relay
	// every child event into the parent's emitter rather than discarding it.
	forward := func(Event) {}
	if emitter != nil {
		forward = emitter.Forward
	}
	opts := GenerateOptions{Prompt: task, State: childState, MaxSteps: d.maxSteps}
	result, err := engine.StreamWithCallback(ctx, opts, forward)

	if emitter != nil {
		emitter.SubAgentFinish(agentName, err != nil)
	}
	if err != nil {
		return "", err
	}
	if len(spec.OutputSchema) > 0 {
		if result.Output == nil {
			return "", fmt.Errorf("sub-agent %s: output does not match its schema", agentName)
		}
		out, merr := json.Marshal(result.Output)
		if merr != nil {
			return "", merr
		}
		return string(out), nil
	}
	return result.Text, nil
}

// newApprovalID mints a fresh approval request identifier (shared helper
// so both the dispatcher and the approval layer format ids the same way).
func newApprovalID() string { return uuid.NewString() }
