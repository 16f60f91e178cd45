package deepagent

import (
	"context"
	"encoding/json"
	"sync"
)

// ApprovalMode is the per-tool policy value from spec §4.5.
type ApprovalMode int

const (
	ApprovalNever ApprovalMode = iota
	ApprovalAlways
	ApprovalDynamic
)

// ApprovalPolicy maps a tool name to its mode; DynamicFn is consulted
// only when Mode == ApprovalDynamic.
type ApprovalPolicy struct {
	Mode      ApprovalMode
	DynamicFn func(args json.RawMessage) bool
}

// ApprovalRequestFn is the caller-provided awaitable spec §4.5 calls
// `onApprovalRequest`.
type ApprovalRequestFn func(ctx context.Context, approvalID, toolCallID, toolName string, args json.RawMessage) bool

// ApprovalChecker wraps tools with approval interception, grounded on
// the teacher's internal/agent/approval.go ApprovalChecker, narrowed
// from its richer denylist/allowlist/skillTools layering to spec.md's
// flat {always|never|dynamic(args)} policy map.
type ApprovalChecker struct {
	mu       sync.RWMutex
	policies map[string]ApprovalPolicy
	onApproval ApprovalRequestFn
	emitter  *EventEmitter
	pending  map[string]PendingApproval
}

// PendingApproval is the interrupt payload persisted to a checkpoint
// when a tool call pauses for approval (spec §3 Checkpoint.interrupt).
type PendingApproval struct {
	ApprovalID string
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
}

// NewApprovalChecker returns a checker with the given per-tool policies.
func NewApprovalChecker(policies map[string]ApprovalPolicy, onApproval ApprovalRequestFn, emitter *EventEmitter) *ApprovalChecker {
	return &ApprovalChecker{
		policies:   policies,
		onApproval: onApproval,
		emitter:    emitter,
		pending:    make(map[string]PendingApproval),
	}
}

// requiresPause evaluates the policy for toolName against args.
func (c *ApprovalChecker) requiresPause(toolName string, args json.RawMessage) bool {
	c.mu.RLock()
	policy, ok := c.policies[toolName]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	switch policy.Mode {
	case ApprovalAlways:
		return true
	case ApprovalDynamic:
		if policy.DynamicFn == nil {
			return false
		}
		return policy.DynamicFn(args)
	default:
		return false
	}
}

// Wrap returns a Tool that performs the approval dance in spec §4.5
// before invoking inner.Execute. The engine stashes the current
// tool-call-id into ctx (see withToolCallID in engine.go) before calling
// Execute, so the wrapped tool can attribute approval-requested events
// and pending-interrupt records to the right call without plumbing an
// extra parameter through the Tool interface itself.
func (c *ApprovalChecker) Wrap(inner Tool) Tool {
	return &approvalTool{inner: inner, checker: c}
}

type approvalTool struct {
	inner   Tool
	checker *ApprovalChecker
}

func (t *approvalTool) Name() string           { return t.inner.Name() }
func (t *approvalTool) Description() string    { return t.inner.Description() }
func (t *approvalTool) Schema() json.RawMessage { return t.inner.Schema() }

func (t *approvalTool) Execute(ctx context.Context, params json.RawMessage) (*ToolExecResult, error) {
	return t.checker.ExecuteWithApproval(ctx, t.inner, toolCallIDFromContext(ctx), params)
}

type toolCallIDKeyType struct{}

var toolCallIDKey = toolCallIDKeyType{}

// withToolCallID attaches the current tool-call id to ctx for the
// duration of one tool execution.
func withToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, id)
}

func toolCallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(toolCallIDKey).(string)
	return id
}

// ExecuteWithApproval runs the approval decision procedure for one tool
// call, mirroring spec §4.5 exactly:
//   - false/unspecified: run immediately.
//   - true: always pause.
//   - dynamic predicate: evaluate against args; pause iff true.
//
// On pause: mint an approvalId, emit approval-requested, await the
// caller's onApprovalRequest. Approved -> execute. Denied (or no
// onApprovalRequest supplied) -> "[denied by user]" tool-result and a
// recorded PendingApproval for the engine to persist into the next
// checkpoint's interrupt field.
func (c *ApprovalChecker) ExecuteWithApproval(ctx context.Context, inner Tool, toolCallID string, params json.RawMessage) (*ToolExecResult, error) {
	if !c.requiresPause(inner.Name(), params) {
		return inner.Execute(ctx, params)
	}

	approvalID := newApprovalID()
	if c.emitter != nil {
		c.emitter.ApprovalRequested(approvalID, toolCallID, inner.Name(), string(params))
	}

	approved := false
	if c.onApproval != nil {
		approved = c.onApproval(ctx, approvalID, toolCallID, inner.Name(), params)
	}

	if c.emitter != nil {
		c.emitter.ApprovalResponse(approvalID, approved)
	}

	if approved {
		c.mu.Lock()
		delete(c.pending, approvalID)
		c.mu.Unlock()
		return inner.Execute(ctx, params)
	}

	c.mu.Lock()
	c.pending[approvalID] = PendingApproval{ApprovalID: approvalID, ToolCallID: toolCallID, ToolName: inner.Name(), Args: params}
	c.mu.Unlock()
	return &ToolExecResult{Content: "[denied by user]", IsError: false}, nil
}

// Seed pre-populates the pending set with an interrupt carried over from a
// loaded checkpoint, so a fresh checker (one is constructed per run) still
// reports it via Pending until a matching resume decision resolves it.
func (c *ApprovalChecker) Seed(p PendingApproval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[p.ApprovalID] = p
}

// Resolve clears a pending approval whose approvalId matches decision,
// per spec §4.5 Resume: "clearing the interrupt field iff a matching
// decision is found".
func (c *ApprovalChecker) Resolve(approvalID string, approve bool) (PendingApproval, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[approvalID]
	if ok {
		delete(c.pending, approvalID)
	}
	return p, ok
}

// Pending returns the current set of unresolved approvals, used by the
// engine to populate Checkpoint.Interrupt.
func (c *ApprovalChecker) Pending() []PendingApproval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PendingApproval, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	return out
}
