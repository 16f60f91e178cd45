package deepagent

import (
	"context"
	"time"
)

// Interrupt is the pending-approval payload a Checkpoint carries while a
// run is paused (spec §3/§4.5).
type Interrupt struct {
	ApprovalID string          `json:"approval_id"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       []byte          `json:"args"`
}

// Checkpoint is the durable snapshot defined in spec §3: one record per
// ThreadID, Step cumulative across resumes.
type Checkpoint struct {
	ThreadID  string     `json:"thread_id"`
	Step      int        `json:"step"`
	Messages  []Message  `json:"messages"`
	State     *State     `json:"state"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CheckpointStore is the protocol consumed by the engine (spec §4.6):
// save must be durable before the engine emits checkpoint-saved; load
// returns the single latest checkpoint for a thread, or nil. The engine
// performs no locking across concurrent runs of the same threadId --
// that is the caller's responsibility (spec §4.6).
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
}
