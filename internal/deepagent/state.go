package deepagent

import "time"

// TodoStatus is the lifecycle state of a TodoItem.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoCancelled  TodoStatus = "cancelled"
)

// TodoItem is a single planning entry tracked by the agent.
type TodoItem struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// FileData is the content and timestamps of one virtual file.
type FileData struct {
	Lines      []string  `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Content joins the file's lines with newlines, the canonical textual form.
func (f FileData) Content() string {
	out := ""
	for i, line := range f.Lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

// State is the shared, mutable aggregate owned by one invocation of the
// engine. Tools within that invocation receive a pointer to it and mutate
// it directly; there is no locking because tool executions are strictly
// serialized by the engine's single-threaded step loop (see engine.go).
//
// State is destroyed at invocation end unless the caller retains the
// pointer it supplied to generateWithState/getAgent.
type State struct {
	Todos []TodoItem          `json:"todos"`
	Files map[string]FileData `json:"files"`
}

// NewState returns an empty State ready for a fresh invocation.
func NewState() *State {
	return &State{
		Todos: []TodoItem{},
		Files: map[string]FileData{},
	}
}

// Partition derives the state for a sub-agent per spec §4.4: todos and
// messages start fresh, files is the SAME map (shared by reference) so
// writes from the sub-agent are visible to the parent and vice versa.
func (s *State) Partition() *State {
	if s == nil {
		return NewState()
	}
	return &State{
		Todos: []TodoItem{},
		Files: s.Files,
	}
}

// CloneTodos returns a defensive copy of the todo list, used when emitting
// events or checkpoints so later mutation doesn't retroactively change
// already-emitted data.
func (s *State) CloneTodos() []TodoItem {
	if s == nil {
		return nil
	}
	out := make([]TodoItem, len(s.Todos))
	copy(out, s.Todos)
	return out
}
