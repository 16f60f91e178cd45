package deepagent

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType discriminates the union enumerated in spec §3.
type EventType string

const (
	EventText              EventType = "text"
	EventStepStart         EventType = "step-start"
	EventStepFinish        EventType = "step-finish"
	EventToolCall          EventType = "tool-call"
	EventToolResult        EventType = "tool-result"
	EventTodosChanged      EventType = "todos-changed"
	EventFileWriteStart    EventType = "file-write-start"
	EventFileWritten       EventType = "file-written"
	EventFileEdited        EventType = "file-edited"
	EventFileRead          EventType = "file-read"
	EventLs                EventType = "ls"
	EventGlob              EventType = "glob"
	EventGrep              EventType = "grep"
	EventExecuteStart      EventType = "execute-start"
	EventExecuteFinish     EventType = "execute-finish"
	EventWebSearchStart    EventType = "web-search-start"
	EventWebSearchFinish   EventType = "web-search-finish"
	EventHTTPRequestStart  EventType = "http-request-start"
	EventHTTPRequestFinish EventType = "http-request-finish"
	EventFetchURLStart     EventType = "fetch-url-start"
	EventFetchURLFinish    EventType = "fetch-url-finish"
	EventSubagentStart     EventType = "subagent-start"
	EventSubagentFinish    EventType = "subagent-finish"
	EventTextSegment       EventType = "text-segment"
	EventUserMessage       EventType = "user-message"
	EventApprovalRequested EventType = "approval-requested"
	EventApprovalResponse  EventType = "approval-response"
	EventCheckpointSaved   EventType = "checkpoint-saved"
	EventCheckpointLoaded  EventType = "checkpoint-loaded"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// Event is a single entry in the engine's event stream. Exactly the
// fields relevant to Type are populated; every event carries enough data
// to reconstruct a UI timeline without inspecting State directly.
type Event struct {
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Sequence uint64    `json:"seq"`
	Step     int       `json:"step,omitempty"`

	Text string `json:"text,omitempty"`

	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	Path      string `json:"path,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	Command string `json:"command,omitempty"`

	SubAgentName string `json:"subagent_name,omitempty"`
	SubAgentTask string `json:"subagent_task,omitempty"`

	ApprovalID string `json:"approval_id,omitempty"`
	Approved   bool   `json:"approved,omitempty"`

	ThreadID string `json:"thread_id,omitempty"`

	State    *State    `json:"state,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Output   any       `json:"output,omitempty"`

	Err       error  `json:"-"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// EventQueue is the single-writer-per-tick buffer described in spec §4.2:
// tool `execute` functions and the engine enqueue events; the engine
// drains it between model chunks, preserving per-tool causal order.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends an event; safe to call from a tool's Execute goroutine
// while the engine is between drains (tool execution is still serialized
// by the engine, but Push itself is defensively locked).
func (q *EventQueue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// Drain returns and clears all currently buffered events, in causal
// (insertion) order.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// EventEmitter constructs Events with a monotonic Sequence, mirroring the
// teacher's EventEmitter (internal/agent/event_emitter.go): an atomic
// counter guarantees ordering across goroutines even though, per the
// concurrency model, only one producer is actually active at a time.
type EventEmitter struct {
	seq   uint64
	queue *EventQueue
	sink  func(Event)
}

// NewEventEmitter creates an emitter backed by queue (if non-nil) and/or
// sink (if non-nil). When queue is present, it is the sole path to the
// consumer: the engine drains it and forwards drained events to sink
// itself (spec §4.2's single-writer-per-tick buffer), so emit never also
// calls sink directly -- doing both would deliver every event twice.
// sink-only mode (queue == nil) exists for callers that don't need
// buffering, e.g. tests observing a tool's emitted events directly.
func NewEventEmitter(queue *EventQueue, sink func(Event)) *EventEmitter {
	return &EventEmitter{queue: queue, sink: sink}
}

func (e *EventEmitter) nextSeq() uint64 {
	return atomic.AddUint64(&e.seq, 1)
}

func (e *EventEmitter) emit(ev Event) {
	ev.Sequence = e.nextSeq()
	ev.Time = time.Now()
	if e.queue != nil {
		e.queue.Push(ev)
		return
	}
	if e.sink != nil {
		e.sink(ev)
	}
}

// Forward re-emits ev -- typically produced by a child engine's own run --
// into this emitter under a freshly assigned sequence number and
// timestamp, preserving the order it was produced in (spec §4.4, §8
// scenario 5: a sub-agent's events appear between its
// subagent-start/subagent-finish brackets in the parent's stream).
func (e *EventEmitter) Forward(ev Event) {
	e.emit(ev)
}

func (e *EventEmitter) StepStart(step int) {
	e.emit(Event{Type: EventStepStart, Step: step})
}

func (e *EventEmitter) StepFinish(step int, toolCalls []ToolCall) {
	e.emit(Event{Type: EventStepFinish, Step: step, ToolCalls: toolCalls})
}

func (e *EventEmitter) TextDelta(text string) {
	e.emit(Event{Type: EventText, Text: text})
}

func (e *EventEmitter) ToolCallEvent(id, name, args string) {
	e.emit(Event{Type: EventToolCall, ToolCallID: id, ToolName: name, ToolArgs: args})
}

func (e *EventEmitter) ToolResultEvent(id, name, result string, isError bool) {
	e.emit(Event{Type: EventToolResult, ToolCallID: id, ToolName: name, ToolResult: result, IsError: isError})
}

func (e *EventEmitter) TodosChanged() {
	e.emit(Event{Type: EventTodosChanged})
}

func (e *EventEmitter) FileEvent(typ EventType, path string) {
	e.emit(Event{Type: typ, Path: path})
}

func (e *EventEmitter) Ls(path string) {
	e.emit(Event{Type: EventLs, Path: path})
}

func (e *EventEmitter) Glob(pattern string) {
	e.emit(Event{Type: EventGlob, Pattern: pattern})
}

func (e *EventEmitter) Grep(pattern string) {
	e.emit(Event{Type: EventGrep, Pattern: pattern})
}

func (e *EventEmitter) ExecuteStart(command string) {
	e.emit(Event{Type: EventExecuteStart, Command: command})
}

func (e *EventEmitter) ExecuteFinish(command string, truncated bool) {
	e.emit(Event{Type: EventExecuteFinish, Command: command, Truncated: truncated})
}

func (e *EventEmitter) WebSearchStart(query string) {
	e.emit(Event{Type: EventWebSearchStart, Text: query})
}

func (e *EventEmitter) WebSearchFinish(query string) {
	e.emit(Event{Type: EventWebSearchFinish, Text: query})
}

func (e *EventEmitter) HTTPRequestStart(method, url string) {
	e.emit(Event{Type: EventHTTPRequestStart, Command: method, Path: url})
}

func (e *EventEmitter) HTTPRequestFinish(method, url string) {
	e.emit(Event{Type: EventHTTPRequestFinish, Command: method, Path: url})
}

func (e *EventEmitter) FetchURLStart(url string) {
	e.emit(Event{Type: EventFetchURLStart, Path: url})
}

func (e *EventEmitter) FetchURLFinish(url string, truncated bool) {
	e.emit(Event{Type: EventFetchURLFinish, Path: url, Truncated: truncated})
}

func (e *EventEmitter) SubAgentStart(name, task string) {
	e.emit(Event{Type: EventSubagentStart, SubAgentName: name, SubAgentTask: task})
}

func (e *EventEmitter) SubAgentFinish(name string, isError bool) {
	e.emit(Event{Type: EventSubagentFinish, SubAgentName: name, IsError: isError})
}

func (e *EventEmitter) ApprovalRequested(approvalID, toolCallID, toolName, args string) {
	e.emit(Event{Type: EventApprovalRequested, ApprovalID: approvalID, ToolCallID: toolCallID, ToolName: toolName, ToolArgs: args})
}

func (e *EventEmitter) ApprovalResponse(approvalID string, approved bool) {
	e.emit(Event{Type: EventApprovalResponse, ApprovalID: approvalID, Approved: approved})
}

func (e *EventEmitter) CheckpointSaved(threadID string, step int) {
	e.emit(Event{Type: EventCheckpointSaved, ThreadID: threadID, Step: step})
}

func (e *EventEmitter) CheckpointLoaded(threadID string, step int) {
	e.emit(Event{Type: EventCheckpointLoaded, ThreadID: threadID, Step: step})
}

func (e *EventEmitter) Done(state *State, text string, messages []Message, output any) {
	e.emit(Event{Type: EventDone, State: state, Text: text, Messages: messages, Output: output})
}

func (e *EventEmitter) Error(err error, kind ErrorKind) {
	e.emit(Event{Type: EventError, Err: err, ErrorKind: string(kind), Text: err.Error()})
}
