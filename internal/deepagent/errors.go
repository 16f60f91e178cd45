package deepagent

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the fixed, parameterless conditions in the error
// taxonomy (spec §7). Parameterized conditions use EngineError instead.
var (
	ErrMaxSteps           = errors.New("deepagent: max steps reached")
	ErrNoModel            = errors.New("deepagent: no model configured")
	ErrCancelled          = errors.New("deepagent: run cancelled")
	ErrCheckpointNotFound = errors.New("deepagent: checkpoint not found")
	ErrNoInput            = errors.New("deepagent: no prompt, messages, resume, or threadId supplied")
)

// ErrorKind names one row of the spec §7 error taxonomy.
type ErrorKind string

const (
	KindConfig        ErrorKind = "ConfigError"
	KindInput         ErrorKind = "InputError"
	KindModel         ErrorKind = "ModelError"
	KindTool          ErrorKind = "ToolError"
	KindCancelled     ErrorKind = "CancelledError"
	KindApproval      ErrorKind = "ApprovalDenied"
	KindCheckpoint    ErrorKind = "CheckpointError"
	KindSummarization ErrorKind = "SummarizationError"
	KindEviction      ErrorKind = "EvictionError"
	KindUserCallback  ErrorKind = "UserCallbackError"
)

// EngineError is the engine's wrapped-error type, mirroring the teacher's
// ToolError/LoopError builder pattern so callers can use errors.Is/As.
type EngineError struct {
	Kind      ErrorKind
	ThreadID  string
	Step      int
	Message   string
	Cause     error
	Retriable bool
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("deepagent: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("deepagent: %s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// NewEngineError constructs an EngineError with the given kind and message.
func NewEngineError(kind ErrorKind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

func (e *EngineError) WithThreadID(id string) *EngineError {
	e.ThreadID = id
	return e
}

func (e *EngineError) WithStep(step int) *EngineError {
	e.Step = step
	return e
}

func (e *EngineError) WithRetriable(r bool) *EngineError {
	e.Retriable = r
	return e
}

// IsEngineError reports whether err wraps an *EngineError and returns it.
func IsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// classifyError performs best-effort string-pattern classification for
// errors surfaced by opaque ModelClient/Tool implementations that don't
// already return an *EngineError, matching the teacher's
// classifyToolError heuristic.
func classifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if ee, ok := IsEngineError(err); ok {
		return ee.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline"):
		return KindCancelled
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return KindTool
	case strings.Contains(msg, "schema"):
		return KindConfig
	default:
		return KindModel
	}
}
