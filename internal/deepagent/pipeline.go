package deepagent

import (
	"context"
	"fmt"
)

// SummarizationConfig controls the summarizer (spec §4.3 item 3, §6
// `summarization`).
type SummarizationConfig struct {
	Enabled       bool
	TokenThreshold int // default 170000
	KeepMessages  int // default 6
	Model         ModelClient
}

func (c SummarizationConfig) sanitized() SummarizationConfig {
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 170000
	}
	if c.KeepMessages <= 0 {
		c.KeepMessages = 6
	}
	return c
}

// estimateTokens is the ≈chars/4 heuristic spec §4.3 names explicitly.
func estimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Input)
		}
		for _, tr := range m.ToolResults {
			chars += len(tr.Content)
		}
	}
	return chars / 4
}

// patchDanglingToolCalls enforces the tool-call pairing invariant (spec
// §3): every assistant tool-call id must be followed, before the next
// assistant message, by a tool-result message with the same id. Any
// missing pairing gets a synthetic "[cancelled]" tool-result inserted in
// place, grounded on the teacher's loop.go message-assembly helpers.
func patchDanglingToolCalls(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for i, m := range messages {
		out = append(out, m)
		if m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		answered := map[string]bool{}
		for j := i + 1; j < len(messages); j++ {
			if messages[j].Role == RoleAssistant {
				break
			}
			for _, tr := range messages[j].ToolResults {
				answered[tr.ToolCallID] = true
			}
		}
		var missing []ToolResultMsg
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				missing = append(missing, ToolResultMsg{ToolCallID: tc.ID, Content: "[cancelled]"})
			}
		}
		if len(missing) > 0 {
			out = append(out, Message{Role: RoleTool, ToolResults: missing})
		}
	}
	return out
}

// replaceToolResult overwrites the content/isError of the tool-result
// entry bearing toolCallID in place, searching every role=tool message.
// Used when a resumed run re-executes a previously paused tool call, so
// the approved result replaces the earlier "[denied by user]" entry in
// place instead of appending a second tool-result for the same call id.
func replaceToolResult(messages []Message, toolCallID, content string, isError bool) bool {
	for i := range messages {
		if messages[i].Role != RoleTool {
			continue
		}
		for j := range messages[i].ToolResults {
			if messages[i].ToolResults[j].ToolCallID == toolCallID {
				messages[i].ToolResults[j].Content = content
				messages[i].ToolResults[j].IsError = isError
				return true
			}
		}
	}
	return false
}

// pairsComplete reports whether every assistant tool-call in messages[:n]
// already has its matching tool-result within messages[:n], used to find
// a summarization cut point that never splits a tool-call from its result.
func pairsComplete(messages []Message, n int) bool {
	answered := map[string]bool{}
	for i := 0; i < n; i++ {
		for _, tr := range messages[i].ToolResults {
			answered[tr.ToolCallID] = true
		}
	}
	for i := 0; i < n; i++ {
		if messages[i].Role != RoleAssistant {
			continue
		}
		for _, tc := range messages[i].ToolCalls {
			if !answered[tc.ID] {
				return false
			}
		}
	}
	return true
}

// summarizationBoundary finds the first assistant-message boundary at or
// after len(messages)-keepMessages such that both the prefix and the
// tail have complete tool-call/tool-result pairs (spec §3 "Invariant
// (summarization boundary)").
func summarizationBoundary(messages []Message, keepMessages int) int {
	start := len(messages) - keepMessages
	if start < 0 {
		start = 0
	}
	for i := start; i <= len(messages); i++ {
		if i < len(messages) && messages[i].Role != RoleAssistant {
			continue
		}
		if pairsComplete(messages, i) {
			return i
		}
	}
	return len(messages)
}

const summaryMarkerPrefix = "<summary>"
const summaryMarkerSuffix = "</summary>"

// summarize replaces messages[:boundary] with one synthetic assistant
// message produced by a dedicated model call, per spec §4.3 item 3: the
// summarization call MUST receive the same telemetry/provider passthrough
// options as the main loop (carried here via req, built by the caller
// from the engine's own CompletionRequest template).
func summarize(ctx context.Context, model ModelClient, prefix []Message, reqTemplate CompletionRequest) (Message, error) {
	req := reqTemplate
	req.Messages = append([]Message{
		{Role: RoleUser, Content: "Summarize the following conversation concisely, preserving any facts needed to continue the task."},
	}, prefix...)
	req.Tools = nil
	req.OutputSchema = nil

	chunks, err := model.Complete(ctx, &req)
	if err != nil {
		return Message{}, fmt.Errorf("summarization model call: %w", err)
	}
	text := ""
	for chunk := range chunks {
		if chunk.Error != nil {
			return Message{}, chunk.Error
		}
		text += chunk.Text
		if chunk.Done {
			break
		}
	}
	content := summaryMarkerPrefix + text + summaryMarkerSuffix
	return Message{Role: RoleAssistant, Content: content}, nil
}

// MessagePipeline implements spec §4.3: priority selection, patching,
// and (if enabled) summarization.
type MessagePipeline struct {
	Summarization SummarizationConfig
}

// pipelineResult carries the pipeline's output plus a flag for the
// immediate-done short circuit spec §4.3 item 1 describes.
type pipelineResult struct {
	Messages    []Message
	ImmediateDone bool
}

// Resolve runs the full pipeline over the caller-supplied inputs and any
// checkpoint history, per spec §4.3:
//  1. Priority: explicit messages > prompt (appended to checkpoint
//     history) > neither (no-op done if no resume target either).
//  2. Patch dangling tool-calls.
//  3. Summarize if enabled and over threshold.
func (p *MessagePipeline) Resolve(ctx context.Context, reqTemplate CompletionRequest, prompt string, explicitMessages []Message, checkpointHistory []Message, hasResumeTarget bool) (pipelineResult, error) {
	var messages []Message

	switch {
	case explicitMessages != nil && len(explicitMessages) == 0:
		// Empty array resets history (spec §9 open question: preserve
		// verbatim as a no-op done when nothing else is supplied).
		messages = nil
	case explicitMessages != nil:
		messages = explicitMessages
	case prompt != "":
		messages = append(append([]Message{}, checkpointHistory...), Message{Role: RoleUser, Content: prompt})
	default:
		messages = checkpointHistory
	}

	if len(messages) == 0 && !hasResumeTarget {
		return pipelineResult{ImmediateDone: true}, nil
	}

	messages = patchDanglingToolCalls(messages)

	cfg := p.Summarization.sanitized()
	if cfg.Enabled && cfg.Model != nil {
		if estimateTokens(messages) > cfg.TokenThreshold && len(messages) >= cfg.KeepMessages+2 {
			boundary := summarizationBoundary(messages, cfg.KeepMessages)
			if boundary > 0 && boundary < len(messages) {
				summary, err := summarize(ctx, cfg.Model, messages[:boundary], reqTemplate)
				if err != nil {
					// SummarizationError: skip summarization, continue with
					// full history (spec §7 table).
					return pipelineResult{Messages: messages}, nil
				}
				messages = append([]Message{summary}, messages[boundary:]...)
			}
		}
	}

	if len(messages) == 0 && !hasResumeTarget {
		return pipelineResult{ImmediateDone: true}, nil
	}
	return pipelineResult{Messages: messages}, nil
}
