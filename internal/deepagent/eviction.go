package deepagent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// toolResultEvictionSanitizer keeps only the character set spec §4.3
// item 4 allows in an eviction filename; everything else becomes "_".
var toolResultEvictionSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const maxEvictionNameLen = 128

// sanitizeToolCallID turns an arbitrary tool-call id into a safe file
// name component, clipped to 128 characters per spec §4.3 item 4.
func sanitizeToolCallID(id string) string {
	s := toolResultEvictionSanitizer.ReplaceAllString(id, "_")
	if len(s) > maxEvictionNameLen {
		s = s[:maxEvictionNameLen]
	}
	if s == "" {
		s = "result"
	}
	return s
}

// Evictor moves oversized tool results out of the live message history
// and into backend-addressable files, grounded on the teacher's
// internal/agent/compaction.go oversized-output handling, generalized
// here to write through the active Backend rather than a fixed disk
// path.
type Evictor struct {
	Backend        Backend
	ThresholdBytes int // default 10000
}

func (e *Evictor) threshold() int {
	if e.ThresholdBytes <= 0 {
		return 10000
	}
	return e.ThresholdBytes
}

// EvictIfOversized writes content to
// "/tool-results/<sanitized-toolCallId>.txt" via the backend and returns
// a short descriptor to store in the message history in its place, when
// content exceeds the threshold. It returns content unchanged (ok=false)
// otherwise.
func (e *Evictor) EvictIfOversized(ctx context.Context, toolCallID, content string) (descriptor string, ok bool, err error) {
	if len(content) <= e.threshold() {
		return content, false, nil
	}
	path := fmt.Sprintf("/tool-results/%s.txt", sanitizeToolCallID(toolCallID))
	if _, err := e.Backend.Write(ctx, path, content, false); err != nil {
		return "", false, fmt.Errorf("evict tool result: %w", err)
	}
	descriptor = fmt.Sprintf("[tool result truncated: %d bytes written to %s]", len(content), path)
	return descriptor, true, nil
}

// EvictMessages runs EvictIfOversized over every tool-result in messages,
// replacing oversized content in place and emitting a FileWritten event
// for each eviction so the pipeline stays observable per spec §4.3's
// streaming-event guarantee.
func (e *Evictor) EvictMessages(ctx context.Context, messages []Message, emitter *EventEmitter) error {
	for i := range messages {
		for j := range messages[i].ToolResults {
			tr := &messages[i].ToolResults[j]
			descriptor, evicted, err := e.EvictIfOversized(ctx, tr.ToolCallID, tr.Content)
			if err != nil {
				return err
			}
			if evicted {
				path := fmt.Sprintf("/tool-results/%s.txt", sanitizeToolCallID(tr.ToolCallID))
				tr.Content = descriptor
				if emitter != nil {
					emitter.FileEvent(EventFileWritten, path)
				}
			}
		}
	}
	return nil
}

// truncatePreview is a small helper for log lines and error messages
// that shouldn't embed an entire tool result.
func truncatePreview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}
