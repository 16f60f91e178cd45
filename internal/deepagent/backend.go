package deepagent

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// LsEntry describes one directory entry returned by Backend.LsInfo.
type LsEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// GrepMatch is one line matched by Backend.GrepRaw.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Backend is the capability set spec §2/§4 requires of a storage
// implementation: list/read/write/edit a virtual filesystem, plus
// textual search. Optionally a Backend also implements Executor to
// denote a sandbox (spec's `{execute(command), id}` extension).
type Backend interface {
	LsInfo(ctx context.Context, path string) ([]LsEntry, error)
	Read(ctx context.Context, path string, offset, limit int) (string, bool, error)
	ReadRaw(ctx context.Context, path string) ([]byte, error)
	GrepRaw(ctx context.Context, pattern, path string) ([]GrepMatch, error)
	GlobInfo(ctx context.Context, pattern string) ([]string, error)
	Write(ctx context.Context, path, content string, append bool) (int, error)
	Edit(ctx context.Context, path string, edits []Edit) (int, error)
}

// Edit is one old_text -> new_text replacement, spec-equivalent of the
// teacher's EditTool edit entries.
type Edit struct {
	OldText    string
	NewText    string
	ReplaceAll bool
}

// Executor is the optional extension a sandbox-backed Backend implements.
type Executor interface {
	ID() string
	Execute(ctx context.Context, command string, timeoutSeconds int) (stdout string, stderr string, exitCode int, truncated bool, err error)
}

// AsExecutor returns the backend's Executor facet, if it has one.
func AsExecutor(b Backend) (Executor, bool) {
	ex, ok := b.(Executor)
	return ex, ok
}

// grepFile is the stdlib-based line scanner shared by every Backend
// implementation's GrepRaw. No dependency in the retrieval pack wraps a
// ripgrep-equivalent; bufio.Scanner + regexp is the one deliberate
// stdlib choice in this layer (see DESIGN.md).
func grepFile(path string, data []byte, pattern string) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	var matches []GrepMatch
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, GrepMatch{Path: path, Line: lineNo, Text: line})
		}
	}
	return matches, scanner.Err()
}

// applyEdits applies a sequence of old_text->new_text replacements to
// content, erroring if an old_text is not found -- grounded on the
// teacher's EditTool.Execute loop (internal/tools/files/edit.go).
func applyEdits(content string, edits []Edit) (string, int, error) {
	replacements := 0
	for _, e := range edits {
		if !strings.Contains(content, e.OldText) {
			return content, replacements, fmt.Errorf("old_text not found: %q", truncateForError(e.OldText))
		}
		if e.ReplaceAll {
			n := strings.Count(content, e.OldText)
			content = strings.ReplaceAll(content, e.OldText, e.NewText)
			replacements += n
		} else {
			content = strings.Replace(content, e.OldText, e.NewText, 1)
			replacements++
		}
	}
	return content, replacements, nil
}

func truncateForError(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// splitLines is the canonical FileData.Lines splitter, kept a single
// function so every backend produces identical FileData for identical
// content.
func splitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}

// walkGlob is the stdlib glob helper for backends whose storage is
// addressable by filesystem path; DiskBackend uses it, while MemoryBackend
// matches its own keys with path.Match.
func walkGlob(root, pattern string) ([]string, error) {
	full := filepath.Join(root, pattern)
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}
