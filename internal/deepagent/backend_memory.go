package deepagent

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is the default backend (spec §6: "default is an
// in-memory state-backed adapter"). It stores files in State.Files
// directly, so a MemoryBackend and its owning State rise and fall
// together, grounded on internal/storage/memory.go's mutex-guarded-map
// style.
type MemoryBackend struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryBackend returns a Backend view over state's Files map.
func NewMemoryBackend(state *State) *MemoryBackend {
	if state.Files == nil {
		state.Files = map[string]FileData{}
	}
	return &MemoryBackend{state: state}
}

func normalizePath(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func (b *MemoryBackend) LsInfo(ctx context.Context, dir string) ([]LsEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir = normalizePath(dir)
	seen := map[string]bool{}
	var out []LsEntry
	for p := range b.state.Files {
		if dir != "" && !strings.HasPrefix(p, dir+"/") && p != dir {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, LsEntry{Path: p, IsDir: false, Size: int64(len(b.state.Files[p].Content()))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *MemoryBackend) Read(ctx context.Context, filePath string, offset, limit int) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filePath = normalizePath(filePath)
	fd, ok := b.state.Files[filePath]
	if !ok {
		return "", false, fmt.Errorf("file not found: %s", filePath)
	}
	lines := fd.Lines
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return "", false, nil
	}
	end := len(lines)
	truncated := false
	if limit > 0 && offset+limit < end {
		end = offset + limit
		truncated = true
	}
	return strings.Join(lines[offset:end], "\n"), truncated, nil
}

func (b *MemoryBackend) ReadRaw(ctx context.Context, filePath string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filePath = normalizePath(filePath)
	fd, ok := b.state.Files[filePath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", filePath)
	}
	return []byte(fd.Content()), nil
}

func (b *MemoryBackend) GrepRaw(ctx context.Context, pattern, dir string) ([]GrepMatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir = normalizePath(dir)
	var out []GrepMatch
	for p, fd := range b.state.Files {
		if dir != "" && !strings.HasPrefix(p, dir+"/") && p != dir {
			continue
		}
		matches, err := grepFile(p, []byte(fd.Content()), pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *MemoryBackend) GlobInfo(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for p := range b.state.Files {
		if ok, _ := path.Match(pattern, p); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *MemoryBackend) Write(ctx context.Context, filePath, content string, appendMode bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filePath = normalizePath(filePath)
	now := time.Now()
	existing, ok := b.state.Files[filePath]
	if appendMode && ok {
		content = existing.Content() + content
	}
	fd := FileData{Lines: splitLines(content), ModifiedAt: now}
	if ok {
		fd.CreatedAt = existing.CreatedAt
	} else {
		fd.CreatedAt = now
	}
	b.state.Files[filePath] = fd
	return len(content), nil
}

func (b *MemoryBackend) Edit(ctx context.Context, filePath string, edits []Edit) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	filePath = normalizePath(filePath)
	fd, ok := b.state.Files[filePath]
	if !ok {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}
	newContent, n, err := applyEdits(fd.Content(), edits)
	if err != nil {
		return 0, err
	}
	fd.Lines = splitLines(newContent)
	fd.ModifiedAt = time.Now()
	b.state.Files[filePath] = fd
	return n, nil
}
