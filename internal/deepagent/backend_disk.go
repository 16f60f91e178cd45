package deepagent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver confines relative paths to a workspace root, grounded
// verbatim on the teacher's internal/tools/files/resolver.go: it rejects
// any path whose cleaned relative form is or starts with "..".
type Resolver struct {
	Root string
}

// Resolve returns the absolute path for rel, or an error if rel escapes
// the workspace root.
func (r Resolver) Resolve(rel string) (string, error) {
	joined := filepath.Join(r.Root, rel)
	relCheck, err := filepath.Rel(r.Root, joined)
	if err != nil {
		return "", err
	}
	if relCheck == ".." || strings.HasPrefix(relCheck, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return joined, nil
}

// DiskBackend stores files on the real filesystem under a workspace
// root, grounded on internal/tools/files/{read,write,edit,resolver}.go.
type DiskBackend struct {
	resolver     Resolver
	maxReadBytes int
}

// NewDiskBackend returns a Backend rooted at workspace. maxReadBytes
// defaults to 200000, matching the teacher's ReadTool default.
func NewDiskBackend(workspace string, maxReadBytes int) *DiskBackend {
	if maxReadBytes <= 0 {
		maxReadBytes = 200000
	}
	return &DiskBackend{resolver: Resolver{Root: workspace}, maxReadBytes: maxReadBytes}
}

func (b *DiskBackend) LsInfo(ctx context.Context, dir string) ([]LsEntry, error) {
	abs, err := b.resolver.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	out := make([]LsEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		out = append(out, LsEntry{
			Path:  filepath.Join(dir, e.Name()),
			IsDir: e.IsDir(),
			Size:  size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *DiskBackend) Read(ctx context.Context, filePath string, offset, limit int) (string, bool, error) {
	abs, err := b.resolver.Resolve(filePath)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", false, err
	}
	lines := splitLines(string(data))
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
	content := strings.Join(lines[offset:end], "\n")
	if len(content) > b.maxReadBytes {
		content = content[:b.maxReadBytes]
		truncated = true
	}
	return content, truncated, nil
}

func (b *DiskBackend) ReadRaw(ctx context.Context, filePath string) ([]byte, error) {
	abs, err := b.resolver.Resolve(filePath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

func (b *DiskBackend) GrepRaw(ctx context.Context, pattern, dir string) ([]GrepMatch, error) {
	abs, err := b.resolver.Resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []GrepMatch
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(b.resolver.Root, p)
		matches, err := grepFile(rel, data, pattern)
		if err != nil {
			return err
		}
		out = append(out, matches...)
		return nil
	})
	return out, err
}

func (b *DiskBackend) GlobInfo(ctx context.Context, pattern string) ([]string, error) {
	return walkGlob(b.resolver.Root, pattern)
}

func (b *DiskBackend) Write(ctx context.Context, filePath, content string, appendMode bool) (int, error) {
	abs, err := b.resolver.Resolve(filePath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

func (b *DiskBackend) Edit(ctx context.Context, filePath string, edits []Edit) (int, error) {
	abs, err := b.resolver.Resolve(filePath)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, err
	}
	newContent, n, err := applyEdits(string(data), edits)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(abs, []byte(newContent), 0o644); err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}
