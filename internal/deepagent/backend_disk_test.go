package deepagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResolverRejectsEscape(t *testing.T) {
	r := Resolver{Root: t.TempDir()}
	if _, err := r.Resolve("../outside.txt"); err == nil {
		t.Fatal("expected error for path escaping workspace root")
	}
}

func TestResolverAllowsNested(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}
	abs, err := r.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if abs != filepath.Join(root, "sub/file.txt") {
		t.Errorf("Resolve = %q", abs)
	}
}

func TestDiskBackendWriteReadRoundtrip(t *testing.T) {
	b := NewDiskBackend(t.TempDir(), 0)
	ctx := context.Background()

	if _, err := b.Write(ctx, "a/b.txt", "line1\nline2", false); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	content, truncated, err := b.Read(ctx, "a/b.txt", 0, 0)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if truncated {
		t.Error("expected no truncation")
	}
	if content != "line1\nline2" {
		t.Errorf("content = %q", content)
	}
}

func TestDiskBackendWriteRejectsEscape(t *testing.T) {
	b := NewDiskBackend(t.TempDir(), 0)
	if _, err := b.Write(context.Background(), "../escape.txt", "x", false); err == nil {
		t.Fatal("expected error writing outside workspace")
	}
}

func TestDiskBackendReadMaxBytesTruncates(t *testing.T) {
	root := t.TempDir()
	b := NewDiskBackend(root, 5)
	ctx := context.Background()
	b.Write(ctx, "f.txt", "0123456789", false)

	content, truncated, err := b.Read(ctx, "f.txt", 0, 0)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !truncated {
		t.Error("expected truncated=true when exceeding maxReadBytes")
	}
	if len(content) != 5 {
		t.Errorf("content length = %d, want 5", len(content))
	}
}

func TestDiskBackendEdit(t *testing.T) {
	b := NewDiskBackend(t.TempDir(), 0)
	ctx := context.Background()
	b.Write(ctx, "f.txt", "foo bar", false)

	n, err := b.Edit(ctx, "f.txt", []Edit{{OldText: "foo", NewText: "baz"}})
	if err != nil {
		t.Fatalf("Edit error: %v", err)
	}
	if n != 1 {
		t.Errorf("Edit count = %d, want 1", n)
	}
	raw, _ := b.ReadRaw(ctx, "f.txt")
	if string(raw) != "baz bar" {
		t.Errorf("content = %q", raw)
	}
}

func TestDiskBackendLsInfo(t *testing.T) {
	root := t.TempDir()
	b := NewDiskBackend(root, 0)
	ctx := context.Background()
	b.Write(ctx, "a.txt", "a", false)
	b.Write(ctx, "b.txt", "b", false)

	entries, err := b.LsInfo(ctx, ".")
	if err != nil {
		t.Fatalf("LsInfo error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestDiskBackendGrepRaw(t *testing.T) {
	root := t.TempDir()
	b := NewDiskBackend(root, 0)
	ctx := context.Background()
	b.Write(ctx, "a.txt", "hello world", false)
	b.Write(ctx, "b.txt", "goodbye", false)

	matches, err := b.GrepRaw(ctx, "hello", ".")
	if err != nil {
		t.Fatalf("GrepRaw error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestDiskBackendGlobInfo(t *testing.T) {
	root := t.TempDir()
	b := NewDiskBackend(root, 0)
	ctx := context.Background()
	b.Write(ctx, "a.go", "x", false)
	b.Write(ctx, "b.txt", "x", false)

	matches, err := b.GlobInfo(ctx, "*.go")
	if err != nil {
		t.Fatalf("GlobInfo error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestDiskBackendWriteAppend(t *testing.T) {
	root := t.TempDir()
	b := NewDiskBackend(root, 0)
	ctx := context.Background()
	b.Write(ctx, "f.txt", "hello", false)
	b.Write(ctx, "f.txt", " world", true)

	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q", data)
	}
}
