//go:build !linux

package deepagent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewFirecrackerRunnerUnsupported(t *testing.T) {
	_, err := NewFirecrackerRunner(FirecrackerConfig{})
	if !errors.Is(err, ErrFirecrackerUnsupported) {
		t.Fatalf("expected ErrFirecrackerUnsupported, got %v", err)
	}
}

func TestFirecrackerRunnerRunInVMUnsupported(t *testing.T) {
	r := &FirecrackerRunner{}
	_, _, _, _, err := r.RunInVM(context.Background(), "echo hi", time.Second)
	if !errors.Is(err, ErrFirecrackerUnsupported) {
		t.Fatalf("expected ErrFirecrackerUnsupported, got %v", err)
	}
}
