//go:build !linux

package deepagent

import (
	"context"
	"errors"
	"time"
)

// ErrFirecrackerUnsupported is returned by FirecrackerRunner on platforms
// without Firecracker support, matching the teacher's
// firecracker/stub_other.go ErrNotSupported convention.
var ErrFirecrackerUnsupported = errors.New("deepagent: firecracker sandbox is only supported on linux")

// FirecrackerConfig is a no-op placeholder on non-Linux platforms.
type FirecrackerConfig struct {
	KernelPath string
	RootFSPath string
	SocketDir  string
	VCPUs      int64
	MemSizeMB  int64
}

// FirecrackerRunner stub: construction always fails on non-Linux builds.
type FirecrackerRunner struct{}

// NewFirecrackerRunner always returns ErrFirecrackerUnsupported here.
func NewFirecrackerRunner(cfg FirecrackerConfig) (*FirecrackerRunner, error) {
	return nil, ErrFirecrackerUnsupported
}

// RunInVM always fails on non-Linux builds.
func (r *FirecrackerRunner) RunInVM(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, exitCode int, truncated bool, err error) {
	return "", "", -1, false, ErrFirecrackerUnsupported
}
