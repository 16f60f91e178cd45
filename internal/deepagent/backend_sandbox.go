package deepagent

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Shell-safety pattern definitions, grounded verbatim on the teacher's
// internal/exec/safety.go (ShellMetachars/ControlChars/QuoteChars).
var (
	shellMetachars = regexp.MustCompile("[;&|`$<>]")
	controlChars   = regexp.MustCompile(`[\r\n]`)
)

// ErrUnsafeCommand is returned when a command string contains
// shell-injection-prone characters disallowed by SandboxBackend.
var ErrUnsafeCommand = errors.New("deepagent: command contains unsafe characters")

// sanitizeCommand rejects null bytes, control characters, and shell
// metacharacters, matching the teacher's IsSafeExecutableValue check
// applied to the whole command line rather than a single executable
// token (the sandbox backend runs the command through a shell already
// scoped to the VM/runner, so the check here guards against the parent
// process's own os/exec.Command invocation, not the sandboxed shell).
func sanitizeCommand(cmd string) error {
	if strings.TrimSpace(cmd) == "" {
		return errors.New("deepagent: empty command")
	}
	if strings.Contains(cmd, "\x00") {
		return ErrUnsafeCommand
	}
	if controlChars.MatchString(cmd) {
		return ErrUnsafeCommand
	}
	if shellMetachars.MatchString(cmd) {
		return ErrUnsafeCommand
	}
	return nil
}

// VMRunner executes a command inside an isolated microVM. SandboxBackend
// delegates to one when configured, grounded on the teacher's
// firecracker-go-sdk dependency (present in go.mod, otherwise unwired in
// the retrieved internal/agent source).
type VMRunner interface {
	RunInVM(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, exitCode int, truncated bool, err error)
}

// SandboxBackend extends a file Backend with the optional execute/id
// capability spec §2 describes. It embeds a MemoryBackend or DiskBackend
// for file operations and adds command execution, grounded on
// internal/tools/sandbox/executor.go's timeout+max-output-size pattern.
type SandboxBackend struct {
	Backend
	id             string
	runner         VMRunner
	maxOutputBytes int
	defaultTimeout time.Duration
}

// NewSandboxBackend wraps files with execute capability. If runner is
// nil, commands run via a local os/exec.CommandContext, still passed
// through sanitizeCommand.
func NewSandboxBackend(files Backend, runner VMRunner) *SandboxBackend {
	return &SandboxBackend{
		Backend:        files,
		id:             uuid.NewString(),
		runner:         runner,
		maxOutputBytes: 1 << 20, // 1 MiB, spec §5 default
		defaultTimeout: 30 * time.Second,
	}
}

// ID identifies this sandbox instance, satisfying the Executor interface.
func (s *SandboxBackend) ID() string { return s.id }

// Execute runs command, enforcing the spec §5 default 30s timeout and
// 1 MiB max output size (truncation reported via the truncated flag).
func (s *SandboxBackend) Execute(ctx context.Context, command string, timeoutSeconds int) (string, string, int, bool, error) {
	if err := sanitizeCommand(command); err != nil {
		return "", "", -1, false, err
	}
	timeout := s.defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.runner != nil {
		return s.runner.RunInVM(ctx, command, timeout)
	}
	return s.runLocal(ctx, command)
}

func (s *SandboxBackend) runLocal(ctx context.Context, command string) (string, string, int, bool, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}

	truncated := false
	out := stdout.String()
	if len(out) > s.maxOutputBytes {
		out = out[:s.maxOutputBytes]
		truncated = true
	}
	errOut := stderr.String()
	if len(errOut) > s.maxOutputBytes {
		errOut = errOut[:s.maxOutputBytes]
		truncated = true
	}
	return out, errOut, exitCode, truncated, err
}
