//go:build linux

package deepagent

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	fcmodels "github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	"github.com/google/uuid"
)

// guestAgentPort is the vsock port the guest agent listens on inside the
// microVM image, grounded on the teacher's
// internal/tools/sandbox/firecracker/vsock.go GuestAgentPort constant.
const guestAgentPort = 52

// FirecrackerConfig describes the kernel/rootfs pair and resource limits
// used to boot one microVM per Execute call, narrowed from the teacher's
// internal/tools/sandbox/firecracker/vm.go VMConfig to the fields
// SandboxBackend actually needs (no networking, no snapshot/restore --
// spec §2's Backend Protocol extension only requires Execute/ID).
type FirecrackerConfig struct {
	KernelPath string
	RootFSPath string
	SocketDir  string
	VCPUs      int64
	MemSizeMB  int64
}

// FirecrackerRunner boots a fresh Firecracker microVM per command and
// speaks the same vsock request/response protocol as the teacher's guest
// agent, satisfying backend_sandbox.go's VMRunner interface.
type FirecrackerRunner struct {
	cfg FirecrackerConfig
}

// NewFirecrackerRunner validates cfg and returns a VMRunner backed by
// real Firecracker microVMs.
func NewFirecrackerRunner(cfg FirecrackerConfig) (*FirecrackerRunner, error) {
	if cfg.KernelPath == "" || cfg.RootFSPath == "" {
		return nil, fmt.Errorf("deepagent: firecracker runner requires KernelPath and RootFSPath")
	}
	if cfg.VCPUs <= 0 {
		cfg.VCPUs = 1
	}
	if cfg.MemSizeMB <= 0 {
		cfg.MemSizeMB = 512
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = os.TempDir()
	}
	return &FirecrackerRunner{cfg: cfg}, nil
}

type guestRequest struct {
	ID      uint64 `json:"id"`
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

type guestResponse struct {
	ID       uint64 `json:"id"`
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
	Timeout  bool   `json:"timeout,omitempty"`
}

// RunInVM boots a microVM, sends command over vsock to the guest agent,
// and shuts the VM down once the response arrives or timeout elapses.
func (r *FirecrackerRunner) RunInVM(ctx context.Context, command string, timeout time.Duration) (stdout, stderr string, exitCode int, truncated bool, err error) {
	vmID := uuid.NewString()
	socketPath := fmt.Sprintf("%s/deepagent-fc-%s.sock", r.cfg.SocketDir, vmID)

	fcCfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: r.cfg.KernelPath,
		Drives: []fcmodels.Drive{{
			DriveID:      firecracker.String("rootfs"),
			PathOnHost:   firecracker.String(r.cfg.RootFSPath),
			IsRootDevice: firecracker.Bool(true),
			IsReadOnly:   firecracker.Bool(false),
		}},
		MachineCfg: fcmodels.MachineConfiguration{
			VcpuCount:  firecracker.Int64(r.cfg.VCPUs),
			MemSizeMib: firecracker.Int64(r.cfg.MemSizeMB),
			Smt:        firecracker.Bool(false),
		},
		VsockDevices: []firecracker.VsockDevice{{
			Path: fmt.Sprintf("%s/deepagent-fc-%s.vsock", r.cfg.SocketDir, vmID),
			CID:  3,
		}},
	}

	machine, merr := firecracker.NewMachine(ctx, fcCfg)
	if merr != nil {
		return "", "", -1, false, fmt.Errorf("deepagent: create microvm: %w", merr)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if serr := machine.Start(runCtx); serr != nil {
		return "", "", -1, false, fmt.Errorf("deepagent: start microvm: %w", serr)
	}
	defer machine.StopVMM() //nolint:errcheck

	conn, derr := dialVsockWithRetry(runCtx, fcCfg.VsockDevices[0].Path, guestAgentPort)
	if derr != nil {
		return "", "", -1, false, fmt.Errorf("deepagent: guest agent unreachable: %w", derr)
	}
	defer conn.Close()

	req := guestRequest{ID: 1, Type: "execute", Command: command, Timeout: int(timeout.Seconds())}
	if werr := writeFramed(conn, req); werr != nil {
		return "", "", -1, false, fmt.Errorf("deepagent: send guest request: %w", werr)
	}

	var resp guestResponse
	if rerr := readFramed(conn, &resp); rerr != nil {
		return "", "", -1, false, fmt.Errorf("deepagent: read guest response: %w", rerr)
	}
	if resp.Error != "" && !resp.Success {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Timeout, fmt.Errorf("deepagent: guest execution failed: %s", resp.Error)
	}
	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Timeout, nil
}

func dialVsockWithRetry(ctx context.Context, path string, port uint32) (net.Conn, error) {
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			if _, werr := fmt.Fprintf(conn, "CONNECT %d\n", port); werr == nil {
				return conn, nil
			}
			conn.Close()
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func writeFramed(conn net.Conn, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = conn.Write(body)
	return err
}

func readFramed(conn net.Conn, v any) error {
	r := bufio.NewReader(conn)
	var lenBuf [4]byte
	if _, err := fullRead(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := fullRead(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func fullRead(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
