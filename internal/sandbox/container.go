package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockermount "github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
)

// statsSamplePeriod is how often the PIDs cgroup and memory counters are
// polled over the container's lifetime. Docker's PIDs limit doesn't kill
// the container on breach — a fork past the limit just fails with EAGAIN
// inside it — so a fork-bomb template has to be caught by sampling
// pids.current against the configured ceiling, mirroring what the
// syscall-filter tier does with gopsutil.
const statsSamplePeriod = 100 * time.Millisecond

// containerImage is the prebuilt minimal rootfs every call runs from. A
// real deployment pins this to a project-specific image; the sandbox never
// builds or pulls an image lazily at call time.
const containerImage = "sandbox-runtime:latest"

// seccompProfile is a default-deny filter with an allow-list large enough
// to run a standard interpreter, per the container tier's syscall-filter
// requirement. Network syscalls are left allowed by the filter — the
// network policy is enforced by NetworkMode "none", not by the filter.
const seccompProfile = `{"defaultAction":"SCMP_ACT_ERRNO","syscalls":[{"names":["read","write","close","openat","mmap","munmap","brk","futex","clock_gettime","clock_nanosleep","epoll_wait","epoll_ctl","epoll_create1","ppoll","exit","exit_group","rt_sigaction","rt_sigprocmask","clone","execve","wait4","fcntl","pread64","pwrite64","lseek","fstat","stat","access","socket","connect","bind","listen","accept","accept4","sendto","recvfrom","sendmsg","recvmsg","shutdown","getsockopt","setsockopt","getsockname","getpeername"],"action":"SCMP_ACT_ALLOW"}]}`

// containerBackend launches one rootless container per call via the
// Docker Engine API, enriched from evalgo-org-eve's container-lifecycle
// pattern (the teacher has no container runtime code of its own). This is
// the production default tier.
type containerBackend struct {
	cfg    config.Flags
	cli    *dockerclient.Client
	mu     sync.Mutex
	active map[string]*containerCall
}

type containerCall struct {
	id          string
	containerID string
	req         ExecutionRequest
	stdout      *capturedStream
	stderr      *capturedStream
	done        chan struct{}
	result      *ExecutionResult
}

func (c *containerCall) ID() string { return c.id }

func newContainerBackend(cfg config.Flags) (*containerBackend, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	return &containerBackend{cfg: cfg, cli: cli, active: make(map[string]*containerCall)}, nil
}

func (b *containerBackend) Name() string { return "container" }

func (b *containerBackend) Launch(ctx context.Context, req ExecutionRequest) (Handle, error) {
	hostConfig := dockercontainer.HostConfig{
		ReadonlyRootfs: true,
		NetworkMode:    "none",
		Resources: dockercontainer.Resources{
			Memory:     req.MemoryBytes,
			MemorySwap: req.MemoryBytes, // disable swap: ceiling equals the memory limit
			PidsLimit:  int64Ptr(int64(req.ProcessLimit)),
		},
		SecurityOpt: []string{
			"no-new-privileges:true",
			"seccomp=" + seccompProfile,
		},
		CapDrop: []string{"ALL"},
		Mounts: []dockermount.Mount{
			{
				Type:   dockermount.TypeTmpfs,
				Target: req.FSPolicy.ScratchDir,
				TmpfsOptions: &dockermount.TmpfsOptions{
					SizeBytes: req.FSPolicy.ScratchBytes,
				},
			},
		},
	}

	containerConfig := dockercontainer.Config{
		Image:      containerImage,
		Cmd:        []string{req.FSPolicy.CodeMountPath},
		Env:        []string{"HOME=/tmp"},
		WorkingDir: req.FSPolicy.ScratchDir,
		// PID, network, IPC, UTS namespaces are the Docker daemon's default
		// per-container namespaces; no flag relaxes them here.
	}

	resp, err := b.cli.ContainerCreate(ctx, &containerConfig, &hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("container: create: %w", err)
	}

	if err := b.cli.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		_ = b.cli.ContainerRemove(context.Background(), resp.ID, dockercontainer.RemoveOptions{Force: true})
		return nil, fmt.Errorf("container: start: %w", err)
	}

	call := &containerCall{
		id:          fmt.Sprintf("container-%d", time.Now().UnixNano()),
		containerID: resp.ID,
		req:         req,
		stdout:      newCapturedStream(int(b.cfg.MaxOutputBytes)),
		stderr:      newCapturedStream(int(b.cfg.MaxOutputBytes)),
		done:        make(chan struct{}),
	}

	b.mu.Lock()
	b.active[call.id] = call
	b.mu.Unlock()

	go b.drainLogs(call)
	go b.watch(ctx, call)
	return call, nil
}

// drainLogs continuously reads the demultiplexed log stream into the
// capped stdout/stderr sinks. This MUST run for the container's whole
// life: a non-draining implementation would let the child block on a full
// pipe and defeat the deadline.
func (b *containerBackend) drainLogs(call *containerCall) {
	ctx := context.Background()
	rc, err := b.cli.ContainerLogs(ctx, call.containerID, dockercontainer.LogsOptions{
		ShowStdout: true, ShowStderr: true, Follow: true,
	})
	if err != nil {
		return
	}
	defer rc.Close()

	// Docker multiplexes stdout/stderr with an 8-byte header per frame;
	// StdCopy strips the headers and routes each frame to its own sink.
	_, _ = stdcopy.StdCopy(call.stdout, call.stderr, rc)
}

func (b *containerBackend) watch(ctx context.Context, call *containerCall) {
	defer close(call.done)

	deadline := time.Duration(call.req.TimeoutMS) * time.Millisecond
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	statusCh, errCh := b.cli.ContainerWait(waitCtx, call.containerID, dockercontainer.WaitConditionNotRunning)

	statsDone := make(chan struct{})
	var peakMemory int64
	var peakPids int64
	go func() {
		defer close(statsDone)
		peakMemory, peakPids = b.pollStats(waitCtx, call.containerID)
	}()

	result := &ExecutionResult{}
	select {
	case status := <-statusCh:
		code := int(status.StatusCode)
		result.ExitCode = &code
		if status.Error != nil {
			result.Status = StatusInternalError
		} else if code == 137 {
			// 128 + SIGKILL: classify via inspect to distinguish OOM from
			// an explicit kill.
			if b.wasOOMKilled(call.containerID) {
				result.Status = StatusResourceExceeded
				result.ResourceKind = ResourceMemory
			} else {
				result.Status = StatusTimedOut
			}
		} else {
			result.Status = StatusCompleted
		}
	case err := <-errCh:
		if err != nil {
			result.Status = StatusInternalError
		}
	case <-waitCtx.Done():
		b.killAndGrace(call.containerID)
		result.Status = StatusTimedOut
	}
	// pollStats only stops sampling once waitCtx is done; cancel it here
	// (rather than waiting for watch's deferred cancel, which only fires on
	// return) so the sampler goroutine exits before this function tries to
	// read its results.
	cancel()
	<-statsDone

	result.StdoutBytes = call.stdout.Bytes()
	result.StderrBytes = call.stderr.Bytes()
	result.StdoutTruncated = call.stdout.Truncated()
	result.StderrTruncated = call.stderr.Truncated()
	result.PeakMemoryBytes = peakMemory

	if inspect, err := b.cli.ContainerInspect(context.Background(), call.containerID); err == nil {
		if inspect.State != nil && inspect.State.OOMKilled {
			result.Status = StatusResourceExceeded
			result.ResourceKind = ResourceMemory
		}
	}

	// A PIDs-limit breach never kills the container by itself — a fork past
	// the limit just fails inside it — so this overrides whatever status
	// the exit path produced, the same priority gopsutil sampling gets in
	// the syscall-filter tier.
	if call.req.ProcessLimit > 0 && peakPids > int64(call.req.ProcessLimit) {
		result.Status = StatusResourceExceeded
		result.ResourceKind = ResourceProcesses
	}

	call.result = result
}

func (b *containerBackend) wasOOMKilled(containerID string) bool {
	inspect, err := b.cli.ContainerInspect(context.Background(), containerID)
	if err != nil || inspect.State == nil {
		return false
	}
	return inspect.State.OOMKilled
}

// pollStats samples the container's cgroup memory and PIDs counters at
// statsSamplePeriod until ctx ends, returning the observed peaks. A
// one-shot (non-streaming) stats call is used per sample rather than
// Docker's streaming stats API so a slow or wedged daemon can never block
// the sample loop past one request.
func (b *containerBackend) pollStats(ctx context.Context, containerID string) (peakMemory int64, peakPids int64) {
	ticker := time.NewTicker(statsSamplePeriod)
	defer ticker.Stop()

	sample := func() {
		resp, err := b.cli.ContainerStatsOneShot(ctx, containerID)
		if err != nil {
			return
		}
		defer resp.Body.Close()

		var stats dockercontainer.StatsResponse
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return
		}
		if mem := int64(stats.MemoryStats.MaxUsage); mem > peakMemory {
			peakMemory = mem
		}
		if mem := int64(stats.MemoryStats.Usage); mem > peakMemory {
			peakMemory = mem
		}
		if pids := int64(stats.PidsStats.Current); pids > peakPids {
			peakPids = pids
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

// killAndGrace delivers SIGKILL and waits up to GRACE_MS for the container
// to stop before moving on, so the call's backend-level cleanup never
// blocks indefinitely on a wedged daemon.
func (b *containerBackend) killAndGrace(containerID string) {
	graceCtx, cancel := context.WithTimeout(context.Background(), time.Duration(b.cfg.GraceMS)*time.Millisecond)
	defer cancel()
	_ = b.cli.ContainerKill(graceCtx, containerID, "SIGKILL")
	statusCh, errCh := b.cli.ContainerWait(graceCtx, containerID, dockercontainer.WaitConditionNotRunning)
	select {
	case <-statusCh:
	case <-errCh:
	}
}

func (b *containerBackend) Wait(ctx context.Context, h Handle) (*ExecutionResult, error) {
	call := h.(*containerCall)
	select {
	case <-call.done:
		return call.result, nil
	case <-ctx.Done():
		b.killAndGrace(call.containerID)
		return &ExecutionResult{Status: StatusTimedOut}, ctx.Err()
	}
}

func (b *containerBackend) Kill(h Handle) error {
	call := h.(*containerCall)
	b.killAndGrace(call.containerID)
	return nil
}

// Reap removes the container unconditionally, the mechanism behind the
// invariant that no container from a finished call outlives the response.
func (b *containerBackend) Reap(h Handle) error {
	call := h.(*containerCall)
	b.mu.Lock()
	delete(b.active, call.id)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.cli.ContainerRemove(ctx, call.containerID, dockercontainer.RemoveOptions{Force: true, RemoveVolumes: true})
}

func int64Ptr(v int64) *int64 { return &v }
