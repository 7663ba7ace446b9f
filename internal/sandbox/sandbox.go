// Package sandbox implements the Multi-Layer Sandbox (component E): the
// project's trust boundary. Given an Execution Request it produces an
// Execution Result under strict isolation and bounded resources, through
// one of three interchangeable backend tiers.
package sandbox

import (
	"context"
	"time"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
)

// Status is the terminal classification of an Execution Result.
type Status string

const (
	StatusCompleted        Status = "completed"
	StatusTimedOut         Status = "timed_out"
	StatusResourceExceeded Status = "resource_exceeded"
	StatusRejected         Status = "rejected"
	StatusInternalError    Status = "internal_error"
)

// ResourceKind names which resource ceiling a resource_exceeded result hit.
type ResourceKind string

const (
	ResourceMemory    ResourceKind = "memory"
	ResourceProcesses ResourceKind = "processes"
)

// FilesystemPolicy describes the sandbox's filesystem shape for one call.
type FilesystemPolicy struct {
	ReadOnlyRoot   bool
	ScratchDir     string
	ScratchBytes   int64
	CodeMountPath  string
}

// NetworkPolicy is always "deny-all" for the MVP (§3).
type NetworkPolicy string

const NetworkDenyAll NetworkPolicy = "deny-all"

// ExecutionRequest is derived from an Intent after routing, once the code
// materializer has produced executable program text.
type ExecutionRequest struct {
	Code         string
	TimeoutMS    int
	MemoryBytes  int64
	ProcessLimit int
	FSPolicy     FilesystemPolicy
	NetPolicy    NetworkPolicy
	Workdir      string
}

// ExecutionResult is the outcome of one sandbox call.
type ExecutionResult struct {
	Status          Status
	ExitCode        *int
	StdoutBytes     []byte
	StderrBytes     []byte
	StdoutTruncated bool
	StderrTruncated bool
	WallTimeMS      int64
	PeakMemoryBytes int64
	ResourceKind    ResourceKind
}

// OutputCapBytes is the default per-stream capture ceiling (§4.E).
const OutputCapBytes = 1 * 1024 * 1024

// DefaultGraceMS is the window between deadline expiry and forced
// kill-then-reap, during which SIGKILL is delivered and exit status
// collected.
const DefaultGraceMS = 2000

// Handle opaquely identifies one in-flight or completed sandbox call.
type Handle interface {
	ID() string
}

// Backend is the four-verb capability set (§9's design note) every tier
// implements identically: launch, wait, kill, reap. Backends are variant
// types selected at construction time, never an open dispatch table, so
// the production guard on the in-process tier is enforceable once, at
// construction, rather than checked on every call.
type Backend interface {
	Launch(ctx context.Context, req ExecutionRequest) (Handle, error)
	Wait(ctx context.Context, h Handle) (*ExecutionResult, error)
	Kill(h Handle) error
	Reap(h Handle) error
	Name() string
}

// NewBackend selects a concrete Backend for cfg.SandboxBackend. Construction
// is the single point where the in-process tier's production guard is
// enforced: a production environment can never end up with a live
// inProcessBackend, by construction rather than by convention.
func NewBackend(cfg config.Flags, isProduction bool) (Backend, error) {
	switch cfg.SandboxBackend {
	case config.BackendContainer:
		return newContainerBackend(cfg)
	case config.BackendSyscallFilter:
		return newSyscallFilterBackend(cfg)
	case config.BackendInProcess:
		if isProduction {
			return nil, errProductionInProcess
		}
		return newInProcessBackend(cfg), nil
	default:
		return nil, errUnknownBackend(cfg.SandboxBackend)
	}
}

// Execute runs req against backend end to end: launch, wait (with deadline
// enforcement delegated to the backend), and always reap, so that no
// container or process from the call outlives the response.
func Execute(ctx context.Context, backend Backend, req ExecutionRequest) (*ExecutionResult, error) {
	h, err := backend.Launch(ctx, req)
	if err != nil {
		return &ExecutionResult{Status: StatusInternalError}, err
	}
	defer func() { _ = backend.Reap(h) }()

	start := time.Now()
	result, err := backend.Wait(ctx, h)
	if result != nil && result.WallTimeMS == 0 {
		result.WallTimeMS = time.Since(start).Milliseconds()
	}
	return result, err
}
