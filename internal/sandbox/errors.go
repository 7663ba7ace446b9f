package sandbox

import (
	"fmt"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
)

var errProductionInProcess = fmt.Errorf("sandbox: the in_process backend is not permitted when running in production")

func errUnknownBackend(b config.SandboxBackend) error {
	return fmt.Errorf("sandbox: unknown backend %q", b)
}

// ErrRuntimeUnavailable signals that the container runtime the configured
// backend depends on could not be reached at construction time. Per §7,
// this is fatal at process level when enable_sandbox=true and
// sandbox_backend=container: the process must refuse new requests until
// the runtime returns.
var ErrRuntimeUnavailable = fmt.Errorf("sandbox: container runtime unavailable")
