// Command sandboxd wires the sandbox core's components into a single
// process: telemetry, context store, capability index, sandbox backend,
// and orchestrator. The context-store sweeper and the metrics/health HTTP
// server are started and stopped through one lifecycle manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/r3e-labs/intentsandbox/infrastructure/config"
	"github.com/r3e-labs/intentsandbox/infrastructure/logging"
	"github.com/r3e-labs/intentsandbox/infrastructure/runtime"
	"github.com/r3e-labs/intentsandbox/internal/capability"
	"github.com/r3e-labs/intentsandbox/internal/contextstore"
	"github.com/r3e-labs/intentsandbox/internal/orchestrator"
	"github.com/r3e-labs/intentsandbox/internal/sandbox"
	"github.com/r3e-labs/intentsandbox/internal/telemetry"
	"github.com/r3e-labs/intentsandbox/system/httpserver"
	"github.com/r3e-labs/intentsandbox/system/lifecycle"
)

func main() {
	shutdownTimeout := flag.Duration("shutdown-timeout", 15*time.Second, "grace period for draining in-flight requests on shutdown")
	flag.Parse()

	log := logging.NewFromEnv("sandboxd")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(context.Background(), err).Fatal("failed to load configuration")
	}

	if cfg.SandboxBackend == config.BackendInProcess && runtime.IsProduction() {
		log.Fatal("sandbox_backend=in_process is not permitted in production")
	}

	manager := lifecycle.NewManager()

	promReg := prometheus.NewRegistry()
	reg := telemetry.NewRegistry(promReg)

	audit, err := telemetry.NewAuditSink(cfg.AuditSinkPath)
	if err != nil {
		log.WithError(context.Background(), err).Fatal("failed to open audit sink")
	}

	var store contextstore.Store
	switch cfg.ContextBackend {
	case config.ContextRemoteKV:
		log.Fatal("remote_kv context backend requires a constructed redis client; wire one in before enabling it")
	default:
		mem := contextstore.NewMemoryStore(contextstore.MemoryConfig{
			MaxValueSize: int(cfg.ContextSizeLimit),
		})
		store = mem
		if err := manager.Register(contextstore.NewSweeper(mem, "")); err != nil {
			log.WithError(context.Background(), err).Fatal("failed to register context sweeper")
		}
	}

	index := capability.NewIndex(nil, nil) // empty: an Index takes its whole corpus at construction and has no mutation method

	backend, err := sandbox.NewBackend(cfg, runtime.IsProduction())
	if err != nil {
		log.WithError(context.Background(), err).Fatal("failed to construct sandbox backend")
	}

	if cfg.PoolSize > 0 {
		pool, err := sandbox.NewPool(cfg.PoolSize, func() (sandbox.Backend, error) {
			return sandbox.NewBackend(cfg, runtime.IsProduction())
		})
		if err != nil {
			log.WithError(context.Background(), err).Fatal("failed to pre-warm sandbox pool")
		}
		backend = sandbox.NewPooledBackend(pool)
	}

	orch := orchestrator.New(cfg, index, store, backend, nil, reg, audit, log)
	_ = orch

	httpSrv := httpserver.New(cfg.MetricsListenAddr, promReg)
	httpSrv.SetReady(true)
	if err := manager.Register(httpSrv); err != nil {
		log.WithError(context.Background(), err).Fatal("failed to register http server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		log.WithError(ctx, err).Fatal("failed to start")
	}

	<-ctx.Done()
	log.WithContext(ctx).Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		log.WithError(shutdownCtx, err).Error("error during shutdown")
		_ = audit.Close()
		fmt.Fprintln(os.Stderr, "shutdown completed with errors")
		os.Exit(1)
	}
	_ = audit.Close()
}
