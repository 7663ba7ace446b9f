// Package httpserver serves the ambient metrics/health HTTP surface this
// core needs around it: the request/response transport for execute_intent
// itself is left to the embedder (§6), but a pull-based scrape endpoint
// and liveness/readiness probes are infrastructure scaffolding, not part
// of that external wire protocol.
package httpserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts /healthz, /readyz, and /metrics.
type Server struct {
	addr   string
	reg    *prometheus.Registry
	srv    *http.Server
	ready  atomic.Bool
}

// New builds a Server bound to addr, exporting reg's collectors on
// /metrics. addr == "" disables the server entirely (Start becomes a
// no-op), matching metrics_listen_addr's optionality.
func New(addr string, reg *prometheus.Registry) *Server {
	return &Server{addr: addr, reg: reg}
}

// SetReady flips the readiness probe; /readyz answers 503 until it is
// called with true. cmd/sandboxd calls it with true once every component
// has been constructed (a backend that cannot be constructed ends the
// process before that point).
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

func (s *Server) Name() string { return "httpserver" }

func (s *Server) Start(_ context.Context) error {
	if s.addr == "" {
		return nil
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	s.srv = &http.Server{Addr: s.addr, Handler: r}
	go func() { _ = s.srv.ListenAndServe() }()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
