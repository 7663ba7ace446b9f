// Package telemetry is the counter/histogram/gauge surface and structured
// audit log fed by the orchestrator and sandbox.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the core exposes. It is built once at startup
// (NewRegistry) and never mutated; every metric is a named field reached
// through its own typed method, not a dynamic lookup by string name.
type Registry struct {
	reg prometheus.Registerer

	requestsTotal   *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	timedOutTotal   prometheus.Counter
	resourceExceeded *prometheus.CounterVec
	cacheHitsTotal  prometheus.Counter
	cacheMissTotal  prometheus.Counter
	overloadedTotal prometheus.Counter

	executionDuration *prometheus.HistogramVec
	tokensEstimated   prometheus.Histogram
	outputBytes       *prometheus.HistogramVec

	activeSessions   prometheus.Gauge
	activeContainers prometheus.Gauge
}

// NewRegistry constructs and registers every metric under the given
// prometheus.Registerer. Passing prometheus.NewRegistry() (rather than the
// global DefaultRegisterer) keeps tests hermetic.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{reg: reg}

	r.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_requests_total",
		Help: "Total execute_intent calls, labeled by mode.",
	}, []string{"mode"})

	r.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_outcomes_total",
		Help: "Total sandbox execution outcomes, labeled by status.",
	}, []string{"status"})

	r.timedOutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sandbox_timed_out_total",
		Help: "Executions that hit the wall-clock deadline.",
	})

	r.resourceExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sandbox_resource_exceeded_total",
		Help: "Executions killed for exceeding a resource limit, labeled by kind.",
	}, []string{"kind"})

	r.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sandbox_cache_hits_total",
		Help: "Context store cache hits.",
	})
	r.cacheMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sandbox_cache_misses_total",
		Help: "Context store cache misses.",
	})
	r.overloadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sandbox_overloaded_total",
		Help: "Requests rejected because the concurrency cap's queue was full.",
	})

	r.executionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sandbox_execution_duration_seconds",
		Help:    "Wall-clock duration of sandbox executions.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"backend"})

	r.tokensEstimated = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sandbox_tokens_estimated",
		Help:    "Estimated token cost per request.",
		Buckets: prometheus.ExponentialBuckets(8, 2, 12),
	})

	r.outputBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sandbox_output_bytes",
		Help:    "Bytes captured per output stream.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 12),
	}, []string{"stream"})

	r.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_active_sessions",
		Help: "Sessions currently live in the context store.",
	})
	r.activeContainers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sandbox_active_containers",
		Help: "Sandbox backends currently running a call.",
	})

	for _, c := range []prometheus.Collector{
		r.requestsTotal, r.outcomesTotal, r.timedOutTotal, r.resourceExceeded,
		r.cacheHitsTotal, r.cacheMissTotal, r.overloadedTotal,
		r.executionDuration, r.tokensEstimated, r.outputBytes,
		r.activeSessions, r.activeContainers,
	} {
		reg.MustRegister(c)
	}

	return r
}

// RecordRequest increments the per-mode request counter.
func (r *Registry) RecordRequest(mode string) {
	r.requestsTotal.WithLabelValues(mode).Inc()
}

// RecordOutcome increments the outcome counter and, for the two outcomes
// the spec names explicitly, the dedicated timed_out/resource_exceeded
// counters.
func (r *Registry) RecordOutcome(status string, resourceKind string) {
	r.outcomesTotal.WithLabelValues(status).Inc()
	switch status {
	case "timed_out":
		r.timedOutTotal.Inc()
	case "resource_exceeded":
		r.resourceExceeded.WithLabelValues(resourceKind).Inc()
	}
}

func (r *Registry) RecordCacheHit(hit bool) {
	if hit {
		r.cacheHitsTotal.Inc()
	} else {
		r.cacheMissTotal.Inc()
	}
}

func (r *Registry) RecordOverloaded() { r.overloadedTotal.Inc() }

func (r *Registry) ObserveExecutionDuration(backend string, seconds float64) {
	r.executionDuration.WithLabelValues(backend).Observe(seconds)
}

func (r *Registry) ObserveTokensEstimated(n int) {
	r.tokensEstimated.Observe(float64(n))
}

func (r *Registry) ObserveOutputBytes(stream string, n int) {
	r.outputBytes.WithLabelValues(stream).Observe(float64(n))
}

func (r *Registry) SetActiveSessions(n int)   { r.activeSessions.Set(float64(n)) }
func (r *Registry) SetActiveContainers(n int) { r.activeContainers.Set(float64(n)) }
