// Package metrics provides the Prometheus instrumentation every internal
// component is optionally wired to. It follows the teacher's
// (ipiton-alert-history-service) pkg/metrics taxonomy — one struct per
// concern, registered once via promauto, namespaced
// "meridian_<subsystem>_<name>" — but scoped to the four subsystems the
// dispatch core actually produces signal for: key-value dispatch, HTTP
// pool checkout, the retry orchestrator, and session handshakes. Every
// method is nil-receiver-safe so a component can be constructed with a
// nil *Registry in tests without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric family Meridian emits. Construct one with
// New and thread it into session, pool, and orchestrator constructors.
type Registry struct {
	KV    *KV
	HTTP  *HTTPPool
	Retry *Retry
}

// New registers all metric families against the default Prometheus
// registerer. Call it at most once per process; pass the result to every
// component that accepts a *Registry.
func New() *Registry {
	return &Registry{
		KV:    newKV(),
		HTTP:  newHTTPPool(),
		Retry: newRetry(),
	}
}

// KV instruments the key-value session (C3): dispatch latency by opcode
// and outcome, in-flight table occupancy, and handshake results.
type KV struct {
	DispatchDuration   *prometheus.HistogramVec
	InFlightOps        prometheus.Gauge
	HandshakeTotal     *prometheus.CounterVec
	CollectionCacheHit *prometheus.CounterVec
}

func newKV() *KV {
	return &KV{
		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meridian",
			Subsystem: "kv",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from write_and_subscribe to response decode, by opcode and outcome.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"opcode", "outcome"}),
		InFlightOps: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "meridian",
			Subsystem: "kv",
			Name:      "in_flight_operations",
			Help:      "Current size of the opaque-keyed pending operation table, summed across sessions.",
		}),
		HandshakeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meridian",
			Subsystem: "kv",
			Name:      "handshake_total",
			Help:      "Handshake attempts by final state (ready, auth_failed, tls_failed, ...).",
		}, []string{"result"}),
		CollectionCacheHit: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meridian",
			Subsystem: "kv",
			Name:      "collection_cache_total",
			Help:      "Per-session collection-id cache lookups by result (hit, miss, invalidated).",
		}, []string{"result"}),
	}
}

// HTTPPool instruments the per-service HTTP session pool (C4).
type HTTPPool struct {
	CheckoutDuration *prometheus.HistogramVec
	Idle             *prometheus.GaugeVec
	Busy             *prometheus.GaugeVec
}

func newHTTPPool() *HTTPPool {
	return &HTTPPool{
		CheckoutDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meridian",
			Subsystem: "http_pool",
			Name:      "checkout_duration_seconds",
			Help:      "Time to obtain a session from check_out, by service.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
		}, []string{"service"}),
		Idle: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Subsystem: "http_pool",
			Name:      "idle_sessions",
			Help:      "Idle sessions currently held per service.",
		}, []string{"service"}),
		Busy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meridian",
			Subsystem: "http_pool",
			Name:      "busy_sessions",
			Help:      "Sessions currently serving a request per service.",
		}, []string{"service"}),
	}
}

// Retry instruments the retry orchestrator (C7).
type Retry struct {
	Decisions *prometheus.CounterVec
	Backoff   *prometheus.HistogramVec
	Attempts  *prometheus.HistogramVec
}

func newRetry() *Retry {
	return &Retry{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meridian",
			Subsystem: "retry",
			Name:      "decisions_total",
			Help:      "Retry decisions by reason and outcome (retry, remap_and_retry, surface).",
		}, []string{"reason", "decision"}),
		Backoff: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meridian",
			Subsystem: "retry",
			Name:      "backoff_seconds",
			Help:      "Scheduled backoff delay before a retried operation is re-dispatched.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"reason"}),
		Attempts: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meridian",
			Subsystem: "retry",
			Name:      "attempts",
			Help:      "Number of attempts an operation took before its final outcome.",
			Buckets:   []float64{1, 2, 3, 4, 5, 10},
		}, []string{"outcome"}),
	}
}

// RecordDecision is a convenience wrapper so call sites don't need to
// nil-check r.Retry themselves.
func (r *Retry) RecordDecision(reason, decision string) {
	if r == nil {
		return
	}
	r.Decisions.WithLabelValues(reason, decision).Inc()
}

// RecordBackoff records a scheduled backoff duration in seconds.
func (r *Retry) RecordBackoff(reason string, seconds float64) {
	if r == nil {
		return
	}
	r.Backoff.WithLabelValues(reason).Observe(seconds)
}

// RecordAttempts records the final attempt count for a completed operation.
func (r *Retry) RecordAttempts(outcome string, attempts int) {
	if r == nil {
		return
	}
	r.Attempts.WithLabelValues(outcome).Observe(float64(attempts))
}
