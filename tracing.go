package meridian

// RequestTracer is the extension point for per-operation tracing.
// Meridian ships no implementation — request tracing is out of scope
// (unlike the ambient metrics wired through pkg/metrics). Options has
// no tracer field and Submit starts no spans; the interface is only a
// type a caller can implement and call from their own code.
type RequestTracer interface {
	// StartSpan begins a span for an operation against the named
	// service and returns a handle whose End must be called exactly
	// once, regardless of outcome.
	StartSpan(service ServiceTag, opName string) RequestSpan
}

// RequestSpan is one in-flight traced operation.
type RequestSpan interface {
	End(err error)
}

// Meter is the extension point for a caller-supplied metering backend
// distinct from the ambient pkg/metrics registry — intended for
// operation-level counters a caller wants attributed to their own
// business dimensions rather than Meridian's internal ones.
type Meter interface {
	RecordOperation(service ServiceTag, opName string, durationSeconds float64, success bool)
}

// NoopTracer is a RequestTracer that does nothing.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ServiceTag, string) RequestSpan { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) End(error) {}

// NoopMeter is a Meter that does nothing.
type NoopMeter struct{}

func (NoopMeter) RecordOperation(ServiceTag, string, float64, bool) {}
