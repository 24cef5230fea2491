package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

// Decision is the outcome of classifying a (Reason, idempotent) pair.
type Decision int

const (
	// DecisionSurface means the caller's handler must be invoked with the
	// failure now; no further attempt will be made.
	DecisionSurface Decision = iota
	// DecisionRetry means the same request should be re-dispatched to the
	// same target after the scheduled backoff.
	DecisionRetry
	// DecisionRemapAndRetry means the request must be recomputed against
	// the latest cluster configuration (new node, possibly new
	// partition owner) before being re-dispatched.
	DecisionRemapAndRetry
)

// Policy configures the backoff curve. Matches spec.md §4.7: base 1ms,
// factor 2, cap 500ms, by default.
type Policy struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool

	// MaxConcurrentRetries sets a token-bucket rate limit that Throttle
	// applies in front of the backoff wait: at most MaxConcurrentRetries
	// retries start per second, with a burst of the same size, shared by
	// every caller of the one Orchestrator built from this Policy. It
	// limits how fast retries start, not how many are in flight at once.
	// Zero disables the limit.
	MaxConcurrentRetries int

	Logger  *slog.Logger
	Metrics *metrics.Retry
}

// DefaultPolicy returns spec.md §4.7's backoff curve.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:  time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   500 * time.Millisecond,
		Jitter:     true,
	}
}

// Orchestrator is the retry decision engine shared by every session and
// bucket in a cluster. It holds no per-operation state — callers own the
// attempt counter and the backoff timer for their own pending operation
// (spec.md §3's "Pending operation" carries "a retry counter with the
// last-tried backoff") — the Orchestrator is pure policy.
type Orchestrator struct {
	policy  Policy
	log     *slog.Logger
	limiter *rate.Limiter
}

// New builds an Orchestrator. A nil *slog.Logger falls back to
// slog.Default(), matching every other constructor in this module.
func New(policy Policy) *Orchestrator {
	if policy.BaseDelay == 0 {
		policy = DefaultPolicy()
	}
	o := &Orchestrator{policy: policy, log: logger.OrDefault(policy.Logger)}
	if policy.MaxConcurrentRetries > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(policy.MaxConcurrentRetries), policy.MaxConcurrentRetries)
	}
	return o
}

// Throttle blocks until a retry token is available, or ctx is done. It
// is a no-op when the policy carries no MaxConcurrentRetries cap. A
// caller invokes this once per retry attempt, between Decide returning
// DecisionRetry/DecisionRemapAndRetry and arming the backoff timer.
func (o *Orchestrator) Throttle(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// Decide classifies reason against idempotent per spec.md §4.7's table.
func (o *Orchestrator) Decide(reason Reason, idempotent bool) Decision {
	d := o.decide(reason, idempotent)
	o.policy.Metrics.RecordDecision(reason.String(), decisionLabel(d))
	if d == DecisionSurface {
		o.log.Debug("retry orchestrator surfacing failure", "reason", reason, "idempotent", idempotent)
	}
	return d
}

func (o *Orchestrator) decide(reason Reason, idempotent bool) Decision {
	switch {
	case reason == ReasonDoNotRetry, reason == ReasonUnknown, reason == ReasonSocketClosedWhileInFlight:
		return DecisionSurface
	case alwaysRetry[reason]:
		if reason.Remaps() {
			return DecisionRemapAndRetry
		}
		return DecisionRetry
	case retryIfIdempotent[reason]:
		if idempotent {
			return DecisionRetry
		}
		return DecisionSurface
	default:
		return DecisionSurface
	}
}

func decisionLabel(d Decision) string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionRemapAndRetry:
		return "remap_and_retry"
	default:
		return "surface"
	}
}

// NextDelay computes the backoff duration for the attempt'th retry
// (0-indexed: the delay before the first retry is NextDelay(0)).
// Exponential with jitter, matching the teacher's calculateNextDelay.
func (o *Orchestrator) NextDelay(attempt int, reason Reason) time.Duration {
	delay := o.policy.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * o.policy.Multiplier)
		if delay > o.policy.MaxDelay {
			delay = o.policy.MaxDelay
			break
		}
	}
	if o.policy.Jitter {
		delay += time.Duration(rand.Float64() * 0.1 * float64(delay))
	}
	o.policy.Metrics.RecordBackoff(reason.String(), delay.Seconds())
	return delay
}

// Schedule arms a one-shot timer for the given delay and, unless ctx is
// cancelled first, invokes fn on its own goroutine when it fires. It
// returns a cancel function the caller must invoke if the operation
// completes or is cancelled before the timer fires, to release the timer.
// Schedule does not block its caller; the bucket and cluster retry loops
// do not use it and wait out their backoff inline instead.
func (o *Orchestrator) Schedule(ctx context.Context, delay time.Duration, fn func()) (cancel func()) {
	timer := time.NewTimer(delay)
	done := make(chan struct{})

	go func() {
		select {
		case <-timer.C:
			fn()
		case <-ctx.Done():
			timer.Stop()
		case <-done:
			timer.Stop()
		}
	}()

	return func() { close(done) }
}

// IsIdempotentOpcode reports whether an opcode has been added to this
// package's read-only set with RegisterIdempotentOpcode; the set starts
// empty. Callers combine this with their own explicit flag:
// idempotent := req.Idempotent || retry.IsIdempotentOpcode(req.Opcode).
func IsIdempotentOpcode(opcode byte) bool {
	return readOnlyOpcodes[opcode]
}

// RegisterIdempotentOpcode adds opcode to the read-only set. This package
// does not import wire, and wire does not register its own read-only
// opcodes here (it keeps them in wire.IsIdempotent).
func RegisterIdempotentOpcode(opcode byte) {
	readOnlyOpcodes[opcode] = true
}

var readOnlyOpcodes = map[byte]bool{}
