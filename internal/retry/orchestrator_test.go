package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_AlwaysRetrySet(t *testing.T) {
	o := New(DefaultPolicy())

	for _, reason := range []Reason{ReasonKVNotMyVBucket, ReasonViewsNoActivePartition} {
		assert.Equal(t, DecisionRetry == o.Decide(reason, false) || DecisionRemapAndRetry == o.Decide(reason, false), true,
			"reason %s must retry regardless of idempotence", reason)
	}
	assert.Equal(t, DecisionRemapAndRetry, o.Decide(ReasonKVNotMyVBucket, false))
	assert.Equal(t, DecisionRemapAndRetry, o.Decide(ReasonKVCollectionOutdated, true))
}

func TestDecide_IdempotentOnly(t *testing.T) {
	o := New(DefaultPolicy())

	assert.Equal(t, DecisionRetry, o.Decide(ReasonKVTemporaryFailure, true))
	assert.Equal(t, DecisionSurface, o.Decide(ReasonKVTemporaryFailure, false))
	assert.Equal(t, DecisionRetry, o.Decide(ReasonCircuitBreakerOpen, true))
	assert.Equal(t, DecisionSurface, o.Decide(ReasonCircuitBreakerOpen, false))
}

func TestDecide_AlwaysSurface(t *testing.T) {
	o := New(DefaultPolicy())

	for _, reason := range []Reason{ReasonSocketClosedWhileInFlight, ReasonUnknown, ReasonDoNotRetry} {
		assert.Equal(t, DecisionSurface, o.Decide(reason, true), "reason %s", reason)
		assert.Equal(t, DecisionSurface, o.Decide(reason, false), "reason %s", reason)
	}
}

// Property: for idempotent=false, only reasons in the always-retry set
// produce a retry decision. This is the property spec.md §8 names
// explicitly for the retry orchestrator.
func TestDecide_NonIdempotentOnlyAlwaysRetrySetRetries(t *testing.T) {
	o := New(DefaultPolicy())

	all := []Reason{
		ReasonKVNotMyVBucket, ReasonKVCollectionOutdated, ReasonViewsNoActivePartition,
		ReasonServiceNotAvailable, ReasonNodeNotAvailable, ReasonSocketNotAvailable,
		ReasonKVErrorMapRetryIndicated, ReasonKVLocked, ReasonKVTemporaryFailure,
		ReasonKVSyncWriteInProgress, ReasonKVSyncWriteReCommitInProgress,
		ReasonServiceResponseCodeIndicated, ReasonCircuitBreakerOpen,
		ReasonQueryPreparedStatementFailure, ReasonQueryIndexNotFound,
		ReasonAnalyticsTemporaryFailure, ReasonSearchTooManyRequests,
		ReasonViewsTemporaryFailure, ReasonSocketClosedWhileInFlight,
		ReasonUnknown, ReasonDoNotRetry,
	}

	for _, reason := range all {
		decision := o.Decide(reason, false)
		if decision != DecisionSurface {
			assert.True(t, alwaysRetry[reason], "reason %s retried while idempotent=false but isn't in the always-retry set", reason)
		}
	}
}

func TestNextDelay_ExponentialWithCap(t *testing.T) {
	o := New(Policy{BaseDelay: time.Millisecond, Multiplier: 2.0, MaxDelay: 500 * time.Millisecond, Jitter: false})

	assert.Equal(t, time.Millisecond, o.NextDelay(0, ReasonKVTemporaryFailure))
	assert.Equal(t, 2*time.Millisecond, o.NextDelay(1, ReasonKVTemporaryFailure))
	assert.Equal(t, 4*time.Millisecond, o.NextDelay(2, ReasonKVTemporaryFailure))

	// Cap at MaxDelay regardless of how many attempts.
	assert.Equal(t, 500*time.Millisecond, o.NextDelay(20, ReasonKVTemporaryFailure))
}

func TestSchedule_FiresAndCancels(t *testing.T) {
	o := New(Policy{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second})

	fired := make(chan struct{}, 1)
	cancel := o.Schedule(context.Background(), 5*time.Millisecond, func() { fired <- struct{}{} })
	defer cancel()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled retry never fired")
	}
}

func TestSchedule_CancelPreventsFire(t *testing.T) {
	o := New(DefaultPolicy())

	fired := make(chan struct{}, 1)
	cancel := o.Schedule(context.Background(), 50*time.Millisecond, func() { fired <- struct{}{} })
	cancel()

	select {
	case <-fired:
		t.Fatal("cancelled schedule fired anyway")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedule_ContextCancellation(t *testing.T) {
	o := New(DefaultPolicy())
	ctx, cancelCtx := context.WithCancel(context.Background())

	fired := make(chan struct{}, 1)
	cancel := o.Schedule(ctx, 50*time.Millisecond, func() { fired <- struct{}{} })
	defer cancel()
	cancelCtx()

	select {
	case <-fired:
		t.Fatal("context-cancelled schedule fired anyway")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIsIdempotentOpcode(t *testing.T) {
	require.False(t, IsIdempotentOpcode(0x01))
	RegisterIdempotentOpcode(0x0c) // an opcode not yet in the set
	require.True(t, IsIdempotentOpcode(0x0c))
}
