package kvengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridiandb/meridian-go/internal/wire"
)

// ResponseHandler is invoked exactly once per PendingOperation, either
// with a decoded frame or a terminal error (timeout, session teardown).
// Grounded on spec.md §4.3's dispatch description: "the reader loop...
// matches opaque to a handler, removes it, and invokes the handler".
type ResponseHandler func(frame *wire.Frame, err error)

// PendingOperation is the value held in the session's opaque table —
// spec.md §3's "pending operation": the wire opaque, an absolute
// deadline, the retry bookkeeping, and the one-shot handler.
type PendingOperation struct {
	Opaque        uint32
	Deadline      time.Time
	Request       *wire.Frame
	Idempotent    bool
	RetryAttempts int
	LastReason    string

	handler  ResponseHandler
	timer    *time.Timer
	cancelMu sync.Mutex
	done     bool
}

// complete invokes the handler exactly once; subsequent calls are
// no-ops, which is what makes concurrent timeout-vs-response races safe
// without a second lock at the call site.
func (p *PendingOperation) complete(frame *wire.Frame, err error) {
	p.cancelMu.Lock()
	if p.done {
		p.cancelMu.Unlock()
		return
	}
	p.done = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.cancelMu.Unlock()

	p.handler(frame, err)
}

// ErrSessionClosed is delivered to every still-pending operation's
// handler when a session is torn down, and returned by a dispatch on a
// session that is already closed. It is a plain error, not a timeout
// error: it is distinct from ErrOperationTimeout and carries no
// ambiguous/unambiguous classification.
var ErrSessionClosed = fmt.Errorf("kvengine: session closed")

// ErrOperationTimeout is delivered when a pending operation's deadline
// expires before a response (or retry completion) arrives.
var ErrOperationTimeout = fmt.Errorf("kvengine: operation deadline exceeded")

// dispatchTable is the opaque → PendingOperation map. It is guarded by
// a mutex rather than reserved to a single reactor goroutine: unlike
// the spec's single-threaded-reactor model, this port's reader loop and
// each operation's deadline timer run as independent goroutines, so the
// in-flight table — like the teacher's connection pools — is the one
// structure genuinely touched from more than one goroutine and needs
// its own lock.
type dispatchTable struct {
	mu      sync.Mutex
	ops     map[uint32]*PendingOperation
	maxSize int
}

func newDispatchTable(maxSize int) *dispatchTable {
	return &dispatchTable{ops: make(map[uint32]*PendingOperation), maxSize: maxSize}
}

// insert adds op to the table, or reports false if the table is at its
// configured ceiling — spec.md §3: "the in-flight table size is
// bounded by a configured ceiling so wraparound cannot alias."
func (t *dispatchTable) insert(op *PendingOperation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxSize > 0 && len(t.ops) >= t.maxSize {
		return false
	}
	t.ops[op.Opaque] = op
	return true
}

func (t *dispatchTable) remove(opaque uint32) (*PendingOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[opaque]
	if ok {
		delete(t.ops, opaque)
	}
	return op, ok
}

// drain removes and returns every pending operation, for session
// teardown.
func (t *dispatchTable) drain() []*PendingOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PendingOperation, 0, len(t.ops))
	for _, op := range t.ops {
		out = append(out, op)
	}
	t.ops = make(map[uint32]*PendingOperation)
	return out
}

func (t *dispatchTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// writeAndSubscribe registers op under its opaque and hands its wire
// bytes to the session's writer goroutine, arming a deadline timer that
// fires ErrOperationTimeout if no response (or retry) claims the
// operation first. Grounded on spec.md §4.3's write_and_subscribe.
func (s *Session) writeAndSubscribe(ctx context.Context, op *PendingOperation, encoded []byte) error {
	if !s.dispatch.insert(op) {
		return fmt.Errorf("kvengine: in-flight table full (opaque=%d)", op.Opaque)
	}

	delay := time.Until(op.Deadline)
	if delay <= 0 {
		s.dispatch.remove(op.Opaque)
		return ErrOperationTimeout
	}
	op.timer = time.AfterFunc(delay, func() {
		if removed, ok := s.dispatch.remove(op.Opaque); ok {
			removed.complete(nil, ErrOperationTimeout)
		}
	})

	select {
	case s.writeCh <- encoded:
		return nil
	case <-ctx.Done():
		s.dispatch.remove(op.Opaque)
		return ctx.Err()
	case <-s.closeCh:
		s.dispatch.remove(op.Opaque)
		return ErrSessionClosed
	}
}

// Dispatch sends frame and blocks for its matching response, or for
// ctx/deadline to expire, or for the session to close. Unlike the
// handshake-only doRequest helper, Dispatch returns the raw response
// frame regardless of status — callers (Bucket) run the response
// through Classify themselves to decide success/retry/surface. This
// is the public entry point a Bucket uses to drive an ordinary
// key-value operation (spec.md §4.3's "write_and_subscribe" as seen
// from outside the session).
func (s *Session) Dispatch(ctx context.Context, frame *wire.Frame, deadline time.Time) (*wire.Frame, error) {
	frame.Opaque = s.nextOpaqueValue()
	encoded, err := wire.EncodeRequest(frame)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan struct {
		frame *wire.Frame
		err   error
	}, 1)

	op := &PendingOperation{
		Opaque:   frame.Opaque,
		Deadline: deadline,
		Request:  frame,
		handler: func(f *wire.Frame, err error) {
			resultCh <- struct {
				frame *wire.Frame
				err   error
			}{f, err}
		},
	}

	if err := s.writeAndSubscribe(ctx, op, encoded); err != nil {
		return nil, err
	}

	select {
	case result := <-resultCh:
		return result.frame, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
