package meridian

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/meridiandb/meridian-go/internal/kvengine"
	"github.com/meridiandb/meridian-go/internal/partition"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/internal/wire"
	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

// collectionOutdatedBackoff is the fixed wait between collection
// resolution retries after unknown_collection, per spec.md §4.3: "A
// unknown_collection status ... invalidates the cache entry, waits a
// fixed 500 ms backoff, and retries until the deadline expires" — a
// flat delay rather than the orchestrator's exponential curve, since a
// manifest push is a discrete event the backoff is waiting out, not a
// congested resource to back off from.
const collectionOutdatedBackoff = 500 * time.Millisecond

// Dialer opens a raw transport connection to a node's key-value port —
// injected so tests can substitute an in-memory pipe for a real
// net.Dial, and so TLS dialing lives at the call site rather than
// inside this package.
type Dialer func(ctx context.Context, hostname string, port uint16) (net.Conn, error)

// queuedRequest is one Submit call queued while the bucket awaits its
// first configuration, per spec.md §4.5: "Submissions arriving before
// the bootstrap callback fires are queued and drained in FIFO order."
type queuedRequest struct {
	ctx    context.Context
	op     KVOp
	result chan kvOutcome
}

type kvOutcome struct {
	frame *wire.Frame
	ctx   OperationContext
	err   error
}

// Bucket owns one key-value session per node of its cluster map and
// routes each key to the session owning its partition (spec component
// C5).
type Bucket struct {
	name   string
	dialer Dialer

	mu       sync.RWMutex
	config   *ClusterConfig
	sessions map[int]*kvengine.Session // node index -> session
	queue    []*queuedRequest

	orchestrator *retry.Orchestrator
	sessOpts     kvengine.Options
	log          *slog.Logger
	m            *metrics.Registry
}

// BucketOptions configures a Bucket's sessions and retry policy.
type BucketOptions struct {
	Username string
	Password string
	Dialer   Dialer
	Logger   *slog.Logger
	Metrics  *metrics.Registry
	Retry    retry.Policy
}

func newBucket(name string, opts BucketOptions) *Bucket {
	retryPolicy := opts.Retry
	retryPolicy.Logger = opts.Logger
	retryPolicy.Metrics = func() *metrics.Retry {
		if opts.Metrics == nil {
			return nil
		}
		return opts.Metrics.Retry
	}()

	return &Bucket{
		name:         name,
		dialer:       opts.Dialer,
		sessions:     make(map[int]*kvengine.Session),
		orchestrator: retry.New(retryPolicy),
		sessOpts: kvengine.Options{
			Username:   opts.Username,
			Password:   opts.Password,
			BucketName: name,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		},
		log: logger.OrDefault(opts.Logger).With("bucket", name),
		m:   opts.Metrics,
	}
}

// Bootstrap opens the bucket's first session against seedHost/seedPort
// and, once its handshake supplies a configuration, opens sessions to
// every other node it names (spec.md §4.5).
func (b *Bucket) Bootstrap(ctx context.Context, seedHost string, seedPort uint16) error {
	conn, err := b.dialer(ctx, seedHost, seedPort)
	if err != nil {
		return fmt.Errorf("meridian: dial seed node for bucket %q: %w", b.name, err)
	}

	opts := b.sessOpts
	opts.OnConfig = func(n kvengine.ClusterConfigNotification) { b.onConfig(ctx, n) }
	session := kvengine.New(conn, opts)
	go session.Run()

	if _, err := session.Bootstrap(ctx); err != nil {
		session.Close()
		return fmt.Errorf("meridian: bootstrap bucket %q: %w", b.name, err)
	}

	b.mu.Lock()
	b.sessions[0] = session
	b.mu.Unlock()
	return nil
}

// onConfig installs a newly-received configuration (from handshake,
// server push, or a not_my_vbucket body) if it supersedes the current
// one, opens sessions to any newly-named nodes, and drains the queue.
func (b *Bucket) onConfig(ctx context.Context, n kvengine.ClusterConfigNotification) {
	cfg, err := DecodeClusterConfig(n.Body)
	if err != nil {
		b.log.Warn("discarding unparsable configuration", "source", n.SourceHost, "error", err)
		return
	}

	b.mu.Lock()
	if !cfg.Supersedes(b.config) {
		b.mu.Unlock()
		return
	}
	b.config = cfg
	missing := make([]int, 0)
	for i := range cfg.Nodes {
		if _, ok := b.sessions[i]; !ok {
			missing = append(missing, i)
		}
	}
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, idx := range missing {
		go b.openNode(ctx, idx)
	}
	for _, q := range queued {
		go b.dispatch(q.ctx, q.op, q.result)
	}
}

func (b *Bucket) openNode(ctx context.Context, nodeIndex int) {
	b.mu.RLock()
	cfg := b.config
	b.mu.RUnlock()
	if cfg == nil || nodeIndex >= len(cfg.Nodes) {
		return
	}
	node := cfg.Nodes[nodeIndex]

	conn, err := b.dialer(ctx, node.Hostname, node.KV.Plain)
	if err != nil {
		b.log.Warn("failed to dial additional node", "node", node.Hostname, "error", err)
		return
	}
	opts := b.sessOpts
	opts.OnConfig = func(n kvengine.ClusterConfigNotification) { b.onConfig(ctx, n) }
	session := kvengine.New(conn, opts)
	go session.Run()
	if _, err := session.Bootstrap(ctx); err != nil {
		b.log.Warn("failed to bootstrap additional node", "node", node.Hostname, "error", err)
		session.Close()
		return
	}

	b.mu.Lock()
	b.sessions[nodeIndex] = session
	b.mu.Unlock()
}

// Submit routes op by key to the session owning its partition,
// applying the retry orchestrator's decisions until success, surface,
// or deadline. Grounded on spec.md §4.5's routing rule and §4.7's
// retry table.
func (b *Bucket) Submit(ctx context.Context, op KVOp) (*wire.Frame, OperationContext, error) {
	result := make(chan kvOutcome, 1)
	b.dispatch(ctx, op, result)
	select {
	case out := <-result:
		return out.frame, out.ctx, out.err
	case <-ctx.Done():
		return nil, OperationContext{}, ctx.Err()
	}
}

func (b *Bucket) dispatch(ctx context.Context, op KVOp, result chan kvOutcome) {
	b.mu.RLock()
	cfg := b.config
	b.mu.RUnlock()

	if cfg == nil {
		b.mu.Lock()
		b.queue = append(b.queue, &queuedRequest{ctx: ctx, op: op, result: result})
		b.mu.Unlock()
		return
	}

	partitionID := partition.Of(op.Key(), len(cfg.Partitions))
	nodeIndex := cfg.Partitions.ActiveNode(partitionID)
	if nodeIndex < 0 {
		b.mu.Lock()
		b.queue = append(b.queue, &queuedRequest{ctx: ctx, op: op, result: result})
		b.mu.Unlock()
		return
	}

	b.mu.RLock()
	session, ok := b.sessions[nodeIndex]
	b.mu.RUnlock()
	if !ok {
		b.mu.Lock()
		b.queue = append(b.queue, &queuedRequest{ctx: ctx, op: op, result: result})
		b.mu.Unlock()
		return
	}

	go b.runWithRetry(ctx, session, op, partitionID, result)
}

// runWithRetry drives one operation through Dispatch, Classify, and
// the orchestrator's Decide loop until it surfaces or succeeds. On a
// kv_not_my_vbucket remap it re-resolves the route and re-dispatches
// against the (possibly different) owning session — spec.md §4.3's
// not-my-partition handling and §9's decision to count a remap as a
// retry attempt (REDESIGN FLAG R3).
func (b *Bucket) runWithRetry(ctx context.Context, session *kvengine.Session, op KVOp, partitionID int, result chan kvOutcome) {
	opCtx := OperationContext{}
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(30 * time.Second)
	}

	frame, err := b.encodeAndDispatch(ctx, session, op, partitionID, deadline)
	for {
		if err != nil {
			result <- kvOutcome{ctx: opCtx, err: err}
			return
		}

		opCtx.StatusCode = frame.Status()
		opCtx.LastDispatchedTo = session.ID.String()

		reason := kvengine.Classify(frame.Status(), session.ErrorMap())
		opCtx.RetryReasons = append(opCtx.RetryReasons, reason)

		if reason == retry.ReasonUnknown {
			result <- kvOutcome{frame: frame, ctx: opCtx}
			return
		}

		decision := b.orchestrator.Decide(reason, op.Idempotent())
		switch decision {
		case retry.DecisionSurface:
			result <- kvOutcome{frame: frame, ctx: opCtx, err: NewOperationError(statusToErrorCode(frame.Status()), "operation surfaced by retry policy").WithContext(opCtx)}
			return
		case retry.DecisionRemapAndRetry:
			opCtx.RetryAttempts++
			if reason == retry.ReasonKVCollectionOutdated {
				if path := op.CollectionPath(); path != "" {
					session.Collections().Invalidate(path)
				}
				if !b.waitFixedBackoff(ctx, collectionOutdatedBackoff, deadline) {
					result <- kvOutcome{ctx: opCtx, err: fmt.Errorf("meridian: collection resolution deadline exceeded for %q", op.CollectionPath())}
					return
				}
				frame, err = b.encodeAndDispatch(ctx, session, op, partitionID, deadline)
				break
			}
			if throttleErr := b.orchestrator.Throttle(ctx); throttleErr != nil {
				result <- kvOutcome{ctx: opCtx, err: throttleErr}
				return
			}
			if reason == retry.ReasonKVNotMyVBucket && len(frame.Value) > 0 {
				b.onConfig(ctx, kvengine.ClusterConfigNotification{Body: frame.Value, SourceHost: session.ID.String()})
			}
			newSession, newPartition, ok := b.resolveSession(op)
			if !ok {
				result <- kvOutcome{ctx: opCtx, err: fmt.Errorf("meridian: no session available to remap operation")}
				return
			}
			session, partitionID = newSession, newPartition
			frame, err = b.encodeAndDispatch(ctx, session, op, partitionID, deadline)
		case retry.DecisionRetry:
			opCtx.RetryAttempts++
			if throttleErr := b.orchestrator.Throttle(ctx); throttleErr != nil {
				result <- kvOutcome{ctx: opCtx, err: throttleErr}
				return
			}
			delay := b.orchestrator.NextDelay(opCtx.RetryAttempts-1, reason)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				result <- kvOutcome{ctx: opCtx, err: ctx.Err()}
				return
			}
			frame, err = b.encodeAndDispatch(ctx, session, op, partitionID, deadline)
		}
	}
}

// waitFixedBackoff blocks for delay, or until ctx is done, returning
// false if the wait was cut short or the session's deadline has
// already passed by the time it wakes.
func (b *Bucket) waitFixedBackoff(ctx context.Context, delay time.Duration, deadline time.Time) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return time.Now().Before(deadline)
	case <-ctx.Done():
		return false
	}
}

func (b *Bucket) resolveSession(op KVOp) (*kvengine.Session, int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.config == nil {
		return nil, 0, false
	}
	partitionID := partition.Of(op.Key(), len(b.config.Partitions))
	nodeIndex := b.config.Partitions.ActiveNode(partitionID)
	if nodeIndex < 0 {
		return nil, 0, false
	}
	session, ok := b.sessions[nodeIndex]
	return session, partitionID, ok
}

// encodeAndDispatch resolves the operation's collection (if needed),
// encodes it, and sends it on session.
func (b *Bucket) encodeAndDispatch(ctx context.Context, session *kvengine.Session, op KVOp, partitionID int, deadline time.Time) (*wire.Frame, error) {
	var collectionID uint32
	if path := op.CollectionPath(); path != "" {
		id, hit := session.Collections().Get(path)
		if hit {
			collectionID = id
		} else {
			resolved, err := b.resolveCollection(ctx, session, path, deadline)
			if err != nil {
				return nil, err
			}
			collectionID = resolved
		}
	}

	extras, value, datatype, err := op.Encode(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	frame := &wire.Frame{
		Opcode:          op.Opcode(),
		Extras:          extras,
		Value:           value,
		Datatype:        datatype,
		Key:             op.Key(),
		VBucketOrStatus: uint16(partitionID),
	}
	frame.Value, frame.Datatype = wire.MaybeCompress(frame.Value, frame.Datatype, session.Features().Has(wire.FeatureSnappy))

	resp, err := session.Dispatch(ctx, frame, deadline)
	if err != nil {
		return nil, err
	}
	if resp.Status() == wire.StatusSuccess {
		if decodeErr := op.Decode(resp); decodeErr != nil {
			return resp, decodeErr
		}
	}
	return resp, nil
}

// resolveCollection sends get_collection_id for path and caches the
// result. A unknown_collection response means the manifest this
// session knows about hasn't caught up with the scope/collection yet
// (or it genuinely never existed) — per spec.md §4.3 this invalidates
// whatever stale entry the cache held for path and retries on a fixed
// 500ms backoff until deadline, rather than surfacing immediately.
func (b *Bucket) resolveCollection(ctx context.Context, session *kvengine.Session, path string, deadline time.Time) (uint32, error) {
	for {
		frame := &wire.Frame{Opcode: wire.OpGetCollectionID, Key: []byte(path)}
		resp, err := session.Dispatch(ctx, frame, deadline)
		if err != nil {
			return 0, err
		}
		if resp.Status() == wire.StatusSuccess {
			id, err := decodeCollectionID(resp)
			if err != nil {
				return 0, err
			}
			session.Collections().Put(path, id)
			return id, nil
		}
		if resp.Status() != wire.StatusUnknownCollection {
			return 0, fmt.Errorf("meridian: resolve collection %q: status %s", path, resp.Status())
		}

		session.Collections().Invalidate(path)
		if !b.waitFixedBackoff(ctx, collectionOutdatedBackoff, deadline) {
			if uid, uidErr := session.CollectionsManifestUID(ctx); uidErr == nil {
				b.log.Warn("giving up resolving collection before deadline", "path", path, "manifest_uid", uid)
			}
			return 0, fmt.Errorf("meridian: resolve collection %q: deadline exceeded", path)
		}
	}
}

func decodeCollectionID(resp *wire.Frame) (uint32, error) {
	if len(resp.Extras) < 4 {
		return 0, fmt.Errorf("meridian: get_collection_id response too short")
	}
	n := len(resp.Extras)
	return uint32(resp.Extras[n-4])<<24 | uint32(resp.Extras[n-3])<<16 |
		uint32(resp.Extras[n-2])<<8 | uint32(resp.Extras[n-1]), nil
}

// diagnostics reports a point-in-time snapshot of every node session
// this bucket currently holds, for Cluster.Diagnostics.
func (b *Bucket) diagnostics() []EndpointDiagnostic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]EndpointDiagnostic, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, EndpointDiagnostic{
			Service:      ServiceKeyValue,
			ID:           s.ID.String(),
			Remote:       s.RemoteAddr(),
			Local:        s.LocalAddr(),
			State:        kvSessionState(s.State()),
			Bucket:       s.BucketName(),
			LastActivity: s.LastActivity(),
		})
	}
	return out
}

// Close drains every session with a non-retry reason so callers see
// deterministic cancellation, per spec.md §4.5.
func (b *Bucket) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		s.Close()
	}
	b.sessions = make(map[int]*kvengine.Session)
}
