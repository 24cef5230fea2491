package kvengine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/meridiandb/meridian-go/internal/errmap"
	"github.com/meridiandb/meridian-go/internal/scram"
	"github.com/meridiandb/meridian-go/internal/wire"
	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

// defaultMaxInFlight bounds the opaque table; spec.md §3 requires a
// ceiling so a wrapped 32-bit opaque counter can never alias a still-
// pending operation.
const defaultMaxInFlight = 16384

// ClusterConfigNotification carries a server-pushed or handshake-
// fetched cluster configuration body up to the owning Bucket/Cluster,
// which owns JSON decoding and version comparison — kept out of this
// package to avoid an import cycle with the root package.
type ClusterConfigNotification struct {
	Body       []byte
	SourceHost string
}

// Options configures a Session's behavior and collaborators.
type Options struct {
	Username     string
	Password     string
	BucketName   string // empty for the cluster-level config-only session
	MaxInFlight  int
	DialTimeout  time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Registry
	OnConfig     func(ClusterConfigNotification)
}

// Session is one long-lived connection to one node (spec component
// C3). It owns the handshake state machine, the opaque dispatch table,
// the negotiated feature set, the error map, and the collection-id
// cache.
type Session struct {
	ID uuid.UUID

	conn   net.Conn
	reader *bufio.Reader

	mu    sync.Mutex
	state State

	nextOpaque uint32
	dispatch   *dispatchTable
	collections *CollectionCache

	features FeatureSetHolder
	errorMap *errmap.Map

	writeCh chan []byte
	closeCh chan struct{}
	closeOnce sync.Once

	lastActivity atomic.Int64 // unix nanoseconds

	opts Options
	log  *slog.Logger
	m    *metrics.Registry
}

// FeatureSetHolder is a thin indirection so tests can construct a
// Session without importing internal/wire directly in this file's
// field declarations; it is always a wire.FeatureSet at runtime.
type FeatureSetHolder = wire.FeatureSet

// New constructs a Session around an already-established net.Conn (the
// caller owns DNS resolution and TLS negotiation — spec.md §4.3 step 2
// — before handing the socket to New).
func New(conn net.Conn, opts Options) *Session {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}

	s := &Session{
		ID:          uuid.New(),
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, 64*1024),
		state:       StateConnecting,
		dispatch:    newDispatchTable(maxInFlight),
		collections: NewCollectionCache(),
		writeCh:     make(chan []byte, 256),
		closeCh:     make(chan struct{}),
		opts:        opts,
		m:           opts.Metrics,
	}
	s.log = logger.OrDefault(opts.Logger).With("session_id", s.ID.String())
	return s
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.log.Debug("session state transition", "state", state.String())
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bootstrap drives the handshake state machine to completion: Hello,
// error-map fetch, SASL authentication, optional bucket selection, and
// finally a configuration fetch — spec.md §4.3's numbered transition
// list. The reader and writer loops must already be running (Run)
// before Bootstrap is called, since handshake messages flow through
// the same dispatch path as ordinary operations.
func (s *Session) Bootstrap(ctx context.Context) (*wire.FeatureSet, error) {
	s.setState(StateHandshaking)

	features, err := s.hello(ctx)
	if err != nil {
		s.recordHandshake("hello_failed")
		return nil, fmt.Errorf("kvengine: hello: %w", err)
	}
	fs := wire.NewFeatureSet(features)
	s.mu.Lock()
	s.features = fs
	s.mu.Unlock()

	em, err := s.fetchErrorMap(ctx)
	if err != nil {
		s.recordHandshake("error_map_failed")
		return nil, fmt.Errorf("kvengine: error map: %w", err)
	}
	s.mu.Lock()
	s.errorMap = em
	s.mu.Unlock()

	s.setState(StateAuthenticating)
	offeredMechanisms, err := s.listSASLMechanisms(ctx)
	if err != nil {
		s.recordHandshake("list_mechanisms_failed")
		return nil, fmt.Errorf("kvengine: list SASL mechanisms: %w", err)
	}
	mechanism, ok := scram.BestMechanism(offeredMechanisms)
	if !ok {
		s.recordHandshake("no_compatible_mechanism")
		return nil, fmt.Errorf("kvengine: no compatible SASL mechanism offered by server")
	}
	if err := s.authenticate(ctx, mechanism); err != nil {
		s.recordHandshake("auth_failed")
		return nil, fmt.Errorf("kvengine: authentication: %w", err)
	}

	if s.opts.BucketName != "" {
		s.setState(StateSelectingBucket)
		if err := s.selectBucket(ctx, s.opts.BucketName); err != nil {
			s.recordHandshake("select_bucket_failed")
			return nil, fmt.Errorf("kvengine: select bucket: %w", err)
		}
	}

	if err := s.fetchClusterConfig(ctx); err != nil {
		s.recordHandshake("config_fetch_failed")
		return nil, fmt.Errorf("kvengine: fetch cluster config: %w", err)
	}

	s.setState(StateReady)
	s.recordHandshake("ready")
	return &fs, nil
}

func (s *Session) recordHandshake(result string) {
	if s.m == nil || s.m.KV == nil {
		return
	}
	s.m.KV.HandshakeTotal.WithLabelValues(result).Inc()
}

// Run starts the session's reader and writer goroutines. It returns
// once both have exited (on socket error or Close).
func (s *Session) Run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.runWriter() }()
	go func() { defer wg.Done(); s.runReader() }()
	wg.Wait()
}

func (s *Session) runWriter() {
	for {
		select {
		case buf := <-s.writeCh:
			if _, err := s.conn.Write(buf); err != nil {
				s.log.Warn("write failed, closing session", "error", err)
				s.Close()
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) runReader() {
	for {
		header := make([]byte, wire.HeaderLen)
		if _, err := io.ReadFull(s.reader, header); err != nil {
			if err != io.EOF {
				s.log.Warn("read header failed", "error", err)
			}
			s.Close()
			return
		}

		frame, bodyLen, err := wire.DecodeHeader(header)
		if err != nil {
			// spec.md §4.2: an invalid magic byte makes the stream
			// unrecoverable at frame boundaries.
			s.log.Error("invalid frame magic, closing session", "error", err)
			s.Close()
			return
		}

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(s.reader, body); err != nil {
			s.log.Warn("read body failed", "error", err)
			s.Close()
			return
		}
		if err := wire.DecodeBody(frame, body); err != nil {
			s.log.Warn("decode body failed", "error", err)
			s.Close()
			return
		}

		s.route(frame)
	}
}

// route dispatches a decoded response frame to the pending operation
// its opaque identifies, or to configuration handling for a server-
// pushed frame, per spec.md §4.3's dispatch rules.
func (s *Session) route(frame *wire.Frame) {
	s.lastActivity.Store(time.Now().UnixNano())
	if frame.IsServerPush() {
		s.handleServerPush(frame)
		return
	}

	op, ok := s.dispatch.remove(frame.Opaque)
	if !ok {
		s.log.Warn("discarding response for unknown opaque", "opaque", frame.Opaque)
		return
	}
	op.complete(frame, nil)
}

func (s *Session) handleServerPush(frame *wire.Frame) {
	if frame.Opcode == wire.OpGetClusterConfig && s.opts.OnConfig != nil {
		s.opts.OnConfig(ClusterConfigNotification{Body: frame.Value, SourceHost: s.conn.RemoteAddr().String()})
		return
	}
	// Server clock/status ping: spec.md §4.3 names this as the other
	// server-pushed frame kind; no action needed beyond having read it
	// off the wire (which keeps the stream aligned).
}

// nextOpaqueValue returns a fresh opaque value for a new request.
func (s *Session) nextOpaqueValue() uint32 {
	return atomic.AddUint32(&s.nextOpaque, 1)
}

// Close tears the session down, failing every pending operation with
// ErrSessionClosed, per spec.md §5.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.closeCh)
		_ = s.conn.Close()
		for _, op := range s.dispatch.drain() {
			op.complete(nil, ErrSessionClosed)
		}
		s.setState(StateClosed)
	})
}

// InFlightCount reports how many operations are currently pending —
// exposed for metrics gauges and tests.
func (s *Session) InFlightCount() int { return s.dispatch.len() }

// Features returns the negotiated feature set (valid once Bootstrap
// has completed the Hello step).
func (s *Session) Features() wire.FeatureSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features
}

// ErrorMap returns the handshake-fetched error map.
func (s *Session) ErrorMap() *errmap.Map {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMap
}

// Collections returns the session's collection-id cache.
func (s *Session) Collections() *CollectionCache { return s.collections }

// LastActivity reports when this session last routed a frame off the
// wire, for diagnostics reporting. The zero Time means none yet.
func (s *Session) LastActivity() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// RemoteAddr returns the underlying connection's remote address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// LocalAddr returns the underlying connection's local address.
func (s *Session) LocalAddr() string { return s.conn.LocalAddr().String() }

// BucketName returns the bucket this session was opened against, or
// "" for a config-only session.
func (s *Session) BucketName() string { return s.opts.BucketName }
