package meridian

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/meridiandb/meridian-go/internal/connstr"
	"github.com/meridiandb/meridian-go/internal/httpclient"
	"github.com/meridiandb/meridian-go/internal/kvengine"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

// Network selects which of a node's address records a Cluster uses:
// the cluster's own view of itself, or the alternate set meant for
// clients outside that network — spec.md §4.6's "discovers the
// effective network" behavior.
type Network string

const (
	NetworkDefault  Network = "default"
	NetworkExternal Network = "external"
	NetworkAuto     Network = "auto"
)

// Options configures a Cluster beyond what the connection string
// itself carries.
type Options struct {
	Network     Network
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Registry
	Retry       retry.Policy
}

// Cluster is the top-level object spec.md §4.6 describes: it opens a
// configuration session, owns the HTTP session pools, lazily opens
// buckets, and exposes the public Submit dispatch.
type Cluster struct {
	origin *connstr.Origin
	parsed *connstr.Parsed
	opts   Options

	configSession *kvengine.Session
	network       Network

	mu      sync.RWMutex
	buckets map[string]*Bucket
	http    map[string]*httpclient.Pool
	latest  *ClusterConfig

	orchestrator *retry.Orchestrator
	log          *slog.Logger
	m            *metrics.Registry
}

// Connect parses connectionString, establishes the configuration
// session against the first reachable seed, and returns a ready
// Cluster. Per spec.md §4.6, if the deployment does not advertise a
// global configuration from the seed-only session, the first bucket
// open supplies it instead — Connect does not treat a configuration
// session failure as fatal on its own.
func Connect(ctx context.Context, connectionString, username, password string, opts Options) (*Cluster, error) {
	parsed, err := connstr.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("meridian: parse connection string: %w", err)
	}
	for _, w := range parsed.Warnings {
		logger.OrDefault(opts.Logger).Warn("connection string parse warning", "field", w.Field, "message", w.Message)
	}

	origin := connstr.NewOrigin(username, password, parsed)

	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Network == "" {
		opts.Network = NetworkAuto
	}

	retryPolicy := opts.Retry
	retryPolicy.Logger = opts.Logger
	retryPolicy.Metrics = func() *metrics.Retry {
		if opts.Metrics == nil {
			return nil
		}
		return opts.Metrics.Retry
	}()

	c := &Cluster{
		origin:       origin,
		parsed:       parsed,
		opts:         opts,
		network:      opts.Network,
		buckets:      make(map[string]*Bucket),
		http:         make(map[string]*httpclient.Pool),
		orchestrator: retry.New(retryPolicy),
		log:          logger.OrDefault(opts.Logger).With("component", "cluster"),
		m:            opts.Metrics,
	}

	if err := c.bootstrapConfigSession(ctx, username, password); err != nil {
		c.log.Warn("configuration-only session unavailable; first bucket open will bootstrap instead", "error", err)
	}

	return c, nil
}

func (c *Cluster) dialer(ctx context.Context, hostname string, port uint16) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	address := fmt.Sprintf("%s:%d", hostname, port)
	if c.parsed.TLS {
		d := &tls.Dialer{Config: c.opts.TLSConfig}
		return d.DialContext(dialCtx, "tcp", address)
	}
	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", address)
}

func (c *Cluster) bootstrapConfigSession(ctx context.Context, username, password string) error {
	addr, err := c.origin.Next(ctx)
	if err != nil {
		return err
	}
	conn, err := c.dialer(ctx, addr.Host, addr.Port)
	if err != nil {
		return err
	}

	opts := kvengine.Options{
		Username: username,
		Password: password,
		Logger:   c.opts.Logger,
		Metrics:  c.opts.Metrics,
		OnConfig: func(n kvengine.ClusterConfigNotification) {
			c.log.Debug("received configuration on config-only session", "source", n.SourceHost)
			c.applyConfig(n.Body)
		},
	}
	session := kvengine.New(conn, opts)
	go session.Run()
	if _, err := session.Bootstrap(ctx); err != nil {
		session.Close()
		return err
	}
	c.configSession = session
	return nil
}

// OpenBucket lazily opens (or returns the already-open) Bucket named
// name.
func (c *Cluster) OpenBucket(ctx context.Context, name string) (*Bucket, error) {
	c.mu.RLock()
	if b, ok := c.buckets[name]; ok {
		c.mu.RUnlock()
		return b, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if b, ok := c.buckets[name]; ok {
		c.mu.Unlock()
		return b, nil
	}

	bucket := newBucket(name, BucketOptions{
		Username: c.origin.Username(),
		Password: c.origin.Password(),
		Dialer:   c.dialer,
		Logger:   c.opts.Logger,
		Metrics:  c.opts.Metrics,
		Retry:    c.opts.Retry,
	})
	c.buckets[name] = bucket
	c.mu.Unlock()

	addr, err := c.origin.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("meridian: no seed address available to bootstrap bucket %q: %w", name, err)
	}
	if err := bucket.Bootstrap(ctx, addr.Host, addr.Port); err != nil {
		c.mu.Lock()
		delete(c.buckets, name)
		c.mu.Unlock()
		return nil, err
	}
	return bucket, nil
}

// httpPool returns (creating if necessary) the pool for service,
// seeded from the configuration session's most recent node list if
// one is available.
func (c *Cluster) httpPool(service string) *httpclient.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.http[service]; ok {
		return p
	}
	var poolMetrics *metrics.HTTPPool
	if c.m != nil {
		poolMetrics = c.m.HTTP
	}
	var endpoints []httpclient.Endpoint
	if c.latest != nil {
		endpoints = c.endpointsForServiceLocked(c.latest, service)
	}
	p := httpclient.New(httpclient.Service(service), endpoints, httpclient.Options{
		Username:    c.origin.Username(),
		Password:    c.origin.Password(),
		DialTimeout: c.opts.DialTimeout,
		TLSConfig:   c.opts.TLSConfig,
		Logger:      c.opts.Logger,
		Metrics:     poolMetrics,
	})
	c.http[service] = p
	return p
}

// PreparedStatementMode reports which query-service prepared-statement
// codepath (REDESIGN FLAG R2) the cluster's most recently observed
// configuration supports. Callers implementing a query HTTPOp consult
// this before encoding a PREPARE body for a statement they haven't
// cached a plan for. Before any configuration has arrived, it
// conservatively reports PreparedStatementExtractPlan.
func (c *Cluster) PreparedStatementMode() PreparedStatementMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest.PreparedStatementMode()
}

// applyConfig decodes a configuration body pushed by the config-only
// session (bucket sessions' configurations are not passed here) and, if it is newer
// than what Cluster already holds, refreshes the endpoint list of
// every open HTTP pool. Per spec.md §4.3's monotonic "adopt if newer"
// rule applied at cluster scope rather than per-bucket.
func (c *Cluster) applyConfig(body []byte) {
	cfg, err := DecodeClusterConfig(body)
	if err != nil {
		c.log.Warn("discarding unparseable cluster configuration", "error", err)
		return
	}

	c.mu.Lock()
	if c.latest != nil && !cfg.Supersedes(c.latest) {
		c.mu.Unlock()
		return
	}
	c.latest = cfg
	pools := make(map[string]*httpclient.Pool, len(c.http))
	for name, p := range c.http {
		pools[name] = p
	}
	c.mu.Unlock()

	for name, pool := range pools {
		pool.SetEndpoints(c.endpointsForService(cfg, name))
	}
}

// endpointsForService derives the dialable address list for service
// from cfg, honoring Network's selection between a node's own hostname
// and its alternate-network records (spec.md §4.6).
func (c *Cluster) endpointsForService(cfg *ClusterConfig, service string) []httpclient.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpointsForServiceLocked(cfg, service)
}

func (c *Cluster) endpointsForServiceLocked(cfg *ClusterConfig, service string) []httpclient.Endpoint {
	var endpoints []httpclient.Endpoint
	for _, n := range cfg.Nodes {
		host, ports := c.selectNode(n, service)
		tlsEnabled := c.parsed.TLS
		port := ports.Plain
		if tlsEnabled {
			port = ports.TLS
		}
		if host == "" || port == 0 {
			continue
		}
		endpoints = append(endpoints, httpclient.Endpoint{Host: host, Port: port, TLS: tlsEnabled})
	}
	return endpoints
}

// selectNode picks the hostname and service ports for n under the
// Cluster's configured Network. NetworkAuto has no live probe to
// decide with here, so it behaves like NetworkDefault unless an
// alternate network happens to be the only one advertised — a node
// that names zero ports on its own record but does carry an
// "external" alternate is assumed to require it.
func (c *Cluster) selectNode(n Node, service string) (string, ServicePorts) {
	own := nodeServicePorts(n, service)
	switch c.network {
	case NetworkExternal:
		if alt, ok := n.AlternateNetworks["external"]; ok {
			return alt.Hostname, nodeServicePorts(alt, service)
		}
		return n.Hostname, own
	case NetworkAuto:
		if own.Plain == 0 && own.TLS == 0 {
			if alt, ok := n.AlternateNetworks["external"]; ok {
				return alt.Hostname, nodeServicePorts(alt, service)
			}
		}
		return n.Hostname, own
	default:
		return n.Hostname, own
	}
}

func nodeServicePorts(n Node, service string) ServicePorts {
	switch service {
	case "query":
		return n.Query
	case "analytics", "analytics_priority":
		// The priority pool dials the same analytics service port; only
		// the pool identity and the request header differ (spec.md
		// §4.4's sixth, independent service family).
		return n.Analytics
	case "search":
		return n.Search
	case "views":
		return n.Views
	case "management":
		return n.Management
	default:
		return ServicePorts{}
	}
}

// Submit dispatches op per its ServiceTag: key-value-like requests
// route through the named bucket (failing with ErrCommonBucketNotFound if it
// cannot be opened); HTTP requests check out a pooled session for the
// op's service (failing with ErrCommonServiceNotAvailable if none is
// configured). Grounded on spec.md §4.6's typed submit description.
func (c *Cluster) Submit(ctx context.Context, bucketName string, op Op) (interface{}, error) {
	switch o := op.(type) {
	case KVOp:
		bucket, err := c.OpenBucket(ctx, bucketName)
		if err != nil {
			return nil, NewOperationError(ErrCommonBucketNotFound, err.Error()).WithCause(err)
		}
		frame, opCtx, err := bucket.Submit(ctx, o)
		if err != nil {
			if opErr, ok := err.(*OperationError); ok {
				return nil, opErr
			}
			return nil, NewOperationError(ErrCommonInternal, err.Error()).WithContext(opCtx).WithCause(err)
		}
		return frame, nil
	case HTTPOp:
		return c.submitHTTP(ctx, o)
	default:
		return nil, NewOperationError(ErrCommonInvalidArgument, "operation implements neither KVOp nor HTTPOp")
	}
}

// submitHTTP drives one HTTPOp through checkout, dispatch,
// classification, and the retry orchestrator's Decide loop until it
// surfaces or succeeds — the HTTP-side counterpart to bucket.go's
// runWithRetry, so query/analytics/search/views/management requests
// get the same backoff-and-retry treatment spec.md §4.7 requires of
// the key-value path. Grounded on document_query.hxx/
// document_analytics.hxx's error classification and
// io/retry_strategy.hxx's best_effort_retry_strategy loop.
func (c *Cluster) submitHTTP(ctx context.Context, o HTTPOp) (*http.Response, error) {
	serviceName, ok := o.Service().httpService()
	if !ok {
		return nil, NewOperationError(ErrCommonInvalidArgument, "operation does not name an HTTP service")
	}
	service := httpclient.Service(serviceName)
	pool := c.httpPool(serviceName)

	body, err := o.Body()
	if err != nil {
		return nil, NewOperationError(ErrCommonInvalidArgument, err.Error()).WithCause(err)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(30 * time.Second)
	}

	opCtx := OperationContext{}
	for {
		session, err := pool.Checkout(ctx)
		if err != nil {
			return nil, NewOperationError(ErrCommonServiceNotAvailable, err.Error()).WithContext(opCtx).WithCause(err)
		}

		resp, doErr := session.DoWithContentType(ctx, o.Method(), o.Path(), bytes.NewReader(body), o.ContentType())
		if doErr != nil {
			session.Release()
			// A context deadline firing mid-request is a genuine timeout,
			// not a dispatch failure to classify and retry — spec.md §8
			// Scenario 6: ambiguous for a non-idempotent op, unambiguous
			// for an idempotent one (the request may or may not have
			// reached the server either way, but an idempotent op is safe
			// to consider not-applied).
			if ctx.Err() != nil {
				code := ErrCommonTimeoutAmbiguous
				if o.Idempotent() {
					code = ErrCommonTimeoutUnambiguous
				}
				return nil, NewOperationError(code, doErr.Error()).WithContext(opCtx).WithCause(doErr)
			}

			reason := retry.ReasonSocketNotAvailable
			opCtx.RetryReasons = append(opCtx.RetryReasons, reason)
			if c.orchestrator.Decide(reason, o.Idempotent()) != retry.DecisionRetry {
				return nil, NewOperationError(ErrCommonServiceNotAvailable, doErr.Error()).WithContext(opCtx).WithCause(doErr)
			}
			opCtx.RetryAttempts++
			if !c.waitForHTTPRetry(ctx, opCtx.RetryAttempts-1, reason, deadline) {
				return nil, NewOperationError(ErrCommonTimeoutAmbiguous, "meridian: deadline exceeded waiting to retry").WithContext(opCtx)
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			decodeErr := o.DecodeResponse(resp)
			resp.Body.Close()
			session.Release()
			if decodeErr != nil {
				return nil, NewOperationError(ErrCommonInternal, decodeErr.Error()).WithContext(opCtx).WithCause(decodeErr)
			}
			return resp, nil
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		session.Release()

		cr := httpclient.Classify(service, resp.StatusCode, respBody)
		opCtx.RetryReasons = append(opCtx.RetryReasons, cr.Reason)
		if c.orchestrator.Decide(cr.Reason, o.Idempotent()) != retry.DecisionRetry {
			return nil, NewOperationError(httpErrorCode(service, cr), fmt.Sprintf("http status %d", resp.StatusCode)).WithContext(opCtx)
		}
		opCtx.RetryAttempts++
		if !c.waitForHTTPRetry(ctx, opCtx.RetryAttempts-1, cr.Reason, deadline) {
			return nil, NewOperationError(httpErrorCode(service, cr), "meridian: deadline exceeded waiting to retry").WithContext(opCtx)
		}
	}
}

// waitForHTTPRetry waits on the orchestrator's retry rate limit and
// then blocks for the reason's backoff delay, or until
// ctx is done, returning false if the wait was cut short or deadline
// has already passed by the time it wakes.
func (c *Cluster) waitForHTTPRetry(ctx context.Context, attempt int, reason retry.Reason, deadline time.Time) bool {
	if err := c.orchestrator.Throttle(ctx); err != nil {
		return false
	}
	delay := c.orchestrator.NextDelay(attempt, reason)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return time.Now().Before(deadline)
	case <-ctx.Done():
		return false
	}
}

// Close tears down every bucket, the configuration session, and every
// HTTP pool.
func (c *Cluster) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.buckets {
		b.Close()
	}
	for _, p := range c.http {
		p.Close()
	}
	if c.configSession != nil {
		c.configSession.Close()
	}
}
