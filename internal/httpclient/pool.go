// Package httpclient implements the HTTP session & pool component
// (spec component C4): per-service connection pooling for the
// non-key-value services (query, analytics, search, views,
// management), grounded on
// original_source/ext/couchbase/io/http_session_manager.hxx's
// checkout/check-in state machine and the teacher's
// internal/database/postgres.PostgresPool for the Go shape of a
// pooled-resource manager (idle/busy bookkeeping, metrics, nil-safe
// logger).
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/meridiandb/meridian-go/pkg/logger"
	"github.com/meridiandb/meridian-go/pkg/metrics"
)

// Service names one of the HTTP-speaking cluster services a pool is
// dedicated to. spec.md §2 lists these alongside the KV session as
// the non-KV transports Meridian multiplexes.
type Service string

const (
	ServiceQuery     Service = "query"
	ServiceAnalytics Service = "analytics"
	// ServiceAnalyticsPriority is its own pool, independent of
	// ServiceAnalytics, for analytics requests that must carry the
	// "analytics-priority" header — a priority-tagged request sharing
	// connections (and therefore backpressure) with ordinary analytics
	// traffic would defeat the point of prioritizing it.
	ServiceAnalyticsPriority Service = "analytics_priority"
	ServiceSearch            Service = "search"
	ServiceViews             Service = "views"
	ServiceManagement        Service = "management"
)

// isAnalytics reports whether service is either analytics pool —
// ordinary or priority — for callers that branch on analytics-specific
// behavior (request headers, failure classification) regardless of
// which pool a given session came from.
func (s Service) isAnalytics() bool {
	return s == ServiceAnalytics || s == ServiceAnalyticsPriority
}

// Endpoint identifies one node offering a service.
type Endpoint struct {
	Host string
	Port uint16
	TLS  bool
}

func (e Endpoint) url(path string) string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, e.Host, e.Port, path)
}

// Options configures a Pool.
type Options struct {
	Username      string
	Password      string
	IdleTimeout   time.Duration
	DialTimeout   time.Duration
	TLSConfig     *tls.Config
	UserAgent     string
	Logger        *slog.Logger
	Metrics       *metrics.HTTPPool
}

// Pool manages a set of Sessions against the endpoints of one
// service, round-robining checkouts across nodes the way
// http_session_manager.hxx's "next free session, else least-busy
// node" selection does.
type Pool struct {
	service Service
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	endpoints []Endpoint
	nextNode  int
	idle      []*Session
	busyCount int
	client    *http.Client
}

// New builds a Pool for service against the given endpoints.
func New(service Service, endpoints []Endpoint, opts Options) *Pool {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "meridian-go/1.0"
	}

	transport := &http.Transport{
		TLSClientConfig:     opts.TLSConfig,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     opts.IdleTimeout,
	}

	return &Pool{
		service:   service,
		opts:      opts,
		log:       logger.OrDefault(opts.Logger).With("service", string(service)),
		endpoints: endpoints,
		client:    &http.Client{Transport: transport, Timeout: opts.DialTimeout},
	}
}

// SetEndpoints replaces the pool's node list — called when a new
// cluster configuration arrives (spec.md §4.6's reconfiguration path).
func (p *Pool) SetEndpoints(endpoints []Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoints = endpoints
	if p.nextNode >= len(endpoints) {
		p.nextNode = 0
	}
}

// Checkout hands the caller a Session bound to the next node in
// round-robin order, reusing an idle Session for that node if one
// exists. The caller must call CheckIn when done.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	start := time.Now()
	defer func() { p.recordCheckout(time.Since(start)) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, fmt.Errorf("httpclient: no endpoints configured for service %s", p.service)
	}

	endpoint := p.endpoints[p.nextNode%len(p.endpoints)]
	p.nextNode++

	for i, s := range p.idle {
		if s.endpoint == endpoint {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			p.busyCount++
			p.recordOccupancy()
			return s, nil
		}
	}

	s := &Session{
		pool:     p,
		endpoint: endpoint,
		client:   p.client,
		username: p.opts.Username,
		password: p.opts.Password,
		userAgent: p.opts.UserAgent,
		priority:  p.service == ServiceAnalyticsPriority,
	}
	p.busyCount++
	p.recordOccupancy()
	return s, nil
}

// CheckIn returns s to the idle list for its endpoint so a future
// Checkout against the same node can reuse it.
func (p *Pool) CheckIn(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyCount--
	p.idle = append(p.idle, s)
	p.recordOccupancy()
}

func (p *Pool) recordOccupancy() {
	if p.opts.Metrics == nil {
		return
	}
	p.opts.Metrics.Idle.WithLabelValues(string(p.service)).Set(float64(len(p.idle)))
	p.opts.Metrics.Busy.WithLabelValues(string(p.service)).Set(float64(p.busyCount))
}

func (p *Pool) recordCheckout(d time.Duration) {
	if p.opts.Metrics == nil {
		return
	}
	p.opts.Metrics.CheckoutDuration.WithLabelValues(string(p.service)).Observe(d.Seconds())
}

// Close releases the pool's underlying transport resources.
func (p *Pool) Close() {
	p.client.CloseIdleConnections()
}
